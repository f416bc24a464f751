package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/logger"
	"github.com/iabetor/emotts/internal/markup"
)

// TencentEngine 使用腾讯云 TTS 实现语音合成。
// SSML 文档原样提交，其余输入退化为纯文本并按语速换算 Speed。
type TencentEngine struct {
	client    *tts.Client
	voiceType int64
	volume    float64
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
	Volume    float64
}

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(cfg TencentConfig) (*TencentEngine, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 需要 SecretID 和 SecretKey")
	}

	if cfg.VoiceType == 0 {
		cfg.VoiceType = 101051 // 默认音色：英文女声
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tts.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建腾讯云 TTS 客户端失败: %w", err)
	}

	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (voice=%d, region=%s)", cfg.VoiceType, cfg.Region)

	return &TencentEngine{
		client:    client,
		voiceType: cfg.VoiceType,
		volume:    cfg.Volume,
	}, nil
}

func (e *TencentEngine) Name() string { return "tencent" }

// Synthesize 合成并把返回的 MP3 解码为单声道音频。
func (e *TencentEngine) Synthesize(ctx context.Context, req *Request) (*audio.Clip, error) {
	text, speed := tencentInput(req)
	if text == "" {
		return nil, synthErr(e.Name(), "没有可朗读的内容")
	}

	logger.Debugf("[tts] 腾讯云 TTS: 正在合成 %d 个字符，音色=%d，语速=%.1f", len([]rune(text)), e.voiceType, speed)

	request := tts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(text)
	request.SessionId = common.StringPtr(sessionID(req))
	request.VoiceType = common.Int64Ptr(e.voiceType)
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr(speed)
	request.Volume = common.Float64Ptr(e.volume)

	response, err := e.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return nil, &SynthesisError{Engine: e.Name(), Err: err}
	}

	if response.Response == nil || response.Response.Audio == nil {
		return nil, synthErr(e.Name(), "未返回音频数据")
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, synthErr(e.Name(), "Base64 解码失败: %w", err)
	}

	logger.Debugf("[tts] 腾讯云 TTS: 收到 %d 字节 MP3 数据", len(mp3Data))

	clip, err := audio.DecodeMP3(ctx, mp3Data)
	if err != nil {
		return nil, &SynthesisError{Engine: e.Name(), Err: err}
	}
	return clip, nil
}

// tencentInput 选择提交的文本和 Speed 参数。
// SSML 已经在 <prosody> 中带了语速，此时 Speed 保持 0（正常）。
func tencentInput(req *Request) (string, float64) {
	if req.Kind == markup.KindSSML {
		return req.Input, 0
	}
	return req.PlainText(), tencentSpeed(req.rate())
}

// tencentSpeed 把语速倍数换算到腾讯云 Speed 取值：
// 0 为 1.0 倍，每档约 0.2 倍，范围 [-2, 6]。
func tencentSpeed(rate float64) float64 {
	s := (rate - 1.0) / 0.2
	if s < -2 {
		s = -2
	}
	if s > 6 {
		s = 6
	}
	return s
}

func sessionID(req *Request) string {
	if req.ID != "" {
		return req.ID
	}
	return uuid.NewString()
}
