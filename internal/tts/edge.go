package tts

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 实现语音合成，
// 通过 edge-tts-go 获取 MP3 音频，再用 go-mp3 解码为 PCM。
// 只接受纯文本，标记文档使用 Request.Text。
type EdgeEngine struct {
	voice string
}

// NewEdgeEngine 创建指定语音的 Edge TTS 引擎。
func NewEdgeEngine(voice string) *EdgeEngine {
	return &EdgeEngine{voice: voice}
}

func (e *EdgeEngine) Name() string { return "edge" }

// Synthesize 将文本合成为单声道 float32 音频。
func (e *EdgeEngine) Synthesize(ctx context.Context, req *Request) (*audio.Clip, error) {
	text := req.PlainText()
	if text == "" {
		return nil, synthErr(e.Name(), "没有可朗读的内容")
	}
	voice := e.voiceFor(req)

	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), voice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return nil, synthErr(e.Name(), "创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, synthErr(e.Name(), "开始流式合成失败: %w", err)
	}

	// 从 channel 收集所有音频数据
	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, &SynthesisError{Engine: e.Name(), Err: ctx.Err()}
		default:
		}
		// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return nil, synthErr(e.Name(), "未收到音频数据")
	}

	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", mp3Buf.Len())

	clip, err := audio.DecodeMP3(ctx, mp3Buf.Bytes())
	if err != nil {
		return nil, &SynthesisError{Engine: e.Name(), Err: fmt.Errorf("MP3 解码失败: %w", err)}
	}
	return clip, nil
}

// voiceFor 只有请求的音色本身是 Edge 语音名（xx-XX-NameNeural）时才使用它，
// MARY 音色名对 Edge 无意义。
func (e *EdgeEngine) voiceFor(req *Request) string {
	if strings.HasSuffix(req.Voice, "Neural") {
		return req.Voice
	}
	return e.voice
}
