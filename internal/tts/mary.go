package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/logger"
)

// MaryEngine 通过 MARY TTS 服务的 HTTP /process 接口合成语音，
// 直接接受 SSML 和 RAWMARYXML 标记，返回 WAVE 音频。
type MaryEngine struct {
	baseURL string
	client  *http.Client
}

// NewMaryEngine 创建 MARY 引擎，baseURL 形如 http://localhost:59125。
func NewMaryEngine(baseURL string, timeout time.Duration) *MaryEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MaryEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (m *MaryEngine) Name() string { return "mary" }

// Synthesize 提交标记文档并解码返回的 WAVE 数据。
func (m *MaryEngine) Synthesize(ctx context.Context, req *Request) (*audio.Clip, error) {
	form, err := m.formValues(req)
	if err != nil {
		return nil, &SynthesisError{Engine: m.Name(), Err: err}
	}

	logger.Debugf("[tts] mary: 正在合成 %s (%d 字节)，音色=%s", req.Kind.MaryType(), len(req.Input), req.Voice)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/process", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &SynthesisError{Engine: m.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, &SynthesisError{Engine: m.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Engine: m.Name(), Err: fmt.Errorf("读取响应失败: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, synthErr(m.Name(), "服务返回 %d: %s", resp.StatusCode, msg)
	}

	clip, err := audio.DecodeWAV(body)
	if err != nil {
		return nil, &SynthesisError{Engine: m.Name(), Err: err}
	}

	logger.Debugf("[tts] mary: 收到 %d 字节音频，时长 %v", len(body), clip.Duration())
	return clip, nil
}

// formValues 构造 /process 的表单参数。
// Effects 使用 MARY 自己的查询串格式，如 "effect_Robot_selected=on&effect_Robot_parameters=amount:60.0;"。
func (m *MaryEngine) formValues(req *Request) (url.Values, error) {
	form := url.Values{}
	form.Set("INPUT_TEXT", req.Input)
	form.Set("INPUT_TYPE", req.Kind.MaryType())
	form.Set("OUTPUT_TYPE", "AUDIO")
	format := req.Format
	if format == "" {
		format = "WAVE_FILE"
	}
	form.Set("AUDIO", format)
	locale := req.Locale
	if locale == "" {
		locale = "en_US"
	}
	form.Set("LOCALE", locale)
	if req.Voice != "" {
		form.Set("VOICE", req.Voice)
	}

	if req.Effects != "" {
		effects, err := url.ParseQuery(req.Effects)
		if err != nil {
			return nil, fmt.Errorf("效果参数格式错误: %w", err)
		}
		for k, vs := range effects {
			for _, v := range vs {
				form.Add(k, v)
			}
		}
	}
	return form, nil
}
