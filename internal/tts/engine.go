package tts

import (
	"context"
	"fmt"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/markup"
	"github.com/iabetor/emotts/internal/prosody"
)

// Engine 定义语音合成后端接口。
type Engine interface {
	// Name 返回引擎名称，用于日志和缓存键。
	Name() string
	// Synthesize 将一次话语请求转换为单声道音频。
	Synthesize(ctx context.Context, req *Request) (*audio.Clip, error)
}

// Request 是提交给合成后端的一次话语请求。
type Request struct {
	ID string
	// Kind 说明 Input 的解释方式：纯文本、SSML 或 MaryXML。
	Kind  markup.InputKind
	Input string
	// Text 规范化后的纯文本，只支持纯文本的后端使用它。
	Text    string
	Voice   string
	Locale  string
	Effects string
	Style   prosody.Style
	// Rate 语速倍数，标记文档里已经包含 rate 时仍保留，供纯文本后端使用。
	Rate   float64
	Format string
}

// NewRequest 由编译后的文档构造请求。
func NewRequest(id string, doc *markup.Document, style prosody.Style) *Request {
	rate := 1.0
	if p, ok := prosody.Resolve(style); ok {
		rate = p.RateMultiplier()
	}
	return &Request{
		ID:     id,
		Kind:   doc.Kind,
		Input:  doc.Markup,
		Text:   doc.Text,
		Style:  style,
		Rate:   rate,
		Format: "WAVE_FILE",
	}
}

// PlainText 返回纯文本后端应朗读的内容。
func (r *Request) PlainText() string {
	if r.Text != "" {
		return r.Text
	}
	if r.Kind == markup.KindText {
		return r.Input
	}
	return ""
}

// rate 返回有效语速，未设置时为 1.0。
func (r *Request) rate() float64 {
	if r.Rate <= 0 {
		return 1.0
	}
	return r.Rate
}

// SynthesisError 表示后端合成失败。
type SynthesisError struct {
	Engine string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("[tts] %s 合成失败: %v", e.Engine, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

func synthErr(engine string, format string, args ...any) error {
	return &SynthesisError{Engine: engine, Err: fmt.Errorf(format, args...)}
}
