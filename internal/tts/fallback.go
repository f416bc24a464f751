package tts

import (
	"context"
	"errors"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/logger"
)

// FallbackEngine 在主引擎失败时改用备用引擎合成同一请求。
// 调用方取消或超时不会触发回退。
type FallbackEngine struct {
	primary  Engine
	fallback Engine
}

// NewFallbackEngine 组合主引擎和备用引擎。
func NewFallbackEngine(primary, fallback Engine) *FallbackEngine {
	return &FallbackEngine{primary: primary, fallback: fallback}
}

func (f *FallbackEngine) Name() string { return f.primary.Name() }

func (f *FallbackEngine) Synthesize(ctx context.Context, req *Request) (*audio.Clip, error) {
	clip, err := f.primary.Synthesize(ctx, req)
	if err == nil {
		return clip, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil, err
	}

	logger.Warnf("[tts] %s 合成失败，回退到 %s: %v", f.primary.Name(), f.fallback.Name(), err)
	clip, fbErr := f.fallback.Synthesize(ctx, req)
	if fbErr != nil {
		return nil, errors.Join(err, fbErr)
	}
	return clip, nil
}

// Close 关闭持有资源的子引擎。
func (f *FallbackEngine) Close() {
	Close(f.primary)
	Close(f.fallback)
}

// Close 释放引擎资源（如果引擎持有资源）。
func Close(e Engine) {
	if c, ok := e.(interface{ Close() }); ok {
		c.Close()
	}
}
