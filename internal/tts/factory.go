package tts

import (
	"fmt"
	"time"

	"github.com/iabetor/emotts/internal/config"
	"github.com/iabetor/emotts/internal/logger"
)

// FromConfig 按配置创建合成引擎，配置了不同的回退引擎时包装为 FallbackEngine。
// 回退引擎创建失败只记录警告，不影响主引擎。
func FromConfig(cfg config.TTSConfig, timeout time.Duration) (Engine, error) {
	primary, err := newEngine(cfg.Engine, cfg, timeout)
	if err != nil {
		return nil, err
	}

	if cfg.Fallback == "" || cfg.Fallback == cfg.Engine {
		return primary, nil
	}
	fallback, err := newEngine(cfg.Fallback, cfg, timeout)
	if err != nil {
		logger.Warnf("[tts] 回退引擎 %s 不可用: %v", cfg.Fallback, err)
		return primary, nil
	}
	logger.Infof("[tts] 合成引擎: %s，回退: %s", primary.Name(), fallback.Name())
	return NewFallbackEngine(primary, fallback), nil
}

func newEngine(name string, cfg config.TTSConfig, timeout time.Duration) (Engine, error) {
	switch name {
	case "mary":
		return NewMaryEngine(cfg.Mary.URL, timeout), nil
	case "tencent":
		return NewTencentEngine(TencentConfig{
			SecretID:  cfg.Tencent.SecretID,
			SecretKey: cfg.Tencent.SecretKey,
			VoiceType: cfg.Tencent.VoiceType,
			Region:    cfg.Tencent.Region,
			Volume:    cfg.Tencent.Volume,
		})
	case "edge":
		return NewEdgeEngine(cfg.Edge.Voice), nil
	case "piper":
		if cfg.Piper.ModelPath == "" {
			return nil, fmt.Errorf("[tts] piper 需要 model_path")
		}
		return NewPiperEngine(cfg.Piper.Binary, cfg.Piper.ModelPath), nil
	case "sherpa":
		return NewSherpaEngine(SherpaConfig{
			ModelDir:   cfg.Sherpa.ModelDir,
			Model:      cfg.Sherpa.Model,
			Lexicon:    cfg.Sherpa.Lexicon,
			Tokens:     cfg.Sherpa.Tokens,
			DataDir:    cfg.Sherpa.DataDir,
			NumThreads: cfg.Sherpa.NumThreads,
			SpeakerID:  cfg.Sherpa.SpeakerID,
		})
	}
	return nil, fmt.Errorf("[tts] 未知的合成引擎: %s", name)
}
