package speech

import (
	"fmt"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/config"
	"github.com/iabetor/emotts/internal/history"
	"github.com/iabetor/emotts/internal/logger"
	"github.com/iabetor/emotts/internal/markup"
	"github.com/iabetor/emotts/internal/prosody"
	"github.com/iabetor/emotts/internal/tts"
)

// OptionsFromConfig 把配置转换为协调器选项，不创建任何资源。
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	dialect, ok := markup.ParseDialect(cfg.Speech.Dialect)
	if !ok {
		return Options{}, fmt.Errorf("[speech] 未知的标记方言: %s", cfg.Speech.Dialect)
	}
	style, ok := prosody.ParseStyle(cfg.Speech.Style)
	if !ok {
		logger.Warnf("[speech] 未知的初始风格 %q，使用 NONE", cfg.Speech.Style)
		style = prosody.StyleNone
	}
	return Options{
		Dialect:          dialect,
		Style:            style,
		Voice:            cfg.Speech.Voice,
		Locale:           cfg.Speech.Locale,
		Effects:          cfg.Speech.Effects,
		SaveToWAV:        cfg.Speech.SaveToWAV,
		WAVPath:          cfg.Speech.WAVPath,
		PlainTextForNone: cfg.Speech.PlainTextForNone,
		SynthesisTimeout: cfg.Speech.SynthesisTimeoutDuration(),
		PlaybackGrace:    cfg.Speech.PlaybackGraceDuration(),
	}, nil
}

// NewTransport 按 audio.output 创建播放输出。
func NewTransport(cfg config.AudioConfig) (Transport, error) {
	switch cfg.Output {
	case "null":
		logger.Info("[speech] 使用静音输出")
		return audio.NullPlayer{}, nil
	case "device", "":
		p, err := audio.NewPlayer(cfg.Channels)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("[speech] 未知的音频输出: %s", cfg.Output)
}

// New 按配置创建合成引擎、播放输出和缓存，组装协调器。
// store 可以为 nil。
func New(cfg *config.Config, store *history.Store) (*Coordinator, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := tts.FromConfig(cfg.TTS, opts.SynthesisTimeout)
	if err != nil {
		return nil, err
	}

	var transport Transport = audio.NullPlayer{}
	if !opts.SaveToWAV {
		transport, err = NewTransport(cfg.Audio)
		if err != nil {
			tts.Close(engine)
			return nil, err
		}
	}

	cache, err := audio.NewClipCache(cfg.Audio.CacheDir, cfg.Audio.CacheSizeMB)
	if err != nil {
		logger.Warnf("[speech] 音频缓存不可用: %v", err)
		cache = nil
	}

	opts.Store = store
	opts.Cache = cache

	logger.Infof("[speech] 引擎=%s 方言=%s 输出=%s 保存WAV=%v", engine.Name(), opts.Dialect, cfg.Audio.Output, opts.SaveToWAV)
	return NewCoordinator(engine, transport, opts), nil
}
