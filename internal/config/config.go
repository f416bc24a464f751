package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 是 emotts 的顶层配置结构。
type Config struct {
	Speech   SpeechConfig   `yaml:"speech"`
	TTS      TTSConfig      `yaml:"tts"`
	Audio    AudioConfig    `yaml:"audio"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`

	// DataDir 数据目录，数据库和音频缓存默认放在这里。
	DataDir string `yaml:"data_dir"`
}

// SpeechConfig 话语生成配置。
type SpeechConfig struct {
	// Style 启动时的情感风格：none, stress, anger, confusion, custom1。
	Style string `yaml:"style"`
	// Dialect 标记方言：ssml 或 maryxml。
	Dialect string `yaml:"dialect"`
	// Voice 音色名称，也接受 male / female。
	Voice   string `yaml:"voice"`
	Locale  string `yaml:"locale"`
	Effects string `yaml:"effects"`

	// SaveToWAV 为 true 时合成结果写入 WAVPath 而不是播放。
	SaveToWAV bool   `yaml:"save_to_wav"`
	WAVPath   string `yaml:"wav_path"`

	// PlainTextForNone 为 true 时 NONE 风格跳过标记编译，直接提交纯文本。
	PlainTextForNone bool `yaml:"plain_text_for_none"`

	// SynthesisTimeout 单次合成的超时时间（秒）。
	SynthesisTimeout int `yaml:"synthesis_timeout"`
	// PlaybackGrace 播放时长之外允许的额外等待时间（秒）。
	PlaybackGrace int `yaml:"playback_grace"`
}

// SynthesisTimeoutDuration 返回合成超时。
func (s SpeechConfig) SynthesisTimeoutDuration() time.Duration {
	return time.Duration(s.SynthesisTimeout) * time.Second
}

// PlaybackGraceDuration 返回播放宽限时间。
func (s SpeechConfig) PlaybackGraceDuration() time.Duration {
	return time.Duration(s.PlaybackGrace) * time.Second
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	Engine   string        `yaml:"engine"`
	Fallback string        `yaml:"fallback"`
	Mary     MaryConfig    `yaml:"mary"`
	Tencent  TencentConfig `yaml:"tencent"`
	Edge     EdgeConfig    `yaml:"edge"`
	Piper    PiperConfig   `yaml:"piper"`
	Sherpa   SherpaConfig  `yaml:"sherpa"`
}

// MaryConfig MaryTTS 服务配置。
type MaryConfig struct {
	URL string `yaml:"url"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string  `yaml:"secret_id"`
	SecretKey string  `yaml:"secret_key"`
	VoiceType int64   `yaml:"voice_type"`
	Region    string  `yaml:"region"`
	Volume    float64 `yaml:"volume"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// PiperConfig Piper TTS 配置。
type PiperConfig struct {
	Binary    string `yaml:"binary"`
	ModelPath string `yaml:"model_path"`
}

// SherpaConfig sherpa-onnx 离线 VITS 语音合成配置。
type SherpaConfig struct {
	ModelDir   string `yaml:"model_dir"`
	Model      string `yaml:"model"`
	Lexicon    string `yaml:"lexicon"`
	Tokens     string `yaml:"tokens"`
	DataDir    string `yaml:"data_dir"`
	NumThreads int    `yaml:"num_threads"`
	SpeakerID  int    `yaml:"speaker_id"`
}

// AudioConfig 音频播放与缓存配置。
type AudioConfig struct {
	Channels int `yaml:"channels"`
	// Output 播放输出：device（声卡）或 null（不出声，只计时）。
	Output      string `yaml:"output"`
	CacheDir    string `yaml:"cache_dir"`
	CacheSizeMB int64  `yaml:"cache_size_mb"`
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig websocket 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 配置文件同目录下的 .env 会先被加载（不覆盖已有环境变量），
// 然后展开 ${VAR_NAME} 形式的环境变量。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("加载环境变量文件 %s 失败: %w", envFile, err)
		}
	}

	// 展开环境变量，如 ${EMOTTS_TENCENT_SECRET_ID}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Default 返回只包含默认值的配置，用于没有配置文件时启动。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Speech.Style == "" {
		cfg.Speech.Style = "none"
	}
	if cfg.Speech.Dialect == "" {
		cfg.Speech.Dialect = "ssml"
	}
	if cfg.Speech.Voice == "" {
		cfg.Speech.Voice = "cmu-slt-hsmm"
	}
	if cfg.Speech.Locale == "" {
		cfg.Speech.Locale = "en_US"
	}
	if cfg.Speech.WAVPath == "" {
		cfg.Speech.WAVPath = "/tmp/adeplay.wav"
	}
	if cfg.Speech.SynthesisTimeout == 0 {
		cfg.Speech.SynthesisTimeout = 30
	}
	if cfg.Speech.PlaybackGrace == 0 {
		cfg.Speech.PlaybackGrace = 5
	}

	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "mary"
	}
	if cfg.TTS.Mary.URL == "" {
		cfg.TTS.Mary.URL = "http://localhost:59125"
	}
	if cfg.TTS.Edge.Voice == "" {
		cfg.TTS.Edge.Voice = "en-US-AriaNeural"
	}
	if cfg.TTS.Piper.Binary == "" {
		cfg.TTS.Piper.Binary = "piper"
	}
	if cfg.TTS.Sherpa.NumThreads == 0 {
		cfg.TTS.Sherpa.NumThreads = 2
	}

	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.Output == "" {
		cfg.Audio.Output = "device"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.DataDir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.DataDir = home + "/.emotts"
		} else {
			cfg.DataDir = "./.emotts-data"
		}
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Speech.WAVPath = expandHome(cfg.Speech.WAVPath)

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "emotts.db")
	}
	if cfg.Audio.CacheDir == "" {
		cfg.Audio.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}

	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.TTS.Tencent.SecretID = strings.TrimSpace(cfg.TTS.Tencent.SecretID)
	cfg.TTS.Tencent.SecretKey = strings.TrimSpace(cfg.TTS.Tencent.SecretKey)
}

// expandHome 展开 ~/ 前缀，Go 不会自动处理。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return home + path[1:]
}
