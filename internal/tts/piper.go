package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/logger"
)

// defaultPiperSampleRate 是模型配置缺失时 piper 的输出采样率。
const defaultPiperSampleRate = 22050

// PiperEngine 使用 piper CLI 子进程实现离线语音合成。
// 只接受纯文本，语速通过 --length_scale 传入。
type PiperEngine struct {
	binary     string
	modelPath  string
	sampleRate int
}

// NewPiperEngine 创建指定模型的 Piper TTS 引擎。
// 采样率读取模型旁的 <model>.json 配置。
func NewPiperEngine(binary, modelPath string) *PiperEngine {
	if binary == "" {
		binary = "piper"
	}
	return &PiperEngine{
		binary:     binary,
		modelPath:  modelPath,
		sampleRate: piperSampleRate(modelPath),
	}
}

func (p *PiperEngine) Name() string { return "piper" }

// Synthesize 使用 piper CLI 将文本转换为单声道 float32 音频。
// piper 输出 signed 16-bit LE 单声道 PCM。
func (p *PiperEngine) Synthesize(ctx context.Context, req *Request) (*audio.Clip, error) {
	text := req.PlainText()
	if text == "" {
		return nil, synthErr(p.Name(), "没有可朗读的内容")
	}

	logger.Debugf("[tts] piper: 正在合成 %d 个字符，模型=%s", len([]rune(text)), p.modelPath)

	cmd := exec.CommandContext(ctx, p.binary, p.args(req)...)
	cmd.Stdin = bytes.NewReader([]byte(text))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &SynthesisError{Engine: p.Name(), Err: ctx.Err()}
		}
		if s := stderr.String(); s != "" {
			logger.Warnf("[tts] piper stderr: %s", s)
		}
		return nil, synthErr(p.Name(), "执行失败: %w", err)
	}

	pcmData := stdout.Bytes()
	if len(pcmData) == 0 {
		return nil, synthErr(p.Name(), "未收到音频数据")
	}

	logger.Debugf("[tts] piper: 收到 %d 字节原始 PCM", len(pcmData))

	return &audio.Clip{
		Samples:    audio.PCM16ToFloat32(pcmData),
		SampleRate: p.sampleRate,
	}, nil
}

// args 构造命令行参数。length_scale 与语速成反比。
func (p *PiperEngine) args(req *Request) []string {
	args := []string{"--model", p.modelPath, "--output-raw"}
	if rate := req.rate(); rate != 1.0 {
		args = append(args, "--length_scale", strconv.FormatFloat(1.0/rate, 'f', 3, 64))
	}
	return args
}

// piperSampleRate 读取 piper 模型配置里的采样率。
func piperSampleRate(modelPath string) int {
	data, err := os.ReadFile(modelPath + ".json")
	if err != nil {
		return defaultPiperSampleRate
	}
	var cfg struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil || cfg.Audio.SampleRate <= 0 {
		logger.Warnf("[tts] piper: 模型配置 %s.json 无法解析，使用默认采样率 %d", modelPath, defaultPiperSampleRate)
		return defaultPiperSampleRate
	}
	return cfg.Audio.SampleRate
}

