package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/logger"
)

// SherpaConfig sherpa-onnx 离线 VITS 模型配置。
// ModelDir 非空时，未指定的文件按 model.onnx / lexicon.txt / tokens.txt 在其中查找。
type SherpaConfig struct {
	ModelDir   string
	Model      string
	Lexicon    string
	Tokens     string
	DataDir    string
	NumThreads int
	SpeakerID  int
}

// SherpaEngine 封装 sherpa-onnx 离线语音合成（VITS），在进程内运行，无需网络。
// 只接受纯文本，语速通过 Generate 的 speed 参数传入。
type SherpaEngine struct {
	mu  sync.Mutex
	tts *sherpa.OfflineTts
	sid int
}

// NewSherpaEngine 加载模型并创建离线合成器。
func NewSherpaEngine(cfg SherpaConfig) (*SherpaEngine, error) {
	resolve := func(path, name string) string {
		if path != "" || cfg.ModelDir == "" {
			return path
		}
		return filepath.Join(cfg.ModelDir, name)
	}
	model := resolve(cfg.Model, "model.onnx")
	tokens := resolve(cfg.Tokens, "tokens.txt")
	lexicon := resolve(cfg.Lexicon, "lexicon.txt")
	if _, err := os.Stat(lexicon); err != nil {
		// espeak-ng 数据模型没有 lexicon
		lexicon = ""
	}

	if model == "" || tokens == "" {
		return nil, fmt.Errorf("[tts] sherpa 需要 model 和 tokens 路径")
	}

	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = 2
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = model
	config.Model.Vits.Lexicon = lexicon
	config.Model.Vits.Tokens = tokens
	config.Model.Vits.DataDir = cfg.DataDir
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = numThreads
	config.Model.Provider = "cpu"
	config.MaxNumSentences = 1

	t := sherpa.NewOfflineTts(&config)
	if t == nil {
		return nil, fmt.Errorf("[tts] 创建 sherpa 离线合成器失败，模型: %s", model)
	}

	logger.Infof("[tts] sherpa 离线合成器已加载 (model=%s, threads=%d)", model, numThreads)
	return &SherpaEngine{tts: t, sid: cfg.SpeakerID}, nil
}

func (e *SherpaEngine) Name() string { return "sherpa" }

// Synthesize 在后台 goroutine 中生成音频，ctx 取消时立即返回。
// 生成本身不可中断，结果会被丢弃。
func (e *SherpaEngine) Synthesize(ctx context.Context, req *Request) (*audio.Clip, error) {
	text := req.PlainText()
	if text == "" {
		return nil, synthErr(e.Name(), "没有可朗读的内容")
	}

	logger.Debugf("[tts] sherpa: 正在合成 %d 个字符，speed=%.2f", len([]rune(text)), req.rate())

	type result struct {
		clip *audio.Clip
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.tts == nil {
			ch <- result{err: fmt.Errorf("合成器已关闭")}
			return
		}
		gen := e.tts.Generate(text, e.sid, float32(req.rate()))
		if gen == nil || len(gen.Samples) == 0 {
			ch <- result{err: fmt.Errorf("未生成音频")}
			return
		}
		ch <- result{clip: &audio.Clip{Samples: gen.Samples, SampleRate: gen.SampleRate}}
	}()

	select {
	case <-ctx.Done():
		return nil, &SynthesisError{Engine: e.Name(), Err: ctx.Err()}
	case r := <-ch:
		if r.err != nil {
			return nil, &SynthesisError{Engine: e.Name(), Err: r.err}
		}
		return r.clip, nil
	}
}

// Close 释放 sherpa 资源。
func (e *SherpaEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
	}
}
