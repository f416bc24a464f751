package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/config"
	"github.com/iabetor/emotts/internal/markup"
	"github.com/iabetor/emotts/internal/prosody"
)

type stubEngine struct {
	name  string
	err   error
	calls int
	last  *Request
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Synthesize(ctx context.Context, req *Request) (*audio.Clip, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &audio.Clip{Samples: []float32{0.1}, SampleRate: 16000}, nil
}

func TestNewRequest_FromDocument(t *testing.T) {
	doc, err := markup.Compile("HELLO world", prosody.StyleStress, markup.DialectSSML)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	req := NewRequest("id-1", doc, prosody.StyleStress)

	if req.Kind != markup.KindSSML || req.Input != doc.Markup {
		t.Errorf("request should carry the SSML markup, got kind=%v", req.Kind)
	}
	if req.PlainText() != "HELLO world." {
		t.Errorf("PlainText = %q, want %q", req.PlainText(), "HELLO world.")
	}
	if req.Rate != 1.15 {
		t.Errorf("Rate = %v, want 1.15", req.Rate)
	}
	if req.Format != "WAVE_FILE" {
		t.Errorf("Format = %q", req.Format)
	}
}

func TestRequest_RateDefaults(t *testing.T) {
	doc, _ := markup.CompilePlain("hi")
	req := NewRequest("x", doc, prosody.StyleNone)
	if req.rate() != 1.0 {
		t.Errorf("NONE rate = %v, want 1.0", req.rate())
	}
	req.Rate = 0
	if req.rate() != 1.0 {
		t.Errorf("zero rate should default to 1.0, got %v", req.rate())
	}
}

func TestFallbackEngine_UsesFallbackOnError(t *testing.T) {
	primary := &stubEngine{name: "mary", err: errors.New("connection refused")}
	backup := &stubEngine{name: "piper"}
	f := NewFallbackEngine(primary, backup)

	clip, err := f.Synthesize(context.Background(), &Request{Text: "hi"})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if clip == nil || backup.calls != 1 {
		t.Fatalf("fallback not used: calls=%d", backup.calls)
	}
}

func TestFallbackEngine_PrimarySuccess(t *testing.T) {
	primary := &stubEngine{name: "mary"}
	backup := &stubEngine{name: "piper"}
	if _, err := NewFallbackEngine(primary, backup).Synthesize(context.Background(), &Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backup.calls != 0 {
		t.Error("fallback should not be called when primary succeeds")
	}
}

func TestFallbackEngine_NoFallbackOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &stubEngine{name: "mary", err: &SynthesisError{Engine: "mary", Err: context.Canceled}}
	backup := &stubEngine{name: "piper"}

	_, err := NewFallbackEngine(primary, backup).Synthesize(ctx, &Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if backup.calls != 0 {
		t.Error("fallback should not run after cancellation")
	}
}

func TestFallbackEngine_BothFail(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")
	_, err := NewFallbackEngine(&stubEngine{name: "a", err: e1}, &stubEngine{name: "b", err: e2}).
		Synthesize(context.Background(), &Request{})
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
}

func TestTencentInput(t *testing.T) {
	ssml := &Request{Kind: markup.KindSSML, Input: "<speak/>", Text: "hi.", Rate: 1.15}
	text, speed := tencentInput(ssml)
	if text != "<speak/>" || speed != 0 {
		t.Errorf("SSML input = %q speed=%v", text, speed)
	}

	mary := &Request{Kind: markup.KindRawMaryXML, Input: "<maryxml/>", Text: "hi.", Rate: 0.8}
	text, speed = tencentInput(mary)
	if text != "hi." {
		t.Errorf("MaryXML should fall back to plain text, got %q", text)
	}
	if speed < -1.01 || speed > -0.99 {
		t.Errorf("speed for 0.8x = %v, want -1", speed)
	}

	if s := tencentSpeed(10); s != 6 {
		t.Errorf("speed should clamp to 6, got %v", s)
	}
	if s := tencentSpeed(0.1); s != -2 {
		t.Errorf("speed should clamp to -2, got %v", s)
	}
}

func TestSessionID(t *testing.T) {
	if sessionID(&Request{ID: "abc"}) != "abc" {
		t.Error("request ID should be reused as session ID")
	}
	if sessionID(&Request{}) == "" {
		t.Error("missing ID should generate a session ID")
	}
}

func TestPiperArgs(t *testing.T) {
	p := &PiperEngine{binary: "piper", modelPath: "/m.onnx", sampleRate: 22050}
	args := strings.Join(p.args(&Request{Rate: 1.0}), " ")
	if args != "--model /m.onnx --output-raw" {
		t.Errorf("args = %q", args)
	}
	args = strings.Join(p.args(&Request{Rate: 0.8}), " ")
	if !strings.HasSuffix(args, "--length_scale 1.250") {
		t.Errorf("args = %q, want length_scale 1.250", args)
	}
}

func TestPiperSampleRate(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "voice.onnx")
	if got := piperSampleRate(model); got != defaultPiperSampleRate {
		t.Errorf("missing config should use default, got %d", got)
	}
	os.WriteFile(model+".json", []byte(`{"audio":{"sample_rate":16000}}`), 0644)
	if got := piperSampleRate(model); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
}

func TestPiperEngine_EmptyText(t *testing.T) {
	p := NewPiperEngine("", "/nonexistent.onnx")
	_, err := p.Synthesize(context.Background(), &Request{Kind: markup.KindSSML, Input: "<speak/>"})
	var se *SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
}

func TestEdgeEngine_VoiceSelection(t *testing.T) {
	e := NewEdgeEngine("en-US-AriaNeural")
	if v := e.voiceFor(&Request{Voice: "cmu-slt-hsmm"}); v != "en-US-AriaNeural" {
		t.Errorf("MARY voice should be ignored, got %q", v)
	}
	if v := e.voiceFor(&Request{Voice: "en-GB-RyanNeural"}); v != "en-GB-RyanNeural" {
		t.Errorf("Edge voice should be used, got %q", v)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().TTS

	eng, err := FromConfig(cfg, time.Second)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if eng.Name() != "mary" {
		t.Errorf("default engine = %s, want mary", eng.Name())
	}

	cfg.Fallback = "edge"
	eng, _ = FromConfig(cfg, time.Second)
	if _, ok := eng.(*FallbackEngine); !ok {
		t.Errorf("expected FallbackEngine, got %T", eng)
	}

	cfg.Fallback = "piper" // 缺少 model_path，回退被忽略
	eng, _ = FromConfig(cfg, time.Second)
	if _, ok := eng.(*MaryEngine); !ok {
		t.Errorf("unusable fallback should be skipped, got %T", eng)
	}

	cfg.Engine = "festival"
	if _, err := FromConfig(cfg, time.Second); err == nil {
		t.Error("expected error for unknown engine")
	}
}
