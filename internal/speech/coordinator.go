package speech

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/emotts/internal/audio"
	"github.com/iabetor/emotts/internal/history"
	"github.com/iabetor/emotts/internal/logger"
	"github.com/iabetor/emotts/internal/markup"
	"github.com/iabetor/emotts/internal/prosody"
	"github.com/iabetor/emotts/internal/tts"
)

var (
	// ErrBusy 表示已有请求在进行中，新请求不排队直接拒绝。
	ErrBusy = errors.New("已有话语正在进行")
	// ErrClosed 表示协调器已关闭。
	ErrClosed = errors.New("协调器已关闭")
)

// PlaybackError 表示播放设备或文件写入失败。
type PlaybackError struct {
	Op  string // play, write, timeout
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("[speech] 输出失败 (%s): %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Transport 是播放输出，audio.Player 和 audio.NullPlayer 都实现了它。
type Transport interface {
	Play(ctx context.Context, clip *audio.Clip) (*audio.Playback, error)
}

// Options 协调器配置。
type Options struct {
	Dialect markup.Dialect
	Style   prosody.Style
	Voice   string
	Locale  string
	Effects string

	SaveToWAV        bool
	WAVPath          string
	PlainTextForNone bool

	SynthesisTimeout time.Duration
	PlaybackGrace    time.Duration

	// Store 非空时持久化风格/音色设置并记录话语日志。
	Store *history.Store
	// Cache 非空且启用时复用相同请求的合成结果。
	Cache *audio.ClipCache
}

// Coordinator 负责单条话语的完整生命周期：编译、合成、播放或写文件，
// 并对外暴露"正在说话"和打断操作。同一时间只允许一个请求。
type Coordinator struct {
	engine    tts.Engine
	transport Transport
	opts      Options
	sm        *StateMachine

	// base 在 Close 时取消，所有请求的 ctx 都挂在它上面。
	base     context.Context
	shutdown context.CancelFunc

	// mu 保护 speaking、requestID、handle、stopPlay 以及当前风格和音色。
	mu        sync.Mutex
	speaking  bool
	requestID string
	handle    *audio.Playback
	// stopPlay 在调用 transport.Play 之前设置，用于打断尚未拿到句柄的播放。
	stopPlay context.CancelFunc
	style    prosody.Style
	voice    string
	closed   bool

	// inflight 统计尚未收尾的请求，只在持有 mu 且未关闭时 Add。
	inflight sync.WaitGroup
}

// NewCoordinator 创建协调器。配置了 Store 时，已保存的风格和音色覆盖 opts 中的初始值。
func NewCoordinator(engine tts.Engine, transport Transport, opts Options) *Coordinator {
	if opts.WAVPath == "" {
		opts.WAVPath = "/tmp/adeplay.wav"
	}
	base, shutdown := context.WithCancel(context.Background())
	c := &Coordinator{
		base:      base,
		shutdown:  shutdown,
		engine:    engine,
		transport: transport,
		opts:      opts,
		sm:        NewStateMachine(),
		style:     opts.Style,
		voice:     resolveVoice(opts.Voice),
	}
	c.loadSettings()
	return c
}

// loadSettings 从存储中恢复上次的风格和音色。
func (c *Coordinator) loadSettings() {
	if c.opts.Store == nil {
		return
	}
	if v, ok, err := c.opts.Store.GetSetting(history.KeyStyle); err != nil {
		logger.Warnf("[speech] 读取已保存的风格失败: %v", err)
	} else if ok {
		if s, valid := prosody.ParseStyle(v); valid {
			c.style = s
		}
	}
	if v, ok, err := c.opts.Store.GetSetting(history.KeyVoice); err != nil {
		logger.Warnf("[speech] 读取已保存的音色失败: %v", err)
	} else if ok && v != "" {
		c.voice = v
	}
	logger.Infof("[speech] 当前风格 %s，音色 %s", c.style, c.voice)
}

// Speak 合成并输出一条话语，任何失败都返回 false。
func (c *Coordinator) Speak(ctx context.Context, text string, blocking bool) bool {
	return c.SpeakErr(ctx, text, blocking) == nil
}

// SpeakErr 与 Speak 相同，但返回具体错误。
// blocking 为 true 时等到播放结束或被打断才返回；否则播放开始后即返回，
// 由后台 goroutine 在播放结束时清除 speaking 状态。被打断不算失败。
// 非阻塞返回时 IsSpeaking 仍为 true，直到播放结束，期间新的请求会得到 ErrBusy。
func (c *Coordinator) SpeakErr(ctx context.Context, text string, blocking bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.speaking {
		c.mu.Unlock()
		logger.Debugf("[speech] 拒绝新请求：已有话语进行中")
		return ErrBusy
	}
	id := uuid.NewString()
	c.speaking = true
	c.requestID = id
	c.inflight.Add(1)
	style, voice := c.style, c.voice
	c.mu.Unlock()

	reqCtx, release := c.requestContext(ctx)
	defer release()

	r := &run{
		c:     c,
		id:    id,
		start: time.Now(),
		rec: history.Utterance{
			ID:      id,
			Text:    text,
			Style:   style.String(),
			Dialect: c.opts.Dialect.String(),
			Voice:   voice,
			Engine:  c.engine.Name(),
		},
	}

	logger.Infof("[speech] 开始话语 %s: %q (风格=%s, 阻塞=%v)", id, preview(text), style, blocking)

	if !c.sm.Transition(StateCompiling) {
		// 上一个请求没有正常收尾，强制回到 Idle 再开始
		c.sm.ForceIdle()
		c.sm.Transition(StateCompiling)
	}
	doc, err := c.compile(text, style)
	if err != nil {
		return r.fail(err)
	}

	c.sm.Transition(StateSynthesizing)
	req := tts.NewRequest(id, doc, style)
	req.Voice = voice
	req.Locale = c.opts.Locale
	req.Effects = c.opts.Effects

	clip, err := c.synthesize(reqCtx, req)
	if err != nil {
		return r.fail(err)
	}
	if err := reqCtx.Err(); err != nil {
		if c.base.Err() != nil {
			err = ErrClosed
		}
		return r.fail(err)
	}

	if c.opts.SaveToWAV {
		c.sm.Transition(StateWriting)
		if err := audio.WriteWAV(c.opts.WAVPath, clip); err != nil {
			return r.fail(&PlaybackError{Op: "write", Err: err})
		}
		logger.Infof("[speech] 已写入 %s (%v)", c.opts.WAVPath, clip.Duration())
		r.done(history.OutcomeSaved, nil)
		return nil
	}

	c.sm.Transition(StatePlaying)
	parent, releasePlay := reqCtx, func() {}
	if !blocking {
		// 非阻塞模式下调用方的 ctx 可能在播放结束前失效，只保留与 Close 的关联
		parent, releasePlay = c.requestContext(context.WithoutCancel(ctx))
	}
	playCtx, cancel := context.WithTimeout(parent, clip.Duration()+c.opts.PlaybackGrace)
	stop := func() {
		cancel()
		releasePlay()
	}

	c.mu.Lock()
	c.stopPlay = cancel
	c.mu.Unlock()

	pb, err := c.transport.Play(playCtx, clip)
	if err != nil {
		stop()
		return r.fail(&PlaybackError{Op: "play", Err: err})
	}

	c.mu.Lock()
	c.handle = pb
	c.mu.Unlock()

	if blocking {
		defer stop()
		return r.await(pb)
	}

	go func() {
		defer stop()
		r.await(pb)
	}()
	return nil
}

// requestContext 派生一个在 parent 结束或协调器关闭时都会取消的 ctx。
func (c *Coordinator) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	detach := context.AfterFunc(c.base, cancel)
	return ctx, func() {
		detach()
		cancel()
	}
}

// compile 按当前风格生成文档；NONE 且开启纯文本路径时跳过标记。
func (c *Coordinator) compile(text string, style prosody.Style) (*markup.Document, error) {
	if style == prosody.StyleNone && c.opts.PlainTextForNone {
		return markup.CompilePlain(text)
	}
	return markup.Compile(text, style, c.opts.Dialect)
}

// synthesize 调用合成后端，优先命中缓存，并施加合成超时。
func (c *Coordinator) synthesize(ctx context.Context, req *tts.Request) (*audio.Clip, error) {
	key := ""
	if c.opts.Cache.Enabled() {
		key = audio.CacheKey(c.engine.Name(), req.Kind.String(), req.Input, req.Voice, req.Locale, req.Effects,
			strconv.FormatFloat(req.Rate, 'f', 3, 64))
		if clip, ok := c.opts.Cache.Lookup(key); ok {
			logger.Debugf("[speech] 缓存命中 %s", key)
			return clip, nil
		}
	}

	if c.opts.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SynthesisTimeout)
		defer cancel()
	}

	clip, err := c.engine.Synthesize(ctx, req)
	if err != nil {
		var se *tts.SynthesisError
		if !errors.As(err, &se) {
			err = &tts.SynthesisError{Engine: c.engine.Name(), Err: err}
		}
		return nil, err
	}
	if clip.Empty() {
		return nil, &tts.SynthesisError{Engine: c.engine.Name(), Err: errors.New("返回的音频为空")}
	}

	if key != "" {
		entry := audio.CacheEntry{Engine: c.engine.Name(), Voice: req.Voice, Preview: preview(req.Text)}
		if err := c.opts.Cache.Store(key, clip, entry); err != nil {
			logger.Warnf("[speech] 写入缓存失败: %v", err)
		}
	}
	return clip, nil
}

// IsSpeaking 返回是否有请求在进行中，不做任何 I/O。
func (c *Coordinator) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// StopUtterance 打断当前播放，返回句柄是否已处于打断状态。
// 播放正在启动、句柄尚未返回时直接取消播放 ctx 并返回 true。
// 没有正在播放的话语时返回 false。
func (c *Coordinator) StopUtterance() bool {
	c.mu.Lock()
	h, stopPlay := c.handle, c.stopPlay
	id := c.requestID
	c.mu.Unlock()

	switch {
	case h != nil:
		h.Interrupt()
		logger.Infof("[speech] 打断话语 %s", id)
		return h.Interrupted()
	case stopPlay != nil:
		stopPlay()
		logger.Infof("[speech] 打断正在启动的话语 %s", id)
		return true
	}
	logger.Debugf("[speech] 没有正在播放的话语")
	return false
}

// SetEmotionalStyle 不区分大小写地设置情感风格，无法识别的名称被忽略。
func (c *Coordinator) SetEmotionalStyle(name string) {
	s, ok := prosody.ParseStyle(name)
	if !ok {
		logger.Debugf("[speech] 忽略未知风格: %q", name)
		return
	}
	c.mu.Lock()
	c.style = s
	c.mu.Unlock()
	logger.Infof("[speech] 风格设置为 %s", s)
	c.saveSetting(history.KeyStyle, s.String())
}

// EmotionalStyle 返回当前风格名。
func (c *Coordinator) EmotionalStyle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style.String()
}

// SetVoice 设置音色，male / female 映射到默认的男声和女声。
func (c *Coordinator) SetVoice(name string) {
	v := resolveVoice(name)
	if v == "" {
		logger.Debugf("[speech] 忽略空音色名")
		return
	}
	c.mu.Lock()
	c.voice = v
	c.mu.Unlock()
	logger.Infof("[speech] 音色设置为 %s", v)
	c.saveSetting(history.KeyVoice, v)
}

// Voice 返回当前音色。
func (c *Coordinator) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// State 返回当前请求阶段。
func (c *Coordinator) State() State {
	return c.sm.Current()
}

// SetOnStateChange 注册阶段变化回调。回调在状态锁内执行，不能阻塞。
func (c *Coordinator) SetOnStateChange(fn func(from, to State)) {
	c.sm.SetOnChange(fn)
}

// Recent 返回最近的话语日志，未配置存储时返回空。
func (c *Coordinator) Recent(limit int) ([]history.Utterance, error) {
	if c.opts.Store == nil {
		return nil, nil
	}
	return c.opts.Store.Recent(limit)
}

// Close 拒绝新请求，取消正在编译、合成或播放的请求并等待它们收尾，
// 之后才释放合成后端和播放输出。
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.handle
	c.mu.Unlock()

	if h != nil {
		h.Interrupt()
	}
	c.shutdown()
	c.inflight.Wait()
	c.sm.ForceIdle()

	tts.Close(c.engine)
	if closer, ok := c.transport.(interface{ Close() }); ok {
		closer.Close()
	}
	logger.Info("[speech] 协调器已关闭")
}

func (c *Coordinator) saveSetting(key, value string) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.SetSetting(key, value); err != nil {
		logger.Warnf("[speech] 保存设置失败: %v", err)
	}
}

// resolveVoice 把性别别名映射为 MARY 音色名。
func resolveVoice(name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "male":
		return "cmu-rms-hsmm"
	case "female":
		return "cmu-slt-hsmm"
	}
	return name
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return text
}

// run 是一次请求的收尾逻辑。
type run struct {
	c     *Coordinator
	id    string
	start time.Time
	rec   history.Utterance
}

// await 等待播放结束并按结果收尾。
func (r *run) await(pb *audio.Playback) error {
	err := pb.Join(context.Background())
	switch {
	case err == nil:
		r.done(history.OutcomeCompleted, nil)
		return nil
	case errors.Is(err, audio.ErrInterrupted), errors.Is(err, context.Canceled):
		r.c.sm.Transition(StateInterrupted)
		r.done(history.OutcomeInterrupted, nil)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return r.fail(&PlaybackError{Op: "timeout", Err: err})
	default:
		return r.fail(&PlaybackError{Op: "play", Err: err})
	}
}

func (r *run) fail(err error) error {
	logger.Errorf("[speech] 话语 %s 失败: %v", r.id, err)
	r.c.sm.Transition(StateFailed)
	r.done(history.OutcomeFailed, err)
	return err
}

// done 回到 Idle、清除 speaking 状态并记录日志。
// 状态先回到 Idle 再清除 speaking，保证下一个请求从 Idle 开始。
func (r *run) done(outcome string, err error) {
	c := r.c
	defer c.inflight.Done()
	c.sm.Transition(StateIdle)

	c.mu.Lock()
	if c.requestID == r.id {
		c.speaking = false
		c.requestID = ""
		c.handle = nil
		c.stopPlay = nil
	}
	c.mu.Unlock()

	elapsed := time.Since(r.start)
	if outcome != history.OutcomeFailed {
		logger.Infof("[speech] 话语 %s 结束: %s (%v)", r.id, outcome, elapsed.Round(time.Millisecond))
	}

	if c.opts.Store == nil {
		return
	}
	r.rec.Outcome = outcome
	r.rec.Duration = elapsed
	if err != nil {
		r.rec.Error = err.Error()
	}
	if err := c.opts.Store.RecordUtterance(r.rec); err != nil {
		logger.Warnf("[speech] 记录话语失败: %v", err)
	}
}
