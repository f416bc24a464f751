package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrInterrupted 表示播放在自然结束前被打断。
var ErrInterrupted = errors.New("播放被打断")

// Playback 是一次正在进行的播放。Interrupt 可以从任意 goroutine 调用，
// Join 会在播放结束或被打断时立即返回。
type Playback struct {
	cancel context.CancelFunc
	done   chan struct{}

	// mu 保护 finished、interrupted 和 err，Interrupt 与 Finish 互斥。
	mu          sync.Mutex
	finished    bool
	interrupted bool
	err         error
}

// NewPlayback 创建播放句柄，返回的 ctx 在 Interrupt 时被取消，
// 播放实现应在 ctx 结束或数据播完时调用 Finish。
func NewPlayback(parent context.Context) (*Playback, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Playback{cancel: cancel, done: make(chan struct{})}, ctx
}

// Interrupt 请求停止播放，重复调用无副作用。播放已经结束时不做任何事。
func (pb *Playback) Interrupt() {
	pb.mu.Lock()
	if pb.finished {
		pb.mu.Unlock()
		return
	}
	pb.interrupted = true
	pb.mu.Unlock()
	pb.cancel()
}

// Interrupted 表示播放是否因 Interrupt 而结束（或正在结束）。
// 自然播完之后才到达的 Interrupt 不会让它变为 true。
func (pb *Playback) Interrupted() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.interrupted
}

// Done 在播放结束后关闭。
func (pb *Playback) Done() <-chan struct{} {
	return pb.done
}

// Join 阻塞到播放结束、被打断或 ctx 结束。
// 被打断时返回 ErrInterrupted。
func (pb *Playback) Join(ctx context.Context) error {
	select {
	case <-pb.done:
		return pb.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish 标记播放结束，只有第一次调用生效。
func (pb *Playback) Finish(err error) {
	pb.mu.Lock()
	if pb.finished {
		pb.mu.Unlock()
		return
	}
	pb.finished = true
	if pb.interrupted {
		err = ErrInterrupted
	}
	pb.err = err
	pb.mu.Unlock()

	pb.cancel()
	close(pb.done)
}
