package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/emotts/internal/logger"
)

// Player 使用 malgo (miniaudio) 通过默认扬声器播放音频。
type Player struct {
	ctx      *malgo.AllocatedContext
	channels uint32
	mu       sync.Mutex
	closed   bool
}

// NewPlayer 创建一个新的音频播放实例。
// channels: 输出声道数，单声道样本会复制到每个声道。
func NewPlayer(channels int) (*Player, error) {
	if channels <= 0 {
		channels = 1
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx, channels: uint32(channels)}, nil
}

// Play 启动播放并立即返回句柄；设备在后台 goroutine 中播放直到结束或被打断。
func (p *Player) Play(ctx context.Context, clip *Clip) (*Playback, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("[audio] 播放器已关闭")
	}
	p.mu.Unlock()

	pb, playCtx := NewPlayback(ctx)
	if clip.Empty() {
		pb.Finish(nil)
		return pb, nil
	}

	pcm := interleave(Float32ToPCM16(clip.Samples), int(p.channels))
	frameBytes := int(p.channels) * 2
	pos := 0
	drained := make(chan struct{}, 1)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = p.channels
	deviceConfig.SampleRate = uint32(clip.SampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			need := int(frameCount) * frameBytes
			n := copy(out[:need], pcm[pos:])
			pos += n
			for i := n; i < need; i++ {
				out[i] = 0
			}
			if pos >= len(pcm) {
				select {
				case drained <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		pb.Finish(err)
		return nil, fmt.Errorf("[audio] 初始化播放设备失败: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		pb.Finish(err)
		return nil, fmt.Errorf("[audio] 启动播放设备失败: %w", err)
	}

	logger.Debugf("[audio] 开始播放 %v (%d Hz)", clip.Duration(), clip.SampleRate)
	go func() {
		defer device.Uninit()
		defer device.Stop()
		select {
		case <-playCtx.Done():
			logger.Debugf("[audio] 播放被取消")
			pb.Finish(playCtx.Err())
		case <-drained:
			logger.Debugf("[audio] 播放完成")
			pb.Finish(nil)
		}
	}()
	return pb, nil
}

// interleave 把单声道 16-bit 帧复制到 channels 个声道。
func interleave(mono []byte, channels int) []byte {
	if channels <= 1 {
		return mono
	}
	out := make([]byte, len(mono)*channels)
	for i := 0; i+1 < len(mono); i += 2 {
		for c := 0; c < channels; c++ {
			off := i*channels + c*2
			out[off] = mono[i]
			out[off+1] = mono[i+1]
		}
	}
	return out
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}

// NullPlayer 不输出声音，只按音频时长计时，用于无声卡的服务器和测试。
type NullPlayer struct{}

// Play 在后台按 clip 时长等待后结束，可被打断。
func (NullPlayer) Play(ctx context.Context, clip *Clip) (*Playback, error) {
	pb, playCtx := NewPlayback(ctx)
	go func() {
		timer := time.NewTimer(clip.Duration())
		defer timer.Stop()
		select {
		case <-playCtx.Done():
			pb.Finish(playCtx.Err())
		case <-timer.C:
			pb.Finish(nil)
		}
	}()
	return pb, nil
}
