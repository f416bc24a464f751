package speech

import (
	"context"

	"github.com/iabetor/emotts/internal/history"
	"github.com/iabetor/emotts/internal/prosody"
)

// HelpText 列出对外暴露的调用。
const HelpText = "sayText: enter any string you want to say\n" +
	"sayTextWait: enter any string you want to say, with blocking true/false\n" +
	"isSpeaking: is component currently speaking\n" +
	"stopUtterance: cancel utterance from being said\n" +
	"setEmotion: set either \"stress\", \"anger\", \"confusion\", \"custom1\" or \"none\" (without quotes).\n" +
	"getEmotion: get currently set emotion\n" +
	"setVoice: specify voice to use by name. Or by gender (\"female\" or \"male\").\n" +
	"getVoice: get the current voice being used\n" +
	"history: list the most recent utterances"

// Service 是面向远程调用方的服务接口，方法与外部调用名一一对应。
type Service struct {
	c *Coordinator
}

// NewService 包装协调器。
func NewService(c *Coordinator) *Service {
	return &Service{c: c}
}

// SayText 阻塞地说出一句话。
func (s *Service) SayText(ctx context.Context, text string) bool {
	return s.SayTextWait(ctx, text, true)
}

// SayTextWait 说出一句话，wait 决定是否等待播放结束。
func (s *Service) SayTextWait(ctx context.Context, text string, wait bool) bool {
	return s.c.Speak(ctx, text, wait)
}

func (s *Service) IsSpeaking() bool { return s.c.IsSpeaking() }

func (s *Service) StopUtterance() bool { return s.c.StopUtterance() }

// SetEmotion 设置情感风格，返回名称是否被识别；无法识别时当前风格不变。
func (s *Service) SetEmotion(name string) bool {
	if _, ok := prosody.ParseStyle(name); !ok {
		return false
	}
	s.c.SetEmotionalStyle(name)
	return true
}

func (s *Service) GetEmotion() string { return s.c.EmotionalStyle() }

func (s *Service) SetVoice(name string) { s.c.SetVoice(name) }

func (s *Service) GetVoice() string { return s.c.Voice() }

// History 返回最近的话语日志。
func (s *Service) History(limit int) ([]history.Utterance, error) {
	return s.c.Recent(limit)
}

func (s *Service) Help() string { return HelpText }
