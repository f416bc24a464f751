package speech

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestService_Surface(t *testing.T) {
	engine := &fakeEngine{duration: 10 * time.Millisecond}
	svc := NewService(newTestCoordinator(engine, Options{}))
	defer svc.c.Close()

	if !svc.SayText(context.Background(), "hello") {
		t.Fatal("SayText failed")
	}
	if svc.IsSpeaking() {
		t.Error("SayText should block until playback completes")
	}

	if !svc.SetEmotion("STRESS") || svc.GetEmotion() != "STRESS" {
		t.Errorf("SetEmotion(STRESS) -> %s", svc.GetEmotion())
	}
	if svc.SetEmotion("sarcasm") {
		t.Error("unknown emotion should report false")
	}
	if svc.GetEmotion() != "STRESS" {
		t.Errorf("unknown emotion changed style to %s", svc.GetEmotion())
	}

	svc.SetVoice("female")
	if svc.GetVoice() != "cmu-slt-hsmm" {
		t.Errorf("GetVoice = %s", svc.GetVoice())
	}

	if svc.StopUtterance() {
		t.Error("StopUtterance with nothing playing should be false")
	}

	if h, err := svc.History(5); err != nil || h != nil {
		t.Errorf("History without store = %v, %v", h, err)
	}

	for _, name := range []string{"sayText", "isSpeaking", "stopUtterance", "setEmotion", "getEmotion", "setVoice", "getVoice"} {
		if !strings.Contains(svc.Help(), name) {
			t.Errorf("help text missing %s", name)
		}
	}
}

func TestService_SayTextWaitNonBlocking(t *testing.T) {
	svc := NewService(newTestCoordinator(&fakeEngine{duration: time.Minute}, Options{}))
	defer svc.c.Close()

	if !svc.SayTextWait(context.Background(), "long", false) {
		t.Fatal("SayTextWait failed")
	}
	if !svc.IsSpeaking() {
		t.Error("non-blocking speak should still be speaking")
	}
	if !svc.StopUtterance() {
		t.Error("StopUtterance should interrupt the active utterance")
	}
	waitUntil(t, 2*time.Second, func() bool { return !svc.IsSpeaking() })
}
