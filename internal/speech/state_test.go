package speech

import "testing"

// advanceTo 通过合法转换把状态机推进到目标状态。
func advanceTo(t *testing.T, sm *StateMachine, target State) {
	t.Helper()
	paths := map[State][]State{
		StateIdle:         nil,
		StateCompiling:    {StateCompiling},
		StateSynthesizing: {StateCompiling, StateSynthesizing},
		StatePlaying:      {StateCompiling, StateSynthesizing, StatePlaying},
		StateWriting:      {StateCompiling, StateSynthesizing, StateWriting},
		StateInterrupted:  {StateCompiling, StateSynthesizing, StatePlaying, StateInterrupted},
		StateFailed:       {StateCompiling, StateFailed},
	}
	for _, s := range paths[target] {
		if !sm.Transition(s) {
			t.Fatalf("failed to advance to %s via %s", target, s)
		}
	}
}

func TestNewStateMachine_InitialStateIsIdle(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("expected initial state Idle, got %s", sm.Current())
	}
}

func TestStateMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StateCompiling},
		{StateCompiling, StateSynthesizing},
		{StateCompiling, StateFailed},
		{StateSynthesizing, StatePlaying},
		{StateSynthesizing, StateWriting},
		{StateSynthesizing, StateFailed},
		{StatePlaying, StateInterrupted},
		{StatePlaying, StateFailed},
		{StateWriting, StateFailed},
		{StateInterrupted, StateIdle},
		{StateFailed, StateIdle},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if !sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be valid", tt.from, tt.to)
		}
		if sm.Current() != tt.to {
			t.Errorf("expected state %s, got %s", tt.to, sm.Current())
		}
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StatePlaying},
		{StateIdle, StateFailed},
		{StateIdle, StateInterrupted},
		{StateCompiling, StatePlaying},
		{StateCompiling, StateInterrupted},
		{StateSynthesizing, StateInterrupted},
		{StateWriting, StateInterrupted},
		{StateWriting, StatePlaying},
		{StateInterrupted, StateFailed},
		{StateFailed, StateCompiling},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be invalid", tt.from, tt.to)
		}
		if sm.Current() != tt.from {
			t.Errorf("state should remain %s after invalid transition, got %s", tt.from, sm.Current())
		}
	}
}

func TestStateMachine_ForceIdle(t *testing.T) {
	sm := NewStateMachine()
	advanceTo(t, sm, StatePlaying)

	var from, to State
	sm.SetOnChange(func(f, n State) { from, to = f, n })
	sm.ForceIdle()

	if sm.Current() != StateIdle {
		t.Fatalf("expected Idle, got %s", sm.Current())
	}
	if from != StatePlaying || to != StateIdle {
		t.Errorf("onChange got %s → %s", from, to)
	}
}

func TestState_String(t *testing.T) {
	if StateSynthesizing.String() != "Synthesizing" {
		t.Errorf("got %q", StateSynthesizing.String())
	}
	if State(99).String() != "Unknown" {
		t.Errorf("got %q", State(99).String())
	}
}
