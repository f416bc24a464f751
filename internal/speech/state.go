package speech

import (
	"sync"

	"github.com/iabetor/emotts/internal/logger"
)

// State 表示当前话语请求所处的阶段。
type State int

const (
	// StateIdle 空闲，没有进行中的请求。
	StateIdle State = iota
	// StateCompiling 正在生成标记文档。
	StateCompiling
	// StateSynthesizing 等待合成后端返回音频。
	StateSynthesizing
	// StatePlaying 正在播放。
	StatePlaying
	// StateWriting 正在把音频写入 WAVE 文件。
	StateWriting
	// StateInterrupted 播放被打断（终态，随后回到 Idle）。
	StateInterrupted
	// StateFailed 请求失败（终态，随后回到 Idle）。
	StateFailed
)

var stateNames = [...]string{
	"Idle",
	"Compiling",
	"Synthesizing",
	"Playing",
	"Writing",
	"Interrupted",
	"Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。只有合法的转换才会生效：
//
//	Idle         → Compiling
//	Compiling    → Synthesizing | Failed
//	Synthesizing → Playing | Writing | Failed
//	Playing      → Interrupted | Failed
//	Writing      → Failed
//
// 任何状态都可以转换到 Idle（请求结束或错误恢复）。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Warnf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to
	logger.Debugf("[state] %s → %s", from, to)

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// ForceIdle 无条件重置状态为 Idle。
func (sm *StateMachine) ForceIdle() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	sm.current = StateIdle
	if from != StateIdle {
		logger.Debugf("[state] 强制重置 %s → Idle", from)
		if sm.onChange != nil {
			sm.onChange(from, StateIdle)
		}
	}
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateCompiling
	case StateCompiling:
		return to == StateSynthesizing || to == StateFailed
	case StateSynthesizing:
		return to == StatePlaying || to == StateWriting || to == StateFailed
	case StatePlaying:
		return to == StateInterrupted || to == StateFailed
	case StateWriting:
		return to == StateFailed
	}
	return false
}
