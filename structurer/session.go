package structurer

import (
	"strings"
	"sync"
)

// Phase is the Session's position in its state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Snapshot is a read-only copy of a Session handed to renderers.
type Snapshot struct {
	PromptText string `json:"prompt_text"`
	Phase      Phase  `json:"phase"`
	Result     Result `json:"result"`
	LastError  string `json:"last_error,omitempty"`
}

// EditTarget is the text offered when reopening a result for editing: the
// result's original_prompt, or the submitted text when the model left it empty.
func (s Snapshot) EditTarget() string {
	if s.Result != nil {
		if p := s.Result.Document().OriginalPrompt; p != "" {
			return p
		}
	}
	return s.PromptText
}

// Session 持有一次交互的输入、阶段和结果。
// 结果与阶段只由 Agent 修改。
type Session struct {
	mu         sync.Mutex
	promptText string
	phase      Phase
	result     Result
	lastError  string
	// ticket identifies the in-flight submission; a reply carrying an older
	// ticket belongs to an interaction that was reset.
	ticket uint64
}

// NewSession 创建空会话，处于 PhaseIdle。
func NewSession() *Session {
	return &Session{}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		PromptText: s.promptText,
		Phase:      s.phase,
		Result:     s.result,
		LastError:  s.lastError,
	}
}

// submit moves to PhaseSubmitting. Blank text and a submission already in
// flight are rejected without any change.
func (s *Session) submit(text string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(text) == "" || s.phase == PhaseSubmitting {
		return 0, false
	}
	s.ticket++
	s.promptText = text
	s.phase = PhaseSubmitting
	s.result = nil
	s.lastError = ""
	return s.ticket, true
}

func (s *Session) succeed(ticket uint64, r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSubmitting || ticket != s.ticket {
		return false
	}
	s.phase = PhaseReady
	s.result = r
	return true
}

func (s *Session) fail(ticket uint64, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSubmitting || ticket != s.ticket {
		return false
	}
	s.phase = PhaseFailed
	s.lastError = msg
	return true
}

// editPrompt reopens a Ready result for editing with text in the input.
func (s *Session) editPrompt(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady {
		return false
	}
	s.phase = PhaseIdle
	s.promptText = text
	s.result = nil
	return true
}

// expand 关闭结果视图，保留当前输入。
func (s *Session) expand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady {
		return false
	}
	s.phase = PhaseIdle
	s.result = nil
	return true
}

func (s *Session) dismissError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseFailed {
		return false
	}
	s.phase = PhaseIdle
	s.lastError = ""
	return true
}

// setPromptText records user typing. The input is locked while a request is
// in flight and while a result is shown.
func (s *Session) setPromptText(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseSubmitting || s.phase == PhaseReady {
		return false
	}
	s.promptText = text
	return true
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptText = ""
	s.phase = PhaseIdle
	s.result = nil
	s.lastError = ""
	// The ticket survives so a reply to the abandoned request is dropped.
}
