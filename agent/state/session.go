package state

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

var (
	ErrInvalidThread = errors.New("thread id is empty")
)

// DefaultSuccessCriteria applies when the caller does not state its own.
const DefaultSuccessCriteria = "The user's request is answered accurately, completely, and concisely."

// TurnState is the per-thread checkpoint: message history plus the routing
// flags the evaluator loop reads and writes. It is rebuilt/extended each
// turn and saved after the turn terminates.
type TurnState struct {
	ThreadID string `json:"thread_id"`
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`

	Messages           []contractx.Message `json:"messages,omitempty"`
	SuccessCriteria    string              `json:"success_criteria,omitempty"`
	FeedbackOnWork     string              `json:"feedback_on_work,omitempty"`
	SuccessCriteriaMet bool                `json:"success_criteria_met"`
	UserInputNeeded    bool                `json:"user_input_needed"`
	RouteToAgent       string              `json:"route_to_agent,omitempty"`
	ResumeContext      string              `json:"resume_context,omitempty"`

	// CumulativeUsage only grows; the engine is its single writer.
	CumulativeUsage contractx.TokenUsage `json:"cumulative_usage"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewTurnState(threadID, tenantID, userID string, now time.Time) *TurnState {
	return &TurnState{
		ThreadID:  threadID,
		TenantID:  tenantID,
		UserID:    userID,
		UpdatedAt: now.UTC(),
	}
}

func (s *TurnState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Append adds messages in insertion order. History is append-only within a
// turn.
func (s *TurnState) Append(msgs ...contractx.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// AssistantMessageCount counts assistant entries in the accumulated
// history; the evaluator's retry-loop detection depends on it.
func (s *TurnState) AssistantMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == contractx.RoleAssistant {
			n++
		}
	}
	return n
}

// LastAssistantContent returns the most recent assistant content, or "".
func (s *TurnState) LastAssistantContent() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == contractx.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// BeginTurn resets the per-turn routing flags and appends the new user
// message. FeedbackOnWork stays empty until the evaluator first rejects.
func (s *TurnState) BeginTurn(text, successCriteria string, now time.Time) {
	s.FeedbackOnWork = ""
	s.SuccessCriteriaMet = false
	s.UserInputNeeded = false
	s.RouteToAgent = ""

	criteria := strings.TrimSpace(successCriteria)
	if criteria == "" {
		criteria = DefaultSuccessCriteria
	}
	s.SuccessCriteria = criteria

	s.Append(contractx.Message{Role: contractx.RoleUser, Content: text})
	s.Touch(now)
}

func (s *TurnState) Validate() error {
	if s == nil || strings.TrimSpace(s.ThreadID) == "" {
		return ErrInvalidThread
	}
	if s.RouteToAgent != "" && !contractx.IsWorkerType(s.RouteToAgent) {
		return errors.New("route_to_agent refers to an unknown worker")
	}
	return nil
}

// approxTokens is the 4-chars-per-token heuristic used for trimming.
func approxTokens(m contractx.Message) int {
	return len(m.Content)/4 + 4
}

// Trim bounds history before a worker generation: it keeps the most recent
// messages that fit the approximate token budget, always retaining the
// first message of the slice. A non-positive budget falls back to the last
// twenty messages.
func Trim(messages []contractx.Message, budget int) []contractx.Message {
	const fallbackLastN = 20

	if len(messages) == 0 {
		return nil
	}
	if budget <= 0 {
		if len(messages) <= fallbackLastN {
			return messages
		}
		return messages[len(messages)-fallbackLastN:]
	}

	remaining := budget - approxTokens(messages[0])
	cut := len(messages)
	for i := len(messages) - 1; i >= 1; i-- {
		cost := approxTokens(messages[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		cut = i
	}

	if cut >= len(messages) {
		// Budget too small for anything beyond the head; keep the tail
		// message so the model always sees the latest input.
		cut = len(messages) - 1
	}
	if cut <= 1 {
		return messages
	}

	trimmed := make([]contractx.Message, 0, 1+len(messages)-cut)
	trimmed = append(trimmed, messages[0])
	trimmed = append(trimmed, messages[cut:]...)
	return trimmed
}

// Window returns the last n messages (or all of them when fewer).
func Window(messages []contractx.Message, n int) []contractx.Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
