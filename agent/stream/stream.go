// Package stream defines the duplex event vocabulary between the
// orchestration engine and its callers.
package stream

import contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"

type EventType string

const (
	EventStart     EventType = "start"
	EventContent   EventType = "content"
	EventComplete  EventType = "complete"
	EventCancelled EventType = "cancelled"
	EventError     EventType = "error"
)

type Event struct {
	Type            EventType             `json:"type"`
	UUID            string                `json:"uuid,omitempty"`
	Content         string                `json:"content,omitempty"`
	IsFinal         bool                  `json:"is_final,omitempty"`
	FinalTokenUsage *contractx.TokenUsage `json:"final_token_usage,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// Sink receives engine events. Implementations must tolerate being called
// from the turn's goroutine only; the engine never sends concurrently.
type Sink interface {
	Send(event Event) error
}

// ChannelSink buffers events on a channel; used by tests and in-process
// callers.
type ChannelSink struct {
	C chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, buffer)}
}

func (s *ChannelSink) Send(event Event) error {
	s.C <- event
	return nil
}

// Events drains and returns everything currently buffered.
func (s *ChannelSink) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-s.C:
			out = append(out, e)
		default:
			return out
		}
	}
}
