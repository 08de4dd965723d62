package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	enginex "github.com/hubenschmidt/pina-colada-sub000/agent/agents/engine"
	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	fastpathx "github.com/hubenschmidt/pina-colada-sub000/agent/fastpath"
	statex "github.com/hubenschmidt/pina-colada-sub000/agent/state"
	streamx "github.com/hubenschmidt/pina-colada-sub000/agent/stream"
)

type memStore struct {
	states map[string]*statex.TurnState
}

func (s *memStore) Load(ctx context.Context, threadID string) (*statex.TurnState, error) {
	st, ok := s.states[threadID]
	if !ok {
		return nil, statex.ErrStateNotFound
	}
	return st, nil
}

func (s *memStore) Save(ctx context.Context, st *statex.TurnState) error {
	s.states[st.ThreadID] = st
	return nil
}

func (s *memStore) Delete(ctx context.Context, threadID string) error {
	delete(s.states, threadID)
	return nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, message string) (contractx.ClassificationResult, contractx.TokenUsage, error) {
	return contractx.ClassificationResult{FastPathIntent: contractx.IntentOther}, contractx.TokenUsage{Total: 1}, nil
}

type stubTriage struct{}

func (stubTriage) SelectWorker(ctx context.Context, message string, history []contractx.Message) (contractx.WorkerType, contractx.TokenUsage, error) {
	return contractx.WorkerTypeGeneral, contractx.TokenUsage{}, nil
}

type stubWorker struct{}

func (stubWorker) Type() contractx.WorkerType { return contractx.WorkerTypeGeneral }

func (stubWorker) Generate(ctx context.Context, req contractx.WorkerRequest) (contractx.WorkerStep, error) {
	return contractx.WorkerStep{Content: "stub answer", Usage: contractx.TokenUsage{Total: 2}}, nil
}

type stubEvaluator struct{}

func (stubEvaluator) Evaluate(ctx context.Context, req contractx.EvaluationRequest) (contractx.EvaluationResult, contractx.TokenUsage, error) {
	return contractx.EvaluationResult{SuccessCriteriaMet: true}, contractx.TokenUsage{}, nil
}

type stubRegistry struct{}

func (stubRegistry) Classifier() contractx.Classifier               { return stubClassifier{} }
func (stubRegistry) Triage() contractx.Triage                       { return stubTriage{} }
func (stubRegistry) Worker(t contractx.WorkerType) contractx.Worker { return stubWorker{} }
func (stubRegistry) Evaluator() contractx.Evaluator                 { return stubEvaluator{} }

type stubGateway struct{}

func (stubGateway) Execute(ctx context.Context, worker contractx.WorkerType, reqs []contractx.ToolRequest) []contractx.ToolResult {
	return nil
}

type nullDirectory struct{}

func (nullDirectory) Lookup(ctx context.Context, entityType, query string) (*contractx.Entity, error) {
	return nil, nil
}
func (nullDirectory) Count(ctx context.Context, entityType string) (int, error) { return 0, nil }
func (nullDirectory) List(ctx context.Context, entityType string, limit int) ([]contractx.Entity, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	eng, err := enginex.New(
		&memStore{states: map[string]*statex.TurnState{}},
		stubRegistry{},
		stubGateway{},
		fastpathx.New(nullDirectory{}),
		nil,
		enginex.Config{},
	)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}

	srv, err := New(eng, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketTurnStreamsEvents(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts, "thread_id=ws-thread-1")

	if err := conn.WriteJSON(inboundFrame{Message: "hello there", UUID: "turn-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var types []streamx.EventType
	var final streamx.Event
	for {
		var ev streamx.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (events so far: %v)", err, types)
		}
		types = append(types, ev.Type)
		if ev.Type == streamx.EventComplete || ev.Type == streamx.EventError {
			final = ev
			break
		}
	}

	if types[0] != streamx.EventStart {
		t.Fatalf("first event = %q, want start", types[0])
	}
	if final.Type != streamx.EventComplete {
		t.Fatalf("final event = %q, want complete", final.Type)
	}
	if final.FinalTokenUsage == nil || final.FinalTokenUsage.Total == 0 {
		t.Fatalf("complete event missing usage: %#v", final)
	}

	sawContent := false
	for _, tp := range types {
		if tp == streamx.EventContent {
			sawContent = true
		}
	}
	if !sawContent {
		t.Fatalf("no content event in %v", types)
	}
}

func TestWebSocketInitFrameIsNoOp(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts, "thread_id=ws-thread-3")

	if err := conn.WriteJSON(inboundFrame{Init: true}); err != nil {
		t.Fatalf("write init: %v", err)
	}
	if err := conn.WriteJSON(inboundFrame{Message: "after handshake"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	// The first event must be the turn's start, not an error from the
	// handshake frame.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev streamx.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read after init: %v", err)
	}
	if ev.Type != streamx.EventStart {
		t.Fatalf("event = %q, want start", ev.Type)
	}
}

func TestWebSocketCancelWithoutTurnIsIgnored(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts, "thread_id=ws-thread-2")

	if err := conn.WriteJSON(inboundFrame{Type: frameCancel}); err != nil {
		t.Fatalf("write cancel: %v", err)
	}

	// The connection must stay usable after an idle cancel.
	if err := conn.WriteJSON(inboundFrame{Message: "still alive?"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev streamx.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read after cancel: %v", err)
	}
	if ev.Type != streamx.EventStart {
		t.Fatalf("event = %q, want start", ev.Type)
	}
}
