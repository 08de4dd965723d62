// Package server exposes the orchestration engine over a duplex WebSocket:
// one connection per conversation thread, inbound user/cancel frames,
// outbound stream events.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	enginex "github.com/hubenschmidt/pina-colada-sub000/agent/agents/engine"
	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	streamx "github.com/hubenschmidt/pina-colada-sub000/agent/stream"
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// inboundFrame is everything a client may send. Type defaults to "message".
type inboundFrame struct {
	Type            string `json:"type,omitempty"`
	Init            bool   `json:"init,omitempty"`
	Message         string `json:"message,omitempty"`
	UUID            string `json:"uuid,omitempty"`
	SuccessCriteria string `json:"success_criteria,omitempty"`
}

const (
	frameMessage = "message"
	frameCancel  = "cancel"
)

type Server struct {
	engine   *enginex.Engine
	cfg      Config
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func New(engine *enginex.Engine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		engine: engine,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("websocket server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	threadID := strings.TrimSpace(r.URL.Query().Get("thread_id"))
	if threadID == "" {
		threadID = uuid.NewString()
	}
	tenantID := r.URL.Query().Get("tenant_id")
	userID := r.URL.Query().Get("user_id")

	log.Info().Str("thread_id", threadID).Msg("websocket session started")
	sink := newConnSink(conn)

	// Turns run off the read loop so cancel frames arrive while a turn is
	// in flight. The engine serializes turns per thread itself.
	var turns sync.WaitGroup
	defer turns.Wait()
	defer s.engine.Cancel(threadID)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("thread_id", threadID).Msg("websocket read failed")
			}
			return
		}

		if frame.Init {
			// Handshake frame, nothing to do.
			continue
		}

		switch strings.ToLower(strings.TrimSpace(frame.Type)) {
		case frameCancel:
			if !s.engine.Cancel(threadID) {
				log.Debug().Str("thread_id", threadID).Msg("cancel with no running turn ignored")
			}
		case "", frameMessage:
			turnUUID := strings.TrimSpace(frame.UUID)
			if turnUUID == "" {
				turnUUID = uuid.NewString()
			}
			req := enginex.TurnRequest{
				ThreadID:        threadID,
				TenantID:        tenantID,
				UserID:          userID,
				UUID:            turnUUID,
				Text:            frame.Message,
				SuccessCriteria: frame.SuccessCriteria,
			}
			turns.Add(1)
			go func() {
				defer turns.Done()
				if _, err := s.engine.HandleTurn(r.Context(), req, sink); err != nil &&
					!errors.Is(err, contractx.ErrTurnCancelled) {
					log.Error().Err(err).Str("thread_id", threadID).Msg("turn failed")
				}
			}()
		default:
			log.Debug().Str("type", frame.Type).Msg("unknown frame type ignored")
		}
	}
}

// connSink serializes event writes onto one websocket connection.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{conn: conn}
}

var _ streamx.Sink = (*connSink)(nil)

func (s *connSink) Send(event streamx.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}
