package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Error kinds for failures outside the analysis pipeline
const (
	errInvalidRequest = "invalid_request"
	errNotFound       = "not_found"
	errInternal       = "internal"
)

type incoming struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// session is one websocket client. Handlers run concurrently, so writes
// are serialized and ctx is canceled when the client goes away.
type session struct {
	conn   *websocket.Conn
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, logger *zap.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{conn: conn, logger: logger, ctx: ctx, cancel: cancel}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
	})
}

func (s *session) send(msg outgoing) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("error sending message", zap.String("type", msg.Type), zap.Error(err))
		}
		return
	}
	s.logger.Debug("message sent", zap.String("type", msg.Type))
}

func (s *session) sendMessage(requestID, messageType string, data any) {
	s.send(outgoing{Type: messageType, RequestID: requestID, Data: data})
}

func (s *session) sendError(requestID, kind, message string) {
	s.send(outgoing{Type: "error", RequestID: requestID, Message: message, Kind: kind})
}
