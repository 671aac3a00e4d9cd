package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/franckalain/macrotrack/internal/database"
	"github.com/franckalain/macrotrack/internal/metrics"
	"github.com/franckalain/macrotrack/internal/ml"
)

const (
	defaultHistoryLimit = 50
	pendingTTL          = time.Hour
	pruneInterval       = pendingTTL / 4
	shutdownTimeout     = 10 * time.Second
	maxMessageBytes     = 16 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, this should be more restrictive
	},
}

// Options tune a Server. Zero values pick defaults.
type Options struct {
	StaticDir    string
	HistoryLimit int
}

type Server struct {
	db      database.DB
	model   ml.Model
	logger  *zap.Logger
	opts    Options
	clients sync.Map
	pending sync.Map // entry id -> *pendingEntry
	now     func() time.Time
}

func New(db database.DB, model ml.Model, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &Server{
		db:     db,
		model:  model,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if s.opts.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.StaticDir)))
	}
	return mux
}

// Start serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("port", port), zap.String("model", s.model.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go s.prunePendingEvery(ctx, pruneInterval)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not closed by Shutdown
	s.clients.Range(func(_, v any) bool {
		v.(*session).close()
		return true
	})
	return srv.Shutdown(shutdownCtx)
}

// prunePendingEvery drops expired analyses until ctx is done, so entries
// nobody confirms do not accumulate between analyze calls.
func (s *Server) prunePendingEvery(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prunePending()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	clientID := uuid.New().String()
	sess := newSession(conn, s.logger.With(zap.String("client", clientID)))
	s.clients.Store(clientID, sess)
	defer func() {
		s.clients.Delete(clientID)
		sess.close()
		sess.wg.Wait()
		conn.Close()
	}()
	sess.logger.Debug("client connected", zap.String("remote", r.RemoteAddr))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.logger.Info("error reading message", zap.Error(err))
			}
			return
		}

		var msg incoming
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			sess.sendError("", errInvalidRequest, "Invalid message format")
			continue
		}

		sess.wg.Add(1)
		go func() {
			defer sess.wg.Done()
			s.handleWebSocketMessage(sess, msg)
		}()
	}
}

func (s *Server) handleWebSocketMessage(sess *session, msg incoming) {
	sess.logger.Debug("message received", zap.String("type", msg.Type), zap.String("request_id", msg.RequestID))

	switch msg.Type {
	case "analyze":
		s.handleAnalyze(sess, msg)
	case "confirm_entry":
		s.handleConfirmEntry(sess, msg)
	case "get_history":
		s.handleGetHistory(sess, msg)
	case "set_goals":
		s.handleSetGoals(sess, msg)
	case "delete_entry":
		s.handleDeleteEntry(sess, msg)
	default:
		sess.sendError(msg.RequestID, errInvalidRequest, "Unknown message type")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// decodeImage accepts plain base64 or a data URI.
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data URI")
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func recordSaved(source string) {
	metrics.EntriesSavedTotal.WithLabelValues(source).Inc()
}
