package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursedrop/internal/config"
	"coursedrop/internal/history"
	"coursedrop/internal/logging"
	"coursedrop/internal/receiver"
)

// Pipeline is the upload entry point the handlers drive.
type Pipeline interface {
	Receive(ctx context.Context, filename string, body io.Reader) receiver.Result
	Reject(ctx context.Context, filename string, cause error) receiver.Result
}

// Ledger is the read side of the upload history.
type Ledger interface {
	List(ctx context.Context, filter history.Filter) ([]history.Entry, error)
	Stats(ctx context.Context) (history.Stats, error)
}

// Server is the HTTP front end.
type Server struct {
	cfg      *config.Config
	pipeline Pipeline
	ledger   Ledger
	flash    *flashCodec
	limiter  *uploadLimiter
	logger   *slog.Logger

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// New wires the routes. ledger may be nil, in which case the history
// endpoints return empty results.
func New(cfg *config.Config, pipeline Pipeline, ledger Ledger, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		ledger:   ledger,
		flash:    newFlashCodec(cfg.Server.SecretKey),
		limiter:  newUploadLimiter(cfg.Server.UploadsPerMinute, cfg.Server.UploadBurst),
		logger:   logging.NewComponentLogger(logger, "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /upload", s.handleUploadForm)
	mux.HandleFunc("POST /api/upload", s.handleUploadAPI)
	mux.HandleFunc("GET /api/uploads", s.handleUploads)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	s.handler = s.withRequestID(mux)

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured bind address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("http server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "server_started"),
	)
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for in-flight uploads.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.WithRequestID(r.Context(), id)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("request handled",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
