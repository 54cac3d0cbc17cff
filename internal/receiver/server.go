package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"handreceipt/internal/logging"
)

// OpenStore returns a PostgresStore when cfg names a database and a
// MemoryStore otherwise.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if cfg.DatabaseURL == "" {
		logging.WarnWithContext(logger, "no database configured; custody records are kept in memory", "receiver_memory_store",
			logging.String(logging.FieldErrorHint, "set "+EnvDatabaseURL+" to persist custody records"),
			logging.String(logging.FieldImpact, "records are lost when the receiver stops"),
		)
		return NewMemoryStore(), nil
	}
	store, err := OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Server runs the receiver HTTP API.
type Server struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Server
}

// NewServer builds a Server for store.
func NewServer(cfg Config, store Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	handler := NewHandler(store, cfg.APIToken, logger)
	return &Server{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "receiver-server"),
		http: &http.Server{
			Handler:           handler.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(listener)
	}()
	s.logger.Info("receiver listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("receiver stopped")
	return nil
}
