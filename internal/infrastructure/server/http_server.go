package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/MoMannn/wanchain-example/internal/infrastructure/config"
	"go.uber.org/zap"
)

// HTTPServer owns the listener lifecycle of the gateway's router
type HTTPServer struct {
	config config.ServerConfig
	logger *zap.Logger
	server *http.Server

	mu      sync.Mutex
	running bool
}

// NewHTTPServer creates an HTTP server serving handler on cfg.Addr()
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) (*HTTPServer, error) {
	if handler == nil {
		return nil, fmt.Errorf("HTTP handler is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &HTTPServer{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}, nil
}

// Addr returns the configured listen address
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start blocks serving requests until Shutdown is called
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("HTTP server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx or the configured shutdown timeout, whichever is shorter.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	s.logger.Info("Stopping HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.running = false
	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning reports whether Start has been called and the server is serving
func (s *HTTPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
