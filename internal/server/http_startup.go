package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	appErrors "resumescan/internal/errors"
)

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := s.setupHTTPServer()

	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return appErrors.NewNetworkError(appErrors.ErrCodeInvalidConfig,
			fmt.Sprintf("failed to listen on %s", httpServer.Addr), err)
	}

	s.displayServerInfo()
	return s.serve(ctx, httpServer, listener)
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer() *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(s.Host, s.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}
}

// serve runs server on listener and handles graceful shutdown
func (s *Server) serve(ctx context.Context, server *http.Server, listener net.Listener) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.Logger.Info("Starting HTTP server",
			"address", listener.Addr().String(),
			"tls_enabled", s.TLSConfig.Enabled)

		var err error
		if s.TLSConfig.Enabled {
			err = server.ServeTLS(listener, s.TLSConfig.CertFile, s.TLSConfig.KeyFile)
		} else {
			err = server.Serve(listener)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		s.cleanupLimiters()
		if !ok {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.Logger.Info("Shutdown requested, starting graceful shutdown")
		return s.performGracefulShutdown(server)
	}
}

// performGracefulShutdown stops accepting requests, waits for in-flight
// ones, then drains background analyses started by this process.
func (s *Server) performGracefulShutdown(server *http.Server) error {
	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.cleanupLimiters()

	s.Logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}

	if s.Dispatcher != nil {
		if err := s.Dispatcher.Shutdown(shutdownCtx); err != nil {
			s.Logger.LogError(err, "Background analyses did not finish before shutdown")
		}
	}

	s.Logger.Info("Server shutdown completed successfully")
	return nil
}

// cleanupLimiters stops the limiter cleanup goroutines
func (s *Server) cleanupLimiters() {
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
	}
	if s.ScanLimiter != nil {
		s.ScanLimiter.Close()
	}
}
