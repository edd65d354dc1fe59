package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	defer func() { _ = s.store.Close() }()

	if err := s.StartChat(); err != nil {
		return err
	}
	s.StartHTTP()

	slog.Info("relayd running",
		"chat", s.ChatAddr(),
		"http", s.cfg.HTTPAddr,
	)

	// Periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server: no new connections, then all
// live sessions are closed.
func (s *Server) Shutdown() {
	s.cancel()
	if s.chatConn != nil {
		_ = s.chatConn.Close()
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	for _, sess := range s.sessions.All() {
		sess.Close()
	}
}
