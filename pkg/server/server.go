// Package server implements the relayd chat server.
package server

import (
	"context"
	"net"
	"net/http"

	"github.com/relaychat/relayd/pkg/datastore"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.DataProviderFactory
}

// Server is the main relayd server.
type Server struct {
	cfg      Config
	sessions *SessionManager
	hub      *Hub
	metrics  *Metrics
	store    datastore.DataProviderFactory
	gate     *Gate
	chatConn net.Listener
	httpSrv  *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	return &Server{
		cfg:      cfg,
		sessions: NewSessionManager(cfg.QueueSize),
		hub:      NewHub(metrics),
		metrics:  metrics,
		store:    deps.Store,
		gate:     NewGate(deps.Store),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ChatAddr returns the address the chat listener is bound to,
// or the configured address if the listener has not started.
func (s *Server) ChatAddr() string {
	if s.chatConn != nil {
		return s.chatConn.Addr().String()
	}
	return s.cfg.ChatAddr
}

// Kick force-disconnects every session belonging to userID; a user
// logged in from several clients loses all of them. Returns true if at
// least one session was found and closed.
func (s *Server) Kick(userID int64) bool {
	sessions := s.sessions.AllByUserID(userID)
	if len(sessions) == 0 {
		return false
	}
	for _, sess := range sessions {
		s.metrics.KickCount.Add(1)
		sess.Close()
	}
	return true
}
