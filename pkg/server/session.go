package server

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"

	"github.com/relaychat/relayd/pkg/protocol"
)

// Session is the server-side state for one authenticated, live client
// connection. The supervisor that created it owns the socket; the hub
// only ever touches the outbound queue through Enqueue.
type Session struct {
	ID       uint32
	UserID   int64
	Username string

	conn netCloser
	send chan protocol.Frame

	closeOnce sync.Once
	done      chan struct{}
}

// netCloser is the slice of net.Conn the session needs for teardown.
type netCloser interface {
	Close() error
}

// Enqueue places a frame on the session's outbound queue without
// blocking. It returns false if the queue is full or the session is
// closed; the caller decides what a failed enqueue means.
func (s *Session) Enqueue(f protocol.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- f:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Close marks the session dead and closes its socket, unblocking both
// the read loop (socket error) and the write loop (done channel).
// Safe to call multiple times and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// Send exposes the outbound queue for the goroutine draining it.
func (s *Session) Send() <-chan protocol.Frame {
	return s.send
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// SessionManager manages active client sessions.
type SessionManager struct {
	mu        sync.RWMutex
	queueSize int
	sessions  map[uint32]*Session // sessionID -> session
}

// NewSessionManager creates a new session manager. queueSize sets each
// session's outbound queue capacity.
func NewSessionManager(queueSize int) *SessionManager {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &SessionManager{
		queueSize: queueSize,
		sessions:  make(map[uint32]*Session),
	}
}

// Create creates a new session for an authenticated user.
func (sm *SessionManager) Create(userID int64, username string, conn net.Conn) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Generate random non-zero session ID
	var id uint32
	for {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id = binary.BigEndian.Uint32(b)
		if id != 0 {
			if _, exists := sm.sessions[id]; !exists {
				break
			}
		}
	}

	sess := &Session{
		ID:       id,
		UserID:   userID,
		Username: username,
		conn:     conn,
		send:     make(chan protocol.Frame, sm.queueSize),
		done:     make(chan struct{}),
	}
	sm.sessions[id] = sess
	return sess
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id uint32) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// AllByUserID retrieves every session belonging to a user. A user who
// authenticates from several clients concurrently holds one session
// per connection.
func (sm *SessionManager) AllByUserID(userID int64) []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var result []*Session
	for _, s := range sm.sessions {
		if s.UserID == userID {
			result = append(result, s)
		}
	}
	return result
}

// Remove removes a session. Removing an absent ID is a no-op so that
// disconnect and forced deletion can race safely.
func (sm *SessionManager) Remove(id uint32) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns all active sessions (snapshot).
func (sm *SessionManager) All() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	result := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		result = append(result, s)
	}
	return result
}
