package server

import (
	"log/slog"
	"sync"

	"github.com/relaychat/relayd/pkg/protocol"
)

// Hub is the shared broadcast registry: it routes a frame from one
// session to every other registered session. Delivery is by enqueue
// onto each recipient's outbound queue, never by direct socket write,
// so a slow reader can not stall the publisher or other recipients.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	metrics  *Metrics
}

// NewHub creates an empty hub.
func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		sessions: make(map[uint32]*Session),
		metrics:  metrics,
	}
}

// Join registers a session for broadcast delivery. Joining an already
// registered session overwrites the entry.
func (h *Hub) Join(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
}

// Leave removes a session from the registry. Removing an absent ID is
// a no-op; disconnect and administrative deletion can race here.
func (h *Hub) Leave(id uint32) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish delivers a frame to every registered session except the
// sender. A recipient whose queue is full is treated as stalled: it is
// removed from the registry and its session closed, without blocking
// the publisher or failing the publish.
func (h *Hub) Publish(senderID uint32, f protocol.Frame) {
	h.mu.RLock()
	recipients := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.ID != senderID {
			recipients = append(recipients, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range recipients {
		if s.Enqueue(f) {
			continue
		}
		if h.metrics != nil {
			h.metrics.FramesDropped.Add(1)
		}
		slog.Warn("dropping stalled recipient", "session", s.ID, "user", s.Username)
		h.Leave(s.ID)
		s.Close()
	}
}
