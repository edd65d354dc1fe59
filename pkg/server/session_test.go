package server

import (
	"testing"

	"github.com/relaychat/relayd/pkg/protocol"
)

func TestSessionIDsUniqueAndNonZero(t *testing.T) {
	sm := NewSessionManager(4)
	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		s := sm.Create(int64(i), "user", nil)
		if s.ID == 0 {
			t.Fatalf("session ID must be non-zero")
		}
		if seen[s.ID] {
			t.Fatalf("duplicate session ID %d", s.ID)
		}
		seen[s.ID] = true
	}
	if sm.Count() != 100 {
		t.Fatalf("Count = %d, want 100", sm.Count())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	sm := NewSessionManager(4)
	s := sm.Create(1, "alice", nil)

	if !s.Enqueue(protocol.TextFrame("before")) {
		t.Fatalf("enqueue on live session failed")
	}

	s.Close()
	s.Close() // idempotent

	if s.Enqueue(protocol.TextFrame("after")) {
		t.Fatalf("enqueue succeeded on closed session")
	}
	if !s.Closed() {
		t.Fatalf("Closed() = false after Close")
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done() not closed after Close")
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	sm := NewSessionManager(2)
	s := sm.Create(1, "alice", nil)

	if !s.Enqueue(protocol.TextFrame("1")) || !s.Enqueue(protocol.TextFrame("2")) {
		t.Fatalf("enqueue within capacity failed")
	}
	if s.Enqueue(protocol.TextFrame("3")) {
		t.Fatalf("enqueue beyond capacity succeeded")
	}
}

func TestAllByUserID(t *testing.T) {
	sm := NewSessionManager(4)
	first := sm.Create(7, "alice", nil)
	second := sm.Create(7, "alice", nil) // same user, second client
	sm.Create(8, "bob", nil)

	got := sm.AllByUserID(7)
	if len(got) != 2 {
		t.Fatalf("AllByUserID(7) returned %d sessions, want 2", len(got))
	}
	seen := map[uint32]bool{first.ID: false, second.ID: false}
	for _, s := range got {
		seen[s.ID] = true
	}
	for id, ok := range seen {
		if !ok {
			t.Fatalf("AllByUserID(7) missing session %d", id)
		}
	}
	if got := sm.AllByUserID(99); len(got) != 0 {
		t.Fatalf("AllByUserID(99) = %v, want none", got)
	}

	sm.Remove(first.ID)
	sm.Remove(first.ID) // idempotent
	if got := sm.AllByUserID(7); len(got) != 1 || got[0].ID != second.ID {
		t.Fatalf("AllByUserID(7) after Remove = %v, want only second session", got)
	}
	if sm.Count() != 2 {
		t.Fatalf("Count = %d, want 2", sm.Count())
	}
}
