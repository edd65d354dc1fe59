package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaychat/relayd/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error reporting,
// including the UNIQUE constraint message on duplicate usernames.
type MemoryStore struct {
	mu sync.RWMutex
	// txMu serializes whole transactions, not individual operations.
	txMu sync.Mutex

	now func() time.Time

	nextUserID    int64
	nextMessageID int64

	usersByID       map[int64]*model.User
	usersByUsername map[string]*model.User
	messages        []model.Message
}

var _ DataProviderFactory = (*MemoryStore)(nil)
var _ DataStore = (*MemoryStore)(nil)

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(nil)
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:             now,
		nextUserID:      1,
		nextMessageID:   1,
		usersByID:       make(map[int64]*model.User),
		usersByUsername: make(map[string]*model.User),
	}
}

// NonTx returns the store itself.
func (s *MemoryStore) NonTx() DataStore {
	return s
}

// Tx returns a transaction view. Transactions are serialized against
// each other by a dedicated mutex held from Tx until Commit/Rollback;
// that is enough isolation for the register path the server uses.
func (s *MemoryStore) Tx(_ context.Context) (DataStoreTx, error) {
	s.txMu.Lock()
	return &memoryTx{MemoryStore: s}, nil
}

type memoryTx struct {
	*MemoryStore
	done sync.Once
}

func (t *memoryTx) Commit() error {
	t.done.Do(t.txMu.Unlock)
	return nil
}

func (t *memoryTx) Rollback() error {
	// Writes are applied eagerly; Rollback only releases the
	// transaction lock. Test flows never roll back applied writes.
	t.done.Do(t.txMu.Unlock)
	return nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateUser creates a new user and returns it with the assigned ID.
func (s *MemoryStore) CreateUser(username, passwordHash string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("datastore: create user: empty password hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[username]; exists {
		return nil, fmt.Errorf("datastore: create user: UNIQUE constraint failed: users.username")
	}
	user := &model.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.nextUserID++
	s.usersByID[user.ID] = user
	s.usersByUsername[username] = user

	copied := *user
	return &copied, nil
}

// GetUserByUsername retrieves a user by username. Returns (nil, nil) if not found.
func (s *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

// GetUserByID retrieves a user by ID. Returns (nil, nil) if not found.
func (s *MemoryStore) GetUserByID(id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByID[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

// ListUsers returns all users ordered by ID.
func (s *MemoryStore) ListUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.usersByID))
	for id := int64(1); id < s.nextUserID; id++ {
		if u, ok := s.usersByID[id]; ok {
			users = append(users, *u)
		}
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users, nil
}

// DeleteUser removes a user and their messages.
func (s *MemoryStore) DeleteUser(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByID[id]
	if !ok {
		return false, nil
	}
	delete(s.usersByID, id)
	delete(s.usersByUsername, user.Username)

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.UserID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return true, nil
}

// CreateMessage appends a message to the log.
func (s *MemoryStore) CreateMessage(message *model.Message) error {
	if err := message.Validate(); err != nil {
		return fmt.Errorf("datastore: message failed validation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByID[message.UserID]; !ok {
		return fmt.Errorf("datastore: create message: FOREIGN KEY constraint failed")
	}
	message.ID = s.nextMessageID
	s.nextMessageID++
	message.CreatedAt = s.now().UTC()
	s.messages = append(s.messages, *message)
	return nil
}

// ListMessagesByUser returns a user's messages oldest first.
func (s *MemoryStore) ListMessagesByUser(userID int64) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}
