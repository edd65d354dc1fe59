package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaychat/relayd/pkg/crypto"
	"github.com/relaychat/relayd/pkg/datastore"
	"github.com/relaychat/relayd/pkg/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmptyCredentials   = errors.New("username and password must not be empty")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
)

// Gate validates login and registration requests against the
// persistence interface. It is stateless per call; every outcome maps
// to exactly one of the sentinel errors above or a user.
type Gate struct {
	store datastore.DataProviderFactory
}

// NewGate creates a credential gate backed by store.
func NewGate(store datastore.DataProviderFactory) *Gate {
	return &Gate{store: store}
}

// Authenticate checks a username/password pair. A missing user and a
// wrong password are indistinguishable to the caller.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, ErrEmptyCredentials
	}

	user, err := g.store.NonTx().GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := crypto.VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Register creates a new user. The exists-check and insert run in one
// transaction so two concurrent registrations of the same name cannot
// both succeed.
func (g *Gate) Register(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, ErrEmptyCredentials
	}
	if err := model.ValidateUsername(username); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	tx, err := g.store.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := tx.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	user, err := tx.CreateUser(username, hash)
	if err != nil {
		if datastore.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return user, nil
}
