package datastore

import (
	"context"

	"github.com/relaychat/relayd/pkg/model"
)

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
	// Close releases the underlying storage handle. Providers handed
	// out earlier are unusable afterwards.
	Close() error
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface the chat core depends on.
// Implementations include the default SQLite store and an in-memory
// store for tests; the interface is narrow enough to back with any
// other engine.
type DataStore interface {
	Close() error

	UserReadProvider
	UserWriteProvider

	MessageReadProvider
	MessageWriteProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type UserReadProvider interface {
	// GetUserByUsername retrieves a user by username. Returns (nil, nil) if not found.
	GetUserByUsername(username string) (*model.User, error)
	// GetUserByID retrieves a user by ID. Returns (nil, nil) if not found.
	GetUserByID(id int64) (*model.User, error)
	ListUsers() ([]model.User, error)
}

type UserWriteProvider interface {
	CreateUser(username, passwordHash string) (*model.User, error)
	// DeleteUser removes a user and, via cascade, their message log.
	// The bool reports whether the user existed; deleting an absent
	// user is not an error.
	DeleteUser(id int64) (bool, error)
}

type MessageReadProvider interface {
	// ListMessagesByUser returns a user's messages oldest first.
	ListMessagesByUser(userID int64) ([]model.Message, error)
}

type MessageWriteProvider interface {
	CreateMessage(message *model.Message) error
}
