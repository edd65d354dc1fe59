package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaychat/relayd/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
}

func (p *baseProvider) Close() error {
	return nil
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory provides database access for all relayd entities.
type ProviderFactory struct {
	DB *sql.DB
}

func (sf *ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB: sf.DB,
		},
	}
}

func (sf *ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB: tx,
		},
		tx: tx,
	}, nil
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	DB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := DB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := DB.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := DB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &ProviderFactory{DB: DB}
	if err := s.migrate(); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (sf *ProviderFactory) Close() error {
	return sf.DB.Close()
}

func (sf *ProviderFactory) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		password_hash TEXT    NOT NULL,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content    TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
	`
	ctx := context.Background()
	if err := sf.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := sf.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := sf.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate: %w", err)
			}
		}
		if err := sf.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (sf *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := sf.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := sf.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := sf.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (sf *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := sf.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (sf *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := sf.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint,
// e.g. a duplicate username on CreateUser.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- Users ----

// CreateUser creates a new user and returns it with the assigned ID.
// It validates the username format before inserting; the password must
// already be hashed by the caller.
func (s *baseProvider) CreateUser(username, passwordHash string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("datastore: create user: empty password hash")
	}
	res, err := s.ExecContext(context.Background(), "INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &model.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// GetUserByUsername retrieves a user by username.
func (s *baseProvider) GetUserByUsername(username string) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	err := s.QueryRowContext(context.Background(), "SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	u.CreatedAt = parsed
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (s *baseProvider) GetUserByID(id int64) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	err := s.QueryRowContext(context.Background(), "SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	u.CreatedAt = parsed
	return u, nil
}

// ListUsers returns all users ordered by ID.
func (s *baseProvider) ListUsers() ([]model.User, error) {
	rows, err := s.QueryContext(context.Background(), "SELECT id, username, password_hash, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		u.CreatedAt = parsed
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user; the messages FK cascade removes their log.
func (s *baseProvider) DeleteUser(id int64) (bool, error) {
	res, err := s.ExecContext(context.Background(), "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("datastore: delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("datastore: delete user: %w", err)
	}
	return affected > 0, nil
}

// ---- Messages ----

func (s *baseProvider) CreateMessage(message *model.Message) error {
	if err := message.Validate(); err != nil {
		return fmt.Errorf("datastore: message failed validation: %w", err)
	}

	res, err := s.ExecContext(
		context.Background(),
		"INSERT INTO messages (user_id, content) VALUES (?, ?)",
		message.UserID, message.Content)
	if err != nil {
		return fmt.Errorf("datastore: create message: %w", err)
	}
	message.ID, _ = res.LastInsertId()
	message.CreatedAt = time.Now().UTC()

	return nil
}

func (s *baseProvider) ListMessagesByUser(userID int64) ([]model.Message, error) {
	rows, err := s.QueryContext(
		context.Background(),
		"SELECT id, user_id, content, created_at FROM messages WHERE user_id = ? ORDER BY id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		m.CreatedAt = parsed
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
