package datastore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaychat/relayd/pkg/datastore"
	"github.com/relaychat/relayd/pkg/model"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const testHash = "c2FsdA$aGFzaA" // any non-empty encoded hash

func NewTestSqlConn(t *testing.T) *datastore.ProviderFactory {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	st, err := datastore.NewProviderFactory(dbPath)
	if err != nil {
		t.Fatalf("store_test: failed to open db: %v", err)
	}

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			fmt.Printf("Error closing database: %v\n", err)
		}
	})

	return st
}

// storeFactories lets every test run against both backends.
func storeFactories(t *testing.T) map[string]datastore.DataProviderFactory {
	t.Helper()
	return map[string]datastore.DataProviderFactory{
		"sqlite": NewTestSqlConn(t),
		"memory": datastore.NewMemory(),
	}
}

func TestCreateUser(t *testing.T) {
	type tcase struct {
		username  string
		hash      string
		expectErr bool
	}

	tcases := map[string]tcase{
		"minimum_required_fields": {
			username: "johndoe",
			hash:     testHash,
		},
		"injection_username": { // invalid chars (quotes, spaces, equals)
			username:  "' OR '1'='1",
			hash:      testHash,
			expectErr: true,
		},
		"empty_username": {
			username:  "",
			hash:      testHash,
			expectErr: true,
		},
		"empty_hash": {
			username:  "johndoe",
			hash:      "",
			expectErr: true,
		},
	}

	for backend, factory := range storeFactories(t) {
		for name, tc := range tcases {
			t.Run(backend+"/"+name, func(t *testing.T) {
				u, err := factory.NonTx().CreateUser(tc.username, tc.hash)
				if tc.expectErr {
					if err == nil {
						t.Fatalf("CreateUser(%q) succeeded, want error", tc.username)
					}
					return
				}
				if err != nil {
					t.Fatalf("CreateUser(%q): %v", tc.username, err)
				}
				if u.ID == 0 {
					t.Errorf("CreateUser returned zero ID")
				}

				got, err := factory.NonTx().GetUserByUsername(tc.username)
				if err != nil {
					t.Fatalf("GetUserByUsername: %v", err)
				}
				if diff := cmp.Diff(u, got, cmpopts.EquateApproxTime(5*time.Second)); diff != "" {
					t.Errorf("stored user mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	for backend, factory := range storeFactories(t) {
		t.Run(backend, func(t *testing.T) {
			if _, err := factory.NonTx().CreateUser("alice", testHash); err != nil {
				t.Fatalf("CreateUser: %v", err)
			}
			_, err := factory.NonTx().CreateUser("alice", testHash)
			if err == nil {
				t.Fatal("duplicate CreateUser succeeded, want error")
			}
			if !datastore.IsUniqueViolation(err) {
				t.Errorf("duplicate CreateUser error = %v, want unique violation", err)
			}

			users, err := factory.NonTx().ListUsers()
			if err != nil {
				t.Fatalf("ListUsers: %v", err)
			}
			if len(users) != 1 {
				t.Errorf("ListUsers after duplicate = %d users, want 1", len(users))
			}
		})
	}
}

func TestGetUserNotFound(t *testing.T) {
	for backend, factory := range storeFactories(t) {
		t.Run(backend, func(t *testing.T) {
			u, err := factory.NonTx().GetUserByUsername("ghost")
			if err != nil || u != nil {
				t.Errorf("GetUserByUsername(ghost) = (%v, %v), want (nil, nil)", u, err)
			}
			u, err = factory.NonTx().GetUserByID(9999)
			if err != nil || u != nil {
				t.Errorf("GetUserByID(9999) = (%v, %v), want (nil, nil)", u, err)
			}
		})
	}
}

func TestDeleteUserCascades(t *testing.T) {
	for backend, factory := range storeFactories(t) {
		t.Run(backend, func(t *testing.T) {
			st := factory.NonTx()
			alice, err := st.CreateUser("alice", testHash)
			if err != nil {
				t.Fatalf("CreateUser alice: %v", err)
			}
			bob, err := st.CreateUser("bob", testHash)
			if err != nil {
				t.Fatalf("CreateUser bob: %v", err)
			}

			for _, content := range []string{"one", "two"} {
				if err := st.CreateMessage(&model.Message{UserID: alice.ID, Content: content}); err != nil {
					t.Fatalf("CreateMessage: %v", err)
				}
			}
			if err := st.CreateMessage(&model.Message{UserID: bob.ID, Content: "bob says hi"}); err != nil {
				t.Fatalf("CreateMessage: %v", err)
			}

			existed, err := st.DeleteUser(alice.ID)
			if err != nil {
				t.Fatalf("DeleteUser: %v", err)
			}
			if !existed {
				t.Error("DeleteUser(alice) = false, want true")
			}

			// Deleting again is a no-op, not an error.
			existed, err = st.DeleteUser(alice.ID)
			if err != nil {
				t.Fatalf("second DeleteUser: %v", err)
			}
			if existed {
				t.Error("second DeleteUser(alice) = true, want false")
			}

			msgs, err := st.ListMessagesByUser(alice.ID)
			if err != nil {
				t.Fatalf("ListMessagesByUser(alice): %v", err)
			}
			if len(msgs) != 0 {
				t.Errorf("alice still has %d messages after delete", len(msgs))
			}

			msgs, err = st.ListMessagesByUser(bob.ID)
			if err != nil {
				t.Fatalf("ListMessagesByUser(bob): %v", err)
			}
			if len(msgs) != 1 {
				t.Errorf("bob has %d messages, want 1", len(msgs))
			}
		})
	}
}

func TestMessagesOrderedOldestFirst(t *testing.T) {
	for backend, factory := range storeFactories(t) {
		t.Run(backend, func(t *testing.T) {
			st := factory.NonTx()
			u, err := st.CreateUser("carol", testHash)
			if err != nil {
				t.Fatalf("CreateUser: %v", err)
			}

			want := []string{"first", "second", "third"}
			for _, content := range want {
				if err := st.CreateMessage(&model.Message{UserID: u.ID, Content: content}); err != nil {
					t.Fatalf("CreateMessage(%q): %v", content, err)
				}
			}

			msgs, err := st.ListMessagesByUser(u.ID)
			if err != nil {
				t.Fatalf("ListMessagesByUser: %v", err)
			}
			var got []string
			for _, m := range msgs {
				got = append(got, m.Content)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("message order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateMessageValidation(t *testing.T) {
	for backend, factory := range storeFactories(t) {
		t.Run(backend, func(t *testing.T) {
			st := factory.NonTx()
			u, err := st.CreateUser("dave", testHash)
			if err != nil {
				t.Fatalf("CreateUser: %v", err)
			}
			err = st.CreateMessage(&model.Message{UserID: u.ID, Content: "   "})
			if err == nil {
				t.Error("CreateMessage with blank content succeeded, want error")
			}
		})
	}
}

func TestFactoryCloseReleasesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "close.db")
	st, err := datastore.NewProviderFactory(dbPath)
	if err != nil {
		t.Fatalf("NewProviderFactory: %v", err)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := st.NonTx().CreateUser("alice", testHash); err == nil {
		t.Fatal("CreateUser on closed factory succeeded, want error")
	}
}

func TestTxRegisterFlow(t *testing.T) {
	for backend, factory := range storeFactories(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()

			tx, err := factory.Tx(ctx)
			if err != nil {
				t.Fatalf("Tx: %v", err)
			}
			existing, err := tx.GetUserByUsername("erin")
			if err != nil {
				t.Fatalf("GetUserByUsername in tx: %v", err)
			}
			if existing != nil {
				t.Fatal("unexpected existing user")
			}
			if _, err := tx.CreateUser("erin", testHash); err != nil {
				t.Fatalf("CreateUser in tx: %v", err)
			}
			if err := tx.Commit(); err != nil {
				t.Fatalf("Commit: %v", err)
			}

			u, err := factory.NonTx().GetUserByUsername("erin")
			if err != nil {
				t.Fatalf("GetUserByUsername after commit: %v", err)
			}
			if u == nil {
				t.Fatal("user not visible after commit")
			}
		})
	}
}
