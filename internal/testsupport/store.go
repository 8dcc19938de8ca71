package testsupport

import (
	"context"
	"testing"

	"renote/internal/config"
	"renote/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a new queue item for tests using the provided store.
func NewSession(t testing.TB, store *queue.Store, sessionPath, title string) *queue.Item {
	t.Helper()

	item, err := store.NewSession(context.Background(), sessionPath, title)
	if err != nil {
		t.Fatalf("store.NewSession: %v", err)
	}
	return item
}
