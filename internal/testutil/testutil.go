// Package testutil provides shared test helpers for setting up stores and sync stacks.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/store"
	"github.com/starford/othala/internal/syncer"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStore opens a temporary SQLite store that is automatically closed.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "othala.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestKeyring generates a throwaway identity keyring.
func TestKeyring(t *testing.T) *identity.Keyring {
	t.Helper()
	kr, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return kr
}

// StartRunner runs r in the background until the test ends.
func StartRunner(t *testing.T, r *syncer.Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}
