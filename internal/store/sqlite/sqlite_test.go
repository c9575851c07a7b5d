package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/CARBONMOLECULE09/bear-code/internal/store"
	"github.com/CARBONMOLECULE09/bear-code/internal/store/storetest"
)

func makeSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "bearcode.db"))
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = s.(store.Closer).Close() })
	return s
}

func TestSQLiteStore_Compliance(t *testing.T) {
	storetest.Run(t, makeSQLiteStore)
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "db.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	// second call must be a no-op
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("schema twice: %v", err)
	}
}
