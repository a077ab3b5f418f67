package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"review_radar/internal/domain"
	"review_radar/internal/storage/filestore"
	"review_radar/internal/storage/sqlrepo"
)

func TestOpen_FileBackendCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	st, closeFn, err := Open(context.Background(), "", "", dir)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := st.(*filestore.Store); !ok {
		t.Fatalf("got %T, want *filestore.Store", st)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
}

func TestOpen_SQLiteDefaultsToDataDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st, closeFn, err := Open(ctx, "sqlite", "", dir)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := st.(*sqlrepo.Repo); !ok {
		t.Fatalf("got %T, want *sqlrepo.Repo", st)
	}
	if err := st.SaveReviews(ctx, []domain.Review{{ID: "1", Platform: "macOS", Content: "x"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, sqliteFile)); err != nil {
		t.Fatalf("sqlite file missing: %v", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, _, err := Open(context.Background(), "cassandra", "x", t.TempDir()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
