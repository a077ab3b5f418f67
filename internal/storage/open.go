// Package storage picks the snapshot store backend named by configuration.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"review_radar/internal/domain"
	"review_radar/internal/storage/filestore"
	"review_radar/internal/storage/sqlrepo"
)

const (
	BackendFile = "file"
	sqliteFile  = "review_radar.db"
)

// Open returns the store for backend and a func releasing it. The file backend
// writes under dataDir; sqlite falls back to a database file there when dsn is empty.
func Open(ctx context.Context, backend, dsn, dataDir string) (domain.SnapshotStore, func() error, error) {
	switch backend {
	case "", BackendFile:
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		return filestore.New(dataDir), func() error { return nil }, nil
	case string(sqlrepo.SQLite):
		if dsn == "" {
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(dataDir, sqliteFile)
		}
	}
	repo, err := sqlrepo.Open(ctx, sqlrepo.Backend(backend), dsn)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
