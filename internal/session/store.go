package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"review_radar/internal/domain"
)

// FileStore keeps the token set as a JSON file readable only by the owner.
type FileStore struct{ path string }

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Save(_ context.Context, ts domain.TokenSet) error {
	b, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Load(_ context.Context) (domain.TokenSet, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrSessionAbsent
	}
	if err != nil {
		return nil, err
	}
	var ts domain.TokenSet
	if err := json.Unmarshal(b, &ts); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", s.path, err)
	}
	if len(ts) == 0 {
		return nil, domain.ErrSessionAbsent
	}
	return ts, nil
}

// RedisStore keeps the token set under a single key without expiry.
type RedisStore struct {
	c   *redis.Client
	key string
}

func NewRedisStore(c *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "review_radar:session"
	}
	return &RedisStore{c: c, key: key}
}

func (s *RedisStore) Save(ctx context.Context, ts domain.TokenSet) error {
	b, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, s.key, b, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context) (domain.TokenSet, error) {
	v, err := s.c.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionAbsent
	}
	if err != nil {
		return nil, err
	}
	var ts domain.TokenSet
	if err := json.Unmarshal(v, &ts); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if len(ts) == 0 {
		return nil, domain.ErrSessionAbsent
	}
	return ts, nil
}
