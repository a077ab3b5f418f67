package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"review_radar/internal/domain"
)

// MetaLoader is implemented by stores that keep source metadata.
type MetaLoader interface {
	LoadSourceMeta(ctx context.Context) ([]domain.SourceMeta, error)
}

type QueryService struct {
	store    domain.SnapshotStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(st domain.SnapshotStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: st, cache: c, cacheTTL: ttl}
}

// LatestAnalysis returns the last persisted snapshot, or domain.ErrNoSnapshot.
func (s *QueryService) LatestAnalysis(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, keyAnalysis, &snap); ok {
			return snap, nil
		}
	}
	snap, err := s.store.LoadAnalysis(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, keyAnalysis, snap, int(s.cacheTTL.Seconds()))
	}
	return snap, nil
}

// Analysis returns one scope of the latest snapshot. An unknown scope is domain.ErrNotFound.
func (s *QueryService) Analysis(ctx context.Context, scope string) (domain.ClassificationResult, error) {
	snap, err := s.LatestAnalysis(ctx)
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	res, ok := snap.Analyses[scope]
	if !ok {
		return domain.ClassificationResult{}, fmt.Errorf("scope %q: %w", scope, domain.ErrNotFound)
	}
	return res, nil
}

type ReviewQuery struct {
	Platform string // empty = all
	Limit    int
	Offset   int
}

type ReviewsPage struct {
	Items []domain.Review `json:"items"`
	Total int             `json:"total"`
}

// Reviews pages through the stored reviews in stored order.
func (s *QueryService) Reviews(ctx context.Context, q ReviewQuery) (ReviewsPage, error) {
	key := fmt.Sprintf("reviews:%s:%d:%d", q.Platform, q.Limit, q.Offset)
	var out ReviewsPage
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	rs, err := s.store.LoadReviews(ctx)
	if err != nil {
		return ReviewsPage{}, err
	}
	matched := rs
	if q.Platform != "" {
		matched = make([]domain.Review, 0, len(rs))
		for _, r := range rs {
			if r.Platform == q.Platform {
				matched = append(matched, r)
			}
		}
	}
	out = ReviewsPage{Items: pageOf(matched, q.Offset, q.Limit), Total: len(matched)}

	// size guard
	if s.cache != nil {
		if b, _ := json.Marshal(out); len(b) < 1_000_000 {
			_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
		}
	}
	return out, nil
}

// pageOf copies the window so callers never alias the loaded slice.
func pageOf(rs []domain.Review, offset, limit int) []domain.Review {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rs) {
		return []domain.Review{}
	}
	end := len(rs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.Review, end-offset)
	copy(out, rs[offset:end])
	return out
}

// SourceMeta returns stored source metadata when the store keeps it.
func (s *QueryService) SourceMeta(ctx context.Context) ([]domain.SourceMeta, error) {
	ml, ok := s.store.(MetaLoader)
	if !ok {
		return nil, nil
	}
	var out []domain.SourceMeta
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, keyMeta, &out); ok {
			return out, nil
		}
	}
	out, err := ml.LoadSourceMeta(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, keyMeta, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}
