package sqlrepo_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_radar/internal/domain"
	"review_radar/internal/storage/sqlrepo"
)

func openSQLite(t *testing.T) *sqlrepo.Repo {
	t.Helper()
	repo, err := sqlrepo.Open(context.Background(), sqlrepo.SQLite, filepath.Join(t.TempDir(), "rr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestReviews_ReplaceKeepsOrder(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	first := []domain.Review{
		{ID: "b", Platform: "macOS", Title: "慢", Content: "启动很慢", Rating: 2, Author: "u1", Timestamp: "2024-01-15 10:30:00"},
		{ID: "a", Platform: "iOS/iPadOS", Content: "好用", Rating: 5, Version: "3.1", Votes: 4},
	}
	require.NoError(t, repo.SaveReviews(ctx, first))
	got, err := repo.LoadReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	require.NoError(t, repo.SaveReviews(ctx, first[1:]))
	got, err = repo.LoadReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, first[1:], got, "save is a full replace")
}

func TestReviews_LargeBatch(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	rs := make([]domain.Review, 1234)
	for i := range rs {
		rs[i] = domain.Review{ID: fmt.Sprint(i), Platform: "douban_comments", Content: "内容", Rating: i % 6}
	}
	require.NoError(t, repo.SaveReviews(ctx, rs))
	got, err := repo.LoadReviews(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(rs))
	assert.Equal(t, "1233", got[1233].ID)
}

func TestAnalysis_AbsentThenLatest(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	_, err := repo.LoadAnalysis(ctx)
	require.ErrorIs(t, err, domain.ErrNoSnapshot)

	snap := domain.Snapshot{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Scopes:      []string{"macOS"},
		Analyses: map[string]domain.ClassificationResult{
			"macOS": {
				Summary:  domain.Summary{TotalReviews: 1, AverageRating: 4, RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 0}},
				ByRating: domain.Breakdown{{Label: "好评", Count: 1, Percentage: 100, Samples: []string{"不错"}}},
			},
		},
	}
	require.NoError(t, repo.SaveAnalysis(ctx, snap))
	snap2 := snap
	snap2.RunID = "run-2"
	snap2.GeneratedAt = snap.GeneratedAt.Add(time.Hour)
	require.NoError(t, repo.SaveAnalysis(ctx, snap2))

	got, err := repo.LoadAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.RunID)
	assert.True(t, snap2.GeneratedAt.Equal(got.GeneratedAt))
	assert.Equal(t, 1, got.Analyses["macOS"].ByRating.Total())
}

func TestScoredAndMeta(t *testing.T) {
	ctx := context.Background()
	repo := openSQLite(t)

	require.NoError(t, repo.SaveScored(ctx, []domain.ScoredReview{
		{Review: domain.Review{ID: "x", Platform: "macOS", Content: "好"}, SentimentScore: 0.8, Sentiment: domain.SentimentPositive},
	}))

	require.NoError(t, repo.SaveSourceMeta(ctx, []domain.SourceMeta{
		{Platform: "macOS", ReviewCount: 3, Info: map[string]any{"trackId": 1.0}},
		{Platform: "douban", ReviewCount: 9, Info: map[string]any{"title": "好东西"}},
		{Platform: "macOS", ReviewCount: 99},
	}))
	ms, err := repo.LoadSourceMeta(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 2, "duplicate platforms keep the first entry")
	assert.Equal(t, "douban", ms[0].Platform)
	assert.Equal(t, 3, ms[1].ReviewCount)
	assert.Equal(t, "好东西", ms[0].Info["title"])
}

func TestOpen_Validation(t *testing.T) {
	_, err := sqlrepo.Open(context.Background(), "oracle", "x")
	require.Error(t, err)
	_, err = sqlrepo.Open(context.Background(), sqlrepo.Postgres, "")
	require.Error(t, err)
}
