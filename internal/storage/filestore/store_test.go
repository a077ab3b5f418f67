package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_radar/internal/domain"
)

func sampleReviews() []domain.Review {
	return []domain.Review{
		{ID: "1", Platform: "macOS", Title: "闪退", Content: "打开就闪退, 无法\"使用\"", Rating: 1, Version: "3.1", Author: "u1", Timestamp: "2024-01-15 10:30:00"},
		{ID: "2", Platform: "douban_comments", Content: "很好看", Rating: 5, Author: "匿名", Votes: 120},
	}
}

func TestSaveReviews_WritesAllFormats(t *testing.T) {
	ctx := context.Background()
	st := New(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, st.SaveReviews(ctx, sampleReviews()))

	raw, err := os.ReadFile(filepath.Join(st.Dir(), ReviewsCSV))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, utf8BOM), "csv starts with a BOM")
	recs, err := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, reviewHeader, recs[0])
	assert.Equal(t, "打开就闪退, 无法\"使用\"", recs[1][3])
	assert.Equal(t, "120", recs[2][8])

	got, err := st.LoadReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleReviews(), got)

	rows, err := parquet.ReadFile[reviewRow](filepath.Join(st.Dir(), ReviewsParquet))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "douban_comments", rows[1].Platform)
	assert.Equal(t, int32(120), rows[1].Votes)

	leftovers, err := filepath.Glob(filepath.Join(st.Dir(), ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files are renamed or removed")
}

func TestLoad_Absent(t *testing.T) {
	ctx := context.Background()
	st := New(t.TempDir())

	rs, err := st.LoadReviews(ctx)
	require.NoError(t, err)
	assert.Empty(t, rs)

	_, err = st.LoadAnalysis(ctx)
	require.ErrorIs(t, err, domain.ErrNoSnapshot)

	ms, err := st.LoadSourceMeta(ctx)
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestSaveAnalysis_SnapshotAndTerms(t *testing.T) {
	ctx := context.Background()
	st := New(t.TempDir())
	snap := domain.Snapshot{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Scopes:      []string{"macOS", "overall"},
		Analyses: map[string]domain.ClassificationResult{
			"overall": {WordFrequency: []domain.TermCount{{Term: "闪退", Count: 9}}},
			"macOS": {
				WordFrequency: []domain.TermCount{{Term: "闪退", Count: 4}, {Term: "连接", Count: 2}},
				SalientTerms:  []domain.TermWeight{{Term: "闪退", Weight: 0.7}},
			},
			"unlisted": {WordFrequency: []domain.TermCount{{Term: "x", Count: 1}}},
		},
	}
	require.NoError(t, st.SaveAnalysis(ctx, snap))

	back, err := st.LoadAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", back.RunID)
	assert.Equal(t, 4, back.Analyses["macOS"].WordFrequency[0].Count)

	terms, err := parquet.ReadFile[termRow](filepath.Join(st.Dir(), TermsParquet))
	require.NoError(t, err)
	require.Len(t, terms, 5)
	assert.Equal(t, termRow{RunID: "run-1", Scope: "macOS", Kind: "frequency", Rank: 1, Term: "闪退", Value: 4}, terms[0])
	assert.Equal(t, "salient", terms[2].Kind)
	assert.Equal(t, "overall", terms[3].Scope)
	assert.Equal(t, "unlisted", terms[4].Scope)
}

func TestSaveScoredAndMeta(t *testing.T) {
	ctx := context.Background()
	st := New(t.TempDir())

	require.NoError(t, st.SaveScored(ctx, []domain.ScoredReview{
		{Review: sampleReviews()[0], SentimentScore: 0.12346, Sentiment: domain.SentimentNegative},
	}))
	raw, err := os.ReadFile(filepath.Join(st.Dir(), ScoredCSV))
	require.NoError(t, err)
	recs, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"0.1235", "negative"}, recs[1][9:])

	meta := []domain.SourceMeta{{Platform: "douban", ReviewCount: 2, Info: map[string]any{"title": "好东西"}}}
	require.NoError(t, st.SaveSourceMeta(ctx, meta))
	ms, err := st.LoadSourceMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, ms)
}
