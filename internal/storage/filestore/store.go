// Package filestore persists run outputs as plain files under one directory:
// CSV for spreadsheets, JSON for tooling and Parquet for columnar analysis.
package filestore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"review_radar/internal/domain"
)

const (
	ReviewsCSV     = "reviews.csv"
	ReviewsJSON    = "reviews.json"
	ReviewsParquet = "reviews.parquet"
	ScoredCSV      = "reviews_scored.csv"
	AnalysisJSON   = "analysis.json"
	TermsParquet   = "terms.parquet"
	SourceMetaJSON = "source_meta.json"
)

// utf8BOM makes spreadsheet tools detect the encoding of Chinese text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var reviewHeader = []string{"id", "platform", "title", "content", "rating", "version", "author", "updated", "votes"}

type Store struct{ dir string }

var _ domain.SnapshotStore = (*Store)(nil)

func New(dir string) *Store { return &Store{dir: dir} }

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// writeAtomic writes through a temp file in the target directory and renames
// it into place, so readers never see a half-written file.
func (s *Store) writeAtomic(name string, fill func(w io.Writer) error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(name))
}

func writeJSON(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func reviewRecord(r domain.Review) []string {
	return []string{r.ID, r.Platform, r.Title, r.Content, strconv.Itoa(r.Rating), r.Version, r.Author, r.Timestamp, strconv.Itoa(r.Votes)}
}

func writeCSV(header []string, rows [][]string) func(io.Writer) error {
	return func(w io.Writer) error {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	}
}

func writeParquet[T any](rows []T) func(io.Writer) error {
	return func(w io.Writer) error {
		pw := parquet.NewGenericWriter[T](w)
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return err
		}
		return pw.Close()
	}
}

func (s *Store) SaveReviews(_ context.Context, rs []domain.Review) error {
	if rs == nil {
		rs = []domain.Review{}
	}
	rows := make([][]string, len(rs))
	pq := make([]reviewRow, len(rs))
	for i, r := range rs {
		rows[i] = reviewRecord(r)
		pq[i] = toReviewRow(r)
	}
	if err := s.writeAtomic(ReviewsCSV, writeCSV(reviewHeader, rows)); err != nil {
		return err
	}
	if err := s.writeAtomic(ReviewsJSON, writeJSON(rs)); err != nil {
		return err
	}
	return s.writeAtomic(ReviewsParquet, writeParquet(pq))
}

func (s *Store) SaveScored(_ context.Context, rs []domain.ScoredReview) error {
	header := append(append([]string{}, reviewHeader...), "sentiment_score", "sentiment")
	rows := make([][]string, len(rs))
	for i, r := range rs {
		rows[i] = append(reviewRecord(r.Review), strconv.FormatFloat(r.SentimentScore, 'f', 4, 64), string(r.Sentiment))
	}
	return s.writeAtomic(ScoredCSV, writeCSV(header, rows))
}

func (s *Store) SaveAnalysis(_ context.Context, snap domain.Snapshot) error {
	if err := s.writeAtomic(AnalysisJSON, writeJSON(snap)); err != nil {
		return err
	}
	return s.writeAtomic(TermsParquet, writeParquet(termRows(snap)))
}

func (s *Store) SaveSourceMeta(_ context.Context, ms []domain.SourceMeta) error {
	if ms == nil {
		ms = []domain.SourceMeta{}
	}
	return s.writeAtomic(SourceMetaJSON, writeJSON(ms))
}

// LoadReviews returns nothing, without error, when no reviews were saved yet.
func (s *Store) LoadReviews(_ context.Context) ([]domain.Review, error) {
	var rs []domain.Review
	if err := s.readJSON(ReviewsJSON, &rs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return rs, nil
}

func (s *Store) LoadAnalysis(_ context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := s.readJSON(AnalysisJSON, &snap); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Snapshot{}, domain.ErrNoSnapshot
		}
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) LoadSourceMeta(_ context.Context) ([]domain.SourceMeta, error) {
	var ms []domain.SourceMeta
	if err := s.readJSON(SourceMetaJSON, &ms); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return ms, nil
}

func (s *Store) readJSON(name string, dst any) error {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
