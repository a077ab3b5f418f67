package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"review_radar/internal/domain"
)

type Backend string

const (
	SQLite   Backend = "sqlite"
	MySQL    Backend = "mysql"
	Postgres Backend = "postgres"
)

// sortableTime orders correctly as text on every backend.
const sortableTime = "2006-01-02 15:04:05.000000"

// rows per INSERT statement; keeps every backend under its placeholder limit.
const batchSize = 500

type Repo struct {
	db      *sql.DB
	backend Backend
}

var _ domain.SnapshotStore = (*Repo)(nil)

// Open connects to backend, verifies the connection and creates the tables.
func Open(ctx context.Context, backend Backend, dsn string) (*Repo, error) {
	var driver string
	switch backend {
	case SQLite:
		driver = "sqlite"
	case MySQL:
		driver = "mysql"
	case Postgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store backend %q", backend)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s store needs a DSN", backend)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}
	if backend == SQLite {
		// single writer avoids "database is locked"
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", backend, err)
	}
	r := New(db, backend)
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func New(db *sql.DB, backend Backend) *Repo { return &Repo{db: db, backend: backend} }

func (r *Repo) Close() error { return r.db.Close() }

// Migrate creates the tables if they do not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	for _, q := range createTables(r.backend) {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func reviewArgs(seq int, rv domain.Review) []any {
	return []any{seq, rv.Platform, rv.ID, rv.Title, rv.Content, rv.Rating, rv.Version, rv.Author, rv.Timestamp, rv.Votes}
}

// replace deletes every row of table and inserts rows in batches, in one transaction.
func (r *Repo) replace(ctx context.Context, table, columns string, width int, rows [][]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		args := make([]any, 0, (end-start)*width)
		for _, row := range rows[start:end] {
			args = append(args, row...)
		}
		q := rebind(r.backend, insertSQL(table, columns, width, end-start))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) SaveReviews(ctx context.Context, rs []domain.Review) error {
	rows := make([][]any, len(rs))
	for i, rv := range rs {
		rows[i] = reviewArgs(i, rv)
	}
	return r.replace(ctx, reviewsTable, reviewColumns, 10, rows)
}

func (r *Repo) SaveScored(ctx context.Context, rs []domain.ScoredReview) error {
	rows := make([][]any, len(rs))
	for i, sr := range rs {
		rows[i] = append(reviewArgs(i, sr.Review), sr.SentimentScore, string(sr.Sentiment))
	}
	return r.replace(ctx, scoredTable, reviewColumns+", sentiment_score, sentiment", 12, rows)
}

func (r *Repo) SaveAnalysis(ctx context.Context, s domain.Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.replace(ctx, analysisTable, "run_id, generated_at, body", 3, [][]any{
		{s.RunID, s.GeneratedAt.UTC().Format(sortableTime), string(body)},
	})
}

func (r *Repo) SaveSourceMeta(ctx context.Context, ms []domain.SourceMeta) error {
	rows := make([][]any, 0, len(ms))
	seen := map[string]bool{}
	for _, m := range ms {
		if seen[m.Platform] {
			continue
		}
		seen[m.Platform] = true
		info, err := json.Marshal(m.Info)
		if err != nil {
			return fmt.Errorf("source meta %s: %w", m.Platform, err)
		}
		rows = append(rows, []any{m.Platform, m.ReviewCount, string(info)})
	}
	return r.replace(ctx, metaTable, "platform, review_count, info", 3, rows)
}

func (r *Repo) LoadReviews(ctx context.Context) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+reviewColumns+" FROM "+reviewsTable+" ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var (
			seq int
			rv  domain.Review
		)
		if err := rows.Scan(&seq, &rv.Platform, &rv.ID, &rv.Title, &rv.Content, &rv.Rating,
			&rv.Version, &rv.Author, &rv.Timestamp, &rv.Votes); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) LoadAnalysis(ctx context.Context) (domain.Snapshot, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		"SELECT body FROM "+analysisTable+" ORDER BY generated_at DESC LIMIT 1").Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	var s domain.Snapshot
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// LoadSourceMeta returns stored metadata ordered by platform.
func (r *Repo) LoadSourceMeta(ctx context.Context) ([]domain.SourceMeta, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT platform, review_count, info FROM "+metaTable+" ORDER BY platform")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SourceMeta
	for rows.Next() {
		var (
			m    domain.SourceMeta
			info string
		)
		if err := rows.Scan(&m.Platform, &m.ReviewCount, &info); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(info), &m.Info)
		out = append(out, m)
	}
	return out, rows.Err()
}
