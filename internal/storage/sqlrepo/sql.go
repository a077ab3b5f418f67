package sqlrepo

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	reviewsTable  = "rr_reviews"
	scoredTable   = "rr_reviews_scored"
	analysisTable = "rr_analysis_snapshots"
	metaTable     = "rr_source_meta"
)

// reviewColumns is shared by the plain and scored tables; scored rows append
// sentiment_score and sentiment.
const reviewColumns = "seq, platform, review_id, title, content, rating, version, author, updated, votes"

func createTables(b Backend) []string {
	text, long, float := "TEXT", "TEXT", "DOUBLE PRECISION"
	switch b {
	case MySQL:
		text, long, float = "VARCHAR(255)", "LONGTEXT", "DOUBLE"
	case SQLite:
		float = "REAL"
	}
	reviews := func(name, extra string) string {
		return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  seq        INTEGER NOT NULL PRIMARY KEY,
  platform   %s NOT NULL,
  review_id  %s NOT NULL,
  title      %s NOT NULL,
  content    %s NOT NULL,
  rating     INTEGER NOT NULL,
  version    %s NOT NULL,
  author     %s NOT NULL,
  updated    %s NOT NULL,
  votes      INTEGER NOT NULL%s
)`, name, text, text, long, long, text, text, text, extra)
	}
	return []string{
		reviews(reviewsTable, ""),
		reviews(scoredTable, fmt.Sprintf(",\n  sentiment_score %s NOT NULL,\n  sentiment %s NOT NULL", float, text)),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  run_id       %s NOT NULL PRIMARY KEY,
  generated_at %s NOT NULL,
  body         %s NOT NULL
)`, analysisTable, text, text, long),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  platform     %s NOT NULL PRIMARY KEY,
  review_count INTEGER NOT NULL,
  info         %s NOT NULL
)`, metaTable, text, long),
	}
}

// insertSQL builds a multi-row insert with rows groups of n placeholders.
func insertSQL(table, columns string, n, rows int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(columns)
	b.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(group)
	}
	return b.String()
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(b Backend, q string) string {
	if b != Postgres {
		return q
	}
	var out strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}
