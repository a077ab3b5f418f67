package domain

import "time"

type Summary struct {
	TotalReviews       int         `json:"total_reviews"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"` // keys 1..5, always present
}

type CategoryStat struct {
	Label      string   `json:"label"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
	Samples    []string `json:"samples"`
}

// Breakdown keeps categories in declaration order.
type Breakdown []CategoryStat

// Get returns the stat for label, or a zero stat when absent.
func (b Breakdown) Get(label string) (CategoryStat, bool) {
	for _, c := range b {
		if c.Label == label {
			return c, true
		}
	}
	return CategoryStat{Label: label}, false
}

// Total sums counts across all cells.
func (b Breakdown) Total() int {
	n := 0
	for _, c := range b {
		n += c.Count
	}
	return n
}

type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Popularity summarizes helpfulness votes for sources that carry them.
type Popularity struct {
	MaxVotes int     `json:"max_votes"`
	AvgVotes float64 `json:"avg_votes"`
	Over100  int     `json:"over_100"`
	Over1000 int     `json:"over_1000"`
	Hot      int     `json:"hot"`
	Regular  int     `json:"regular"`
}

// ClassificationResult is the read-only outcome of one analysis pass over a fixed review set.
type ClassificationResult struct {
	Summary           Summary      `json:"summary"`
	ByRating          Breakdown    `json:"by_rating"`
	ByKeywordCategory Breakdown    `json:"by_keywords"`
	BySentiment       Breakdown    `json:"by_sentiment"`
	WordFrequency     []TermCount  `json:"word_frequency"`
	SalientTerms      []TermWeight `json:"keywords_tfidf"`
	Popularity        *Popularity  `json:"popularity,omitempty"`
}

// Snapshot is one persisted analysis run: per-platform results plus "overall" when applicable.
type Snapshot struct {
	RunID       string                          `json:"run_id"`
	GeneratedAt time.Time                       `json:"generated_at"`
	Analyses    map[string]ClassificationResult `json:"analyses"`
	Scopes      []string                        `json:"scopes"` // report order
}
