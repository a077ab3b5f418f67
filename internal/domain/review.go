package domain

import "strings"

// Review is the canonical record every source is normalized into.
// Construct it with NewReview; the zero value is a valid empty review.
type Review struct {
	ID        string `json:"id"`
	Platform  string `json:"platform"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Rating    int    `json:"rating"` // 0 = unrated
	Version   string `json:"version"`
	Author    string `json:"author"`
	Timestamp string `json:"updated"` // canonical "2006-01-02 15:04:05" or the raw source string
	Votes     int    `json:"votes"`
}

// NewReview clamps rating into [0,5] and votes to >= 0.
func NewReview(r Review) Review {
	if r.Rating < 0 || r.Rating > 5 {
		r.Rating = 0
	}
	if r.Votes < 0 {
		r.Votes = 0
	}
	return r
}

// FullText is the text used for all analysis.
func (r Review) FullText() string {
	return strings.TrimSpace(r.Title + " " + r.Content)
}

// HasText reports whether the review carries anything displayable.
func (r Review) HasText() bool {
	return strings.TrimSpace(r.Title) != "" || strings.TrimSpace(r.Content) != ""
}

type SentimentClass string

const (
	SentimentPositive SentimentClass = "positive"
	SentimentNeutral  SentimentClass = "neutral"
	SentimentNegative SentimentClass = "negative"
)

// ScoredReview is a review enriched with its sentiment; the source Review is never mutated.
type ScoredReview struct {
	Review
	SentimentScore float64        `json:"sentiment_score"`
	Sentiment      SentimentClass `json:"sentiment"`
}

// SourceMeta is the raw metadata snapshot of one fetched sub-source (app listing, movie page).
type SourceMeta struct {
	Platform    string         `json:"platform"`
	Info        map[string]any `json:"info"`
	ReviewCount int            `json:"review_count"`
}
