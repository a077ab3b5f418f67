package domain

import "context"

// PageFetcher retrieves one logical page of a sub-source.
// It returns ErrNotFound when the source signals there is no such page;
// any other error is treated as transient by the caller.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (RawPage, error)
}

type Tokenizer interface {
	Segment(text string) ([]string, error)
	// RankTerms returns up to topK terms sorted by descending weight.
	RankTerms(text string, topK int) ([]TermWeight, error)
}

// SentimentScorer returns a score in [0,1]; higher is more positive.
type SentimentScorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// Token is one persisted cookie-equivalent credential. Stores treat it as opaque.
type Token struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"` // unix seconds, 0 = session cookie
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

type TokenSet []Token

type SessionStore interface {
	Save(ctx context.Context, ts TokenSet) error
	// Load returns ErrSessionAbsent when nothing has been saved.
	Load(ctx context.Context) (TokenSet, error)
}

// SnapshotStore persists run outputs. Every Save is a full replace of the prior snapshot.
type SnapshotStore interface {
	SaveReviews(ctx context.Context, rs []Review) error
	SaveScored(ctx context.Context, rs []ScoredReview) error
	SaveAnalysis(ctx context.Context, s Snapshot) error
	SaveSourceMeta(ctx context.Context, ms []SourceMeta) error

	LoadReviews(ctx context.Context) ([]Review, error)
	// LoadAnalysis returns ErrNoSnapshot when no analysis has been saved.
	LoadAnalysis(ctx context.Context) (Snapshot, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// ProgressObserver receives fetch progress for operator feedback only.
type ProgressObserver interface {
	PageFetched(source string, page, pageItems, total int)
	PageRetried(source string, page, attempt int, err error)
	PageAbandoned(source string, page int, err error)
}
