package domain

// RawEntry is one source-specific record before normalization.
// The set of variants is closed; the normalizer switches over all of them.
type RawEntry interface {
	rawEntry()
}

// AppStoreEntry is one item of the App Store customer-reviews feed.
type AppStoreEntry struct {
	ID        string
	Title     string
	Content   string
	Rating    string // feed carries "im:rating" as a string label
	Version   string
	Author    string
	AuthorURI string
	Updated   string
}

// DoubanComment is one short comment from a movie comments page.
type DoubanComment struct {
	CommentID   string
	Username    string
	UserURL     string
	RatingClass string // e.g. "allstar40"
	Time        string
	Content     string
	Votes       string
}

// DoubanLongReview is one entry of a movie long-review listing page.
type DoubanLongReview struct {
	ReviewURL   string
	Username    string
	UserURL     string
	Title       string
	RatingClass string
	Time        string
	Summary     string
	Useful      string
	Replies     string
}

// GenericEntry is a loosely-typed record resolved through the alias registry.
type GenericEntry map[string]any

func (AppStoreEntry) rawEntry()    {}
func (DoubanComment) rawEntry()    {}
func (DoubanLongReview) rawEntry() {}
func (GenericEntry) rawEntry()     {}

// PageRequest addresses one logical page of a sub-source.
type PageRequest struct {
	SourceKey string
	Page      int // 1-based logical page number
	Offset    int // StartOffset + (Page-1)*Size
	Size      int
}

// RawPage is what a PageFetcher returns for a successful request.
// HasNext is nil when the source gives no explicit continuation signal.
type RawPage struct {
	Entries []RawEntry
	HasNext *bool
}
