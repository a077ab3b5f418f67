package app

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"review_radar/internal/domain"
)

/********** alias registry (single source of truth for loosely-typed records) **********/

// Paths use dots for nesting; "x.label" covers the App Store feed's {"label": ...} wrapping.
var reviewAliases = map[string][]string{
	"id":           {"id", "id.label", "review_id", "reviewId", "comment_id", "cid"},
	"title":        {"title", "title.label", "review_title", "headline"},
	"content":      {"content", "content.label", "text", "review", "comment", "body", "summary", "short"},
	"author":       {"author", "author.name.label", "author.name", "username", "userName", "reviewer", "reviewer.name"},
	"version":      {"version", "im:version.label", "im:version", "app_version"},
	"updated":      {"updated", "updated.label", "time", "date", "created_at", "timestamp"},
	"rating":       {"rating", "im:rating.label", "im:rating", "score", "stars", "rating.value"},
	"rating_class": {"rating_class", "ratingClass", "allstar"},
	"votes":        {"votes", "useful_count", "helpful", "vote_count", "usefulCount"},
	"platform":     {"platform", "source", "site"},
}

// Douban renders star ratings as css classes.
var ratingClasses = map[string]int{
	"allstar50": 5,
	"allstar40": 4,
	"allstar30": 3,
	"allstar20": 2,
	"allstar10": 1,
}

const anonymous = "匿名"

var (
	expandSuffix = regexp.MustCompile(`\s*\(展开\)\s*$`)
	firstNumber  = regexp.MustCompile(`\d+`)
)

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, key string) string {
	for _, p := range reviewAliases[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "8,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// parseCount reads the first run of digits, so "有用 123" and "123" both give 123.
func parseCount(s string) int {
	m := firstNumber.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func parseRating(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 5 {
		return 0
	}
	return n
}

func ratingFromClass(class string) int {
	for _, c := range strings.Fields(class) {
		if r, ok := ratingClasses[c]; ok {
			return r
		}
	}
	return 0
}

func orAnonymous(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return anonymous
	}
	return s
}

// CanonicalTime is the timestamp layout every Review carries when parsing succeeds.
const CanonicalTime = "2006-01-02 15:04:05"

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	CanonicalTime,
	"2006-01-02 15:04",
	"2006-01-02",
}

// normalizeTime renders s as CanonicalTime in its own offset. Anything
// unparseable passes through verbatim.
func normalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(CanonicalTime)
		}
	}
	return s
}

// synthID gives records without a source id a stable identity.
func synthID(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

/********** record normalizer **********/

// Normalize maps one raw entry to a Review. It never fails; ok is false when
// a comment-style entry has no displayable text and should be dropped.
func Normalize(entry domain.RawEntry, platform string) (domain.Review, bool) {
	switch e := entry.(type) {
	case domain.AppStoreEntry:
		return mapAppStore(e, platform), true
	case *domain.AppStoreEntry:
		if e == nil {
			return domain.Review{}, false
		}
		return mapAppStore(*e, platform), true
	case domain.DoubanComment:
		return mapDoubanComment(e, platform)
	case *domain.DoubanComment:
		if e == nil {
			return domain.Review{}, false
		}
		return mapDoubanComment(*e, platform)
	case domain.DoubanLongReview:
		return mapDoubanLongReview(e, platform)
	case *domain.DoubanLongReview:
		if e == nil {
			return domain.Review{}, false
		}
		return mapDoubanLongReview(*e, platform)
	case domain.GenericEntry:
		return mapGeneric(e, platform)
	default:
		return domain.Review{}, false
	}
}

// NormalizeAll keeps encounter order and reports how many entries were dropped.
func NormalizeAll(entries []domain.RawEntry, platform string) ([]domain.Review, int) {
	out := make([]domain.Review, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		r, ok := Normalize(e, platform)
		if !ok {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}

func mapAppStore(e domain.AppStoreEntry, platform string) domain.Review {
	return domain.NewReview(domain.Review{
		ID:        strings.TrimSpace(e.ID),
		Platform:  platform,
		Title:     strings.TrimSpace(e.Title),
		Content:   strings.TrimSpace(e.Content),
		Rating:    parseRating(e.Rating),
		Version:   strings.TrimSpace(e.Version),
		Author:    strings.TrimSpace(e.Author),
		Timestamp: normalizeTime(e.Updated),
	})
}

func mapDoubanComment(e domain.DoubanComment, platform string) (domain.Review, bool) {
	content := strings.TrimSpace(e.Content)
	if content == "" {
		return domain.Review{}, false
	}
	return domain.NewReview(domain.Review{
		ID:        strings.TrimSpace(e.CommentID),
		Platform:  platform,
		Content:   content,
		Rating:    ratingFromClass(e.RatingClass),
		Author:    orAnonymous(e.Username),
		Timestamp: normalizeTime(e.Time),
		Votes:     parseCount(e.Votes),
	}), true
}

func mapDoubanLongReview(e domain.DoubanLongReview, platform string) (domain.Review, bool) {
	title := strings.TrimSpace(e.Title)
	summary := strings.TrimSpace(expandSuffix.ReplaceAllString(e.Summary, ""))
	if title == "" && summary == "" {
		return domain.Review{}, false
	}
	id := strings.TrimSpace(e.ReviewURL)
	if m := firstNumber.FindAllString(id, -1); len(m) > 0 {
		id = m[len(m)-1]
	}
	return domain.NewReview(domain.Review{
		ID:        id,
		Platform:  platform,
		Title:     title,
		Content:   summary,
		Rating:    ratingFromClass(e.RatingClass),
		Author:    orAnonymous(e.Username),
		Timestamp: normalizeTime(e.Time),
		Votes:     parseCount(e.Useful),
	}), true
}

func mapGeneric(m domain.GenericEntry, platform string) (domain.Review, bool) {
	r := domain.Review{
		ID:        firstNonEmptyAlias(m, "id"),
		Platform:  platform,
		Title:     firstNonEmptyAlias(m, "title"),
		Content:   firstNonEmptyAlias(m, "content"),
		Version:   firstNonEmptyAlias(m, "version"),
		Author:    firstNonEmptyAlias(m, "author"),
		Timestamp: normalizeTime(firstNonEmptyAlias(m, "updated")),
	}
	if r.Platform == "" {
		r.Platform = firstNonEmptyAlias(m, "platform")
	}
	if r.Title == "" && r.Content == "" {
		return domain.Review{}, false
	}

	if f := getFloatFlexible(m, reviewAliases["rating"]...); f != nil && *f >= 0 && *f <= 5 {
		r.Rating = int(*f + 0.5)
	} else if c := firstNonEmptyAlias(m, "rating_class"); c != "" {
		r.Rating = ratingFromClass(c)
	}
	if f := getFloatFlexible(m, reviewAliases["votes"]...); f != nil {
		r.Votes = int(*f)
	}
	if r.ID == "" {
		r.ID = synthID(r.Platform, r.Author, r.Title, r.Content, r.Timestamp)
	}
	return domain.NewReview(r), true
}
