package appstore

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"review_radar/internal/adapters/observability"
	"review_radar/internal/crawl"
	"review_radar/internal/domain"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Platforms maps a platform tag to the iTunes search entity, in report order.
var Platforms = []Platform{
	{Name: "iOS/iPadOS", Entity: "software"},
	{Name: "macOS", Entity: "macSoftware"},
}

type Platform struct {
	Name   string
	Entity string
}

// The customer-reviews feed serves at most 10 pages of up to 10 entries each.
const (
	FeedPageCeiling = 10
	FeedPageSize    = 10
)

type Client struct {
	search  string
	feed    string
	country string
	hc      *http.Client
	rl      *rate.Limiter
}

// New builds a client. rps is a hard floor on request spacing independent of the
// paginator's politeness delay.
func New(searchURL, feedBase, country string, rps int, timeout time.Duration) *Client {
	if rps <= 0 {
		rps = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		search:  searchURL,
		feed:    strings.TrimRight(feedBase, "/"),
		country: country,
		hc:      &http.Client{Timeout: timeout},
		rl:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// ---- Public API ----

// Search returns raw iTunes search results for term on one platform entity.
func (c *Client) Search(ctx context.Context, term, entity string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("country", c.country)
	q.Set("entity", entity)
	q.Set("limit", "20")
	var out struct {
		Results []map[string]any `json:"results"`
	}
	if err := c.getRetry(ctx, "search", c.search+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// FindApp picks the first exact trackName match, falling back to the first
// result whose name contains name. It returns ErrNotFound when nothing matches.
func (c *Client) FindApp(ctx context.Context, name, entity string) (AppInfo, error) {
	results, err := c.Search(ctx, name, entity)
	if err != nil {
		return AppInfo{}, err
	}
	if app, ok := pickApp(results, name); ok {
		return app, nil
	}
	return AppInfo{}, fmt.Errorf("app %q (%s): %w", name, entity, domain.ErrNotFound)
}

// AppInfo keeps the listing fields used downstream plus the raw result.
type AppInfo struct {
	TrackID   int64
	TrackName string
	Raw       map[string]any
}

func pickApp(results []map[string]any, name string) (AppInfo, bool) {
	toInfo := func(r map[string]any) AppInfo {
		id := int64(0)
		if f, ok := r["trackId"].(float64); ok {
			id = int64(f)
		}
		n, _ := r["trackName"].(string)
		raw := make(map[string]any, len(r))
		for k, v := range r {
			raw[k] = v
		}
		if d, ok := raw["description"].(string); ok {
			if rs := []rune(d); len(rs) > 200 {
				raw["description"] = string(rs[:200])
			}
		}
		return AppInfo{TrackID: id, TrackName: n, Raw: raw}
	}
	for _, r := range results {
		if n, _ := r["trackName"].(string); n == name {
			return toInfo(r), true
		}
	}
	for _, r := range results {
		if n, _ := r["trackName"].(string); strings.Contains(n, name) {
			return toInfo(r), true
		}
	}
	return AppInfo{}, false
}

// Reviews returns a PageFetcher over the customer-reviews feed of one app.
// sort is mostRecent or mostHelpful.
func (c *Client) Reviews(appID int64, sort string) domain.PageFetcher {
	if sort == "" {
		sort = "mostRecent"
	}
	return &feedFetcher{c: c, appID: appID, sort: sort}
}

type feedFetcher struct {
	c     *Client
	appID int64
	sort  string
}

func (f *feedFetcher) FetchPage(ctx context.Context, req domain.PageRequest) (domain.RawPage, error) {
	u := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%d/sortby=%s/json",
		f.c.feed, f.c.country, req.Page, f.appID, f.sort)
	body, err := f.c.get(ctx, "feed", u)
	if err != nil {
		return domain.RawPage{}, err
	}
	entries, err := decodeFeed(body)
	if err != nil {
		return domain.RawPage{}, err
	}
	return domain.RawPage{Entries: entries}, nil
}

// ---- Feed decoding ----

type label struct {
	Label string `json:"label"`
}

type feedEntry struct {
	ID      label `json:"id"`
	Title   label `json:"title"`
	Content label `json:"content"`
	Rating  label `json:"im:rating"`
	Version label `json:"im:version"`
	Updated label `json:"updated"`
	Author  *struct {
		Name label `json:"name"`
		URI  label `json:"uri"`
	} `json:"author"`
}

// decodeFeed accepts "entry" as either a list or a single object and skips
// the app-description entry, which has no author.
func decodeFeed(body []byte) ([]domain.RawEntry, error) {
	var doc struct {
		Feed struct {
			Entry json.RawMessage `json:"entry"`
		} `json:"feed"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	raw := bytes.TrimSpace(doc.Feed.Entry)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []feedEntry
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode feed entries: %w", err)
		}
	} else {
		var one feedEntry
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode feed entry: %w", err)
		}
		items = []feedEntry{one}
	}
	out := make([]domain.RawEntry, 0, len(items))
	for _, it := range items {
		if it.Author == nil {
			continue
		}
		out = append(out, domain.AppStoreEntry{
			ID:        it.ID.Label,
			Title:     it.Title.Label,
			Content:   it.Content.Label,
			Rating:    it.Rating.Label,
			Version:   it.Version.Label,
			Author:    it.Author.Name.Label,
			AuthorURI: it.Author.URI.Label,
			Updated:   it.Updated.Label,
		})
	}
	return out, nil
}

// ---- Internals ----

// get performs a single rate-limited GET. 404 maps to domain.ErrNotFound so
// the paginator ends the feed; every other failure is left for the caller to retry.
func (c *Client) get(ctx context.Context, endpoint, u string) ([]byte, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("appstore", endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("appstore", endpoint, resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("appstore %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b)), wait: retryAfter(resp)}
	}
}

type statusError struct {
	code int
	body string
	wait time.Duration
}

func (e *statusError) Error() string { return fmt.Sprintf("bad status %d: %s", e.code, e.body) }

// getRetry is used for one-shot lookups outside the paginator.
// Retries on 429, 5xx and network errors, honoring Retry-After when provided.
func (c *Client) getRetry(ctx context.Context, endpoint, u string, out any) error {
	var lastErr error
	for i := 0; i < 4; i++ {
		body, err := c.get(ctx, endpoint, u)
		if err == nil {
			return json.Unmarshal(body, out)
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		wait := backoff(i)
		var se *statusError
		if errors.As(err, &se) {
			if se.code < 500 && se.code != http.StatusTooManyRequests {
				return err
			}
			if se.wait > 0 {
				wait = se.wait
			}
		}
		if i < 3 && !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

// FeedSource describes how the review feed of one platform paginates. There is no
// way to address page n+1 without page n succeeding, so abandoned pages end the run.
func FeedSource(platform string) crawl.Source {
	return crawl.Source{
		Key:          "appstore:" + platform,
		PageSize:     FeedPageSize,
		HardCeiling:  FeedPageCeiling,
		FullPageSize: FeedPageSize,
	}
}
