package douban

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"review_radar/internal/adapters/observability"
	"review_radar/internal/crawl"
	"review_radar/internal/domain"
	"review_radar/internal/session"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Platform tags of the two Douban sub-sources.
const (
	PlatformComments = "douban_comments"
	PlatformReviews  = "douban_reviews"
)

const (
	CommentsPageSize = 20
	ReviewsPageSize  = 10
)

// sessionCookie is set by Douban once a login completes.
const sessionCookie = "dbcl2"

type Client struct {
	base    *url.URL
	subject string
	http    *resty.Client
	jar     *cookiejar.Jar
}

// New builds a session-bearing client for one movie subject. The cookie jar is
// owned by the client; seed it with RestoreSession and read it back with Session.
func New(baseURL, subject string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("douban base url: %w", err)
	}
	if subject == "" {
		return nil, fmt.Errorf("douban subject id is empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(base.String())
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	client.SetTimeout(timeout)

	return &Client{base: base, subject: subject, http: client, jar: jar}, nil
}

// RestoreSession seeds the jar with a persisted token set. Tokens whose
// domain does not cover the base host are installed host-only.
func (c *Client) RestoreSession(ts domain.TokenSet) {
	host := c.base.Hostname()
	fixed := make(domain.TokenSet, len(ts))
	for i, t := range ts {
		if !domainMatches(t.Domain, host) {
			t.Domain = ""
		}
		fixed[i] = t
	}
	session.Restore(c.jar, c.base, fixed)
}

// Session returns the cookies the jar currently holds for the base URL.
func (c *Client) Session() domain.TokenSet {
	return session.Harvest(c.jar, c.base)
}

// LoggedIn reports whether the jar carries a Douban login cookie.
func (c *Client) LoggedIn() bool {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == sessionCookie && ck.Value != "" {
			return true
		}
	}
	return false
}

func domainMatches(d, host string) bool {
	d = strings.TrimPrefix(strings.ToLower(d), ".")
	if d == "" {
		return true
	}
	host = strings.ToLower(host)
	return host == d || strings.HasSuffix(host, "."+d)
}

// ---- Sources ----

// CommentsSource is the short-comment listing. Pages are addressed by offset so a
// failed page can be skipped.
func CommentsSource() crawl.Source {
	return crawl.Source{
		Key:                    PlatformComments,
		PageSize:               CommentsPageSize,
		SkipFailedPages:        true,
		MaxConsecutiveFailures: 3,
	}
}

func ReviewsSource() crawl.Source {
	return crawl.Source{
		Key:                    PlatformReviews,
		PageSize:               ReviewsPageSize,
		SkipFailedPages:        true,
		MaxConsecutiveFailures: 3,
	}
}

// Comments returns a PageFetcher over the short comments of the subject.
func (c *Client) Comments() domain.PageFetcher {
	return fetcherFunc(func(ctx context.Context, req domain.PageRequest) (domain.RawPage, error) {
		doc, err := c.getDoc(ctx, "comments", "/subject/"+c.subject+"/comments", map[string]string{
			"start":  strconv.Itoa(req.Offset),
			"limit":  strconv.Itoa(CommentsPageSize),
			"status": "P",
			"sort":   "new_score",
		})
		if err != nil {
			return domain.RawPage{}, err
		}
		next := hasNext(doc)
		return domain.RawPage{Entries: parseComments(doc), HasNext: &next}, nil
	})
}

// LongReviews returns a PageFetcher over the long-review listing of the subject.
func (c *Client) LongReviews() domain.PageFetcher {
	return fetcherFunc(func(ctx context.Context, req domain.PageRequest) (domain.RawPage, error) {
		doc, err := c.getDoc(ctx, "reviews", "/subject/"+c.subject+"/reviews", map[string]string{
			"start": strconv.Itoa(req.Offset),
		})
		if err != nil {
			return domain.RawPage{}, err
		}
		next := hasNext(doc)
		return domain.RawPage{Entries: parseLongReviews(doc), HasNext: &next}, nil
	})
}

type fetcherFunc func(ctx context.Context, req domain.PageRequest) (domain.RawPage, error)

func (f fetcherFunc) FetchPage(ctx context.Context, req domain.PageRequest) (domain.RawPage, error) {
	return f(ctx, req)
}

// MovieInfo fetches the subject page and returns its metadata.
func (c *Client) MovieInfo(ctx context.Context) (domain.SourceMeta, error) {
	doc, err := c.getDoc(ctx, "subject", "/subject/"+c.subject+"/", nil)
	if err != nil {
		return domain.SourceMeta{}, err
	}
	info := parseMovieInfo(doc)
	info["subject_id"] = c.subject
	info["url"] = c.base.String() + "/subject/" + c.subject + "/"
	return domain.SourceMeta{Platform: "douban", Info: info}, nil
}

// ---- Internals ----

// getDoc performs one GET and parses the body as HTML. A redirect to the
// login or security-check host counts as unauthorized.
func (c *Client) getDoc(ctx context.Context, endpoint, path string, query map[string]string) (*goquery.Document, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		observability.ObserveExternal("douban", endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	observability.ObserveExternal("douban", endpoint, resp.StatusCode(), time.Since(start))

	if u := finalURL(resp); u != nil && isGate(u) {
		return nil, fmt.Errorf("douban %s redirected to %s: %w", endpoint, u.Hostname(), domain.ErrUnauthorized)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, fmt.Errorf("douban %s %d: %w", endpoint, code, domain.ErrUnauthorized)
	case code < 200 || code >= 300:
		return nil, fmt.Errorf("douban %s: bad status %d", endpoint, code)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("douban %s: parse html: %w", endpoint, err)
	}
	return doc, nil
}

func finalURL(resp *resty.Response) *url.URL {
	if resp.RawResponse == nil || resp.RawResponse.Request == nil {
		return nil
	}
	return resp.RawResponse.Request.URL
}

func isGate(u *url.URL) bool {
	host := u.Hostname()
	return strings.HasPrefix(host, "accounts.douban.") ||
		strings.HasPrefix(host, "sec.douban.") ||
		strings.HasPrefix(u.Path, "/passport/login")
}

// ---- HTML extraction ----

var digits = regexp.MustCompile(`\d+`)

// text collapses whitespace runs the way a browser renders inline text.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func allstarClass(s *goquery.Selection) string {
	cls, _ := s.Find(`span[class*="allstar"]`).First().Attr("class")
	for _, c := range strings.Fields(cls) {
		if strings.HasPrefix(c, "allstar") {
			return c
		}
	}
	return ""
}

func parseComments(doc *goquery.Document) []domain.RawEntry {
	var out []domain.RawEntry
	doc.Find("div.comment-item").Each(func(_ int, item *goquery.Selection) {
		user := item.Find("span.comment-info a").First()
		t := item.Find("span.comment-time").First()
		when, ok := t.Attr("title")
		if !ok {
			when = text(t)
		}
		votes := item.Find("span.votes").First()
		if votes.Length() == 0 {
			votes = item.Find("span.vote-count").First()
		}
		out = append(out, domain.DoubanComment{
			CommentID:   item.AttrOr("data-cid", ""),
			Username:    text(user),
			UserURL:     user.AttrOr("href", ""),
			RatingClass: allstarClass(item),
			Time:        strings.TrimSpace(when),
			Content:     text(item.Find("span.short").First()),
			Votes:       text(votes),
		})
	})
	return out
}

func parseLongReviews(doc *goquery.Document) []domain.RawEntry {
	var out []domain.RawEntry
	doc.Find("div.review-item").Each(func(_ int, item *goquery.Selection) {
		user := item.Find("a.name").First()
		title := item.Find("h2 a").First()
		useful := digits.FindString(text(item.Find("a.action-btn").First()))
		replies := digits.FindString(text(item.Find(`a[href*="#comments"]`).First()))
		out = append(out, domain.DoubanLongReview{
			ReviewURL:   title.AttrOr("href", ""),
			Username:    text(user),
			UserURL:     user.AttrOr("href", ""),
			Title:       text(title),
			RatingClass: allstarClass(item),
			Time:        text(item.Find("span.main-meta").First()),
			Summary:     text(item.Find("div.short-content").First()),
			Useful:      useful,
			Replies:     replies,
		})
	})
	return out
}

func hasNext(doc *goquery.Document) bool {
	if doc.Find("a.next").Length() > 0 {
		return true
	}
	return doc.Find("div.paginator span.next a").Length() > 0
}

func parseMovieInfo(doc *goquery.Document) map[string]any {
	list := func(sel string, limit int) []string {
		out := []string{}
		doc.Find(sel).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if limit > 0 && i >= limit {
				return false
			}
			out = append(out, text(s))
			return true
		})
		return out
	}
	orUnknown := func(s string) string {
		if s == "" {
			return "未知"
		}
		return s
	}
	rating, _ := strconv.ParseFloat(text(doc.Find("strong.rating_num").First()), 64)
	votes, _ := strconv.Atoi(text(doc.Find(`span[property="v:votes"]`).First()))
	return map[string]any{
		"title":        orUnknown(text(doc.Find(`span[property="v:itemreviewed"]`).First())),
		"rating":       rating,
		"votes":        votes,
		"directors":    list(`a[rel="v:directedBy"]`, 0),
		"actors":       list(`a[rel="v:starring"]`, 10),
		"genres":       list(`span[property="v:genre"]`, 0),
		"release_date": orUnknown(text(doc.Find(`span[property="v:initialReleaseDate"]`).First())),
		"summary":      text(doc.Find(`span[property="v:summary"]`).First()),
	}
}
