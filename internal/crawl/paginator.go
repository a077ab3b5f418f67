package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"review_radar/internal/domain"
)

// Source describes how one sub-source paginates.
type Source struct {
	Key         string
	StartOffset int // first offset, usually 0
	PageSize    int // offset stride per page
	HardCeiling int // absolute page cap, 0 = none
	// FullPageSize enables the short-page stop: a page with fewer entries is the tail.
	FullPageSize int
	// SkipFailedPages keeps walking past an abandoned page. Only valid for
	// sources whose next page can be addressed without the previous one.
	SkipFailedPages        bool
	MaxConsecutiveFailures int
}

func (s Source) request(page int) domain.PageRequest {
	return domain.PageRequest{
		SourceKey: s.Key,
		Page:      page,
		Offset:    s.StartOffset + (page-1)*s.PageSize,
		Size:      s.PageSize,
	}
}

type StopReason string

const (
	StopCeiling   StopReason = "ceiling"
	StopMaxPages  StopReason = "max_pages"
	StopEmpty     StopReason = "empty"
	StopShortPage StopReason = "short_page"
	StopNoNext    StopReason = "no_next"
	StopFailed    StopReason = "failed"
	StopCanceled  StopReason = "canceled"
)

// Result is everything collected by one Run, including partial runs.
type Result struct {
	Entries   []domain.RawEntry
	Pages     int   // pages that returned entries
	Retries   int   // total retries across all pages
	Abandoned []int // pages given up after exhausting retries
	Stop      StopReason
}

type Paginator struct {
	fetcher domain.PageFetcher
	retry   RetryPolicy
	polite  Politeness
	sleep   Sleeper
	obs     domain.ProgressObserver
}

type Option func(*Paginator)

func WithRetry(r RetryPolicy) Option                { return func(p *Paginator) { p.retry = r } }
func WithPoliteness(pl Politeness) Option           { return func(p *Paginator) { p.polite = pl } }
func WithSleeper(s Sleeper) Option                  { return func(p *Paginator) { p.sleep = s } }
func WithObserver(o domain.ProgressObserver) Option { return func(p *Paginator) { p.obs = o } }

func NewPaginator(f domain.PageFetcher, opts ...Option) *Paginator {
	p := &Paginator{
		fetcher: f,
		retry:   DefaultRetry(),
		sleep:   TimerSleeper,
		obs:     nopObserver{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run walks src page by page in strictly increasing order until a stop condition holds.
// maxPages <= 0 means "only the hard ceiling applies".
// On cancellation it returns what was collected so far together with ctx.Err().
func (p *Paginator) Run(ctx context.Context, src Source, maxPages int) (Result, error) {
	var res Result
	failures := 0
	for page := 1; ; page++ {
		if src.HardCeiling > 0 && page > src.HardCeiling {
			res.Stop = StopCeiling
			break
		}
		if maxPages > 0 && page > maxPages {
			res.Stop = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			res.Stop = StopCanceled
			return res, err
		}

		rp, retries, err := p.fetch(ctx, src.request(page))
		res.Retries += retries
		if err != nil {
			switch {
			case ctx.Err() != nil:
				res.Stop = StopCanceled
				return res, ctx.Err()
			case Classify(err) == OutcomeNotFound:
				res.Stop = StopEmpty
			default:
				res.Abandoned = append(res.Abandoned, page)
				p.obs.PageAbandoned(src.Key, page, err)
				failures++
				if src.SkipFailedPages && (src.MaxConsecutiveFailures <= 0 || failures < src.MaxConsecutiveFailures) {
					continue
				}
				res.Stop = StopFailed
			}
			break
		}
		failures = 0

		if len(rp.Entries) == 0 {
			res.Stop = StopEmpty
			break
		}
		res.Entries = append(res.Entries, rp.Entries...)
		res.Pages++
		p.obs.PageFetched(src.Key, page, len(rp.Entries), len(res.Entries))

		if rp.HasNext != nil && !*rp.HasNext {
			res.Stop = StopNoNext
			break
		}
		if src.FullPageSize > 0 && len(rp.Entries) < src.FullPageSize {
			res.Stop = StopShortPage
			break
		}
	}
	log.Info().Str("source", src.Key).Int("pages", res.Pages).Int("items", len(res.Entries)).
		Int("abandoned", len(res.Abandoned)).Str("stop", string(res.Stop)).Msg("pagination finished")
	return res, nil
}

// fetch performs one page request with a politeness pause before every attempt
// and a bounded retry loop on transient failures.
func (p *Paginator) fetch(ctx context.Context, req domain.PageRequest) (domain.RawPage, int, error) {
	delays := p.retry.Delays()
	for attempt := 0; ; attempt++ {
		if d := p.polite.Next(); d > 0 {
			if err := p.sleep.Sleep(ctx, d); err != nil {
				return domain.RawPage{}, attempt, err
			}
		}
		page, err := p.fetcher.FetchPage(ctx, req)
		if err == nil {
			return page, attempt, nil
		}
		if Classify(err) == OutcomeNotFound {
			return domain.RawPage{}, attempt, err
		}
		// a per-request timeout also matches DeadlineExceeded; only the run's own context ends the loop
		if ctx.Err() != nil {
			return domain.RawPage{}, attempt, ctx.Err()
		}
		if attempt >= len(delays) {
			log.Warn().Err(err).Str("source", req.SourceKey).Int("page", req.Page).
				Int("retries", attempt).Msg("page abandoned")
			return domain.RawPage{}, attempt, fmt.Errorf("%w: %s page %d: %w", domain.ErrTransient, req.SourceKey, req.Page, err)
		}
		log.Warn().Err(err).Str("source", req.SourceKey).Int("page", req.Page).
			Dur("backoff", delays[attempt]).Msg("retrying page")
		p.obs.PageRetried(req.SourceKey, req.Page, attempt+1, err)
		if err := p.sleep.Sleep(ctx, delays[attempt]); err != nil {
			return domain.RawPage{}, attempt, err
		}
	}
}

type nopObserver struct{}

func (nopObserver) PageFetched(string, int, int, int)   {}
func (nopObserver) PageRetried(string, int, int, error) {}
func (nopObserver) PageAbandoned(string, int, error)    {}

// IsPartial reports whether err from Run means the result is a cancellation checkpoint.
func IsPartial(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
