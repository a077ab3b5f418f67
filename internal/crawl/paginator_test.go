package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_radar/internal/domain"
)

// fakeFetcher replays scripted outcomes per page; pages without a script return entries of fullSize.
type fakeFetcher struct {
	mu       sync.Mutex
	fullSize int
	script   map[int][]error
	sizes    map[int]int
	calls    map[int]int
	offsets  []int
	onFetch  func(page int)
}

func newFake(fullSize int) *fakeFetcher {
	return &fakeFetcher{fullSize: fullSize, script: map[int][]error{}, sizes: map[int]int{}, calls: map[int]int{}}
}

func (f *fakeFetcher) FetchPage(_ context.Context, req domain.PageRequest) (domain.RawPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[req.Page]
	f.calls[req.Page]++
	f.offsets = append(f.offsets, req.Offset)
	if f.onFetch != nil {
		f.onFetch(req.Page)
	}
	if errs := f.script[req.Page]; n < len(errs) && errs[n] != nil {
		return domain.RawPage{}, errs[n]
	}
	size := f.fullSize
	if s, ok := f.sizes[req.Page]; ok {
		size = s
	}
	entries := make([]domain.RawEntry, size)
	for i := range entries {
		entries[i] = domain.GenericEntry{"id": fmt.Sprintf("%d-%d", req.Page, i)}
	}
	return domain.RawPage{Entries: entries}, nil
}

type recSleeper struct{ waits []time.Duration }

func (s *recSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

type recObserver struct {
	fetched   []int
	retried   []int
	abandoned []int
}

func (o *recObserver) PageFetched(_ string, page, _, _ int) { o.fetched = append(o.fetched, page) }
func (o *recObserver) PageRetried(_ string, _, attempt int, _ error) {
	o.retried = append(o.retried, attempt)
}
func (o *recObserver) PageAbandoned(_ string, page int, _ error) {
	o.abandoned = append(o.abandoned, page)
}

func src(full int) Source {
	return Source{Key: "test", PageSize: full, HardCeiling: 10, FullPageSize: full}
}

func TestRetryPolicyDelays(t *testing.T) {
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, DefaultRetry().Delays())
	assert.Empty(t, RetryPolicy{}.Delays())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeNotFound, Classify(fmt.Errorf("wrap: %w", domain.ErrNotFound)))
	assert.Equal(t, OutcomeCanceled, Classify(context.Canceled))
	assert.Equal(t, OutcomeCanceled, Classify(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, OutcomeTransient, Classify(errors.New("connection reset")))
}

func TestPolitenessWithinWindow(t *testing.T) {
	p := Politeness{Min: time.Second, Max: 3 * time.Second, Rand: func() float64 { return 0.5 }}
	assert.Equal(t, 2*time.Second, p.Next())
	p.Rand = func() float64 { return 0 }
	assert.Equal(t, time.Second, p.Next())

	p.Rand = nil
	for i := 0; i < 100; i++ {
		d := p.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
	assert.Zero(t, Politeness{}.Next())
}

func TestRun_StopsOnNotFoundWithoutRetry(t *testing.T) {
	f := newFake(10)
	f.script[3] = []error{domain.ErrNotFound}
	sl := &recSleeper{}
	p := NewPaginator(f, WithSleeper(sl))

	res, err := p.Run(context.Background(), src(10), 0)
	require.NoError(t, err)
	assert.Equal(t, StopEmpty, res.Stop)
	assert.Equal(t, 2, res.Pages)
	assert.Len(t, res.Entries, 20)
	assert.Equal(t, 1, f.calls[3], "not-found page must not be retried")
	assert.Zero(t, res.Retries)
	assert.Empty(t, sl.waits)
}

func TestRun_RetriesThreeTimesWithDoublingBackoff(t *testing.T) {
	f := newFake(10)
	boom := errors.New("timeout")
	f.script[1] = []error{boom, boom, boom, boom}
	sl := &recSleeper{}
	obs := &recObserver{}
	p := NewPaginator(f, WithSleeper(sl), WithObserver(obs))

	res, err := p.Run(context.Background(), src(10), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, f.calls[1])
	assert.Equal(t, 3, res.Retries)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sl.waits)
	assert.Equal(t, []int{1}, res.Abandoned)
	assert.Equal(t, []int{1}, obs.abandoned)
	assert.Equal(t, []int{1, 2, 3}, obs.retried)
	assert.Equal(t, StopFailed, res.Stop, "source without skip terminates on abandoned page")
	assert.Empty(t, res.Entries)
}

func TestRun_RecoversAfterTransientFailure(t *testing.T) {
	f := newFake(10)
	f.script[2] = []error{errors.New("reset")}
	f.sizes[3] = 4
	sl := &recSleeper{}
	p := NewPaginator(f, WithSleeper(sl))

	res, err := p.Run(context.Background(), src(10), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Len(t, res.Entries, 24)
	assert.Equal(t, StopShortPage, res.Stop)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, []time.Duration{time.Second}, sl.waits)
}

func TestRun_RequestTimeoutIsRetriedWhileRunIsLive(t *testing.T) {
	f := newFake(10)
	f.script[1] = []error{fmt.Errorf("get page: %w", context.DeadlineExceeded)}
	f.sizes[2] = 0
	p := NewPaginator(f, WithSleeper(&recSleeper{}))

	res, err := p.Run(context.Background(), src(10), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, StopEmpty, res.Stop)
}

func TestRun_SkipFailedPagesContinues(t *testing.T) {
	f := newFake(20)
	boom := errors.New("parse failure")
	f.script[2] = []error{boom, boom, boom, boom}
	f.sizes[4] = 0
	s := Source{Key: "comments", PageSize: 20, HardCeiling: 10, SkipFailedPages: true, MaxConsecutiveFailures: 3}
	p := NewPaginator(f, WithSleeper(&recSleeper{}))

	res, err := p.Run(context.Background(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Abandoned)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, StopEmpty, res.Stop)
}

func TestRun_SkipFailedPagesBoundedByConsecutiveFailures(t *testing.T) {
	f := newFake(20)
	boom := errors.New("blocked")
	for pg := 1; pg <= 10; pg++ {
		f.script[pg] = []error{boom, boom, boom, boom}
	}
	s := Source{Key: "comments", PageSize: 20, HardCeiling: 10, SkipFailedPages: true, MaxConsecutiveFailures: 2}
	p := NewPaginator(f, WithSleeper(&recSleeper{}))

	res, err := p.Run(context.Background(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Abandoned)
	assert.Equal(t, StopFailed, res.Stop)
}

func TestRun_HardCeilingBeatsMaxPages(t *testing.T) {
	f := newFake(10)
	p := NewPaginator(f, WithSleeper(&recSleeper{}))

	res, err := p.Run(context.Background(), src(10), 50)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Pages)
	assert.Equal(t, StopCeiling, res.Stop)

	res, err = p.Run(context.Background(), src(10), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, StopMaxPages, res.Stop)
}

func TestRun_OffsetsFollowStartAndStride(t *testing.T) {
	f := newFake(20)
	s := Source{Key: "c", StartOffset: 0, PageSize: 20, FullPageSize: 20}
	p := NewPaginator(f, WithSleeper(&recSleeper{}))

	_, err := p.Run(context.Background(), s, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 20, 40}, f.offsets)
}

func TestRun_HasNextFalseStops(t *testing.T) {
	no := false
	f := fetcherFunc(func(_ context.Context, req domain.PageRequest) (domain.RawPage, error) {
		return domain.RawPage{Entries: []domain.RawEntry{domain.GenericEntry{}}, HasNext: &no}, nil
	})
	res, err := NewPaginator(f, WithSleeper(&recSleeper{})).Run(context.Background(), Source{Key: "x", PageSize: 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, StopNoNext, res.Stop)
	assert.Equal(t, 1, res.Pages)
}

func TestRun_PolitenessBeforeEveryRequest(t *testing.T) {
	f := newFake(10)
	f.sizes[2] = 3
	sl := &recSleeper{}
	pl := Politeness{Min: time.Second, Max: 3 * time.Second, Rand: func() float64 { return 0.25 }}
	p := NewPaginator(f, WithSleeper(sl), WithPoliteness(pl))

	_, err := p.Run(context.Background(), src(10), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, sl.waits)
}

func TestRun_CancellationReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFake(10)
	f.onFetch = func(page int) {
		if page == 2 {
			cancel()
		}
	}
	p := NewPaginator(f, WithSleeper(&recSleeper{}))

	res, err := p.Run(ctx, src(10), 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsPartial(err))
	assert.Equal(t, StopCanceled, res.Stop)
	assert.Equal(t, 2, res.Pages, "pages fetched before the checkpoint are kept")
	assert.Len(t, res.Entries, 20)
}

func TestRun_ObserverDoesNotAffectFlow(t *testing.T) {
	f := newFake(10)
	f.sizes[2] = 5
	obs := &recObserver{}
	res, err := NewPaginator(f, WithSleeper(&recSleeper{}), WithObserver(obs)).Run(context.Background(), src(10), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, obs.fetched)
	assert.Equal(t, 2, res.Pages)
}

type fetcherFunc func(context.Context, domain.PageRequest) (domain.RawPage, error)

func (f fetcherFunc) FetchPage(ctx context.Context, req domain.PageRequest) (domain.RawPage, error) {
	return f(ctx, req)
}
