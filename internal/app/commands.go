package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"review_radar/internal/analysis"
	"review_radar/internal/crawl"
	"review_radar/internal/domain"
	"review_radar/internal/session"
)

// Cache keys shared by the services that write snapshots and the queries that read them.
const (
	keyAnalysis = "analysis:latest"
	keyMeta     = "meta:latest"
)

var ErrNoReviews = errors.New("no reviews to analyze")

// SessionBinder is a fetcher client that carries cookies between runs.
type SessionBinder interface {
	RestoreSession(ts domain.TokenSet)
	Session() domain.TokenSet
}

// Job is one sub-source crawl. Meta and Session are optional.
type Job struct {
	Platform string
	Source   crawl.Source
	Fetcher  domain.PageFetcher
	MaxPages int
	Meta     func(ctx context.Context) (domain.SourceMeta, error)
	Session  SessionBinder
}

// JobStats is what one job produced.
type JobStats struct {
	Platform  string
	Fetched   int
	Kept      int
	Dropped   int
	Pages     int
	Retries   int
	Abandoned []int
	Stop      crawl.StopReason
}

type IngestReport struct {
	Reviews []domain.Review
	Jobs    []JobStats
	Meta    []domain.SourceMeta
	Partial bool
}

type IngestionService struct {
	store    domain.SnapshotStore
	sessions domain.SessionStore
	cache    domain.Cache
	opts     []crawl.Option
}

// NewIngestionService wires persistence. sessions and cache may be nil.
func NewIngestionService(store domain.SnapshotStore, sessions domain.SessionStore, cache domain.Cache, opts ...crawl.Option) *IngestionService {
	return &IngestionService{store: store, sessions: sessions, cache: cache, opts: opts}
}

type jobResult struct {
	res  crawl.Result
	meta *domain.SourceMeta
}

// Run crawls every job, normalizes the entries and replaces the stored reviews.
// Jobs run concurrently; pages within a job are strictly sequential. When ctx is
// canceled mid-run, everything collected so far is still persisted and ctx.Err()
// is returned alongside the partial report.
func (s *IngestionService) Run(ctx context.Context, jobs []Job) (IngestReport, error) {
	binders := distinctBinders(jobs)
	restored := s.restoreSessions(ctx, binders)

	results := make([]jobResult, len(jobs))
	var (
		g        errgroup.Group
		mu       sync.Mutex
		canceled error
	)
	for i, job := range jobs {
		g.Go(func() error {
			if job.Meta != nil {
				if m, err := job.Meta(ctx); err != nil {
					log.Warn().Err(err).Str("platform", job.Platform).Msg("source metadata unavailable")
				} else {
					results[i].meta = &m
				}
			}
			res, err := crawl.NewPaginator(job.Fetcher, s.opts...).Run(ctx, job.Source, job.MaxPages)
			results[i].res = res
			if err != nil {
				mu.Lock()
				canceled = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var rep IngestReport
	for i, job := range jobs {
		r := results[i]
		rs, dropped := NormalizeAll(r.res.Entries, job.Platform)
		rep.Reviews = append(rep.Reviews, rs...)
		rep.Jobs = append(rep.Jobs, JobStats{
			Platform:  job.Platform,
			Fetched:   len(r.res.Entries),
			Kept:      len(rs),
			Dropped:   dropped,
			Pages:     r.res.Pages,
			Retries:   r.res.Retries,
			Abandoned: r.res.Abandoned,
			Stop:      r.res.Stop,
		})
		if r.meta != nil {
			m := *r.meta
			m.ReviewCount = len(rs)
			rep.Meta = append(rep.Meta, m)
		}
	}
	rep.Partial = canceled != nil

	saveCtx := ctx
	if canceled != nil {
		// keep the checkpoint even though the run was interrupted
		saveCtx = context.WithoutCancel(ctx)
		log.Warn().Int("reviews", len(rep.Reviews)).Msg("run interrupted, saving partial results")
	}
	if err := s.store.SaveReviews(saveCtx, rep.Reviews); err != nil {
		return rep, fmt.Errorf("save reviews: %w", err)
	}
	if len(rep.Meta) > 0 {
		if err := s.store.SaveSourceMeta(saveCtx, rep.Meta); err != nil {
			return rep, fmt.Errorf("save source meta: %w", err)
		}
	}
	s.persistSessions(saveCtx, binders, restored)
	s.invalidate(saveCtx)

	log.Info().Int("reviews", len(rep.Reviews)).Int("jobs", len(jobs)).Bool("partial", rep.Partial).Msg("ingestion finished")
	return rep, canceled
}

func distinctBinders(jobs []Job) []SessionBinder {
	var out []SessionBinder
	for _, j := range jobs {
		if j.Session == nil {
			continue
		}
		dup := false
		for _, b := range out {
			if b == j.Session {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, j.Session)
		}
	}
	return out
}

// restoreSessions is best effort: without a stored session the run proceeds
// unauthenticated.
func (s *IngestionService) restoreSessions(ctx context.Context, binders []SessionBinder) domain.TokenSet {
	if s.sessions == nil || len(binders) == 0 {
		return nil
	}
	ts, err := s.sessions.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrSessionAbsent):
		log.Info().Msg("no stored session, continuing unauthenticated")
		return nil
	case err != nil:
		log.Warn().Err(err).Msg("session restore failed, continuing unauthenticated")
		return nil
	}
	for _, b := range binders {
		b.RestoreSession(ts)
	}
	log.Info().Int("tokens", len(ts)).Msg("session restored")
	return ts
}

// persistSessions writes back cookies the run rotated or gained. Restored
// tokens keep their stored attributes; an unchanged set is not rewritten.
func (s *IngestionService) persistSessions(ctx context.Context, binders []SessionBinder, restored domain.TokenSet) {
	if s.sessions == nil || len(binders) == 0 {
		return
	}
	var harvested domain.TokenSet
	for _, b := range binders {
		harvested = append(harvested, b.Session()...)
	}
	ts, changed := session.Merge(restored, harvested)
	if !changed {
		return
	}
	if err := s.sessions.Save(ctx, ts); err != nil {
		log.Warn().Err(err).Msg("session save failed")
	}
}

func (s *IngestionService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, keyAnalysis)
	_ = s.cache.Del(ctx, keyMeta)
}

// Login stores an operator-supplied token set. It is the completion signal of
// an out-of-band interactive login.
func (s *IngestionService) Login(ctx context.Context, ts domain.TokenSet) error {
	if s.sessions == nil {
		return errors.New("no session store configured")
	}
	if len(ts) == 0 {
		return errors.New("empty token set")
	}
	return s.sessions.Save(ctx, ts)
}

type AnalysisService struct {
	store  domain.SnapshotStore
	engine *analysis.Engine
	cache  domain.Cache
	now    func() time.Time
	newID  func() string
}

func NewAnalysisService(store domain.SnapshotStore, engine *analysis.Engine, cache domain.Cache) *AnalysisService {
	return &AnalysisService{
		store:  store,
		engine: engine,
		cache:  cache,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// OverallScope is the snapshot key of the cross-platform analysis.
const OverallScope = "overall"

// Run analyzes the stored reviews per platform, plus across all platforms when
// there is more than one, and persists the snapshot.
func (s *AnalysisService) Run(ctx context.Context) (domain.Snapshot, []domain.ScoredReview, error) {
	rs, err := s.store.LoadReviews(ctx)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("load reviews: %w", err)
	}
	if len(rs) == 0 {
		return domain.Snapshot{}, nil, ErrNoReviews
	}

	scored := s.engine.Annotate(ctx, rs)
	scopes, groups := groupByPlatform(scored)
	snap := domain.Snapshot{
		RunID:       s.newID(),
		GeneratedAt: s.now().UTC(),
		Analyses:    make(map[string]domain.ClassificationResult, len(scopes)+1),
	}
	for _, p := range scopes {
		snap.Analyses[p] = s.engine.AnalyzeScored(groups[p])
		snap.Scopes = append(snap.Scopes, p)
	}
	if len(scopes) > 1 {
		snap.Analyses[OverallScope] = s.engine.AnalyzeScored(scored)
		snap.Scopes = append(snap.Scopes, OverallScope)
	}

	if err := s.store.SaveScored(ctx, scored); err != nil {
		return snap, scored, fmt.Errorf("save scored reviews: %w", err)
	}
	if err := s.store.SaveAnalysis(ctx, snap); err != nil {
		return snap, scored, fmt.Errorf("save analysis: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, keyAnalysis)
	}
	log.Info().Str("run_id", snap.RunID).Strs("scopes", snap.Scopes).Int("reviews", len(rs)).Msg("analysis saved")
	return snap, scored, nil
}

// groupByPlatform keeps platforms in first-seen order.
func groupByPlatform(scored []domain.ScoredReview) ([]string, map[string][]domain.ScoredReview) {
	var order []string
	groups := map[string][]domain.ScoredReview{}
	for _, r := range scored {
		if _, ok := groups[r.Platform]; !ok {
			order = append(order, r.Platform)
		}
		groups[r.Platform] = append(groups[r.Platform], r)
	}
	return order, groups
}
