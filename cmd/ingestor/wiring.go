package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"review_radar/internal/adapters/appstore"
	"review_radar/internal/adapters/douban"
	"review_radar/internal/adapters/observability"
	"review_radar/internal/adapters/textnlp"
	"review_radar/internal/analysis"
	"review_radar/internal/app"
	"review_radar/internal/crawl"
	"review_radar/internal/domain"
)

const (
	sourceAppStore = "appstore"
	sourceDouban   = "douban"
	sourceAll      = "all"
)

func crawlOptions() []crawl.Option {
	return []crawl.Option{
		crawl.WithRetry(crawl.DefaultRetry()),
		crawl.WithPoliteness(crawl.Politeness{Min: cfg.DelayMin, Max: cfg.DelayMax}),
		crawl.WithObserver(observability.DefaultProgress()),
	}
}

// buildJobs resolves the sub-sources selected by source into crawl jobs.
// An app that cannot be found on one platform is skipped, not fatal.
func buildJobs(ctx context.Context, source string, pages, reviewPages int) ([]app.Job, error) {
	var jobs []app.Job
	if source == sourceAll || source == sourceAppStore {
		cl := appstore.New(cfg.AppStoreSearch, cfg.AppStoreFeed, cfg.AppCountry, cfg.RequestsPerSec, cfg.RequestTimeout)
		for _, p := range appstore.Platforms {
			info, err := cl.FindApp(ctx, cfg.AppName, p.Entity)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warn().Err(err).Str("platform", p.Name).Str("app", cfg.AppName).Msg("app lookup failed, skipping platform")
				continue
			}
			log.Info().Str("platform", p.Name).Int64("track_id", info.TrackID).Str("name", info.TrackName).Msg("app found")
			meta := domain.SourceMeta{Platform: p.Name, Info: info.Raw}
			jobs = append(jobs, app.Job{
				Platform: p.Name,
				Source:   appstore.FeedSource(p.Name),
				Fetcher:  cl.Reviews(info.TrackID, "mostRecent"),
				MaxPages: pages,
				Meta:     func(context.Context) (domain.SourceMeta, error) { return meta, nil },
			})
		}
	}
	if source == sourceAll || source == sourceDouban {
		dc, err := douban.New(cfg.DoubanBase, cfg.DoubanSubject, cfg.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("douban client: %w", err)
		}
		jobs = append(jobs,
			app.Job{
				Platform: douban.PlatformComments,
				Source:   douban.CommentsSource(),
				Fetcher:  dc.Comments(),
				MaxPages: pages,
				Meta:     dc.MovieInfo,
				Session:  dc,
			},
			app.Job{
				Platform: douban.PlatformReviews,
				Source:   douban.ReviewsSource(),
				Fetcher:  dc.LongReviews(),
				MaxPages: reviewPages,
				Session:  dc,
			},
		)
	}
	if len(jobs) == 0 {
		return nil, errors.New("no sources to scrape")
	}
	return jobs, nil
}

// newEngine builds the classification engine from the rules file and the
// configured sentiment backend.
func newEngine() (*analysis.Engine, error) {
	rules, err := analysis.LoadConfig(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	tok, err := textnlp.NewGseTokenizer(cfg.AppName)
	if err != nil {
		return nil, err
	}
	var scorer domain.SentimentScorer = textnlp.NewLexiconScorer()
	if cfg.SentimentBackend == "openai" {
		oa, err := textnlp.NewOpenAIScorer(cfg.OpenAIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		scorer = oa
	}
	log.Debug().Str("sentiment", cfg.SentimentBackend).Int("keyword_rules", len(rules.KeywordRules)).Msg("engine ready")
	return analysis.New(rules, tok, scorer), nil
}
