package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"review_radar/internal/app"
	"review_radar/internal/crawl"
	"review_radar/internal/domain"
	"review_radar/internal/report"
	"review_radar/internal/session"
)

const doubanCookieDomain = ".douban.com"

var loginFlags struct {
	cookie     string
	cookieFile string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a Douban session captured from a browser",
	Long: `Log in to Douban in a browser, copy the Cookie request header of any
movie.douban.com page, and pass it here. The session is reused by later
scrapes until it expires.`,
	Example: `  ingestor login --cookie "bid=...; dbcl2=...; ck=..."
  ingestor login --cookie-file cookie.txt`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		header := loginFlags.cookie
		if loginFlags.cookieFile != "" {
			b, err := os.ReadFile(loginFlags.cookieFile)
			if err != nil {
				return fmt.Errorf("read cookie file: %w", err)
			}
			header = string(b)
		}
		if strings.TrimSpace(header) == "" {
			return errors.New("one of --cookie or --cookie-file is required")
		}
		ts := session.ParseCookieHeader(strings.TrimSpace(header), doubanCookieDomain)
		ing := app.NewIngestionService(deps.store, deps.sessions, deps.cache)
		if err := ing.Login(cmd.Context(), ts); err != nil {
			return err
		}
		log.Info().Int("tokens", len(ts)).Msg("session stored")
		return nil
	},
}

var scrapeFlags struct {
	source      string
	pages       int
	reviewPages int
}

func addScrapeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&scrapeFlags.source, "source", sourceAll, "which source to scrape: appstore|douban|all")
	f.IntVar(&scrapeFlags.pages, "pages", 0, "max pages per feed (0 uses MAX_PAGES)")
	f.IntVar(&scrapeFlags.reviewPages, "review-pages", 5, "max pages of Douban long reviews")
}

func runScrape(cmd *cobra.Command) (app.IngestReport, error) {
	switch scrapeFlags.source {
	case sourceAll, sourceAppStore, sourceDouban:
	default:
		return app.IngestReport{}, fmt.Errorf("unknown --source %q", scrapeFlags.source)
	}
	pages := scrapeFlags.pages
	if pages <= 0 {
		pages = cfg.MaxPages
	}
	jobs, err := buildJobs(cmd.Context(), scrapeFlags.source, pages, scrapeFlags.reviewPages)
	if err != nil {
		return app.IngestReport{}, err
	}
	ing := app.NewIngestionService(deps.store, deps.sessions, deps.cache, crawlOptions()...)
	rep, err := ing.Run(cmd.Context(), jobs)
	if werr := report.WriteIngest(cmd.OutOrStdout(), rep); werr != nil {
		log.Warn().Err(werr).Msg("write scrape summary failed")
	}
	return rep, settleScrape(rep, err)
}

// settleScrape clears the error of a run that was interrupted after its partial
// set was saved. A failed save keeps its error.
func settleScrape(rep app.IngestReport, err error) error {
	if err != nil && rep.Partial && crawl.IsPartial(err) {
		log.Info().Int("reviews", len(rep.Reviews)).Msg("interrupted, partial results saved")
		return nil
	}
	return err
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch reviews and replace the stored review set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := runScrape(cmd)
		return err
	},
}

var reportFlags struct {
	json     bool
	examples int
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&reportFlags.json, "json", false, "print the snapshot as JSON instead of text")
	cmd.Flags().IntVar(&reportFlags.examples, "examples", 3, "literal reviews printed per platform")
}

func printSnapshot(cmd *cobra.Command, snap domain.Snapshot) error {
	out := cmd.OutOrStdout()
	if reportFlags.json {
		return report.WriteJSON(out, snap)
	}
	var examples map[string][]domain.Review
	if reportFlags.examples > 0 {
		rs, err := deps.store.LoadReviews(cmd.Context())
		if err != nil {
			return fmt.Errorf("load reviews: %w", err)
		}
		examples = report.ExamplesByPlatform(rs, reportFlags.examples)
	}
	return report.WriteSnapshot(out, snap, examples, report.Options{Color: useColor(), Examples: reportFlags.examples})
}

func runAnalyze(cmd *cobra.Command) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	snap, _, err := app.NewAnalysisService(deps.store, eng, deps.cache).Run(cmd.Context())
	if err != nil {
		return err
	}
	return printSnapshot(cmd, snap)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify the stored reviews and save the analysis snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAnalyze(cmd)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Scrape, analyze and print the report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rep, err := runScrape(cmd)
		if err != nil {
			return err
		}
		if rep.Partial {
			// do not analyze a partial set
			return nil
		}
		return runAnalyze(cmd)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the latest saved analysis",
	RunE: func(cmd *cobra.Command, _ []string) error {
		snap, err := app.NewQueryService(deps.store, nil, 0).LatestAnalysis(cmd.Context())
		if errors.Is(err, domain.ErrNoSnapshot) {
			return errors.New("no analysis saved yet, run `ingestor analyze` first")
		}
		if err != nil {
			return err
		}
		return printSnapshot(cmd, snap)
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginFlags.cookie, "cookie", "", "Cookie header value from a logged-in browser")
	loginCmd.Flags().StringVar(&loginFlags.cookieFile, "cookie-file", "", "file holding the Cookie header value")
	loginCmd.MarkFlagsMutuallyExclusive("cookie", "cookie-file")

	addScrapeFlags(scrapeCmd)
	addScrapeFlags(allCmd)
	addReportFlags(analyzeCmd)
	addReportFlags(allCmd)
	addReportFlags(reportCmd)
}
