package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"review_radar/internal/adapters/observability"
	redisad "review_radar/internal/adapters/redis"
	"review_radar/internal/domain"
	"review_radar/internal/session"
	"review_radar/internal/shared"
	"review_radar/internal/storage"
)

// cfg is loaded once in the root pre-run; flags below override it.
var cfg shared.Config

// deps holds what the subcommands share. Fields are set by setup and
// released by teardown.
var deps struct {
	store      domain.SnapshotStore
	closeStore func() error
	sessions   domain.SessionStore
	cache      domain.Cache
	redis      *redisad.Cache
}

var rootFlags struct {
	dataDir string
	store   string
	dsn     string
	noColor bool
}

var rootCmd = &cobra.Command{
	Use:   "ingestor",
	Short: "Scrape App Store and Douban reviews, classify them and report",
	Long: `ingestor collects user reviews from the App Store review feeds and Douban,
normalizes them into one review set, and classifies it by rating tier,
problem category and sentiment.

Typical flow:
  ingestor login --cookie "dbcl2=...; ck=..."   # once, for Douban
  ingestor all                                   # scrape + analyze + report`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.dataDir, "data-dir", "", "output directory (overrides DATA_DIR)")
	pf.StringVar(&rootFlags.store, "store", "", "snapshot store: file|sqlite|mysql|postgres (overrides STORE_BACKEND)")
	pf.StringVar(&rootFlags.dsn, "dsn", "", "database DSN for sql stores (overrides STORE_DSN)")
	pf.BoolVar(&rootFlags.noColor, "no-color", false, "disable colored report output")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(allCmd)
	rootCmd.AddCommand(reportCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg = shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	observability.Serve(cfg.MetricsAddr)

	if rootFlags.dataDir != "" {
		cfg.DataDir = rootFlags.dataDir
	}
	if rootFlags.store != "" {
		cfg.StoreBackend = rootFlags.store
	}
	if rootFlags.dsn != "" {
		cfg.StoreDSN = rootFlags.dsn
	}

	st, closeFn, err := storage.Open(cmd.Context(), cfg.StoreBackend, cfg.StoreDSN, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	deps.store, deps.closeStore = st, closeFn

	deps.cache = redisad.Nop{}
	if cfg.RedisAddr != "" {
		deps.redis = redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := deps.redis.Ping(cmd.Context()); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cache invalidation disabled")
			_ = deps.redis.Close()
			deps.redis = nil
		} else {
			deps.cache = deps.redis
		}
	}

	switch cfg.SessionBackend {
	case "redis":
		if deps.redis == nil {
			return fmt.Errorf("SESSION_BACKEND=redis needs a reachable REDIS_ADDR")
		}
		deps.sessions = session.NewRedisStore(deps.redis.Client(), "")
	default:
		deps.sessions = session.NewFileStore(cfg.SessionFile)
	}

	log.Debug().
		Str("store", cfg.StoreBackend).
		Str("data_dir", cfg.DataDir).
		Str("sessions", cfg.SessionBackend).
		Msg("ingestor configured")
	return nil
}

func teardown() error {
	if deps.redis != nil {
		_ = deps.redis.Close()
	}
	if deps.closeStore != nil {
		return deps.closeStore()
	}
	return nil
}

func useColor() bool {
	if rootFlags.noColor {
		return false
	}
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
