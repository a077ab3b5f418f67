package shared

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	DataDir      string
	StoreBackend string // file|sqlite|mysql|postgres
	StoreDSN     string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	SessionBackend string // file|redis
	SessionFile    string

	AppName          string
	AppCountry       string
	AppStoreSearch   string
	AppStoreFeed     string
	DoubanBase       string
	DoubanSubject    string
	DelayMin         time.Duration
	DelayMax         time.Duration
	RequestTimeout   time.Duration
	MaxPages         int
	RequestsPerSec   int
	SentimentBackend string // lexicon|openai
	OpenAIKey        string
	OpenAIModel      string
	RulesFile        string
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Real environment variables win over .env values.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg(".env present but unreadable")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	dataDir := env("DATA_DIR", "data")
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", ""),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),

		DataDir:      dataDir,
		StoreBackend: env("STORE_BACKEND", "file"),
		StoreDSN:     env("STORE_DSN", ""),

		RedisAddr: env("REDIS_ADDR", ""),
		RedisPass: env("REDIS_PASSWORD", ""),
		RedisDB:   atoi("REDIS_DB", 0),
		CacheTTL:  time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,

		SessionBackend: env("SESSION_BACKEND", "file"),
		SessionFile:    env("SESSION_FILE", filepath.Join(dataDir, "cookies.json")),

		AppName:          env("APP_NAME", "小米互联服务"),
		AppCountry:       env("APP_COUNTRY", "cn"),
		AppStoreSearch:   env("APPSTORE_SEARCH_URL", "https://itunes.apple.com/search"),
		AppStoreFeed:     env("APPSTORE_FEED_URL", "https://itunes.apple.com"),
		DoubanBase:       env("DOUBAN_BASE_URL", "https://movie.douban.com"),
		DoubanSubject:    env("DOUBAN_SUBJECT", "36176155"),
		DelayMin:         time.Duration(atoi("DELAY_MIN_MS", 1000)) * time.Millisecond,
		DelayMax:         time.Duration(atoi("DELAY_MAX_MS", 3000)) * time.Millisecond,
		RequestTimeout:   time.Duration(atoi("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxPages:         atoi("MAX_PAGES", 10),
		RequestsPerSec:   atoi("REQUESTS_PER_SECOND", 2),
		SentimentBackend: env("SENTIMENT_BACKEND", "lexicon"),
		OpenAIKey:        env("OPENAI_API_KEY", ""),
		OpenAIModel:      env("OPENAI_MODEL", "gpt-4o-mini"),
		RulesFile:        env("RULES_FILE", ""),
	}
	if c.SentimentBackend == "openai" && c.OpenAIKey == "" {
		log.Warn().Msg("SENTIMENT_BACKEND=openai but OPENAI_API_KEY is empty, falling back to lexicon")
		c.SentimentBackend = "lexicon"
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
