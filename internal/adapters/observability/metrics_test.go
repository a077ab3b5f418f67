package observability_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"review_radar/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	if !strings.Contains(out, "review_radar_http_requests_total") {
		t.Fatalf("expected review_radar_http_requests_total in output")
	}
}

func TestProgressCountsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	p := observability.NewProgress(zerolog.New(&buf))

	p.PageFetched("appstore:macOS", 1, 10, 10)
	p.PageRetried("appstore:macOS", 2, 1, errors.New("timeout"))
	p.PageAbandoned("appstore:macOS", 2, errors.New("timeout"))

	rr := httptest.NewRecorder()
	observability.MetricsHandler(observability.Registry()).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	out := rr.Body.String()
	for _, want := range []string{
		`review_radar_fetch_pages_total{outcome="ok",source="appstore:macOS"}`,
		`review_radar_fetch_pages_total{outcome="abandoned",source="appstore:macOS"}`,
		`review_radar_fetch_items_total{source="appstore:macOS"} 10`,
		`review_radar_fetch_retries_total{source="appstore:macOS"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
	if !strings.Contains(buf.String(), `"message":"page fetched"`) {
		t.Errorf("expected page fetched log line, got %s", buf.String())
	}
}

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		env, level string
		want       zerolog.Level
	}{
		{"dev", "", zerolog.DebugLevel},
		{"prod", "", zerolog.InfoLevel},
		{"prod", "warn", zerolog.WarnLevel},
		{"development", "error", zerolog.ErrorLevel},
		{"prod", "loud", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := observability.NewLogger(c.env, c.level).GetLevel(); got != c.want {
			t.Errorf("NewLogger(%q, %q) level = %s, want %s", c.env, c.level, got, c.want)
		}
	}
}
