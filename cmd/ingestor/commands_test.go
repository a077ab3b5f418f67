package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_radar/internal/app"
	"review_radar/internal/domain"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestSettleScrape_InterruptedRunIsNotAFailure(t *testing.T) {
	buf := captureLog(t)
	rep := app.IngestReport{Partial: true, Reviews: []domain.Review{{ID: "1"}, {ID: "2"}}}

	require.NoError(t, settleScrape(rep, context.Canceled))
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.Contains(t, buf.String(), "interrupted, partial results saved")
	assert.Contains(t, buf.String(), `"reviews":2`)
}

func TestSettleScrape_KeepsRealFailures(t *testing.T) {
	captureLog(t)

	saveErr := errors.New("save reviews: disk full")
	assert.ErrorIs(t, settleScrape(app.IngestReport{Partial: true}, saveErr), saveErr)

	// a cancellation that saved nothing is still reported
	canceled := fmt.Errorf("crawl: %w", context.Canceled)
	assert.ErrorIs(t, settleScrape(app.IngestReport{}, canceled), context.Canceled)

	assert.NoError(t, settleScrape(app.IngestReport{}, nil))
}
