package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Progress reports page-loop progress through zerolog and the fetch counters.
type Progress struct {
	l zerolog.Logger
}

func NewProgress(l zerolog.Logger) *Progress { return &Progress{l: l} }

// DefaultProgress logs through the global logger.
func DefaultProgress() *Progress { return &Progress{l: log.Logger} }

func (p *Progress) PageFetched(source string, page, pageItems, total int) {
	FetchPages.WithLabelValues(source, "ok").Inc()
	FetchItems.WithLabelValues(source).Add(float64(pageItems))
	p.l.Info().Str("source", source).Int("page", page).Int("items", pageItems).Int("total", total).Msg("page fetched")
}

func (p *Progress) PageRetried(source string, page, attempt int, err error) {
	FetchRetries.WithLabelValues(source).Inc()
	p.l.Debug().Err(err).Str("source", source).Int("page", page).Int("attempt", attempt).Msg("page retry scheduled")
}

func (p *Progress) PageAbandoned(source string, page int, err error) {
	FetchPages.WithLabelValues(source, "abandoned").Inc()
	p.l.Warn().Err(err).Str("source", source).Int("page", page).Str("kind", LabelErr(err)).Msg("page abandoned")
}
