package httpserver

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"review_radar/internal/app"
	"review_radar/internal/domain"
	"review_radar/internal/report"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	maxExamples  = 20
)

type Handlers struct{ Q *app.QueryService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/analysis", h.latestAnalysis)
	s.mux.Get("/v1/analysis/{scope}", h.scopeAnalysis)
	s.mux.Get("/v1/report/{scope}", h.scopeReport)
	s.mux.Get("/v1/reviews", h.listReviews)
	s.mux.Get("/v1/meta", h.sourceMeta)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeErr maps domain errors onto problem responses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoSnapshot):
		writeProblem(w, http.StatusNotFound, "Not Found", "no analysis has been run yet")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		log.Error().Err(err).Msg("query failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	return etagOf(body), body
}

func etagOf(body []byte) string {
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}

// writeTagged answers 304 when the client already holds this version.
func writeTagged(w http.ResponseWriter, r *http.Request, contentType, etag string, body []byte) {
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	writeTagged(w, r, "application/json", etag, body)
}

// scopeParam decodes {scope}. Platform names may carry an escaped slash
// ("iOS%2FiPadOS"), which chi matches against the raw path.
func scopeParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "scope"))
}

func (h *Handlers) latestAnalysis(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Q.LatestAnalysis(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, r, snap)
}

func (h *Handlers) scopeAnalysis(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid scope", err.Error())
		return
	}
	res, err := h.Q.Analysis(r.Context(), scope)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, r, res)
}

func (h *Handlers) scopeReport(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid scope", err.Error())
		return
	}
	n, ok := intParam(w, r, "examples", 0, maxExamples)
	if !ok {
		return
	}
	res, err := h.Q.Analysis(r.Context(), scope)
	if err != nil {
		writeErr(w, err)
		return
	}
	var examples []domain.Review
	if n > 0 && scope != app.OverallScope {
		page, err := h.Q.Reviews(r.Context(), app.ReviewQuery{Platform: scope, Limit: n * 4})
		if err != nil {
			writeErr(w, err)
			return
		}
		examples = report.ExamplesByPlatform(page.Items, n)[scope]
	}

	var buf bytes.Buffer
	if err := report.WriteText(&buf, report.ScopeTitle(scope), res, examples, report.Options{Examples: n}); err != nil {
		writeErr(w, err)
		return
	}
	writeTagged(w, r, "text/plain; charset=utf-8", etagOf(buf.Bytes()), buf.Bytes())
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultLimit, maxLimit)
	if !ok {
		return
	}
	offset, ok := intParam(w, r, "offset", 0, -1)
	if !ok {
		return
	}
	out, err := h.Q.Reviews(r.Context(), app.ReviewQuery{
		Platform: r.URL.Query().Get("platform"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) sourceMeta(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Q.SourceMeta(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if ms == nil {
		ms = []domain.SourceMeta{}
	}
	writeJSON(w, r, ms)
}

// intParam reads a non-negative query integer. hi < 0 means unbounded.
// It writes the 400 itself and reports false on bad input.
func intParam(w http.ResponseWriter, r *http.Request, name string, def, hi int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || (hi >= 0 && n > hi) {
		detail := name + " must be a non-negative integer"
		if hi >= 0 {
			detail += " no greater than " + strconv.Itoa(hi)
		}
		writeProblem(w, http.StatusBadRequest, "Invalid "+name, detail)
		return 0, false
	}
	return n, true
}
