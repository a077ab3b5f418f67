package analysis

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"review_radar/internal/domain"
)

// Engine classifies a fixed review set along rating, keyword and sentiment axes.
// It holds no mutable state; one Engine may serve concurrent Analyze calls
// if its Tokenizer and SentimentScorer allow it.
type Engine struct {
	cfg    Config
	stop   map[string]struct{}
	tok    domain.Tokenizer
	scorer domain.SentimentScorer
}

// New copies cfg; later changes to the caller's slices do not affect the engine.
// A nil tokenizer yields empty term lists and a nil scorer yields neutral sentiment.
func New(cfg Config, tok domain.Tokenizer, scorer domain.SentimentScorer) *Engine {
	cfg = cfg.clone()
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[w] = struct{}{}
	}
	return &Engine{cfg: cfg, stop: stop, tok: tok, scorer: scorer}
}

func (e *Engine) Config() Config { return e.cfg.clone() }

// Score attaches sentiment to r. Empty text never reaches the scorer and
// scorer failures degrade to the neutral score.
func (e *Engine) Score(ctx context.Context, r domain.Review) domain.ScoredReview {
	score := e.cfg.NeutralScore
	text := r.FullText()
	if text != "" && e.scorer != nil {
		s, err := e.scorer.Score(ctx, text)
		switch {
		case err != nil:
			log.Debug().Err(err).Str("id", r.ID).Msg("sentiment scorer failed, using neutral")
		case math.IsNaN(s) || s < 0 || s > 1:
			log.Debug().Float64("score", s).Str("id", r.ID).Msg("sentiment score out of range, using neutral")
		default:
			score = s
		}
	}
	return domain.ScoredReview{Review: r, SentimentScore: score, Sentiment: e.sentimentClass(score)}
}

func (e *Engine) sentimentClass(score float64) domain.SentimentClass {
	switch {
	case score >= e.cfg.PositiveThreshold:
		return domain.SentimentPositive
	case score <= e.cfg.NegativeThreshold:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// Annotate returns enriched copies; the input slice is not modified.
func (e *Engine) Annotate(ctx context.Context, rs []domain.Review) []domain.ScoredReview {
	out := make([]domain.ScoredReview, len(rs))
	for i, r := range rs {
		out[i] = e.Score(ctx, r)
	}
	return out
}

// RatingBucket returns the label of the first bucket containing rating, or "" when none does.
func (e *Engine) RatingBucket(rating int) string {
	for _, b := range e.cfg.RatingBuckets {
		if slices.Contains(b.Ratings, rating) {
			return b.Label
		}
	}
	return ""
}

// KeywordCategory returns the first rule in declared order with a keyword contained in text.
// Later rules are not consulted once one matches.
func (e *Engine) KeywordCategory(text string) string {
	for _, rule := range e.cfg.KeywordRules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				return rule.Category
			}
		}
	}
	return e.cfg.Uncategorized
}

// Analyze computes the full ClassificationResult. It never fails: tokenizer and
// scorer problems degrade to empty term lists and neutral sentiment.
func (e *Engine) Analyze(ctx context.Context, rs []domain.Review) domain.ClassificationResult {
	scored := e.Annotate(ctx, rs)
	return e.AnalyzeScored(scored)
}

// AnalyzeScored is Analyze over reviews whose sentiment is already attached.
func (e *Engine) AnalyzeScored(scored []domain.ScoredReview) domain.ClassificationResult {
	total := len(scored)
	res := domain.ClassificationResult{Summary: summarize(scored)}
	byVotes := e.sampleByVotes(scored)

	// rating axis: every bucket reported, in declared order
	ratingGroups := make([][]domain.ScoredReview, len(e.cfg.RatingBuckets))
	for _, s := range scored {
		for i, b := range e.cfg.RatingBuckets {
			if slices.Contains(b.Ratings, s.Rating) {
				ratingGroups[i] = append(ratingGroups[i], s)
				break
			}
		}
	}
	for i, b := range e.cfg.RatingBuckets {
		res.ByRating = append(res.ByRating, e.stat(b.Label, ratingGroups[i], total, byVotes))
	}

	// keyword axis: only categories that matched, catch-all last
	kwGroups := map[string][]domain.ScoredReview{}
	for _, s := range scored {
		c := e.KeywordCategory(s.FullText())
		kwGroups[c] = append(kwGroups[c], s)
	}
	for _, rule := range e.cfg.KeywordRules {
		if g := kwGroups[rule.Category]; len(g) > 0 {
			res.ByKeywordCategory = append(res.ByKeywordCategory, e.stat(rule.Category, g, total, byVotes))
		}
	}
	if g := kwGroups[e.cfg.Uncategorized]; len(g) > 0 {
		res.ByKeywordCategory = append(res.ByKeywordCategory, e.stat(e.cfg.Uncategorized, g, total, byVotes))
	}

	// sentiment axis: all three classes always reported
	sentGroups := map[domain.SentimentClass][]domain.ScoredReview{}
	for _, s := range scored {
		sentGroups[s.Sentiment] = append(sentGroups[s.Sentiment], s)
	}
	for _, c := range []domain.SentimentClass{domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative} {
		res.BySentiment = append(res.BySentiment, e.stat(string(c), sentGroups[c], total, byVotes))
	}

	res.WordFrequency = e.wordFrequency(scored)
	res.SalientTerms = e.salientTerms(scored)
	res.Popularity = e.popularity(scored)
	return res
}

func summarize(scored []domain.ScoredReview) domain.Summary {
	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	sum := 0
	for _, s := range scored {
		if s.Rating >= 1 && s.Rating <= 5 {
			dist[s.Rating]++
			sum += s.Rating
		}
	}
	avg := 0.0
	if len(scored) > 0 {
		avg = round(float64(sum)/float64(len(scored)), 2)
	}
	return domain.Summary{TotalReviews: len(scored), AverageRating: avg, RatingDistribution: dist}
}

func (e *Engine) stat(label string, group []domain.ScoredReview, total int, byVotes bool) domain.CategoryStat {
	return domain.CategoryStat{
		Label:      label,
		Count:      len(group),
		Percentage: Percentage(len(group), total),
		Samples:    e.samples(group, byVotes),
	}
}

// sampleByVotes reports whether every review of the scope comes from a platform
// listed in SampleByVotes. Mixed scopes keep stored order.
func (e *Engine) sampleByVotes(scored []domain.ScoredReview) bool {
	if len(scored) == 0 || len(e.cfg.SampleByVotes) == 0 {
		return false
	}
	for _, s := range scored {
		if !slices.Contains(e.cfg.SampleByVotes, s.Platform) {
			return false
		}
	}
	return true
}

func (e *Engine) samples(group []domain.ScoredReview, byVotes bool) []string {
	ordered := group
	if byVotes {
		ordered = make([]domain.ScoredReview, len(group))
		copy(ordered, group)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Votes > ordered[j].Votes })
	}
	out := []string{}
	for _, s := range ordered {
		if len(out) >= e.cfg.SampleCount {
			break
		}
		if t := s.FullText(); t != "" {
			out = append(out, Truncate(t, e.cfg.SampleRunes))
		}
	}
	return out
}

func (e *Engine) wordFrequency(scored []domain.ScoredReview) []domain.TermCount {
	if e.tok == nil {
		return []domain.TermCount{}
	}
	index := map[string]int{}
	var counts []domain.TermCount
	for _, s := range scored {
		text := s.FullText()
		if text == "" {
			continue
		}
		tokens, err := e.tok.Segment(text)
		if err != nil {
			log.Debug().Err(err).Str("id", s.ID).Msg("segmentation failed, skipping review")
			continue
		}
		for _, tk := range tokens {
			tk = strings.TrimSpace(tk)
			if utf8.RuneCountInString(tk) < e.cfg.MinTokenRunes {
				continue
			}
			if _, ok := e.stop[tk]; ok {
				continue
			}
			if i, ok := index[tk]; ok {
				counts[i].Count++
				continue
			}
			index[tk] = len(counts)
			counts = append(counts, domain.TermCount{Term: tk, Count: 1})
		}
	}
	// stable sort keeps first-seen order among equal counts
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > e.cfg.TopWords {
		counts = counts[:e.cfg.TopWords]
	}
	if counts == nil {
		counts = []domain.TermCount{}
	}
	return counts
}

// salientTerms ranks terms over the whole corpus joined into a single document.
func (e *Engine) salientTerms(scored []domain.ScoredReview) []domain.TermWeight {
	out := []domain.TermWeight{}
	if e.tok == nil || e.cfg.TopSalient <= 0 {
		return out
	}
	texts := make([]string, 0, len(scored))
	for _, s := range scored {
		if t := s.FullText(); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return out
	}
	terms, err := e.tok.RankTerms(strings.Join(texts, " "), e.cfg.TopSalient)
	if err != nil {
		log.Debug().Err(err).Msg("term ranking failed")
		return out
	}
	if len(terms) > e.cfg.TopSalient {
		terms = terms[:e.cfg.TopSalient]
	}
	return append(out, terms...)
}

// popularity is reported only when the review set carries helpfulness votes.
func (e *Engine) popularity(scored []domain.ScoredReview) *domain.Popularity {
	if len(scored) == 0 {
		return nil
	}
	p := domain.Popularity{}
	sum := 0
	for _, s := range scored {
		sum += s.Votes
		if s.Votes > p.MaxVotes {
			p.MaxVotes = s.Votes
		}
		if s.Votes > 100 {
			p.Over100++
		}
		if s.Votes > 1000 {
			p.Over1000++
		}
	}
	if sum == 0 {
		return nil
	}
	p.AvgVotes = round(float64(sum)/float64(len(scored)), 1)
	p.Hot = min(e.cfg.HotCount, len(scored))
	p.Regular = len(scored) - p.Hot
	return &p
}

// Percentage is count/total*100 rounded to one decimal; 0 when total is 0.
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round(float64(count)/float64(total)*100, 1)
}

// Truncate keeps the first n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
