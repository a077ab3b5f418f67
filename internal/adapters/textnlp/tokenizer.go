package textnlp

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
	"github.com/go-ego/gse/hmm/idf"

	"review_radar/internal/domain"
)

// GseTokenizer segments Chinese/mixed text with gse and ranks terms with its TF-IDF extractor.
type GseTokenizer struct {
	mu  sync.Mutex // gse segmenters are not safe for concurrent Cut
	seg gse.Segmenter
	te  idf.TagExtracter
}

// NewGseTokenizer loads the embedded dictionary and IDF table; extra user
// words (product names, slang) are added with a high frequency so they stay whole.
func NewGseTokenizer(userWords ...string) (*GseTokenizer, error) {
	seg, err := gse.New()
	if err != nil {
		return nil, fmt.Errorf("load gse dictionary: %w", err)
	}
	for _, w := range userWords {
		if w = strings.TrimSpace(w); w != "" {
			seg.AddToken(w, 1000)
		}
	}
	t := &GseTokenizer{seg: seg}
	t.te.WithGse(seg)
	if err := t.te.LoadIdf(); err != nil {
		return nil, fmt.Errorf("load idf table: %w", err)
	}
	return t, nil
}

func (t *GseTokenizer) Segment(text string) ([]string, error) {
	t.mu.Lock()
	words := t.seg.Cut(text, true)
	t.mu.Unlock()
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" && !punctOnly(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

// RankTerms treats text as one document.
func (t *GseTokenizer) RankTerms(text string, topK int) ([]domain.TermWeight, error) {
	if topK <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	t.mu.Lock()
	tags := t.te.ExtractTags(text, topK)
	t.mu.Unlock()
	out := make([]domain.TermWeight, 0, len(tags))
	for _, s := range tags {
		term := strings.TrimSpace(s.Text)
		if term == "" || punctOnly(term) {
			continue
		}
		out = append(out, domain.TermWeight{Term: term, Weight: s.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, nil
}

func punctOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
