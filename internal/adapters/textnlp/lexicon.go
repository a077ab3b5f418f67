package textnlp

import (
	"context"
	"strings"
)

// LexiconScorer scores text by counting polarity words. It needs no model
// download and gives the same score for the same text on every run.
type LexiconScorer struct {
	positive []string
	negative []string
	negators []string
}

var (
	defaultPositive = []string{
		"好用", "方便", "稳定", "流畅", "喜欢", "不错", "满意", "推荐", "好评", "优秀", "完美", "实用",
		"简洁", "好看", "快速", "顺畅", "给力", "惊喜", "精彩", "感动", "力荐", "值得", "清晰", "省心",
	}
	defaultNegative = []string{
		"难用", "垃圾", "闪退", "卡顿", "崩溃", "失望", "麻烦", "差评", "失败", "无法", "不能", "用不了",
		"连不上", "断开", "耗电", "发热", "bug", "BUG", "烂", "无聊", "难看", "敷衍", "尴尬", "退款", "恶心",
	}
	defaultNegators = []string{"不", "没", "别", "不太", "并不"}
)

func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{positive: defaultPositive, negative: defaultNegative, negators: defaultNegators}
}

// WithWords extends the built-in lexicon.
func (s *LexiconScorer) WithWords(positive, negative []string) *LexiconScorer {
	return &LexiconScorer{
		positive: append(append([]string(nil), s.positive...), positive...),
		negative: append(append([]string(nil), s.negative...), negative...),
		negators: s.negators,
	}
}

// Score returns (pos+1)/(pos+neg+2), so text without polarity words scores 0.5.
// A polarity word directly preceded by a negator counts for the opposite side.
func (s *LexiconScorer) Score(_ context.Context, text string) (float64, error) {
	pos, neg := 0, 0
	for _, w := range s.positive {
		p, n := s.count(text, w)
		pos += p
		neg += n
	}
	for _, w := range s.negative {
		p, n := s.count(text, w)
		neg += p
		pos += n
	}
	return float64(pos+1) / float64(pos+neg+2), nil
}

// count returns (plain, negated) occurrences of w in text.
func (s *LexiconScorer) count(text, w string) (int, int) {
	plain, negated := 0, 0
	rest := text
	for {
		i := strings.Index(rest, w)
		if i < 0 {
			return plain, negated
		}
		if s.negatedAt(rest[:i]) {
			negated++
		} else {
			plain++
		}
		rest = rest[i+len(w):]
	}
}

func (s *LexiconScorer) negatedAt(prefix string) bool {
	for _, n := range s.negators {
		if strings.HasSuffix(prefix, n) {
			return true
		}
	}
	return false
}
