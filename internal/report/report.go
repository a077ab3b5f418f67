// Package report renders classification results for people: a text report
// with bars and tables, and the JSON snapshot document.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"review_radar/internal/analysis"
	"review_radar/internal/domain"
)

type Options struct {
	Color      bool
	TopWords   int // 15 when zero
	TopSalient int // 10 when zero
	BarWidth   int // 20 when zero
	// Examples caps the literal reviews printed per scope; 0 prints none.
	Examples    int
	ExampleRune int // 100 when zero
}

func (o Options) withDefaults() Options {
	if o.TopWords <= 0 {
		o.TopWords = 15
	}
	if o.TopSalient <= 0 {
		o.TopSalient = 10
	}
	if o.BarWidth <= 0 {
		o.BarWidth = 20
	}
	if o.ExampleRune <= 0 {
		o.ExampleRune = 100
	}
	return o
}

type palette struct {
	head, good, warn, bad func(...any) string
}

func newPalette(on bool) palette {
	if !on {
		return palette{fmt.Sprint, fmt.Sprint, fmt.Sprint, fmt.Sprint}
	}
	return palette{
		head: color.New(color.FgCyan, color.Bold).SprintFunc(),
		good: color.New(color.FgGreen).SprintFunc(),
		warn: color.New(color.FgYellow).SprintFunc(),
		bad:  color.New(color.FgRed).SprintFunc(),
	}
}

const rule = "======================================================================"

// Bar renders count/total as a fixed-width bar followed by the count and percentage.
func Bar(count, total, width int) string {
	filled := 0
	pct := 0.0
	if total > 0 {
		pct = float64(count) / float64(total)
		filled = int(float64(width) * pct)
	}
	return fmt.Sprintf("%s%s %3d (%5.1f%%)", strings.Repeat("█", filled), strings.Repeat("░", width-filled), count, pct*100)
}

// WriteText writes the report of one scope. examples are printed literally
// after the statistics when opts.Examples is positive.
func WriteText(w io.Writer, title string, res domain.ClassificationResult, examples []domain.Review, opts Options) error {
	opts = opts.withDefaults()
	p := newPalette(opts.Color)
	tiers := map[string]func(...any) string{
		"好评": p.good, "中评": p.warn, "差评": p.bad,
		string(domain.SentimentPositive): p.good, string(domain.SentimentNeutral): p.warn, string(domain.SentimentNegative): p.bad,
	}

	s := res.Summary
	if _, err := fmt.Fprintf(w, "%s\n%s\n%s\n", rule, p.head(title+" 分析报告"), rule); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s\n", p.head(fmt.Sprintf("评分分布 (共 %d 条评论，平均 %.2f 星)", s.TotalReviews, s.AverageRating)))
	for star := 5; star >= 1; star-- {
		fmt.Fprintf(w, "  %d 星: %s\n", star, Bar(s.RatingDistribution[star], s.TotalReviews, opts.BarWidth))
	}

	sections := []struct {
		name string
		b    domain.Breakdown
	}{
		{"评分分类统计", res.ByRating},
		{"问题类型分类", res.ByKeywordCategory},
		{"情感分析", res.BySentiment},
	}
	for _, sec := range sections {
		fmt.Fprintf(w, "\n%s\n", p.head(sec.name))
		if err := breakdownTable(w, sec.b, tiers); err != nil {
			return err
		}
	}

	if res.Popularity != nil && res.Popularity.MaxVotes > 0 {
		pop := res.Popularity
		fmt.Fprintf(w, "\n%s\n", p.head("热度"))
		fmt.Fprintf(w, "  最高有用数: %d  平均有用数: %.2f  >100: %d  >1000: %d  热门: %d  普通: %d\n",
			pop.MaxVotes, pop.AvgVotes, pop.Over100, pop.Over1000, pop.Hot, pop.Regular)
	}

	fmt.Fprintf(w, "\n%s\n", p.head(fmt.Sprintf("高频词 Top %d", opts.TopWords)))
	for i, tc := range res.WordFrequency {
		if i >= opts.TopWords {
			break
		}
		fmt.Fprintf(w, "  %2d. %-8s %s (%d)\n", i+1, tc.Term, strings.Repeat("▓", min(tc.Count/2, 20)), tc.Count)
	}

	fmt.Fprintf(w, "\n%s\n", p.head(fmt.Sprintf("TF-IDF 关键词 Top %d", opts.TopSalient)))
	for i, kw := range res.SalientTerms {
		if i >= opts.TopSalient {
			break
		}
		fmt.Fprintf(w, "  %2d. %-8s %s (%.3f)\n", i+1, kw.Term, strings.Repeat("▓", max(0, int(kw.Weight*30))), kw.Weight)
	}

	if opts.Examples > 0 && len(examples) > 0 {
		fmt.Fprintf(w, "\n%s\n", p.head("评论示例"))
		for i, r := range examples {
			if i >= opts.Examples {
				break
			}
			fmt.Fprintf(w, "\n  [%d] %s\n", i+1, strings.Repeat("⭐", r.Rating))
			if r.Title != "" {
				fmt.Fprintf(w, "      标题: %s\n", r.Title)
			}
			fmt.Fprintf(w, "      内容: %s\n", analysis.Truncate(r.Content, opts.ExampleRune))
			if r.Version != "" {
				fmt.Fprintf(w, "      版本: %s\n", r.Version)
			}
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func breakdownTable(w io.Writer, b domain.Breakdown, tiers map[string]func(...any) string) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"类别", "数量", "占比"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.PerColumn = []tw.Align{tw.AlignLeft, tw.AlignRight, tw.AlignRight}
	})
	data := make([][]string, 0, len(b))
	for _, c := range b {
		label := c.Label
		if paint, ok := tiers[label]; ok {
			label = paint(label)
		}
		data = append(data, []string{label, strconv.Itoa(c.Count), fmt.Sprintf("%.1f%%", c.Percentage)})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// ScopeTitle is the heading used for a snapshot scope.
func ScopeTitle(scope string) string {
	if scope == "overall" {
		return "全平台汇总"
	}
	return scope
}

// WriteSnapshot writes every scope of snap in report order.
func WriteSnapshot(w io.Writer, snap domain.Snapshot, examples map[string][]domain.Review, opts Options) error {
	fmt.Fprintf(w, "运行 %s  生成于 %s\n\n", snap.RunID, snap.GeneratedAt.Local().Format("2006-01-02 15:04:05"))
	for _, scope := range snap.Scopes {
		res, ok := snap.Analyses[scope]
		if !ok {
			continue
		}
		if err := WriteText(w, ScopeTitle(scope), res, examples[scope], opts); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes v as indented JSON without HTML escaping.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ExamplesByPlatform groups the first n reviews of each platform, in stored order.
func ExamplesByPlatform(rs []domain.Review, n int) map[string][]domain.Review {
	out := map[string][]domain.Review{}
	for _, r := range rs {
		if len(out[r.Platform]) < n && r.HasText() {
			out[r.Platform] = append(out[r.Platform], r)
		}
	}
	return out
}
