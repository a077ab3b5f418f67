package filestore

import (
	"slices"

	"review_radar/internal/domain"
)

// reviewRow is the columnar layout of reviews.parquet.
type reviewRow struct {
	ID       string `parquet:"id,snappy"`
	Platform string `parquet:"platform,snappy,dict"`
	Title    string `parquet:"title,snappy"`
	Content  string `parquet:"content,snappy"`
	Rating   int32  `parquet:"rating,snappy"`
	Version  string `parquet:"version,snappy,dict"`
	Author   string `parquet:"author,snappy"`
	Updated  string `parquet:"updated,snappy"`
	Votes    int32  `parquet:"votes,snappy"`
}

func toReviewRow(r domain.Review) reviewRow {
	return reviewRow{
		ID:       r.ID,
		Platform: r.Platform,
		Title:    r.Title,
		Content:  r.Content,
		Rating:   int32(r.Rating),
		Version:  r.Version,
		Author:   r.Author,
		Updated:  r.Timestamp,
		Votes:    int32(r.Votes),
	}
}

// termRow holds one ranked term of one analysis scope. Kind is "frequency"
// (Value is the count) or "salient" (Value is the weight).
type termRow struct {
	RunID string  `parquet:"run_id,snappy,dict"`
	Scope string  `parquet:"scope,snappy,dict"`
	Kind  string  `parquet:"kind,snappy,dict"`
	Rank  int32   `parquet:"rank,snappy"`
	Term  string  `parquet:"term,snappy"`
	Value float64 `parquet:"value,snappy"`
}

func termRows(snap domain.Snapshot) []termRow {
	var out []termRow
	for _, scope := range scopeOrder(snap) {
		res := snap.Analyses[scope]
		for i, tc := range res.WordFrequency {
			out = append(out, termRow{RunID: snap.RunID, Scope: scope, Kind: "frequency", Rank: int32(i + 1), Term: tc.Term, Value: float64(tc.Count)})
		}
		for i, tw := range res.SalientTerms {
			out = append(out, termRow{RunID: snap.RunID, Scope: scope, Kind: "salient", Rank: int32(i + 1), Term: tw.Term, Value: tw.Weight})
		}
	}
	return out
}

// scopeOrder follows snap.Scopes and appends any analysis it does not list.
func scopeOrder(snap domain.Snapshot) []string {
	seen := make(map[string]bool, len(snap.Analyses))
	var out []string
	for _, s := range snap.Scopes {
		if _, ok := snap.Analyses[s]; ok && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	var rest []string
	for s := range snap.Analyses {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
