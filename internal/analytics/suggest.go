package analytics

import (
	"sort"
	"strings"

	"shadeqc/internal"
	"shadeqc/internal/util"
)

const (
	DefaultSuggestLimit = 5
	minSuggestScore     = 0.3
)

type SupplierSuggestion struct {
	Name  string  `json:"name" yaml:"name"`
	Score float64 `json:"score" yaml:"score"`
	Count int     `json:"count" yaml:"count"`
}

type supplierIndex struct {
	names      []string
	counts     map[string]int
	normalized map[string]string
	tokens     map[string][]string
}

func buildSupplierIndex(records []internal.InspectionRecord) supplierIndex {
	idx := supplierIndex{
		counts:     map[string]int{},
		normalized: map[string]string{},
		tokens:     map[string][]string{},
	}
	for _, r := range records {
		name := strings.TrimSpace(r.Supplier)
		if name == "" || name == internal.NotEntered {
			continue
		}
		if _, ok := idx.counts[name]; !ok {
			idx.names = append(idx.names, name)
			norm := util.NormalizeLabel(name)
			idx.normalized[name] = norm
			idx.tokens[name] = util.Tokenize(norm)
		}
		idx.counts[name]++
	}
	return idx
}

// SuggestSuppliers ranks known suppliers against a partial name. A blank
// query returns the most frequent suppliers.
func SuggestSuppliers(records []internal.InspectionRecord, query string, n int) []SupplierSuggestion {
	if n <= 0 {
		n = DefaultSuggestLimit
	}
	idx := buildSupplierIndex(records)
	q := util.NormalizeLabel(query)
	qTokens := util.Tokenize(q)

	out := make([]SupplierSuggestion, 0, len(idx.names))
	for _, name := range idx.names {
		score := 1.0
		if q != "" {
			score = scoreName(q, idx.normalized[name], qTokens, idx.tokens[name])
			if score < minSuggestScore {
				continue
			}
		}
		out = append(out, SupplierSuggestion{Name: name, Score: score, Count: idx.counts[name]})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// scoreName blends bigram similarity with token prefix overlap. A name that
// starts with the query is a full match.
func scoreName(query, candidate string, queryTokens, candidateTokens []string) float64 {
	if strings.HasPrefix(candidate, query) {
		return 1
	}
	dice := util.DiceCoefficient(query, candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	overlap := 0
	for _, qt := range queryTokens {
		for _, ct := range candidateTokens {
			if strings.HasPrefix(ct, qt) {
				overlap++
				break
			}
		}
	}
	tokenScore := float64(overlap) / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}
