package board

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultSymbolLimit       = 8
)

// SymbolIndex finds tiles by how a word sounds, so "sup" finds "soup" and
// "koffy" finds "coffee". Labels are matched with Double Metaphone codes and
// ranked by Jaro-Winkler similarity; labels that share no phonetic code must
// clear a higher, purely textual threshold.
//
// A SymbolIndex is read-only after construction and safe for concurrent use.
type SymbolIndex struct {
	entries           []symbolEntry
	phoneticThreshold float64
	fuzzyThreshold    float64
}

type symbolEntry struct {
	item   Item
	label  string
	tokens []string
	codes  map[string]struct{}
}

// Match is a search hit.
type Match struct {
	Item     Item    `json:"item"`
	Score    float64 `json:"score"`
	Phonetic bool    `json:"phonetic"`
}

// NewSymbolIndex indexes every non-folder tile of v.
func NewSymbolIndex(v Vocabulary) *SymbolIndex {
	idx := &SymbolIndex{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, it := range v.All() {
		label := strings.ToLower(strings.TrimSpace(it.Label))
		if label == "" {
			continue
		}
		tokens := strings.Fields(label)
		idx.entries = append(idx.entries, symbolEntry{
			item:   it,
			label:  label,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
	}
	// Map iteration order is random; keep results stable.
	slices.SortFunc(idx.entries, func(a, b symbolEntry) int { return cmp.Compare(a.item.ID, b.item.ID) })
	return idx
}

// Search returns up to limit tiles matching query, best first. Exact label
// matches score 1. A non-positive limit uses a default of 8.
func (idx *SymbolIndex) Search(query string, limit int) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = defaultSymbolLimit
	}
	qTokens := strings.Fields(q)
	qCodes := codesForTokens(qTokens)

	var out []Match
	for _, e := range idx.entries {
		if e.label == q {
			out = append(out, Match{Item: e.item, Score: 1, Phonetic: true})
			continue
		}
		score := bestJWScore(qTokens, e.tokens, q, e.label)
		switch {
		case codesOverlap(qCodes, e.codes) && score >= idx.phoneticThreshold:
			out = append(out, Match{Item: e.item, Score: score, Phonetic: true})
		case score >= idx.fuzzyThreshold:
			out = append(out, Match{Item: e.item, Score: score})
		}
	}

	slices.SortStableFunc(out, func(a, b Match) int {
		if a.Phonetic != b.Phonetic {
			if a.Phonetic {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
// Empty codes are skipped.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the space-stripped strings and every token pair.
func bestJWScore(qTokens, lTokens []string, qFull, lFull string) float64 {
	score := matchr.JaroWinkler(qFull, lFull, false)

	if len(qTokens) > 1 || len(lTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(lTokens, ""), false); s > score {
			score = s
		}
	}

	for _, qt := range qTokens {
		for _, lt := range lTokens {
			if s := matchr.JaroWinkler(qt, lt, false); s > score {
				score = s
			}
		}
	}
	return score
}
