package mapping

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Similarity tiers
const (
	scoreExact    = 1.0
	scoreContains = 0.9
	scorePrefix   = 0.85
)

// NormalizeFieldName lowercases a field name and strips separators and dots
func NormalizeFieldName(name string) string {
	name = strings.ToLower(norm.NFKC.String(name))
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
}

// EditDistance is the Levenshtein distance between a and b, counted in runes
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			if ra[i-1] == rb[j-1] {
				curr[i] = prev[i-1]
				continue
			}
			curr[i] = 1 + min(prev[i-1], curr[i-1], prev[i])
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}

// Similarity scores how alike a canonical path and an observed key are, in [0, 1].
// Tiers: equal after normalization, containment, shared prefix, then edit distance.
func Similarity(canonical, candidate string) float64 {
	return similarity(NormalizeFieldName(canonical), NormalizeFieldName(candidate))
}

func similarity(a, b string) float64 {
	if a == b {
		return scoreExact
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return scoreContains
	}
	// shared prefix
	if strings.HasPrefix(b, a) || strings.HasPrefix(a, b) {
		return scorePrefix
	}

	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 0
	}
	s := 1 - float64(EditDistance(a, b))/float64(maxLen)
	if s < 0 {
		return 0
	}
	return s
}
