package resolve

import "strings"

// Matcher scores how alike two normalized surface forms are, in [0, 1].
// Implementations must be deterministic: resolution happens inside storage
// transactions and may be retried after a conflict.
type Matcher interface {
	Similarity(a, b string) float64
}

// TrigramMatcher scores names by Jaccard similarity over character
// trigrams. Robust to suffix noise like "Holdings, Inc." without needing
// token alignment.
type TrigramMatcher struct{}

func (TrigramMatcher) Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) < 3 || len(b) < 3 {
		return 0.0
	}

	trigramsA := make(map[string]bool)
	for i := 0; i <= len(a)-3; i++ {
		trigramsA[a[i:i+3]] = true
	}

	trigramsB := make(map[string]bool)
	for i := 0; i <= len(b)-3; i++ {
		trigramsB[b[i:i+3]] = true
	}

	intersection := 0
	for t := range trigramsA {
		if trigramsB[t] {
			intersection++
		}
	}

	union := len(trigramsA) + len(trigramsB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// TokenOverlapMatcher scores names by Jaccard similarity over whitespace
// tokens, with a containment bonus: when one name's tokens are a subset of
// the other's ("FREENOME" vs "FREENOME HOLDINGS INC"), the score is the
// containment ratio instead of plain Jaccard.
type TokenOverlapMatcher struct{}

func (TokenOverlapMatcher) Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range tokensA {
		if tokensB[t] {
			intersection++
		}
	}
	if intersection == 0 {
		return 0.0
	}

	smaller := len(tokensA)
	if len(tokensB) < smaller {
		smaller = len(tokensB)
	}
	if intersection == smaller {
		return float64(intersection) / float64(smaller+1)
	}

	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		t = strings.Trim(t, ".,")
		if t != "" {
			set[t] = true
		}
	}
	return set
}
