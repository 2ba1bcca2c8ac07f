// Package resolve holds the pure logic of canonical name resolution:
// surface-form normalization plus candidate selection under a pluggable
// similarity policy. It owns no storage; the store layer gathers the
// candidate set inside its transaction and asks this package to pick.
package resolve

import (
	"strings"

	"github.com/openfilings/relgraph/backend/pkg/common"
)

// NormalizeName folds a surface form for matching: trim, collapse internal
// whitespace, uppercase. Two surface forms that normalize equal are the
// same variant by definition.
func NormalizeName(surface string) string {
	value := strings.TrimSpace(surface)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.Join(strings.Fields(value), " ")
	return strings.ToUpper(value)
}

// Candidate is one existing name-resolution record considered during fuzzy
// matching. Candidates must share the entity category of the name being
// resolved; the store enforces that when listing them.
type Candidate struct {
	NodeID      string
	Normalized  string
	Occurrences int
}

// Policy bundles the similarity strategy with its acceptance threshold.
// Both are configuration, not algorithm: swapping the Matcher must not
// touch resolver logic.
type Policy struct {
	Matcher   Matcher
	Threshold float64
}

// DefaultThreshold is the fuzzy-match acceptance bar for the default
// trigram matcher.
const DefaultThreshold = 0.82

// DefaultPolicy returns the trigram policy used when no override is
// configured.
func DefaultPolicy() Policy {
	return Policy{Matcher: TrigramMatcher{}, Threshold: DefaultThreshold}
}

// Selection is the outcome of matching a normalized name against the
// candidate set.
type Selection struct {
	NodeID string
	Method string
	Score  float64
}

// Select picks the canonical node for a normalized name. Exact matches win
// outright. Otherwise the best-scoring candidate at or above the threshold
// is chosen; ties break by higher occurrence count (most-established
// identity wins), then by lexically smaller node id so repeated runs pick
// the same winner. Returns false when no candidate clears the threshold
// and the caller should mint a new identity.
func (p Policy) Select(normalized string, candidates []Candidate) (Selection, bool) {
	if normalized == "" {
		return Selection{}, false
	}

	var best *Candidate
	bestScore := 0.0

	for i := range candidates {
		c := &candidates[i]
		if c.Normalized == normalized {
			return Selection{NodeID: c.NodeID, Method: common.ResolveExact, Score: 1.0}, true
		}

		score := p.Matcher.Similarity(normalized, c.Normalized)
		if score < p.Threshold {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && c.Occurrences > best.Occurrences) ||
			(score == bestScore && c.Occurrences == best.Occurrences && c.NodeID < best.NodeID) {
			best = c
			bestScore = score
		}
	}

	if best == nil {
		return Selection{}, false
	}
	return Selection{NodeID: best.NodeID, Method: common.ResolveFuzzy, Score: bestScore}, true
}
