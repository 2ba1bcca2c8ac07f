package store

import (
	"strings"
	"time"

	"github.com/openfilings/relgraph/backend/pkg/common"
)

// MergePolicy decides what happens when a repeated observation carries a
// non-null value for a field the edge already holds. The default keeps the
// existing value: the first successful extraction wins, so a later, weaker
// extraction never overwrites established detail.
type MergePolicy struct {
	// PreferIncoming inverts the scalar policy: a fresh non-null value
	// replaces the stored one.
	PreferIncoming bool
}

// NewEdgePair builds both directional edges for a first-time relationship
// observation. The forward edge carries the model's literal label; the
// reverse edge carries the derived reverse label. Deal and temporal facts
// are shared by both directions.
func NewEdgePair(forwardID, reverseID, sourceID, targetID string, rel common.Relationship, now time.Time) common.EdgePair {
	forward := common.Edge{
		ID:       forwardID,
		SourceID: sourceID,
		TargetID: targetID,
		Type:     rel.Type,
		Label:    rel.Label,
		Summary:  rel.Summary,

		Deal:             rel.Deal,
		Technologies:     rel.Technologies,
		Products:         rel.Products,
		TherapeuticAreas: rel.TherapeuticAreas,

		EventDate:      rel.EventDate,
		AgreementDate:  rel.AgreementDate,
		EffectiveDate:  rel.EffectiveDate,
		ExpirationDate: rel.ExpirationDate,

		MentionCount: 1,
		FirstSeen:    now,
		LastUpdated:  now,
	}
	if rel.DocumentRef != "" {
		forward.DocumentRefs = []string{rel.DocumentRef}
	}

	reverse := forward
	reverse.ID = reverseID
	reverse.SourceID = targetID
	reverse.TargetID = sourceID
	reverse.Label = common.ReverseLabel(rel.Type)

	return common.EdgePair{Forward: forward, Reverse: reverse}
}

// MergeEdge enriches an existing edge with a repeated observation of the
// same natural key: null scalar fields are filled, the summary is appended
// rather than replaced, list fields are unioned, the mention count
// increments, and the last-updated timestamp refreshes.
func (p MergePolicy) MergeEdge(existing common.Edge, rel common.Relationship, now time.Time) common.Edge {
	merged := existing

	merged.Summary = mergeSummary(existing.Summary, rel.Summary)
	if merged.Label == "" {
		merged.Label = rel.Label
	}

	merged.Deal.MonetaryValue, merged.Deal.MonetaryText = p.mergeFloat(
		existing.Deal.MonetaryValue, existing.Deal.MonetaryText,
		rel.Deal.MonetaryValue, rel.Deal.MonetaryText,
	)
	merged.Deal.Percentage, merged.Deal.PercentageText = p.mergeFloat(
		existing.Deal.Percentage, existing.Deal.PercentageText,
		rel.Deal.Percentage, rel.Deal.PercentageText,
	)
	merged.Deal.DurationMonths, merged.Deal.DurationText = p.mergeInt(
		existing.Deal.DurationMonths, existing.Deal.DurationText,
		rel.Deal.DurationMonths, rel.Deal.DurationText,
	)

	merged.Technologies = unionStrings(existing.Technologies, rel.Technologies)
	merged.Products = unionStrings(existing.Products, rel.Products)
	merged.TherapeuticAreas = unionStrings(existing.TherapeuticAreas, rel.TherapeuticAreas)

	merged.EventDate = p.mergeDate(existing.EventDate, rel.EventDate)
	merged.AgreementDate = p.mergeDate(existing.AgreementDate, rel.AgreementDate)
	merged.EffectiveDate = p.mergeDate(existing.EffectiveDate, rel.EffectiveDate)
	merged.ExpirationDate = p.mergeDate(existing.ExpirationDate, rel.ExpirationDate)

	if rel.DocumentRef != "" {
		merged.DocumentRefs = unionStrings(existing.DocumentRefs, []string{rel.DocumentRef})
	}

	merged.MentionCount = existing.MentionCount + 1
	merged.LastUpdated = now

	return merged
}

func (p MergePolicy) mergeFloat(oldV *float64, oldText string, newV *float64, newText string) (*float64, string) {
	if oldV == nil || (p.PreferIncoming && newV != nil) {
		if newV != nil {
			return newV, newText
		}
	}
	if oldV == nil && oldText == "" {
		return nil, newText
	}
	return oldV, oldText
}

func (p MergePolicy) mergeInt(oldV *int, oldText string, newV *int, newText string) (*int, string) {
	if oldV == nil || (p.PreferIncoming && newV != nil) {
		if newV != nil {
			return newV, newText
		}
	}
	if oldV == nil && oldText == "" {
		return nil, newText
	}
	return oldV, oldText
}

func (p MergePolicy) mergeDate(oldV, newV common.DateField) common.DateField {
	if oldV.Value == nil || (p.PreferIncoming && newV.Value != nil) {
		if newV.Value != nil {
			return newV
		}
	}
	if oldV.Value == nil && oldV.SourceText == "" {
		return newV
	}
	return oldV
}

// mergeSummary appends new detail instead of replacing, skipping exact
// repeats of text already present.
func mergeSummary(existing, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	if strings.Contains(existing, incoming) {
		return existing
	}
	return existing + "\n\n" + incoming
}

func unionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		key := strings.ToUpper(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	for _, v := range incoming {
		key := strings.ToUpper(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
