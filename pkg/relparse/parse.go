package relparse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openfilings/relgraph/backend/pkg/common"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// ParseError describes a payload that could not be turned into any
// relationship record. It carries the tier at which parsing gave up.
type ParseError struct {
	Tier   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("relationship parse failed at tier %d: %s", e.Tier, e.Reason)
}

// Result is the output of parsing one model payload. Tier records which
// parse tier produced the records; Dropped counts items rejected by
// validation (empty endpoint names).
type Result struct {
	Relationships []common.Relationship
	Tier          int
	Dropped       int
}

// Per-tier default confidence, used when the model supplies none. Tier 3
// scrapes fields out of broken text and is trusted least.
var tierConfidence = map[int]float64{
	1: 0.9,
	2: 0.75,
	3: 0.5,
}

// Parse turns a raw relationship-model payload into normalized records.
// The payload is nominally JSON but treated as malformed-by-default; three
// tiers are attempted in order and the chain stops at the first success:
//
//  1. strict JSON decode (including double-encoded strings),
//  2. repair via jsonrepair, then decode,
//  3. field scraping from the raw text (gjson, then regex).
//
// defaultSource fills the source entity name when the payload omits it
// (the model was asked about that entity). A well-formed payload declaring
// zero relationships parses to an empty Result; an error is returned only
// when no tier recognizes the payload at all.
func Parse(payload string, defaultSource string) (*Result, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, &ParseError{Tier: 1, Reason: "empty payload"}
	}

	if items, ok := decodeStrict(trimmed); ok {
		if res := buildResult(items, 1, defaultSource); len(items) == 0 || len(res.Relationships) > 0 || res.Dropped > 0 {
			return res, nil
		}
	}

	if items, ok := decodeRepaired(trimmed); ok {
		if res := buildResult(items, 2, defaultSource); len(items) == 0 || len(res.Relationships) > 0 || res.Dropped > 0 {
			return res, nil
		}
	}

	if items, ok := scrapeFields(trimmed); ok {
		if res := buildResult(items, 3, defaultSource); len(items) == 0 || len(res.Relationships) > 0 || res.Dropped > 0 {
			return res, nil
		}
	}

	return nil, &ParseError{Tier: 3, Reason: "no relationship fields recognized"}
}

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

func decodeStrict(input string) ([]map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(input), &v); err == nil {
		if items, ok := collectItems(v); ok {
			return items, true
		}
	}

	// Double-encoded JSON: the payload is a JSON string containing JSON.
	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(asString)), &v); err == nil {
			if items, ok := collectItems(v); ok {
				return items, true
			}
		}
	}

	return nil, false
}

func decodeRepaired(input string) ([]map[string]any, bool) {
	repaired, err := jsonrepair.JSONRepair(stripDuplicateLeadingBrace(input))
	if err != nil {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, false
	}
	return collectItems(v)
}

var relationshipListKeys = []string{"relationships", "relations", "results", "edges"}

// collectItems flattens the accepted payload shapes into a list of loose
// field maps: a wrapper object holding a list, a bare list, or one object.
// An explicitly empty list is a recognized shape with zero items — the
// model legitimately answers "no relationships" — not a parse failure.
func collectItems(v any) ([]map[string]any, bool) {
	switch value := v.(type) {
	case map[string]any:
		for _, key := range relationshipListKeys {
			if list, ok := value[key].([]any); ok {
				items := itemsFromList(list)
				if len(items) > 0 || len(list) == 0 {
					return items, true
				}
			}
		}
		if looksLikeRelationship(value) {
			return []map[string]any{value}, true
		}
		return nil, false
	case []any:
		items := itemsFromList(value)
		if len(items) > 0 || len(value) == 0 {
			return items, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func itemsFromList(list []any) []map[string]any {
	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok && looksLikeRelationship(m) {
			items = append(items, m)
		}
	}
	return items
}

var endpointKeys = []string{
	"target", "target_entity", "target_name", "to", "entity",
	"targets", "target_entities",
	"source", "source_entity", "source_name", "from",
}

func looksLikeRelationship(m map[string]any) bool {
	for _, key := range endpointKeys {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// Known scalar field keys pulled out of raw text at tier 3.
var scrapeKeys = []string{
	"source", "source_entity", "target", "target_entity", "entity",
	"relationship_type", "type", "label", "summary", "description",
	"monetary_value", "deal_value", "amount", "royalty_rate", "percentage",
	"duration", "term", "event_date", "agreement_date", "effective_date",
	"expiration_date", "confidence",
}

// scrapeFields is the last-resort tier: it pulls known field names out of
// the raw text, first through gjson (which tolerates trailing garbage and
// truncation), then through per-field regexes. The output is a single
// partially-populated record rather than nothing.
func scrapeFields(input string) ([]map[string]any, bool) {
	parsed := gjson.Parse(input)
	if parsed.IsObject() || parsed.IsArray() {
		if v, ok := parsed.Value().(map[string]any); ok {
			if items, ok := collectItems(v); ok {
				return items, true
			}
		}
		if v, ok := parsed.Value().([]any); ok {
			if items, ok := collectItems(v); ok {
				return items, true
			}
		}
	}

	item := make(map[string]any)
	for _, key := range scrapeKeys {
		if res := gjson.Get(input, key); res.Exists() && res.Type == gjson.String {
			item[key] = res.String()
			continue
		}
		re := regexp.MustCompile(`(?i)"?` + regexp.QuoteMeta(key) + `"?\s*[:=]\s*"([^"\n]*)"`)
		if m := re.FindStringSubmatch(input); m != nil {
			item[key] = m[1]
		}
	}

	if !looksLikeRelationship(item) {
		return nil, false
	}
	return []map[string]any{item}, true
}

func buildResult(items []map[string]any, tier int, defaultSource string) *Result {
	res := &Result{Tier: tier}
	for _, item := range items {
		rels, dropped := buildRelationships(item, tier, defaultSource)
		res.Relationships = append(res.Relationships, rels...)
		res.Dropped += dropped
	}
	return res
}

// buildRelationships converts one loose field map into normalized records.
// A payload item naming several targets yields one record per target.
func buildRelationships(item map[string]any, tier int, defaultSource string) ([]common.Relationship, int) {
	source := firstString(item, "source", "source_entity", "source_name", "from")
	if source == "" {
		source = strings.TrimSpace(defaultSource)
	}

	targets := stringList(item, "targets", "target_entities")
	if single := firstString(item, "target", "target_entity", "target_name", "to", "entity"); single != "" {
		targets = append(targets, single)
	}

	relType := common.ParseRelationType(firstString(item, "relationship_type", "type", "relation", "category"))
	label := firstString(item, "label", "relationship_label", "forward_label")
	if label == "" {
		label = common.DefaultLabel(relType)
	}

	base := common.Relationship{
		SourceName: source,
		Type:       relType,
		Label:      label,
		Summary:    firstString(item, "summary", "description", "details"),

		Technologies:     stringList(item, "technologies", "technology"),
		Products:         stringList(item, "products", "product"),
		TherapeuticAreas: stringList(item, "therapeutic_areas", "therapeutic_area", "indications"),

		EventDate:      parseDateValue(item, "event_date", "date"),
		AgreementDate:  parseDateValue(item, "agreement_date", "signed_date"),
		EffectiveDate:  parseDateValue(item, "effective_date", "start_date"),
		ExpirationDate: parseDateValue(item, "expiration_date", "end_date", "expiry_date"),

		ParseTier: tier,
	}

	base.Deal.MonetaryValue, base.Deal.MonetaryText = ParseMoney(firstString(item, "monetary_value", "deal_value", "value", "amount", "upfront_payment"))
	base.Deal.Percentage, base.Deal.PercentageText = ParsePercent(firstString(item, "royalty_rate", "percentage", "equity_stake", "percent", "stake"))
	base.Deal.DurationMonths, base.Deal.DurationText = ParseDurationMonths(firstString(item, "duration", "term", "duration_months"))

	base.Confidence = tierConfidence[tier]
	if c, ok := firstFloat(item, "confidence"); ok && c > 0 && c <= 1 {
		base.Confidence = c
	}

	out := make([]common.Relationship, 0, len(targets))
	dropped := 0
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" || base.SourceName == "" {
			dropped++
			continue
		}
		if seen[target] {
			continue
		}
		seen[target] = true

		rel := base
		rel.TargetName = target
		out = append(out, rel)
	}
	if len(targets) == 0 {
		dropped++
	}
	return out, dropped
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := item[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstFloat(item map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := item[key].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func stringList(item map[string]any, keys ...string) []string {
	var out []string
	for _, key := range keys {
		switch v := item[key].(type) {
		case []any:
			for _, entry := range v {
				if s, ok := entry.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						out = append(out, s)
					}
				}
			}
		case string:
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

// parseDateValue accepts either a plain string or a nested object of the
// form {"date": ..., "text": ...} for a date field.
func parseDateValue(item map[string]any, keys ...string) common.DateField {
	for _, key := range keys {
		switch v := item[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return ParseDate(v)
			}
		case map[string]any:
			text := firstString(v, "text", "original_text", "source_text")
			value := firstString(v, "date", "value")
			if value == "" {
				value = text
			}
			field := ParseDate(value)
			if text != "" {
				field.SourceText = text
			}
			return field
		}
	}
	return common.DateField{Precision: common.PrecisionNone}
}
