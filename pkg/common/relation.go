package common

import "strings"

var relationAliases = map[string]RelationType{
	"LICENSING":      RelationLicensing,
	"LICENSE":        RelationLicensing,
	"LICENSING_DEAL": RelationLicensing,
	"PARTNERSHIP":    RelationPartnership,
	"PARTNER":        RelationPartnership,
	"COLLABORATION":  RelationPartnership,
	"JOINT_VENTURE":  RelationPartnership,
	"OWNERSHIP":      RelationOwnership,
	"OWNS":           RelationOwnership,
	"ACQUISITION":    RelationOwnership,
	"SUBSIDIARY":     RelationOwnership,
	"EMPLOYMENT":     RelationEmployment,
	"EMPLOYEE":       RelationEmployment,
	"EXECUTIVE":      RelationEmployment,
	"REGULATORY":     RelationRegulatory,
	"REGULATION":     RelationRegulatory,
	"APPROVAL":       RelationRegulatory,
	"SUPPLY":         RelationSupply,
	"SUPPLIER":       RelationSupply,
	"DISTRIBUTION":   RelationSupply,
	"FINANCING":      RelationFinancing,
	"INVESTMENT":     RelationFinancing,
	"FUNDING":        RelationFinancing,
	"LITIGATION":     RelationLitigation,
	"LAWSUIT":        RelationLitigation,
	"DISPUTE":        RelationLitigation,
	"OTHER":          RelationOther,
}

// ParseRelationType coerces a model-supplied type string into the fixed
// taxonomy. Unknown values map to RelationOther so the observation is kept.
func ParseRelationType(s string) RelationType {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.Join(strings.Fields(key), "_")
	key = strings.ReplaceAll(key, "-", "_")
	if t, ok := relationAliases[key]; ok {
		return t
	}
	return RelationOther
}

var forwardLabels = map[RelationType]string{
	RelationLicensing:   "licenses to",
	RelationPartnership: "partners with",
	RelationOwnership:   "owns",
	RelationEmployment:  "employs",
	RelationRegulatory:  "regulates",
	RelationSupply:      "supplies",
	RelationFinancing:   "invests in",
	RelationLitigation:  "litigates against",
	RelationOther:       "related to",
}

var reverseLabels = map[RelationType]string{
	RelationLicensing:   "licenses from",
	RelationPartnership: "partners with",
	RelationOwnership:   "owned by",
	RelationEmployment:  "employed by",
	RelationRegulatory:  "regulated by",
	RelationSupply:      "supplied by",
	RelationFinancing:   "funded by",
	RelationLitigation:  "litigated against by",
	RelationOther:       "related to",
}

// DefaultLabel returns the directional label for a relationship type when
// the model did not supply one.
func DefaultLabel(t RelationType) string {
	if l, ok := forwardLabels[t]; ok {
		return l
	}
	return forwardLabels[RelationOther]
}

// ReverseLabel derives the label for the reverse edge of a pair.
func ReverseLabel(t RelationType) string {
	if l, ok := reverseLabels[t]; ok {
		return l
	}
	return reverseLabels[RelationOther]
}

// Excluded mention categories: date and monetary spans are edge attributes,
// never graph nodes.
var excludedCategories = map[string]bool{
	"DATE":            true,
	"MONEY":           true,
	"MONETARY_AMOUNT": true,
}

// IsNodeCategory reports whether mentions of the given entity category may
// become graph nodes.
func IsNodeCategory(category string) bool {
	return !excludedCategories[strings.ToUpper(strings.TrimSpace(category))]
}
