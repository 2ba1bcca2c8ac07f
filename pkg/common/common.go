package common

import "time"

// Node represents one canonical, deduplicated real-world entity. Every
// surface-form variant seen in any filing resolves to exactly one node.
//
// A node is created either when the resolver first observes a mention of the
// entity, or when the relationship model names an entity that extraction
// never saw directly (an inferred stub, tagged by Provenance).
type Node struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Provenance   string    `json:"provenance"`
	NeedsRecalc  bool      `json:"needs_recalc"`
	Degree       int       `json:"degree"`
	MentionTotal int       `json:"mention_total"`
	CreatedAt    time.Time `json:"created_at"`
}

// Node provenance values.
const (
	ProvenanceObserved = "observed"
	ProvenanceInferred = "inferred"
)

// Mention is one observed occurrence of an entity in one source document.
// Mentions are immutable provenance: they are written once, with their
// canonical node already assigned, and never updated or deleted.
type Mention struct {
	ID          string    `json:"id"`
	NodeID      string    `json:"node_id"`
	Surface     string    `json:"surface"`
	Normalized  string    `json:"normalized"`
	Category    string    `json:"category"`
	DocumentRef string    `json:"document_ref"`
	SpanStart   int       `json:"span_start"`
	SpanEnd     int       `json:"span_end"`
	Context     string    `json:"context"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// MentionInput is the payload handed over by the upstream extraction
// collaborator, before resolution has assigned a canonical node.
type MentionInput struct {
	Surface     string  `json:"surface"`
	Category    string  `json:"category"`
	DocumentRef string  `json:"document_ref"`
	SpanStart   int     `json:"span_start"`
	SpanEnd     int     `json:"span_end"`
	Context     string  `json:"context"`
	Confidence  float64 `json:"confidence"`
}

// NameRecord maps one surface-form variant to a canonical node.
// (Variant, NodeID) pairs are unique; a normalized variant maps to at most
// one node within a category.
type NameRecord struct {
	Variant     string    `json:"variant"`
	Normalized  string    `json:"normalized"`
	Category    string    `json:"category"`
	NodeID      string    `json:"node_id"`
	Method      string    `json:"method"`
	Confidence  float64   `json:"confidence"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Name resolution methods.
const (
	ResolveExact = "exact"
	ResolveFuzzy = "fuzzy"
	ResolveNew   = "new"
)

// RelationType is the fixed relationship taxonomy. Unrecognized types are
// coerced to RelationOther rather than rejected.
type RelationType string

const (
	RelationLicensing   RelationType = "LICENSING"
	RelationPartnership RelationType = "PARTNERSHIP"
	RelationOwnership   RelationType = "OWNERSHIP"
	RelationEmployment  RelationType = "EMPLOYMENT"
	RelationRegulatory  RelationType = "REGULATORY"
	RelationSupply      RelationType = "SUPPLY"
	RelationFinancing   RelationType = "FINANCING"
	RelationLitigation  RelationType = "LITIGATION"
	RelationOther       RelationType = "OTHER"
)

// DatePrecision tags how much of a parsed date is trustworthy.
type DatePrecision string

const (
	PrecisionDay   DatePrecision = "day"
	PrecisionMonth DatePrecision = "month"
	PrecisionYear  DatePrecision = "year"
	PrecisionNone  DatePrecision = "none"
)

// DateField is a temporal attribute of a relationship: the parsed value,
// its precision, and the original text the model produced. Value is nil
// when the source text could not be parsed; the original text is kept
// either way.
type DateField struct {
	Value      *time.Time    `json:"value,omitempty"`
	Precision  DatePrecision `json:"precision"`
	SourceText string        `json:"source_text,omitempty"`
}

// DealTerms holds the structured deal detail of a relationship. Numeric
// fields are nil when the model returned prose instead of a number; the
// original text is retained alongside.
type DealTerms struct {
	MonetaryValue  *float64 `json:"monetary_value,omitempty"`
	MonetaryText   string   `json:"monetary_text,omitempty"`
	Percentage     *float64 `json:"percentage,omitempty"`
	PercentageText string   `json:"percentage_text,omitempty"`
	DurationMonths *int     `json:"duration_months,omitempty"`
	DurationText   string   `json:"duration_text,omitempty"`
}

// Relationship is one normalized, validated relationship observation
// between two entities, as produced by the relationship parser. Endpoint
// names are still surface forms; the edge upsert resolves them to nodes.
type Relationship struct {
	SourceName string       `json:"source_name"`
	TargetName string       `json:"target_name"`
	Type       RelationType `json:"type"`
	Label      string       `json:"label"`
	Summary    string       `json:"summary"`

	Deal             DealTerms `json:"deal"`
	Technologies     []string  `json:"technologies,omitempty"`
	Products         []string  `json:"products,omitempty"`
	TherapeuticAreas []string  `json:"therapeutic_areas,omitempty"`

	EventDate      DateField `json:"event_date"`
	AgreementDate  DateField `json:"agreement_date"`
	EffectiveDate  DateField `json:"effective_date"`
	ExpirationDate DateField `json:"expiration_date"`

	Confidence  float64 `json:"confidence"`
	ParseTier   int     `json:"parse_tier"`
	DocumentRef string  `json:"document_ref,omitempty"`
}

// Edge is one directed, typed connection between two canonical nodes.
// (SourceID, TargetID, Type) is the natural key; repeated observations of
// the same key enrich the edge in place instead of duplicating it.
type Edge struct {
	ID       string       `json:"id"`
	SourceID string       `json:"source_id"`
	TargetID string       `json:"target_id"`
	Type     RelationType `json:"type"`
	Label    string       `json:"label"`
	Summary  string       `json:"summary"`

	Deal             DealTerms `json:"deal"`
	Technologies     []string  `json:"technologies,omitempty"`
	Products         []string  `json:"products,omitempty"`
	TherapeuticAreas []string  `json:"therapeutic_areas,omitempty"`

	EventDate      DateField `json:"event_date"`
	AgreementDate  DateField `json:"agreement_date"`
	EffectiveDate  DateField `json:"effective_date"`
	ExpirationDate DateField `json:"expiration_date"`

	MentionCount int       `json:"mention_count"`
	DocumentRefs []string  `json:"document_refs,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastUpdated  time.Time `json:"last_updated"`
}

// EdgePair is the two directional edges that together represent one
// observed relationship. The pair is created and updated as a unit; the
// graph must never hold only one direction.
type EdgePair struct {
	Forward Edge `json:"forward"`
	Reverse Edge `json:"reverse"`
}
