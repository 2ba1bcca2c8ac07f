// Package relmodel defines the interface to the relationship-inference
// model and the payload shape it is asked to produce. The model's output
// is handed downstream as raw text: the parser owns the tolerance for
// malformed payloads, not the transport.
package relmodel

import (
	"context"
	"reflect"

	"github.com/invopop/jsonschema"
)

// EntityContext describes one entity as observed in a document: its
// canonical-ish surface name, category, and the text surrounding its
// mentions.
type EntityContext struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Context  string `json:"context"`
}

// Client is the relationship-inference boundary. InferRelationships asks
// the model which relationships the subject entity holds with the
// co-mentioned entities and returns the raw response payload untouched.
type Client interface {
	InferRelationships(
		ctx context.Context,
		subject EntityContext,
		comentioned []EntityContext,
	) (string, error)
}

// RelationshipItem is the structured-output shape requested from the
// model. Numeric and temporal fields are strings on purpose: models answer
// with prose ("mid-eight figures", "Q3 2024") often enough that parsing is
// the consumer's job.
type RelationshipItem struct {
	Source           string   `json:"source"`
	Targets          []string `json:"targets"`
	RelationshipType string   `json:"relationship_type"`
	Label            string   `json:"label,omitempty"`
	Summary          string   `json:"summary"`
	MonetaryValue    string   `json:"monetary_value,omitempty"`
	RoyaltyRate      string   `json:"royalty_rate,omitempty"`
	Duration         string   `json:"duration,omitempty"`
	Technologies     []string `json:"technologies,omitempty"`
	Products         []string `json:"products,omitempty"`
	TherapeuticAreas []string `json:"therapeutic_areas,omitempty"`
	EventDate        string   `json:"event_date,omitempty"`
	AgreementDate    string   `json:"agreement_date,omitempty"`
	EffectiveDate    string   `json:"effective_date,omitempty"`
	ExpirationDate   string   `json:"expiration_date,omitempty"`
	Confidence       float64  `json:"confidence,omitempty"`
}

// RelationshipEnvelope wraps the item list the model is asked to return.
type RelationshipEnvelope struct {
	Relationships []RelationshipItem `json:"relationships"`
}

// GenerateSchema creates a JSON Schema from the given Go type, suitable
// for structured-output requests.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}
