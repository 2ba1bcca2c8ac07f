package relmodel

import (
	"fmt"
	"strings"
)

const InferencePrompt = `
# Task Context
You are an analyst that extracts business relationships between companies and organizations from securities-filing excerpts.

# Background Data
Subject entity: %s (%s)
Subject context:
%s

Co-mentioned entities:
%s

# Detailed Task Description & Rules
- Identify relationships the subject entity holds with the co-mentioned entities, based only on the provided context.
- relationship_type must be one of: LICENSING, PARTNERSHIP, OWNERSHIP, EMPLOYMENT, REGULATORY, SUPPLY, FINANCING, LITIGATION, OTHER.
- Use OTHER when no listed type fits; never invent a new type.
- "source" is the entity the relationship is stated from; when the filing states it from the subject's side, use the subject's name.
- List every counterparty of the same relationship in "targets" instead of repeating the relationship.
- Report monetary values, royalty rates, and durations exactly as the filing states them, prose included ("up to $1.2 billion", "mid-single-digit royalties", "ten-year term").
- Report dates as stated, even when partial ("Q3 2024", "fiscal 2023", "March 2021").
- Do not report a relationship the context does not support.

# Output Formatting
Return a JSON object with this structure:
{
  "relationships": [
    {
      "source": string,
      "targets": [string],
      "relationship_type": string,
      "summary": string,
      "monetary_value": string,
      "royalty_rate": string,
      "duration": string,
      "technologies": [string],
      "products": [string],
      "therapeutic_areas": [string],
      "event_date": string,
      "agreement_date": string,
      "effective_date": string,
      "expiration_date": string,
      "confidence": number
    }
  ]
}
Output must be valid JSON only (no commentary, no extra text).
`

// BuildPrompt renders the inference prompt for one subject entity and its
// co-mentioned neighbors.
func BuildPrompt(subject EntityContext, comentioned []EntityContext) string {
	var neighbors strings.Builder
	for _, e := range comentioned {
		if e.Name == subject.Name {
			continue
		}
		fmt.Fprintf(&neighbors, "- %s (%s)", e.Name, e.Category)
		if e.Context != "" {
			fmt.Fprintf(&neighbors, ": %s", e.Context)
		}
		neighbors.WriteString("\n")
	}
	if neighbors.Len() == 0 {
		neighbors.WriteString("(none)\n")
	}

	return fmt.Sprintf(InferencePrompt,
		subject.Name, subject.Category, subject.Context, neighbors.String())
}
