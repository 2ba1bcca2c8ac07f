package relparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// The relationship model frequently answers numeric questions with prose
// ("tiered based on sales milestones"). Every extractor here returns nil
// plus the original text in that case; a numeric field is never allowed to
// fail a relationship.

var moneyRe = regexp.MustCompile(`(?i)([$€£])?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(billion|million|thousand|bn|mm|m|b|k)?\b`)

var moneyScale = map[string]float64{
	"billion":  1e9,
	"bn":       1e9,
	"b":        1e9,
	"million":  1e6,
	"mm":       1e6,
	"m":        1e6,
	"thousand": 1e3,
	"k":        1e3,
}

// ParseMoney extracts a monetary amount in absolute units from model text.
// Accepts forms like "$75M", "75 million", "USD 1.2bn". The second return
// value is the original text, kept for provenance.
func ParseMoney(text string) (*float64, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ""
	}

	m := moneyRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, trimmed
	}

	raw := strings.ReplaceAll(m[2], ",", "")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, trimmed
	}

	if scale, ok := moneyScale[strings.ToLower(m[3])]; ok {
		value *= scale
	}
	return &value, trimmed
}

var percentRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*(?:%|percent|per cent)`)

// ParsePercent extracts a percentage from model text. A bare number in
// (0,100] is accepted too, since models often answer "12.5" for a rate.
func ParsePercent(text string) (*float64, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ""
	}

	if m := percentRe.FindStringSubmatch(strings.ToLower(trimmed)); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &value, trimmed
		}
	}

	if value, err := strconv.ParseFloat(trimmed, 64); err == nil && value > 0 && value <= 100 {
		return &value, trimmed
	}

	return nil, trimmed
}

var durationRe = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)[-\s]*(year|yr|month|mo|week|day)s?\b`)

var durationMonths = map[string]float64{
	"year":  12,
	"yr":    12,
	"month": 1,
	"mo":    1,
	"week":  12.0 / 52.0,
	"day":   12.0 / 365.0,
}

// ParseDurationMonths extracts a duration in whole months from model text
// ("10-year term", "18 months"). Bare integers are treated as months.
func ParseDurationMonths(text string) (*int, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ""
	}

	if m := durationRe.FindStringSubmatch(trimmed); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			months := int(math.Round(value * durationMonths[strings.ToLower(m[2])]))
			if months > 0 {
				return &months, trimmed
			}
		}
	}

	if value, err := strconv.Atoi(trimmed); err == nil && value > 0 {
		return &value, trimmed
	}

	return nil, trimmed
}
