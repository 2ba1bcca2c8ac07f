package relparse

import (
	"regexp"
	"strings"
	"time"

	"github.com/openfilings/relgraph/backend/pkg/common"

	"github.com/araddon/dateparse"
)

var (
	yearOnlyRe  = regexp.MustCompile(`^(19|20)\d{2}$`)
	yearMonthRe = regexp.MustCompile(`^(19|20)\d{2}-(0[1-9]|1[0-2])$`)
)

var monthLayouts = []string{
	"January 2006",
	"Jan 2006",
	"01/2006",
	"1/2006",
}

// ParseDate turns model-supplied date text into a DateField, tagging how
// much of the date is trustworthy. Year-only and month-only forms are kept
// at reduced precision instead of being discarded; unparseable text keeps
// the original string with a nil value.
func ParseDate(text string) common.DateField {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return common.DateField{Precision: common.PrecisionNone}
	}

	field := common.DateField{SourceText: trimmed, Precision: common.PrecisionNone}

	if yearOnlyRe.MatchString(trimmed) {
		if t, err := time.Parse("2006", trimmed); err == nil {
			field.Value = &t
			field.Precision = common.PrecisionYear
			return field
		}
	}

	if yearMonthRe.MatchString(trimmed) {
		if t, err := time.Parse("2006-01", trimmed); err == nil {
			field.Value = &t
			field.Precision = common.PrecisionMonth
			return field
		}
	}

	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			field.Value = &t
			field.Precision = common.PrecisionMonth
			return field
		}
	}

	if t, err := dateparse.ParseAny(trimmed); err == nil {
		field.Value = &t
		field.Precision = common.PrecisionDay
		return field
	}

	return field
}
