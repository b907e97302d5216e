package mapping

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// dateLayouts are the calendar formats commonly exported by ERPs and spreadsheets
var dateLayouts = []string{
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	time.RFC1123Z,
	time.ANSIC,
}

// InferType guesses the schema type of a sample value. Absent and null
// samples are treated as strings.
func InferType(v models.Value, present bool) string {
	if !present {
		return schema.TypeString
	}
	switch v.Kind {
	case models.KindBool:
		return schema.TypeBoolean
	case models.KindNumber:
		return schema.TypeNumber
	case models.KindString:
		if _, ok := v.Decimal(); ok {
			return schema.TypeNumber
		}
		if LooksLikeDate(v.Str) {
			return schema.TypeDate
		}
	}
	return schema.TypeString
}

// LooksLikeDate reports whether s matches the ISO date pattern or parses as a calendar date
func LooksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if isoDatePattern.MatchString(s) {
		return true
	}
	if _, err := strfmt.ParseDateTime(s); err == nil {
		return true
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// TypeCompatible reports whether an inferred type may fill a field of schemaType.
// Number and date fields accept plain text holding a numeric or date value.
func TypeCompatible(schemaType, inferred string) bool {
	if schemaType == inferred {
		return true
	}
	if inferred == schema.TypeString && (schemaType == schema.TypeNumber || schemaType == schema.TypeDate) {
		return true
	}
	return false
}
