package mapping

import (
	"strings"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
)

// Resolve fetches the value of a canonical field from a raw record.
//
// Matched line fields (lines[].X) are read from X, lines_X or line_X; matched
// dotted fields (A.B) from A_B or A.B. Close fields are read from their
// candidate key. Anything else, and null values, resolve to absent: callers
// skip the record for that check.
func Resolve(rec models.Record, path string, coverage *models.CoverageResult) (models.Value, bool) {
	if coverage == nil {
		return models.Value{}, false
	}

	if coverage.IsMatched(path) {
		return lookup(rec, matchedKeys(path)...)
	}
	if cm, ok := coverage.CloseMatch(path); ok {
		return lookup(rec, cm.Candidate)
	}
	return models.Value{}, false
}

// matchedKeys lists the record keys tried for a matched canonical path, in order
func matchedKeys(path string) []string {
	if schema.IsLinePath(path) {
		name := strings.TrimPrefix(path, schema.LinePrefix)
		return []string{name, "lines_" + name, "line_" + name}
	}
	return []string{strings.Replace(path, ".", "_", 1), path}
}

func lookup(rec models.Record, keys ...string) (models.Value, bool) {
	for _, key := range keys {
		if v, ok := rec.Get(key); ok && !v.IsNull() {
			return v, true
		}
	}
	return models.Value{}, false
}
