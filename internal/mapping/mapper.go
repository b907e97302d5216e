// Package mapping maps observed column names onto the canonical schema and
// resolves canonical field values from raw records.
package mapping

import (
	"math"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
)

const (
	// MatchThreshold is the adjusted confidence at which a candidate is taken immediately
	MatchThreshold = 0.8
	// CloseThreshold is the confidence a candidate must exceed to be kept as a close match
	CloseThreshold = 0.5
	// TypeMismatchPenalty scales the confidence of a similar but type-incompatible candidate
	TypeMismatchPenalty = 0.7
)

// FieldMapper classifies canonical fields as matched, close or missing
type FieldMapper struct {
	registry *schema.Registry
}

// NewFieldMapper creates a mapper over a loaded registry
func NewFieldMapper(registry *schema.Registry) *FieldMapper {
	return &FieldMapper{registry: registry}
}

type candidate struct {
	key        string
	normalized string
	inferred   string
}

// Map builds the coverage of records against the canonical schema.
//
// Candidates are the distinct keys of all records in first-seen order (record
// by record, key by key). Fields are visited in declared schema order and each
// candidate is consumed by at most one field, so earlier fields win ties.
func (m *FieldMapper) Map(records []models.Record) (*models.CoverageResult, error) {
	if err := schema.Check(m.registry); err != nil {
		return nil, err
	}

	result := &models.CoverageResult{
		Matched: []string{},
		Close:   []models.FieldMatch{},
		Missing: []string{},
	}

	if len(records) == 0 {
		result.Missing = m.registry.Paths()
		return result, nil
	}

	pool := candidatePool(records)
	used := make(map[string]bool, len(pool))

	for _, field := range m.registry.Fields() {
		target := NormalizeFieldName(field.Path)

		var best *candidate
		bestConfidence := 0.0
		matched := false

		for i := range pool {
			c := &pool[i]
			if used[c.key] {
				continue
			}

			confidence := similarity(target, c.normalized)
			if confidence > CloseThreshold && !TypeCompatible(field.Type, c.inferred) {
				confidence *= TypeMismatchPenalty
			}

			if confidence >= MatchThreshold {
				result.Matched = append(result.Matched, field.Path)
				used[c.key] = true
				matched = true
				break
			}
			if confidence > CloseThreshold && (best == nil || confidence > bestConfidence) {
				best = c
				bestConfidence = confidence
			}
		}

		switch {
		case matched:
		case best != nil:
			result.Close = append(result.Close, models.FieldMatch{
				Target:     field.Path,
				Candidate:  best.key,
				Confidence: math.Round(bestConfidence*100) / 100,
			})
			used[best.key] = true
		default:
			result.Missing = append(result.Missing, field.Path)
		}
	}

	return result, nil
}

// candidatePool collects distinct keys in first-seen order and infers each
// key's type from the first record's sample
func candidatePool(records []models.Record) []candidate {
	seen := make(map[string]bool)
	var pool []candidate
	first := records[0]

	for _, rec := range records {
		for _, key := range rec.Keys() {
			if seen[key] {
				continue
			}
			seen[key] = true

			normalized := NormalizeFieldName(key)
			if normalized == "" {
				continue
			}
			sample, present := first.Get(key)
			pool = append(pool, candidate{
				key:        key,
				normalized: normalized,
				inferred:   InferType(sample, present),
			})
		}
	}
	return pool
}
