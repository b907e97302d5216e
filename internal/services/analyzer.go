package services

import (
	"github.com/facturaIA/einvoice-readiness-service/internal/ingest"
	"github.com/facturaIA/einvoice-readiness-service/internal/mapping"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
)

// Analyzer runs the pure records -> coverage -> rules -> scores pipeline.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	registry  *schema.Registry
	mapper    *mapping.FieldMapper
	validator *RulesValidator
	scorer    *Scorer
}

// NewAnalyzer creates an analyzer over the canonical schema
func NewAnalyzer(registry *schema.Registry) *Analyzer {
	return &Analyzer{
		registry:  registry,
		mapper:    mapping.NewFieldMapper(registry),
		validator: NewRulesValidator(),
		scorer:    NewScorer(registry),
	}
}

// Registry returns the schema the analyzer maps onto
func (a *Analyzer) Registry() *schema.Registry {
	return a.registry
}

// MapFields classifies every canonical field against the records
func (a *Analyzer) MapFields(records []models.Record) (*models.CoverageResult, error) {
	return a.mapper.Map(records)
}

// ValidateRules runs the five business rules over the mapped records
func (a *Analyzer) ValidateRules(records []models.Record, coverage *models.CoverageResult) *models.RulesResult {
	return a.validator.Validate(records, coverage)
}

// ScoreAndGap computes the score breakdown and the gap narrative
func (a *Analyzer) ScoreAndGap(parsed, attempted int, coverage *models.CoverageResult, rules *models.RulesResult, posture models.Questionnaire) (models.ScoreBreakdown, []string) {
	return a.scorer.Score(parsed, attempted, coverage, rules, posture), a.scorer.Gaps(coverage, rules)
}

// Analyze runs the full pipeline over an ingested batch. The returned report
// carries no id, expiry, country, ERP or storage backend; callers fill those.
func (a *Analyzer) Analyze(batch *ingest.Batch, posture models.Questionnaire) (*models.Report, error) {
	if batch == nil {
		batch = &ingest.Batch{}
	}

	coverage, err := a.MapFields(batch.Records)
	if err != nil {
		return nil, err
	}
	rules := a.ValidateRules(batch.Records, coverage)
	scores, gaps := a.ScoreAndGap(batch.Parsed(), batch.Attempted, coverage, rules, posture)

	return &models.Report{
		Scores:       scores,
		Readiness:    models.ReadinessLabel(scores.Overall),
		Coverage:     *coverage,
		RuleFindings: rules.Findings,
		Gaps:         gaps,
		Meta: models.ReportMeta{
			RowsParsed:    batch.Parsed(),
			RowsAttempted: batch.Attempted,
			LinesTotal:    batch.LinesTotal,
			Truncated:     batch.Truncated,
			SchemaVersion: a.registry.Version(),
		},
	}, nil
}
