package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
)

// Sub-score weights of the overall readiness score
const (
	WeightData     = 0.25
	WeightCoverage = 0.35
	WeightRules    = 0.30
	WeightPosture  = 0.10

	// closeMatchCredit is the share of a close match's confidence counted as coverage
	closeMatchCredit = 0.7
)

// Scorer aggregates sub-scores and produces the gap narrative
type Scorer struct {
	registry *schema.Registry
}

// NewScorer creates a scorer over the canonical schema used for mapping
func NewScorer(registry *schema.Registry) *Scorer {
	return &Scorer{registry: registry}
}

// Score computes the four sub-scores and the weighted overall score
func (s *Scorer) Score(parsed, attempted int, coverage *models.CoverageResult, rules *models.RulesResult, posture models.Questionnaire) models.ScoreBreakdown {
	scores := models.ScoreBreakdown{
		Data:     DataScore(parsed, attempted),
		Coverage: s.CoverageScore(coverage),
		Posture:  PostureScore(posture),
	}
	if rules != nil {
		scores.Rules = rules.Score
	}
	scores.Overall = OverallScore(scores)
	return scores
}

// DataScore is the share of attempted rows that parsed; 0 when nothing was attempted
func DataScore(parsed, attempted int) int {
	if attempted <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(parsed) / float64(attempted)))
}

// CoverageScore weighs per-category coverage by category weight.
// Close matches count for closeMatchCredit of their confidence.
func (s *Scorer) CoverageScore(coverage *models.CoverageResult) int {
	if coverage == nil || schema.Check(s.registry) != nil {
		return 0
	}

	type tally struct {
		fields int
		credit float64
	}
	byCategory := make(map[string]*tally)
	for _, c := range s.registry.Categories() {
		byCategory[c.Name] = &tally{}
	}
	for _, f := range s.registry.Fields() {
		byCategory[f.Category].fields++
	}

	credit := func(path string, amount float64) {
		if f, ok := s.registry.Field(path); ok {
			byCategory[f.Category].credit += amount
		}
	}
	for _, path := range coverage.Matched {
		credit(path, 1)
	}
	for _, cm := range coverage.Close {
		credit(cm.Target, cm.Confidence*closeMatchCredit)
	}

	var weighted, totalWeight float64
	for _, c := range s.registry.Categories() {
		t := byCategory[c.Name]
		if t.fields == 0 {
			continue
		}
		weighted += t.credit / float64(t.fields) * c.Weight
		totalWeight += c.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return int(math.Round(100 * clamp(weighted/totalWeight, 0, 1)))
}

// PostureScore is the share of questionnaire items answered yes
func PostureScore(q models.Questionnaire) int {
	yes := 0
	for _, answer := range []bool{q.Webhooks, q.SandboxEnv, q.Retries} {
		if answer {
			yes++
		}
	}
	return int(math.Round(100 * float64(yes) / 3))
}

// OverallScore combines the sub-scores with the fixed weights
func OverallScore(s models.ScoreBreakdown) int {
	sum := WeightData*float64(s.Data) +
		WeightCoverage*float64(s.Coverage) +
		WeightRules*float64(s.Rules) +
		WeightPosture*float64(s.Posture)
	return int(math.Round(clamp(sum, 0, 100)))
}

// Gaps lists missing required fields in schema order, then one line per failed rule
func (s *Scorer) Gaps(coverage *models.CoverageResult, rules *models.RulesResult) []string {
	gaps := []string{}

	if coverage != nil && s.registry != nil {
		for _, path := range coverage.Missing {
			if f, ok := s.registry.Field(path); ok && f.Required {
				gaps = append(gaps, "Missing required field: "+path)
			}
		}
	}

	if rules == nil {
		return gaps
	}
	for _, finding := range rules.Findings {
		if finding.OK {
			continue
		}
		if gap := ruleGap(finding); gap != "" {
			gaps = append(gaps, gap)
		}
	}
	return gaps
}

func ruleGap(f models.RuleFinding) string {
	switch f.Rule {
	case models.RuleTotalsBalance:
		return "Invoice totals do not balance (total_excl_vat + vat_amount ≠ total_incl_vat)"
	case models.RuleLineMath:
		return "Line item calculations incorrect (qty × unit_price ≠ line_total)"
	case models.RuleDateISO:
		return fmt.Sprintf("Invalid date format: %s should be YYYY-MM-DD", orDefault(f.Value, "dates"))
	case models.RuleCurrencyAllowed:
		return fmt.Sprintf("Invalid currency: %s not in allowed list [%s]", orDefault(f.Value, "currency"), strings.Join(AllowedCurrencies, ", "))
	case models.RuleTRNPresent:
		return "Missing buyer.trn or seller.trn"
	default:
		return ""
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
