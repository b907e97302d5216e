package models

import "time"

// FieldMatch is a canonical field with no confident match but a plausible candidate key
type FieldMatch struct {
	Target     string  `json:"target"`
	Candidate  string  `json:"candidate"`
	Confidence float64 `json:"confidence"`
}

// CoverageResult classifies every canonical field as matched, close or missing
type CoverageResult struct {
	Matched []string     `json:"matched"`
	Close   []FieldMatch `json:"close"`
	Missing []string     `json:"missing"`
}

// IsMatched reports whether path was matched with high confidence
func (c *CoverageResult) IsMatched(path string) bool {
	for _, m := range c.Matched {
		if m == path {
			return true
		}
	}
	return false
}

// CloseMatch returns the close entry recorded for path, if any
func (c *CoverageResult) CloseMatch(path string) (FieldMatch, bool) {
	for _, cm := range c.Close {
		if cm.Target == path {
			return cm, true
		}
	}
	return FieldMatch{}, false
}

// RuleID identifies one of the fixed business rules
type RuleID string

const (
	RuleTotalsBalance   RuleID = "TOTALS_BALANCE"
	RuleLineMath        RuleID = "LINE_MATH"
	RuleDateISO         RuleID = "DATE_ISO"
	RuleCurrencyAllowed RuleID = "CURRENCY_ALLOWED"
	RuleTRNPresent      RuleID = "TRN_PRESENT"
)

// RuleOrder is the fixed evaluation and reporting order
var RuleOrder = []RuleID{
	RuleTotalsBalance,
	RuleLineMath,
	RuleDateISO,
	RuleCurrencyAllowed,
	RuleTRNPresent,
}

// RuleFinding is the outcome of one rule with an optional counter-example
type RuleFinding struct {
	Rule        RuleID   `json:"rule"`
	OK          bool     `json:"ok"`
	ExampleLine *int     `json:"exampleLine,omitempty"` // 1-based record index
	Expected    *float64 `json:"expected,omitempty"`
	Got         *float64 `json:"got,omitempty"`
	Value       string   `json:"value,omitempty"`
}

// RulesResult holds the five findings and the share that passed
type RulesResult struct {
	Findings []RuleFinding `json:"findings"`
	Score    int           `json:"score"` // 0-100
}

// Questionnaire is the operational posture self-assessment
type Questionnaire struct {
	Webhooks   bool `json:"webhooks" yaml:"webhooks"`
	SandboxEnv bool `json:"sandbox_env" yaml:"sandbox_env"`
	Retries    bool `json:"retries" yaml:"retries"`
}

// ScoreBreakdown holds the four sub-scores and the weighted overall score, all 0-100
type ScoreBreakdown struct {
	Data     int `json:"data"`
	Coverage int `json:"coverage"`
	Rules    int `json:"rules"`
	Posture  int `json:"posture"`
	Overall  int `json:"overall"`
}

// Readiness labels
const (
	ReadinessHigh   = "High"
	ReadinessMedium = "Medium"
	ReadinessLow    = "Low"
)

// ReadinessLabel classifies an overall score
func ReadinessLabel(overall int) string {
	switch {
	case overall >= 75:
		return ReadinessHigh
	case overall >= 50:
		return ReadinessMedium
	default:
		return ReadinessLow
	}
}

// ReportMeta describes the batch a report was computed from
type ReportMeta struct {
	RowsParsed    int    `json:"rowsParsed"`
	RowsAttempted int    `json:"rowsAttempted"`
	LinesTotal    int    `json:"linesTotal"`
	Truncated     bool   `json:"truncated,omitempty"`
	Country       string `json:"country,omitempty"`
	ERP           string `json:"erp,omitempty"`
	DB            string `json:"db"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
}

// Report is the full analysis bundle returned to callers and persisted as JSON
type Report struct {
	ReportID     string         `json:"reportId,omitempty"`
	Scores       ScoreBreakdown `json:"scores"`
	Readiness    string         `json:"readiness"`
	Coverage     CoverageResult `json:"coverage"`
	RuleFindings []RuleFinding  `json:"ruleFindings"`
	Gaps         []string       `json:"gaps"`
	Meta         ReportMeta     `json:"meta"`
	ExpiresAt    *time.Time     `json:"expiresAt,omitempty"`
}

// ReportSummary is a row of the recent reports listing
type ReportSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	OverallScore int       `json:"overallScore"`
	Country      string    `json:"country,omitempty"`
	ERP          string    `json:"erp,omitempty"`
}
