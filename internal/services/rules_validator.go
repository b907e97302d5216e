package services

import (
	"math"
	"regexp"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/shopspring/decimal"

	"github.com/facturaIA/einvoice-readiness-service/internal/mapping"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

// Canonical fields read by the rules
const (
	fieldTotalExclVAT = "invoice.total_excl_vat"
	fieldVATAmount    = "invoice.vat_amount"
	fieldTotalInclVAT = "invoice.total_incl_vat"
	fieldIssueDate    = "invoice.issue_date"
	fieldCurrency     = "invoice.currency"
	fieldSellerTRN    = "seller.trn"
	fieldBuyerTRN     = "buyer.trn"
	fieldQty          = "lines[].qty"
	fieldUnitPrice    = "lines[].unit_price"
	fieldLineTotal    = "lines[].line_total"
)

// AllowedCurrencies are the invoice currencies accepted for exchange
var AllowedCurrencies = []string{"AED", "SAR", "MYR", "USD"}

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RulesValidator checks mapped invoice values against the fixed business rules
type RulesValidator struct {
	tolerance decimal.Decimal // absolute tolerance for amount comparisons
}

// NewRulesValidator creates a new validator with the default 0.01 tolerance
func NewRulesValidator() *RulesValidator {
	return &RulesValidator{tolerance: decimal.New(1, -2)}
}

// Validate runs every rule over the records. Exactly one finding per rule is
// returned, in fixed order; a rule with nothing to check passes.
func (v *RulesValidator) Validate(records []models.Record, coverage *models.CoverageResult) *models.RulesResult {
	findings := []models.RuleFinding{
		// 1. Header totals balance
		v.validateTotalsBalance(records, coverage),
		// 2. Line arithmetic
		v.validateLineMath(records, coverage),
		// 3. Issue date format
		v.validateDateISO(records, coverage),
		// 4. Currency code
		v.validateCurrency(records, coverage),
		// 5. Tax registration numbers
		v.validateTRNPresent(records, coverage),
	}

	passed := 0
	for _, f := range findings {
		if f.OK {
			passed++
		}
	}

	return &models.RulesResult{
		Findings: findings,
		Score:    int(math.Round(100 * float64(passed) / float64(len(findings)))),
	}
}

// validateTotalsBalance checks total_excl_vat + vat_amount == total_incl_vat
func (v *RulesValidator) validateTotalsBalance(records []models.Record, coverage *models.CoverageResult) models.RuleFinding {
	finding := models.RuleFinding{Rule: models.RuleTotalsBalance, OK: true}

	for _, rec := range records {
		exclVAT, ok1 := resolveDecimal(rec, fieldTotalExclVAT, coverage)
		vat, ok2 := resolveDecimal(rec, fieldVATAmount, coverage)
		inclVAT, ok3 := resolveDecimal(rec, fieldTotalInclVAT, coverage)
		if !ok1 || !ok2 || !ok3 {
			continue
		}

		expected := exclVAT.Add(vat)
		if !v.withinTolerance(expected, inclVAT) {
			finding.OK = false
			finding.Expected = round2(expected)
			finding.Got = round2(inclVAT)
			break
		}
	}
	return finding
}

// validateLineMath checks qty * unit_price == line_total
func (v *RulesValidator) validateLineMath(records []models.Record, coverage *models.CoverageResult) models.RuleFinding {
	finding := models.RuleFinding{Rule: models.RuleLineMath, OK: true}

	for i, rec := range records {
		qty, ok1 := resolveDecimal(rec, fieldQty, coverage)
		price, ok2 := resolveDecimal(rec, fieldUnitPrice, coverage)
		total, ok3 := resolveDecimal(rec, fieldLineTotal, coverage)
		if !ok1 || !ok2 || !ok3 {
			continue
		}

		expected := qty.Mul(price)
		if !v.withinTolerance(expected, total) {
			line := i + 1
			finding.OK = false
			finding.ExampleLine = &line
			finding.Expected = round2(expected)
			finding.Got = round2(total)
			break
		}
	}
	return finding
}

// validateDateISO checks issue_date is a real YYYY-MM-DD calendar date
func (v *RulesValidator) validateDateISO(records []models.Record, coverage *models.CoverageResult) models.RuleFinding {
	finding := models.RuleFinding{Rule: models.RuleDateISO, OK: true}

	for _, rec := range records {
		value, ok := mapping.Resolve(rec, fieldIssueDate, coverage)
		if !ok {
			continue
		}

		date := value.Text()
		if !isoDatePattern.MatchString(date) || !strfmt.IsDate(date) {
			finding.OK = false
			finding.Value = date
			break
		}
	}
	return finding
}

// validateCurrency checks the currency code, case-insensitively, against AllowedCurrencies
func (v *RulesValidator) validateCurrency(records []models.Record, coverage *models.CoverageResult) models.RuleFinding {
	finding := models.RuleFinding{Rule: models.RuleCurrencyAllowed, OK: true}

	for _, rec := range records {
		value, ok := mapping.Resolve(rec, fieldCurrency, coverage)
		if !ok {
			continue
		}

		code := strings.ToUpper(value.Text())
		if !isAllowedCurrency(code) {
			finding.OK = false
			finding.Value = code
			break
		}
	}
	return finding
}

// validateTRNPresent checks every record carries both seller and buyer TRN.
// A record without them fails the rule rather than being skipped.
func (v *RulesValidator) validateTRNPresent(records []models.Record, coverage *models.CoverageResult) models.RuleFinding {
	finding := models.RuleFinding{Rule: models.RuleTRNPresent, OK: true}

	for i, rec := range records {
		if !hasText(rec, fieldBuyerTRN, coverage) || !hasText(rec, fieldSellerTRN, coverage) {
			line := i + 1
			finding.OK = false
			finding.ExampleLine = &line
			break
		}
	}
	return finding
}

func (v *RulesValidator) withinTolerance(expected, got decimal.Decimal) bool {
	return expected.Sub(got).Abs().LessThanOrEqual(v.tolerance)
}

func resolveDecimal(rec models.Record, path string, coverage *models.CoverageResult) (decimal.Decimal, bool) {
	value, ok := mapping.Resolve(rec, path, coverage)
	if !ok {
		return decimal.Decimal{}, false
	}
	return value.Decimal()
}

func hasText(rec models.Record, path string, coverage *models.CoverageResult) bool {
	value, ok := mapping.Resolve(rec, path, coverage)
	return ok && strings.TrimSpace(value.Text()) != ""
}

func isAllowedCurrency(code string) bool {
	for _, c := range AllowedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// round2 rounds to 2 decimal places
func round2(d decimal.Decimal) *float64 {
	f := d.Round(2).InexactFloat64()
	return &f
}
