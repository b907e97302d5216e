package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/einvoice-readiness-service/internal/mapping"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
)

func defaultRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Default()
	require.NoError(t, err)
	return reg
}

func parseRegistry(t *testing.T, doc string) *schema.Registry {
	t.Helper()
	reg, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	return reg
}

const totalOnlySchema = `
version: test
categories:
  header: {weight: 1}
fields:
  invoice.total: {type: number, required: true, category: header}
`

// wellFormedRecord uses keys the resolver can address for every canonical field
func wellFormedRecord() models.Record {
	return recordOf(
		"invoice_id", "INV-1",
		"invoice_issue_date", "2024-03-01",
		"invoice_currency", "AED",
		"invoice_total_excl_vat", "100.00",
		"invoice_vat_amount", "5.00",
		"invoice_total_incl_vat", "105.00",
		"seller_name", "Acme LLC",
		"seller_trn", "100200300400500",
		"seller_country", "AE",
		"buyer_name", "Globex",
		"buyer_trn", "100999888777666",
		"buyer_country", "AE",
		"sku", "SKU-1",
		"description", "Widget",
		"qty", "2",
		"unit_price", "50",
		"line_total", "100",
	)
}

func assertPartition(t *testing.T, reg *schema.Registry, cov *models.CoverageResult) {
	t.Helper()
	seen := make(map[string]int)
	for _, p := range cov.Matched {
		seen[p]++
	}
	for _, c := range cov.Close {
		seen[c.Target]++
	}
	for _, p := range cov.Missing {
		seen[p]++
	}
	assert.Len(t, seen, reg.Len())
	for _, p := range reg.Paths() {
		assert.Equal(t, 1, seen[p], "field %s", p)
	}
}

func TestMap_EmptyRecordsAllMissing(t *testing.T) {
	reg := defaultRegistry(t)
	cov, err := mapping.NewFieldMapper(reg).Map(nil)
	require.NoError(t, err)

	assert.NotNil(t, cov.Matched)
	assert.NotNil(t, cov.Close)
	assert.Empty(t, cov.Matched)
	assert.Empty(t, cov.Close)
	assert.Equal(t, reg.Paths(), cov.Missing)
}

func TestMap_EmptySchema(t *testing.T) {
	_, err := mapping.NewFieldMapper(nil).Map([]models.Record{wellFormedRecord()})
	assert.ErrorIs(t, err, schema.ErrEmptySchema)
}

func TestMap_WellFormedRecordMatchesEverything(t *testing.T) {
	reg := defaultRegistry(t)
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{wellFormedRecord()})
	require.NoError(t, err)

	assert.Equal(t, reg.Paths(), cov.Matched)
	assert.Empty(t, cov.Close)
	assert.Empty(t, cov.Missing)
}

func TestMap_ExactCompatibleMatch(t *testing.T) {
	reg := parseRegistry(t, totalOnlySchema)
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{
		recordOf("invoice_total", "105.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice.total"}, cov.Matched)
	assert.Empty(t, cov.Close)
}

func TestMap_ExactIncompatibleIsClose(t *testing.T) {
	reg := parseRegistry(t, totalOnlySchema)
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{
		recordOf("invoice_total", true),
	})
	require.NoError(t, err)

	assert.Empty(t, cov.Matched)
	require.Len(t, cov.Close, 1)
	assert.Equal(t, models.FieldMatch{Target: "invoice.total", Candidate: "invoice_total", Confidence: 0.7}, cov.Close[0])
}

func TestMap_PrefixedKeysAreCloseMatches(t *testing.T) {
	reg := defaultRegistry(t)
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{
		recordOf("inv_total_excl_vat", 100, "inv_vat_amount", 5, "inv_total_incl_vat", 105.0001),
	})
	require.NoError(t, err)

	assert.Empty(t, cov.Matched)
	assert.Equal(t, []models.FieldMatch{
		{Target: "invoice.total_excl_vat", Candidate: "inv_total_excl_vat", Confidence: 0.79},
		{Target: "invoice.vat_amount", Candidate: "inv_vat_amount", Confidence: 0.75},
		{Target: "invoice.total_incl_vat", Candidate: "inv_total_incl_vat", Confidence: 0.79},
	}, cov.Close)
	assert.Len(t, cov.Missing, reg.Len()-3)
	assertPartition(t, reg, cov)
}

func TestMap_CloseThresholdIsExclusive(t *testing.T) {
	reg := parseRegistry(t, totalOnlySchema)
	// similarity is exactly 0.5
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{
		recordOf("inv_tot_x", 1),
	})
	require.NoError(t, err)
	assert.Empty(t, cov.Close)
	assert.Equal(t, []string{"invoice.total"}, cov.Missing)
}

func TestMap_CandidateConsumedOnce(t *testing.T) {
	reg := parseRegistry(t, `
version: test
categories:
  parties: {weight: 1}
fields:
  seller.trn: {type: string, required: true, category: parties}
  buyer.trn: {type: string, required: true, category: parties}
`)
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{
		recordOf("trn", "100"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"seller.trn"}, cov.Matched)
	assert.Equal(t, []string{"buyer.trn"}, cov.Missing)
}

func TestMap_FirstSeenCandidateWinsTies(t *testing.T) {
	reg := parseRegistry(t, totalOnlySchema)
	mapper := mapping.NewFieldMapper(reg)

	cov, err := mapper.Map([]models.Record{
		recordOf("invc_totl", 1),
		recordOf("invo_totl", 1),
	})
	require.NoError(t, err)
	require.Len(t, cov.Close, 1)
	assert.Equal(t, "invc_totl", cov.Close[0].Candidate)
	assert.Equal(t, 0.67, cov.Close[0].Confidence)

	cov, err = mapper.Map([]models.Record{
		recordOf("invo_totl", 1),
		recordOf("invc_totl", 1),
	})
	require.NoError(t, err)
	require.Len(t, cov.Close, 1)
	assert.Equal(t, "invo_totl", cov.Close[0].Candidate)
}

func TestMap_FirstConfidentCandidateStopsSearch(t *testing.T) {
	reg := parseRegistry(t, `
version: test
categories:
  header: {weight: 1}
fields:
  invoice.id: {type: string, required: true, category: header}
  ref.id: {type: string, required: true, category: header}
`)
	// "id" is contained in "invoiceid" and comes first, so the exact key is left over
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{
		recordOf("id", "A"),
		recordOf("invoice_id", "B"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice.id"}, cov.Matched)
	assert.Equal(t, []string{"ref.id"}, cov.Missing)
}

func TestMap_SeparatorOnlyKeysAreNotCandidates(t *testing.T) {
	reg := defaultRegistry(t)
	cov, err := mapping.NewFieldMapper(reg).Map([]models.Record{
		recordOf("___", "x", "", "y", "invoice_id", "INV-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice.id"}, cov.Matched)
	assert.Empty(t, cov.Close)
	assert.Len(t, cov.Missing, reg.Len()-1)
}

func TestMap_PartitionInvariant(t *testing.T) {
	reg := defaultRegistry(t)
	batches := [][]models.Record{
		{wellFormedRecord()},
		{recordOf("inv_total_excl_vat", 100, "currency", "AED", "trn", "1")},
		{recordOf("a", 1, "b", true, "c", nil), recordOf("qty", "x", "Unit Price", "3")},
		{recordOf("", "blank key", "___", "separators only")},
	}
	for _, records := range batches {
		cov, err := mapping.NewFieldMapper(reg).Map(records)
		require.NoError(t, err)
		assertPartition(t, reg, cov)
	}
}

func TestMap_Deterministic(t *testing.T) {
	reg := defaultRegistry(t)
	records := []models.Record{
		recordOf("Invoice No", "1", "Date", "2024-01-01", "Net", "10", "Tax", "0.5", "Gross", "10.5"),
		recordOf("Seller", "Acme", "Buyer TRN", "123", "Currency", "usd"),
	}
	first, err := mapping.NewFieldMapper(reg).Map(records)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := mapping.NewFieldMapper(reg).Map(records)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
