package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/einvoice-readiness-service/internal/db"
	"github.com/facturaIA/einvoice-readiness-service/internal/ingest"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

// ----------------------------------------------------------------------------
// In-memory fakes
// ----------------------------------------------------------------------------

type memoryRepo struct {
	mu       sync.Mutex
	uploads  map[string]*models.Upload
	reports  map[string]*models.Report
	created  map[string]time.Time
	now      func() time.Time
	failSave error
}

func newMemoryRepo(now func() time.Time) *memoryRepo {
	return &memoryRepo{
		uploads: make(map[string]*models.Upload),
		reports: make(map[string]*models.Report),
		created: make(map[string]time.Time),
		now:     now,
	}
}

func (m *memoryRepo) SaveUpload(_ context.Context, up *models.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	up.CreatedAt = m.now()
	cp := *up
	m.uploads[up.ID] = &cp
	return nil
}

func (m *memoryRepo) GetUpload(_ context.Context, id string) (*models.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *up
	return &cp, nil
}

func (m *memoryRepo) SaveReport(_ context.Context, _ string, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *report
	m.reports[report.ReportID] = &cp
	m.created[report.ReportID] = m.now()
	return nil
}

func (m *memoryRepo) GetReport(_ context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok || !m.now().Before(*r.ExpiresAt) {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) RecentReports(_ context.Context, limit int) ([]models.ReportSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ReportSummary{}
	for id, r := range m.reports {
		if !m.now().Before(*r.ExpiresAt) {
			continue
		}
		out = append(out, models.ReportSummary{ID: id, CreatedAt: m.created[id], OverallScore: r.Scores.Overall, Country: r.Meta.Country, ERP: r.Meta.ERP})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) PurgeExpiredReports(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reports {
		if !m.now().Before(*r.ExpiresAt) {
			delete(m.reports, id)
			n++
		}
	}
	return n, nil
}

type memoryRawStore struct {
	objects map[string][]byte
	failPut bool
	deleted []string
}

func newMemoryRawStore() *memoryRawStore {
	return &memoryRawStore{objects: make(map[string][]byte)}
}

func (s *memoryRawStore) PutRaw(_ context.Context, uploadID, format string, data []byte) (string, error) {
	if s.failPut {
		return "", errors.New("bucket unavailable")
	}
	path := "test-bucket/uploads/" + uploadID + "." + format
	s.objects[path] = append([]byte(nil), data...)
	return path, nil
}

func (s *memoryRawStore) GetRaw(_ context.Context, path string) ([]byte, error) {
	data, ok := s.objects[path]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (s *memoryRawStore) DeleteRaw(_ context.Context, path string) error {
	delete(s.objects, path)
	s.deleted = append(s.deleted, path)
	return nil
}

// ----------------------------------------------------------------------------
// Tests
// ----------------------------------------------------------------------------

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

const sampleCSV = "invoice_id,invoice_currency,invoice_total_excl_vat,invoice_vat_amount,invoice_total_incl_vat,seller_trn,buyer_trn\n" +
	"INV-1,AED,100,5,105,100200300400500,100999888777666\n"

func newTestService(t *testing.T, raw RawStore) (*ReadinessService, *memoryRepo, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
	repo := newMemoryRepo(c.now)
	svc := NewReadinessService(newTestAnalyzer(t), repo, raw, 7*24*time.Hour)
	svc.now = c.now
	return svc, repo, c
}

func TestReadinessService_UploadAnalyzeGet(t *testing.T) {
	raw := newMemoryRawStore()
	svc, repo, c := newTestService(t, raw)
	ctx := context.Background()

	up, err := svc.Upload(ctx, []byte(sampleCSV), "", models.UploadContext{Country: "AE", ERP: "SAP"})
	require.NoError(t, err)
	assert.Equal(t, 1, up.RowsParsed)

	stored := repo.uploads[up.UploadID]
	require.NotNil(t, stored)
	assert.Equal(t, "csv", stored.Format)
	assert.NotEmpty(t, stored.ObjectPath)
	assert.Nil(t, stored.RawData, "payload kept in object storage")

	report, err := svc.Analyze(ctx, up.UploadID, models.Questionnaire{Webhooks: true})
	require.NoError(t, err)
	assert.NotEmpty(t, report.ReportID)
	require.NotNil(t, report.ExpiresAt)
	assert.Equal(t, c.t.Add(7*24*time.Hour), *report.ExpiresAt)
	assert.Equal(t, "AE", report.Meta.Country)
	assert.Equal(t, "SAP", report.Meta.ERP)
	assert.Equal(t, StorePostgres, report.Meta.DB)

	got, err := svc.GetReport(ctx, report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, report.Scores, got.Scores)
	assert.Equal(t, report.ReportID, got.ReportID)

	recent, err := svc.RecentReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, report.ReportID, recent[0].ID)
}

func TestReadinessService_InlinePayloadWhenStorageFails(t *testing.T) {
	raw := newMemoryRawStore()
	raw.failPut = true
	svc, repo, _ := newTestService(t, raw)
	ctx := context.Background()

	up, err := svc.Upload(ctx, []byte(sampleCSV), ingest.FormatCSV, models.UploadContext{})
	require.NoError(t, err)
	assert.Equal(t, []byte(sampleCSV), repo.uploads[up.UploadID].RawData)

	_, err = svc.Analyze(ctx, up.UploadID, models.Questionnaire{})
	require.NoError(t, err)
}

func TestReadinessService_WithoutRawStore(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	up, err := svc.Upload(ctx, []byte(`[{"invoice_currency":"eur"}]`), "", models.UploadContext{})
	require.NoError(t, err)

	report, err := svc.Analyze(ctx, up.UploadID, models.Questionnaire{})
	require.NoError(t, err)
	assert.Contains(t, report.Gaps, "Invalid currency: EUR not in allowed list [AED, SAR, MYR, USD]")
}

func TestReadinessService_UploadSaveFailureRemovesPayload(t *testing.T) {
	raw := newMemoryRawStore()
	svc, repo, _ := newTestService(t, raw)
	repo.failSave = db.ErrNoDatabase

	_, err := svc.Upload(context.Background(), []byte(sampleCSV), "", models.UploadContext{})
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.Len(t, raw.deleted, 1)
	assert.Empty(t, raw.objects)
}

func TestReadinessService_UploadRejectsMalformedInput(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	_, err := svc.Upload(context.Background(), []byte(`[{"a":`), "", models.UploadContext{})
	assert.ErrorIs(t, err, ingest.ErrInvalidJSON)
}

func TestReadinessService_UnknownIDs(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Analyze(ctx, "not-a-uuid", models.Questionnaire{})
	assert.ErrorIs(t, err, ErrUploadNotFound)
	_, err = svc.Analyze(ctx, "3f1c7a52-8a53-4f44-9d38-3cb0a5f4f2aa", models.Questionnaire{})
	assert.ErrorIs(t, err, ErrUploadNotFound)

	_, err = svc.GetReport(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrReportNotFound)
	_, err = svc.GetReport(ctx, "3f1c7a52-8a53-4f44-9d38-3cb0a5f4f2aa")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestReadinessService_ReportExpiry(t *testing.T) {
	svc, _, c := newTestService(t, nil)
	ctx := context.Background()

	up, err := svc.Upload(ctx, []byte(sampleCSV), "", models.UploadContext{})
	require.NoError(t, err)
	report, err := svc.Analyze(ctx, up.UploadID, models.Questionnaire{})
	require.NoError(t, err)

	c.t = c.t.Add(7*24*time.Hour - time.Second)
	_, err = svc.GetReport(ctx, report.ReportID)
	require.NoError(t, err)

	c.t = c.t.Add(time.Second)
	_, err = svc.GetReport(ctx, report.ReportID)
	assert.ErrorIs(t, err, ErrReportNotFound)

	recent, err := svc.RecentReports(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, recent)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReadinessService_RecentReportsLimit(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	for _, limit := range []int{0, -1, 101} {
		_, err := svc.RecentReports(ctx, limit)
		assert.ErrorIs(t, err, ErrInvalidLimit, "limit %d", limit)
	}
	_, err := svc.RecentReports(ctx, 100)
	assert.NoError(t, err)
}

func TestReadinessService_NoRepository(t *testing.T) {
	svc := NewReadinessService(newTestAnalyzer(t), nil, nil, 0)
	ctx := context.Background()

	_, err := svc.Upload(ctx, []byte(sampleCSV), "", models.UploadContext{})
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	_, err = svc.GetReport(ctx, "3f1c7a52-8a53-4f44-9d38-3cb0a5f4f2aa")
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	_, err = svc.PurgeExpired(ctx)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)

	report, err := svc.AnalyzeInline([]byte(sampleCSV), "", models.UploadContext{Country: "SA"}, models.Questionnaire{})
	require.NoError(t, err)
	assert.Empty(t, report.ReportID)
	assert.Nil(t, report.ExpiresAt)
	assert.Equal(t, StoreNone, report.Meta.DB)
	assert.Equal(t, "SA", report.Meta.Country)
}
