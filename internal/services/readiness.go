package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/facturaIA/einvoice-readiness-service/internal/db"
	"github.com/facturaIA/einvoice-readiness-service/internal/ingest"
	"github.com/facturaIA/einvoice-readiness-service/internal/metrics"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

const (
	MinRecentLimit = 1
	MaxRecentLimit = 100

	// Values of ReportMeta.DB
	StorePostgres = "postgresql"
	StoreNone     = "none"
)

var (
	ErrUploadNotFound         = errors.New("upload not found")
	ErrReportNotFound         = errors.New("report not found or expired")
	ErrPersistenceUnavailable = errors.New("persistence not available")
	ErrInvalidLimit           = fmt.Errorf("limit must be between %d and %d", MinRecentLimit, MaxRecentLimit)
)

// Repository stores uploads and reports.
// Lookups return db.ErrNotFound for unknown ids; GetReport also hides expired reports.
type Repository interface {
	SaveUpload(ctx context.Context, up *models.Upload) error
	GetUpload(ctx context.Context, id string) (*models.Upload, error)
	SaveReport(ctx context.Context, uploadID string, report *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	RecentReports(ctx context.Context, limit int) ([]models.ReportSummary, error)
	PurgeExpiredReports(ctx context.Context) (int64, error)
}

// RawStore keeps raw upload payloads outside the database
type RawStore interface {
	PutRaw(ctx context.Context, uploadID, format string, data []byte) (string, error)
	GetRaw(ctx context.Context, objectPath string) ([]byte, error)
	DeleteRaw(ctx context.Context, objectPath string) error
}

// UploadResult is returned by Upload
type UploadResult struct {
	UploadID   string `json:"uploadId"`
	RowsParsed int    `json:"rowsParsed"`
}

// ReadinessService manages the upload -> analyze -> report lifecycle
type ReadinessService struct {
	analyzer  *Analyzer
	repo      Repository
	raw       RawStore
	retention time.Duration
	now       func() time.Time
}

// NewReadinessService wires the analyzer to persistence. repo may be nil
// (inline analysis only) and raw may be nil (payloads kept in the database).
func NewReadinessService(analyzer *Analyzer, repo Repository, raw RawStore, retention time.Duration) *ReadinessService {
	if retention <= 0 {
		retention = models.DefaultRetentionDays * 24 * time.Hour
	}
	return &ReadinessService{
		analyzer:  analyzer,
		repo:      repo,
		raw:       raw,
		retention: retention,
		now:       time.Now,
	}
}

// Analyzer returns the underlying pipeline
func (s *ReadinessService) Analyzer() *Analyzer {
	return s.analyzer
}

// Upload ingests a payload and stores it for a later analysis
func (s *ReadinessService) Upload(ctx context.Context, data []byte, format ingest.Format, uc models.UploadContext) (*UploadResult, error) {
	if s.repo == nil {
		return nil, ErrPersistenceUnavailable
	}

	batch, err := ingest.Load(data, format)
	if err != nil {
		return nil, err
	}
	metrics.RecordIngest(string(batch.Format), batch.Parsed(), batch.Attempted)

	up := &models.Upload{
		ID:         uuid.NewString(),
		Format:     string(batch.Format),
		RowsParsed: batch.Parsed(),
		Country:    uc.Country,
		ERP:        uc.ERP,
	}

	if s.raw != nil {
		path, err := s.raw.PutRaw(ctx, up.ID, up.Format, data)
		if err != nil {
			log.Printf("Warning: failed to store upload %s in object storage, keeping it inline: %v", up.ID, err)
		} else {
			up.ObjectPath = path
		}
	}
	if up.ObjectPath == "" {
		up.RawData = data
	}

	if err := s.repo.SaveUpload(ctx, up); err != nil {
		if up.ObjectPath != "" {
			if delErr := s.raw.DeleteRaw(ctx, up.ObjectPath); delErr != nil {
				log.Printf("Warning: failed to remove orphaned payload %s: %v", up.ObjectPath, delErr)
			}
		}
		return nil, persistenceError(err)
	}

	return &UploadResult{UploadID: up.ID, RowsParsed: up.RowsParsed}, nil
}

// Analyze re-ingests a stored upload, analyses it and stores the report
func (s *ReadinessService) Analyze(ctx context.Context, uploadID string, posture models.Questionnaire) (*models.Report, error) {
	if s.repo == nil {
		return nil, ErrPersistenceUnavailable
	}
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}

	up, err := s.repo.GetUpload(ctx, uploadID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	if err != nil {
		return nil, persistenceError(err)
	}

	data := up.RawData
	if up.ObjectPath != "" {
		if s.raw == nil {
			return nil, fmt.Errorf("upload %s: %w", uploadID, ErrPersistenceUnavailable)
		}
		if data, err = s.raw.GetRaw(ctx, up.ObjectPath); err != nil {
			return nil, fmt.Errorf("upload %s: %w", uploadID, err)
		}
	}

	start := s.now()
	batch, err := ingest.Load(data, ingest.Format(up.Format))
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", uploadID, err)
	}
	report, err := s.analyzer.Analyze(batch, posture)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.retention).UTC()
	report.ReportID = uuid.NewString()
	report.ExpiresAt = &expiresAt
	report.Meta.Country = up.Country
	report.Meta.ERP = up.ERP
	report.Meta.DB = StorePostgres

	if err := s.repo.SaveReport(ctx, up.ID, report); err != nil {
		return nil, persistenceError(err)
	}

	metrics.RecordAnalysis(report, "stored", s.now().Sub(start))
	return report, nil
}

// AnalyzeInline analyses a payload without storing anything
func (s *ReadinessService) AnalyzeInline(data []byte, format ingest.Format, uc models.UploadContext, posture models.Questionnaire) (*models.Report, error) {
	start := s.now()

	batch, err := ingest.Load(data, format)
	if err != nil {
		return nil, err
	}
	metrics.RecordIngest(string(batch.Format), batch.Parsed(), batch.Attempted)

	report, err := s.analyzer.Analyze(batch, posture)
	if err != nil {
		return nil, err
	}
	report.Meta.Country = uc.Country
	report.Meta.ERP = uc.ERP
	report.Meta.DB = StoreNone

	metrics.RecordAnalysis(report, "inline", s.now().Sub(start))
	return report, nil
}

// GetReport returns a stored report that has not expired
func (s *ReadinessService) GetReport(ctx context.Context, reportID string) (*models.Report, error) {
	if s.repo == nil {
		return nil, ErrPersistenceUnavailable
	}
	if _, err := uuid.Parse(reportID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}

	report, err := s.repo.GetReport(ctx, reportID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	if err != nil {
		return nil, persistenceError(err)
	}
	if report.ExpiresAt != nil && !s.now().Before(*report.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}

	report.ReportID = reportID
	return report, nil
}

// RecentReports lists unexpired report summaries, newest first
func (s *ReadinessService) RecentReports(ctx context.Context, limit int) ([]models.ReportSummary, error) {
	if limit < MinRecentLimit || limit > MaxRecentLimit {
		return nil, ErrInvalidLimit
	}
	if s.repo == nil {
		return nil, ErrPersistenceUnavailable
	}

	reports, err := s.repo.RecentReports(ctx, limit)
	if err != nil {
		return nil, persistenceError(err)
	}
	return reports, nil
}

// PurgeExpired removes reports past their retention
func (s *ReadinessService) PurgeExpired(ctx context.Context) (int64, error) {
	if s.repo == nil {
		return 0, ErrPersistenceUnavailable
	}
	n, err := s.repo.PurgeExpiredReports(ctx)
	if err != nil {
		return 0, persistenceError(err)
	}
	return n, nil
}

func persistenceError(err error) error {
	if errors.Is(err, db.ErrNoDatabase) {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return err
}
