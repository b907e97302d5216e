package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

// SaveReport stores a report for an upload; ReportID and ExpiresAt must be set
func (r *Repository) SaveReport(ctx context.Context, uploadID string, report *models.Report) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	if report.ExpiresAt == nil {
		return fmt.Errorf("report %s has no expiry", report.ReportID)
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO reports (id, upload_id, scores_overall, readiness, report_json, country, erp, expires_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5::jsonb, NULLIF($6, ''), NULLIF($7, ''), $8)
	`

	_, err = Pool.Exec(ctx, query,
		report.ReportID, uploadID, report.Scores.Overall, report.Readiness, string(reportJSON),
		report.Meta.Country, report.Meta.ERP, *report.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport loads a report that has not expired yet
func (r *Repository) GetReport(ctx context.Context, id string) (*models.Report, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT report_json
		FROM reports
		WHERE id = $1::uuid AND expires_at > now()
	`

	var raw []byte
	err := Pool.QueryRow(ctx, query, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &report, nil
}

// RecentReports lists unexpired reports, newest first
func (r *Repository) RecentReports(ctx context.Context, limit int) ([]models.ReportSummary, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id::text, created_at, scores_overall, COALESCE(country, ''), COALESCE(erp, '')
		FROM reports
		WHERE expires_at > now()
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.ReportSummary{}
	for rows.Next() {
		var s models.ReportSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.OverallScore, &s.Country, &s.ERP); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// PurgeExpiredReports deletes reports past their expiry and returns how many were removed
func (r *Repository) PurgeExpiredReports(ctx context.Context) (int64, error) {
	if Pool == nil {
		return 0, ErrNoDatabase
	}

	tag, err := Pool.Exec(ctx, `DELETE FROM reports WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reports: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats summarizes stored uploads and reports
type Stats struct {
	Uploads      int64      `json:"uploads"`
	Reports      int64      `json:"reports"`
	LastReportAt *time.Time `json:"lastReportAt,omitempty"`
}

// GetStats counts uploads and reports for the health endpoint
func GetStats(ctx context.Context) (*Stats, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM uploads),
			(SELECT COUNT(*) FROM reports),
			(SELECT MAX(created_at) FROM reports)
	`

	var stats Stats
	err := Pool.QueryRow(ctx, query).Scan(&stats.Uploads, &stats.Reports, &stats.LastReportAt)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
