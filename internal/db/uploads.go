package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/einvoice-readiness-service/internal/models"
)

// Repository persists uploads and reports in Postgres through the global Pool
type Repository struct{}

// NewRepository returns a repository over the global Pool
func NewRepository() *Repository {
	return &Repository{}
}

// SaveUpload inserts an upload; CreatedAt is set from the database
func (r *Repository) SaveUpload(ctx context.Context, up *models.Upload) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	query := `
		INSERT INTO uploads (id, format, raw_data, object_path, rows_parsed, country, erp)
		VALUES ($1::uuid, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at
	`

	err := Pool.QueryRow(ctx, query,
		up.ID, up.Format, up.RawData, up.ObjectPath, up.RowsParsed, up.Country, up.ERP,
	).Scan(&up.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return nil
}

// GetUpload loads an upload with its inline payload, if any
func (r *Repository) GetUpload(ctx context.Context, id string) (*models.Upload, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		SELECT id::text, format, raw_data, COALESCE(object_path, ''), rows_parsed,
		       COALESCE(country, ''), COALESCE(erp, ''), created_at
		FROM uploads
		WHERE id = $1::uuid
	`

	var up models.Upload
	err := Pool.QueryRow(ctx, query, id).Scan(
		&up.ID, &up.Format, &up.RawData, &up.ObjectPath, &up.RowsParsed,
		&up.Country, &up.ERP, &up.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &up, nil
}
