package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"refkb/internal/platform/database"
	refmodels "refkb/internal/reference/models"
	"refkb/pkg/platform/sentinel"
	txcontext "refkb/pkg/platform/tx"
)

// ReferenceStore persists biomarker reference records.
type ReferenceStore struct {
	db *database.DB
}

const biomarkerColumns = `slug, name, category, unit, description, clinical_significance,
	optimal_min, optimal_max, lab_min, lab_max, critical_low, critical_high,
	sync_metadata, created_at`

func (s *ReferenceStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db.DB)
}

func (s *ReferenceStore) q(query string) string {
	return s.db.Dialect.Rebind(query)
}

func (s *ReferenceStore) FindBiomarker(ctx context.Context, slug string) (*refmodels.Biomarker, error) {
	row := s.execer(ctx).QueryRowContext(ctx, s.q(`
		SELECT `+biomarkerColumns+`
		FROM biomarkers
		WHERE slug = $1
	`), slug)

	var (
		b    refmodels.Biomarker
		meta []byte
	)
	err := row.Scan(
		&b.Slug,
		&b.Name,
		&b.Category,
		&b.Unit,
		&b.Description,
		&b.ClinicalSignificance,
		&b.OptimalMin,
		&b.OptimalMax,
		&b.LabMin,
		&b.LabMax,
		&b.CriticalLow,
		&b.CriticalHigh,
		&meta,
		&b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find biomarker: %w", err)
	}
	if len(meta) > 0 {
		var m refmodels.SyncMetadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decode sync metadata for %s: %w", slug, err)
		}
		b.SyncMetadata = &m
	}
	return &b, nil
}

// CreateBiomarker returns sentinel.ErrAlreadyUsed when the slug is taken.
func (s *ReferenceStore) CreateBiomarker(ctx context.Context, b *refmodels.Biomarker) error {
	meta, err := metadataArg(b.SyncMetadata)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, s.q(`
		INSERT INTO biomarkers (`+biomarkerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (slug) DO NOTHING
	`),
		b.Slug,
		b.Name,
		b.Category,
		b.Unit,
		b.Description,
		b.ClinicalSignificance,
		b.OptimalMin,
		b.OptimalMax,
		b.LabMin,
		b.LabMax,
		b.CriticalLow,
		b.CriticalHigh,
		meta,
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert biomarker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert biomarker: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

// UpdateBiomarker overwrites every column of an existing record.
func (s *ReferenceStore) UpdateBiomarker(ctx context.Context, b *refmodels.Biomarker) error {
	meta, err := metadataArg(b.SyncMetadata)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, s.q(`
		UPDATE biomarkers
		SET name = $2,
			category = $3,
			unit = $4,
			description = $5,
			clinical_significance = $6,
			optimal_min = $7,
			optimal_max = $8,
			lab_min = $9,
			lab_max = $10,
			critical_low = $11,
			critical_high = $12,
			sync_metadata = $13
		WHERE slug = $1
	`),
		b.Slug,
		b.Name,
		b.Category,
		b.Unit,
		b.Description,
		b.ClinicalSignificance,
		b.OptimalMin,
		b.OptimalMax,
		b.LabMin,
		b.LabMax,
		b.CriticalLow,
		b.CriticalHigh,
		meta,
	)
	if err != nil {
		return fmt.Errorf("update biomarker: %w", err)
	}
	return requireOneRow(res, "update biomarker")
}

func (s *ReferenceStore) DeleteBiomarker(ctx context.Context, slug string) error {
	res, err := s.execer(ctx).ExecContext(ctx, s.q(`DELETE FROM biomarkers WHERE slug = $1`), slug)
	if err != nil {
		return fmt.Errorf("delete biomarker: %w", err)
	}
	return requireOneRow(res, "delete biomarker")
}

func metadataArg(m *refmodels.SyncMetadata) (any, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal sync metadata: %w", err)
	}
	return string(raw), nil
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
