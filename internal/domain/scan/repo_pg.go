package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retinacare/retina/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const scanCols = `id, patient_id, created_by, captured_at, original_image_ref, heatmap_image_ref,
	diagnosis, severity, confidence, model_version, inference_mode, inference_time_ms,
	preprocessing_method, COALESCE(metadata, '{}'::jsonb)`

func (r *repoPG) Create(ctx context.Context, s *Scan) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scans (patient_id, created_by, captured_at, original_image_ref, heatmap_image_ref,
			diagnosis, severity, confidence, model_version, inference_mode, inference_time_ms,
			preprocessing_method, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		s.PatientID, s.CreatedBy, s.CapturedAt, s.OriginalImageRef, s.HeatmapImageRef,
		s.Diagnosis, s.Severity, s.Confidence, s.ModelVersion, s.InferenceMode, s.InferenceTimeMs,
		s.PreprocessingMethod, s.Metadata,
	).Scan(&s.ID)
	if db.ForeignKeyViolation(err) {
		return ErrPatientNotFound
	}
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Scan, error) {
	return scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+scanCols+` FROM scans WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, scope Scope, limit, offset int) ([]*Scan, int, error) {
	if scope.Empty() {
		return []*Scan{}, 0, nil
	}

	where, args := "", []any{}
	if !scope.All {
		where = "WHERE patient_id = ANY($1)"
		args = append(args, scope.PatientIDs)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM scans `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scans: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM scans %s ORDER BY captured_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		scanCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	out := []*Scan{}
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate scans: %w", err)
	}
	return out, total, nil
}

func scanRow(row pgx.Row) (*Scan, error) {
	var s Scan
	err := row.Scan(
		&s.ID, &s.PatientID, &s.CreatedBy, &s.CapturedAt, &s.OriginalImageRef, &s.HeatmapImageRef,
		&s.Diagnosis, &s.Severity, &s.Confidence, &s.ModelVersion, &s.InferenceMode, &s.InferenceTimeMs,
		&s.PreprocessingMethod, &s.Metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return &s, nil
}
