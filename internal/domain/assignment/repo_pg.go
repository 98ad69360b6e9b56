package assignment

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

// The eligibility check and the upsert are one statement: the doctor row is
// share-locked so it cannot be rejected between check and write, and the
// primary key on patient_id serializes concurrent selections.
const replaceSQL = `
	INSERT INTO doctor_patients (patient_id, doctor_id, assigned_at)
	SELECT $1, d.id, clock_timestamp()
	FROM profiles d
	WHERE d.id = $2 AND d.role = 'doctor' AND d.status = 'approved'
	FOR SHARE OF d
	ON CONFLICT (patient_id) DO UPDATE
		SET doctor_id = EXCLUDED.doctor_id, assigned_at = EXCLUDED.assigned_at
	RETURNING patient_id, doctor_id, assigned_at`

func (r *repoPG) Replace(ctx context.Context, patientID, doctorID string) (*Assignment, error) {
	a, err := scanAssignment(r.conn(ctx).QueryRow(ctx, replaceSQL, patientID, doctorID))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrDoctorNotEligible
	}
	if err != nil {
		return nil, fmt.Errorf("replace assignment: %w", err)
	}
	return a, nil
}

func (r *repoPG) GetByPatient(ctx context.Context, patientID string) (*Assignment, error) {
	return scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT patient_id, doctor_id, assigned_at FROM doctor_patients WHERE patient_id = $1`, patientID))
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID string) ([]*Assignment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, doctor_id, assigned_at FROM doctor_patients
		WHERE doctor_id = $1
		ORDER BY assigned_at DESC, patient_id ASC`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.PatientID, &a.DoctorID, &a.AssignedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	return &a, nil
}
