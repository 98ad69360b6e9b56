package profile

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

const profileCols = `id, email, role, status, name, phone, date_of_birth, gender, address,
	license_number, specialty, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Profile) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profiles (id, email, role, status, name, phone, date_of_birth, gender, address,
			license_number, specialty)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at`,
		p.ID, p.Email, p.Role, p.Status, p.Name, p.Phone, p.DateOfBirth, p.Gender, p.Address,
		p.LicenseNumber, p.Specialty,
	)
	err := row.Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyExists
	}
	if _, ok := db.UniqueViolation(err); ok {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Profile, error) {
	p, err := scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) GetMany(ctx context.Context, ids []string) ([]*Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	return collectProfiles(rows)
}

func (r *repoPG) ListDoctors(ctx context.Context, status Status) ([]*Profile, error) {
	order := "name ASC, id ASC"
	if status == StatusPending {
		order = "created_at ASC, id ASC"
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE role = $1 AND status = $2 ORDER BY `+order,
		RoleDoctor, status)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	return collectProfiles(rows)
}

func (r *repoPG) TransitionDoctorStatus(ctx context.Context, id string, from, to Status) (*Profile, error) {
	p, err := scanProfile(r.conn(ctx).QueryRow(ctx, `
		UPDATE profiles SET status = $3, updated_at = NOW()
		WHERE id = $1 AND role = 'doctor' AND status = $2
		RETURNING `+profileCols, id, from, to))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update doctor status: %w", err)
	}

	// Nothing matched: tell a missing doctor apart from a decided one.
	var role Role
	err = r.conn(ctx).QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && role != RoleDoctor) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup doctor: %w", err)
	}
	return nil, ErrStatusDecided
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.Email, &p.Role, &p.Status, &p.Name, &p.Phone, &p.DateOfBirth, &p.Gender, &p.Address,
		&p.LicenseNumber, &p.Specialty, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

func collectProfiles(rows pgx.Rows) ([]*Profile, error) {
	defer rows.Close()
	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}
