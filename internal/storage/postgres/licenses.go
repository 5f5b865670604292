package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

const licenseColumns = `id, key, type, model, max_users, total_count, used_count,
	expires_at, is_active, status, assigned_to, last_validated, teams, features,
	created_at, updated_at, version`

// LicenseRepository persists licenses in the licenses table.
type LicenseRepository struct {
	pool *pgxpool.Pool
}

// NewLicenseRepository creates a Postgres-backed license repository.
func NewLicenseRepository(pool *pgxpool.Pool) *LicenseRepository {
	return &LicenseRepository{pool: pool}
}

// Create inserts a new license row.
func (r *LicenseRepository) Create(ctx context.Context, lic *domain.License) error {
	query := `
		INSERT INTO licenses (id, key, type, model, max_users, total_count, used_count,
			expires_at, is_active, status, assigned_to, last_validated, teams, features,
			created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.pool.Exec(ctx, query,
		lic.ID, lic.Key, lic.Type, lic.Model, lic.MaxUsers, lic.TotalCount, lic.UsedCount,
		lic.ExpiresAt, lic.IsActive, lic.Status, lic.AssignedTo, lic.LastValidated,
		lic.Teams, lic.Features, lic.CreatedAt, lic.UpdatedAt, lic.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrDuplicateKey
		}
		return apperrors.NewTransportError("create license", err)
	}
	return nil
}

// Get returns the license with the given id.
func (r *LicenseRepository) Get(ctx context.Context, id string) (*domain.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE id = $1`, licenseColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByKey returns the license holding the given credential key.
func (r *LicenseRepository) GetByKey(ctx context.Context, key string) (*domain.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE key = $1`, licenseColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, key))
}

// Update replaces the stored row if the caller's version still matches;
// a stale version lost a concurrent write and returns ErrConflict.
func (r *LicenseRepository) Update(ctx context.Context, lic *domain.License) error {
	query := `
		UPDATE licenses
		SET key = $2, type = $3, model = $4, max_users = $5, total_count = $6,
			used_count = $7, expires_at = $8, is_active = $9, status = $10,
			assigned_to = $11, last_validated = $12, teams = $13, features = $14,
			updated_at = $15, version = version + 1
		WHERE id = $1 AND version = $16
		RETURNING version
	`

	err := r.pool.QueryRow(ctx, query,
		lic.ID, lic.Key, lic.Type, lic.Model, lic.MaxUsers, lic.TotalCount,
		lic.UsedCount, lic.ExpiresAt, lic.IsActive, lic.Status,
		lic.AssignedTo, lic.LastValidated, lic.Teams, lic.Features, lic.UpdatedAt,
		lic.Version,
	).Scan(&lic.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.Get(ctx, lic.ID); getErr != nil {
				return getErr
			}
			return apperrors.ErrConflict
		}
		return apperrors.NewTransportError("update license", err)
	}
	return nil
}

// Delete removes the license row.
func (r *LicenseRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewTransportError("delete license", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrLicenseNotFound
	}
	return nil
}

// List returns all licenses ordered by creation time.
func (r *LicenseRepository) List(ctx context.Context) ([]*domain.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses ORDER BY created_at, id`, licenseColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewTransportError("list licenses", err)
	}
	defer rows.Close()

	var out []*domain.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, apperrors.NewTransportError("scan license", err)
		}
		out = append(out, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewTransportError("list licenses", err)
	}
	return out, nil
}

// Ping implements storage.Pinger.
func (r *LicenseRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return apperrors.NewTransportError("ping database", err)
	}
	return nil
}

func (r *LicenseRepository) scanOne(row pgx.Row) (*domain.License, error) {
	lic, err := scanLicense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrLicenseNotFound
		}
		return nil, apperrors.NewTransportError("get license", err)
	}
	return lic, nil
}

func scanLicense(row pgx.Row) (*domain.License, error) {
	var lic domain.License
	err := row.Scan(
		&lic.ID, &lic.Key, &lic.Type, &lic.Model, &lic.MaxUsers, &lic.TotalCount,
		&lic.UsedCount, &lic.ExpiresAt, &lic.IsActive, &lic.Status,
		&lic.AssignedTo, &lic.LastValidated, &lic.Teams, &lic.Features,
		&lic.CreatedAt, &lic.UpdatedAt, &lic.Version,
	)
	if err != nil {
		return nil, err
	}
	if lic.Teams == nil {
		lic.Teams = []string{}
	}
	if lic.Features == nil {
		lic.Features = []string{}
	}
	return &lic, nil
}
