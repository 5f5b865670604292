package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

const teamColumns = `id, name, description, student_name, members, licenses, created_at, updated_at`

// TeamRepository persists teams in the teams table. Members are stored
// as a JSONB document.
type TeamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository creates a Postgres-backed team repository.
func NewTeamRepository(pool *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{pool: pool}
}

// Create inserts a new team row.
func (r *TeamRepository) Create(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}

	query := `
		INSERT INTO teams (id, name, description, student_name, members, licenses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		team.ID, team.Name, team.Description, team.StudentName,
		members, team.Licenses, team.CreatedAt, team.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewTransportError("create team", err)
	}
	return nil
}

// Get returns the team with the given id.
func (r *TeamRepository) Get(ctx context.Context, id string) (*domain.Team, error) {
	query := fmt.Sprintf(`SELECT %s FROM teams WHERE id = $1`, teamColumns)
	team, err := scanTeam(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTeamNotFound
		}
		return nil, apperrors.NewTransportError("get team", err)
	}
	return team, nil
}

// Update replaces the stored row.
func (r *TeamRepository) Update(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}

	query := `
		UPDATE teams
		SET name = $2, description = $3, student_name = $4, members = $5,
			licenses = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		team.ID, team.Name, team.Description, team.StudentName,
		members, team.Licenses, team.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewTransportError("update team", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTeamNotFound
	}
	return nil
}

// Delete removes the team row.
func (r *TeamRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewTransportError("delete team", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTeamNotFound
	}
	return nil
}

// List returns all teams ordered by creation time.
func (r *TeamRepository) List(ctx context.Context) ([]*domain.Team, error) {
	query := fmt.Sprintf(`SELECT %s FROM teams ORDER BY created_at, id`, teamColumns)
	return r.queryTeams(ctx, query)
}

// ListByLicense returns teams bound to the given license.
func (r *TeamRepository) ListByLicense(ctx context.Context, licenseID string) ([]*domain.Team, error) {
	query := fmt.Sprintf(`SELECT %s FROM teams WHERE $1 = ANY(licenses) ORDER BY created_at, id`, teamColumns)
	return r.queryTeams(ctx, query, licenseID)
}

// Ping implements storage.Pinger.
func (r *TeamRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return apperrors.NewTransportError("ping database", err)
	}
	return nil
}

func (r *TeamRepository) queryTeams(ctx context.Context, query string, args ...interface{}) ([]*domain.Team, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewTransportError("list teams", err)
	}
	defer rows.Close()

	var out []*domain.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, apperrors.NewTransportError("scan team", err)
		}
		out = append(out, team)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewTransportError("list teams", err)
	}
	return out, nil
}

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var team domain.Team
	var members []byte
	err := row.Scan(
		&team.ID, &team.Name, &team.Description, &team.StudentName,
		&members, &team.Licenses, &team.CreatedAt, &team.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &team.Members); err != nil {
		return nil, fmt.Errorf("unmarshal members: %w", err)
	}
	if team.Licenses == nil {
		team.Licenses = []string{}
	}
	return &team, nil
}
