// Package team implements the team store: CRUD and queries over team
// records. The store validates member limits and role slots but never
// mutates license state; capacity accounting belongs to the allocation
// coordinator.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// Store owns the canonical set of team records.
type Store struct {
	repo   storage.TeamRepository
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a team store backed by the given repository.
func NewStore(repo storage.TeamRepository, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		repo:   repo,
		logger: logger.With(slog.String("component", "team_store")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the fields of a new team. MaxMembers is the
// member limit supplied by the caller from the binding license; zero
// means unlimited (enterprise model).
type CreateRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=120"`
	Description string              `json:"description,omitempty" validate:"max=500"`
	StudentName string              `json:"student_name" validate:"required,min=1,max=120"`
	Members     []domain.TeamMember `json:"members" validate:"dive"`
	LicenseID   string              `json:"license_id"`
	MaxMembers  int                 `json:"-"`
}

// Create validates and persists a new team. Member JoinedAt timestamps
// default to insertion time; member ids are assigned when absent.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*domain.Team, error) {
	if req.MaxMembers > 0 && len(req.Members) > req.MaxMembers {
		return nil, fmt.Errorf("%d members exceeds limit %d: %w",
			len(req.Members), req.MaxMembers, apperrors.ErrMemberLimitExceeded)
	}
	if err := validateRoleSlots(req.Members); err != nil {
		return nil, err
	}

	now := s.now()
	team := &domain.Team{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		StudentName: req.StudentName,
		Members:     normalizeMembers(req.Members, now),
		Licenses:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.LicenseID != "" {
		team.Licenses = []string{req.LicenseID}
	}

	if err := s.repo.Create(ctx, team); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}

	s.logger.InfoContext(ctx, "team created",
		slog.String("team_id", team.ID),
		slog.String("student_name", team.StudentName),
		slog.Int("member_count", len(team.Members)),
	)
	return team, nil
}

// UpdateRequest carries the editable fields of a team. License bindings
// are coordinator-owned and not editable here.
type UpdateRequest struct {
	Name        *string             `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string             `json:"description,omitempty" validate:"omitempty,max=500"`
	StudentName *string             `json:"student_name,omitempty" validate:"omitempty,min=1,max=120"`
	Members     []domain.TeamMember `json:"members,omitempty" validate:"omitempty,dive"`

	// MaxMembers re-checks the license member limit when members change;
	// supplied by the caller, zero means unlimited.
	MaxMembers int `json:"-"`
}

// Update applies an edit to the team with the given id.
func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (*domain.Team, error) {
	team, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		team.Name = *req.Name
	}
	if req.Description != nil {
		team.Description = *req.Description
	}
	if req.StudentName != nil {
		team.StudentName = *req.StudentName
	}
	if req.Members != nil {
		if req.MaxMembers > 0 && len(req.Members) > req.MaxMembers {
			return nil, fmt.Errorf("%d members exceeds limit %d: %w",
				len(req.Members), req.MaxMembers, apperrors.ErrMemberLimitExceeded)
		}
		if err := validateRoleSlots(req.Members); err != nil {
			return nil, err
		}
		team.Members = normalizeMembers(req.Members, s.now())
	}

	team.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, team); err != nil {
		return nil, fmt.Errorf("update team: %w", err)
	}

	s.logger.InfoContext(ctx, "team updated", slog.String("team_id", team.ID))
	return team, nil
}

// Delete removes the team and returns the license id it was bound to, or
// "" when unbound, so the caller can run capacity-accounting rollback.
// The store never adjusts license counters itself.
func (s *Store) Delete(ctx context.Context, id string) (string, error) {
	team, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("delete team: %w", err)
	}

	s.logger.InfoContext(ctx, "team deleted",
		slog.String("team_id", id),
		slog.String("license_id", team.LicenseID()),
	)
	return team.LicenseID(), nil
}

// Get returns the team with the given id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Team, error) {
	return s.repo.Get(ctx, id)
}

// ListAll returns every team.
func (s *Store) ListAll(ctx context.Context) ([]*domain.Team, error) {
	return s.repo.List(ctx)
}

// ListByLicense returns the teams bound to the given license.
func (s *Store) ListByLicense(ctx context.Context, licenseID string) ([]*domain.Team, error) {
	return s.repo.ListByLicense(ctx, licenseID)
}

// SetLicenses replaces the team's license bindings. Coordinator-only.
func (s *Store) SetLicenses(ctx context.Context, team *domain.Team, licenses []string) error {
	team.Licenses = append([]string(nil), licenses...)
	team.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, team); err != nil {
		return fmt.Errorf("set team licenses: %w", err)
	}
	return nil
}

// validateRoleSlots enforces the singleton coordinator and parent slots.
func validateRoleSlots(members []domain.TeamMember) error {
	coordinators, parents := 0, 0
	for _, m := range members {
		switch m.Role {
		case domain.RoleCoordinator:
			coordinators++
		case domain.RoleParent:
			parents++
		case domain.RoleProfessional:
		default:
			return apperrors.NewValidationError(fmt.Sprintf("unknown member role %q", m.Role))
		}
	}
	if coordinators > 1 {
		return apperrors.NewValidationError("a team holds at most one coordinator")
	}
	if parents > 1 {
		return apperrors.NewValidationError("a team holds at most one parent")
	}
	return nil
}

func normalizeMembers(members []domain.TeamMember, now time.Time) []domain.TeamMember {
	out := make([]domain.TeamMember, len(members))
	for i, m := range members {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.JoinedAt.IsZero() {
			m.JoinedAt = now
		}
		out[i] = m
	}
	return out
}
