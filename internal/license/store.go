package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// Store owns the canonical set of license records.
type Store struct {
	repo   storage.LicenseRepository
	cache  *ValidationCache
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source. Used by tests to pin
// expiry arithmetic.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithValidationCache attaches a validation-result cache that gets
// invalidated on every license mutation.
func WithValidationCache(cache *ValidationCache) StoreOption {
	return func(s *Store) { s.cache = cache }
}

// NewStore creates a license store backed by the given repository.
func NewStore(repo storage.LicenseRepository, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		repo:   repo,
		logger: logger.With(slog.String("component", "license_store")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest carries the caller-supplied fields of a new license.
type CreateRequest struct {
	Key        string              `json:"key" validate:"required,min=10"`
	Type       domain.LicenseType  `json:"type" validate:"required,oneof=trial standard professional enterprise individual"`
	Model      domain.LicenseModel `json:"model" validate:"required,oneof=individual enterprise"`
	MaxUsers   int                 `json:"max_users" validate:"min=1"`
	TotalCount int                 `json:"total_count" validate:"min=0"`
	ExpiresAt  time.Time           `json:"expires_at" validate:"required"`
	IsActive   bool                `json:"is_active"`
	AssignedTo string              `json:"assigned_to,omitempty"`
	Features   []string            `json:"features,omitempty"`
}

// Create persists a new license. The key must be unique; usedCount starts
// at zero and status is derived from the active flag and expiry.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*domain.License, error) {
	if req.Model == domain.LicenseModelEnterprise && req.TotalCount < 1 {
		return nil, apperrors.NewValidationError("enterprise license requires total_count >= 1")
	}
	if req.Model == domain.LicenseModelIndividual && req.MaxUsers < 1 {
		return nil, apperrors.NewValidationError("individual license requires max_users >= 1")
	}

	now := s.now()
	lic := &domain.License{
		ID:         uuid.New().String(),
		Key:        req.Key,
		Type:       req.Type,
		Model:      req.Model,
		MaxUsers:   req.MaxUsers,
		TotalCount: req.TotalCount,
		UsedCount:  0,
		ExpiresAt:  req.ExpiresAt,
		IsActive:   req.IsActive,
		AssignedTo: req.AssignedTo,
		Teams:      []string{},
		Features:   append([]string(nil), req.Features...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	lic.Status = lic.DeriveStatus(now)

	if err := s.repo.Create(ctx, lic); err != nil {
		return nil, fmt.Errorf("create license: %w", err)
	}

	s.logger.InfoContext(ctx, "license created",
		slog.String("license_id", lic.ID),
		slog.String("model", string(lic.Model)),
		slog.String("type", string(lic.Type)),
		slog.Int("total_count", lic.TotalCount),
	)
	return lic, nil
}

// UpdateRequest carries the mutable fields of a license edit. Key, model
// and type are immutable after creation; usedCount and teams are
// accountant-owned and rejected here.
type UpdateRequest struct {
	MaxUsers   *int       `json:"max_users,omitempty" validate:"omitempty,min=1"`
	TotalCount *int       `json:"total_count,omitempty" validate:"omitempty,min=0"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
	AssignedTo *string    `json:"assigned_to,omitempty"`
	Features   []string   `json:"features,omitempty"`

	// Rejected when present: these fields belong to the coordinator path.
	Key       *string  `json:"key,omitempty"`
	Model     *string  `json:"model,omitempty"`
	Type      *string  `json:"type,omitempty"`
	UsedCount *int     `json:"used_count,omitempty"`
	Teams     []string `json:"teams,omitempty"`
}

// Update applies an edit to the license with the given id.
func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (*domain.License, error) {
	lic, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Key != nil && *req.Key != lic.Key {
		return nil, fmt.Errorf("key: %w", apperrors.ErrImmutableField)
	}
	if req.Model != nil && *req.Model != string(lic.Model) {
		return nil, fmt.Errorf("model: %w", apperrors.ErrImmutableField)
	}
	if req.Type != nil && *req.Type != string(lic.Type) {
		return nil, fmt.Errorf("type: %w", apperrors.ErrImmutableField)
	}
	if req.UsedCount != nil && *req.UsedCount != lic.UsedCount {
		return nil, fmt.Errorf("used_count: %w", apperrors.ErrAccountantOwnedField)
	}
	if req.Teams != nil && !equalStrings(req.Teams, lic.Teams) {
		return nil, fmt.Errorf("teams: %w", apperrors.ErrAccountantOwnedField)
	}

	if req.MaxUsers != nil {
		lic.MaxUsers = *req.MaxUsers
	}
	if req.TotalCount != nil {
		if lic.Model == domain.LicenseModelEnterprise && *req.TotalCount < lic.UsedCount {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("total_count %d below used_count %d", *req.TotalCount, lic.UsedCount))
		}
		lic.TotalCount = *req.TotalCount
	}
	if req.ExpiresAt != nil {
		lic.ExpiresAt = *req.ExpiresAt
	}
	if req.IsActive != nil {
		lic.IsActive = *req.IsActive
	}
	if req.AssignedTo != nil {
		lic.AssignedTo = *req.AssignedTo
	}
	if req.Features != nil {
		lic.Features = append([]string(nil), req.Features...)
	}

	now := s.now()
	lic.UpdatedAt = now
	lic.Status = lic.DeriveStatus(now)

	if err := s.repo.Update(ctx, lic); err != nil {
		return nil, fmt.Errorf("update license: %w", err)
	}
	s.invalidate(lic.ID)

	s.logger.InfoContext(ctx, "license updated",
		slog.String("license_id", lic.ID),
		slog.String("status", string(lic.Status)),
	)
	return lic, nil
}

// Delete removes a license that holds no team bindings. Callers that need
// a cascade go through the allocation coordinator, which detaches every
// bound team before passing through this guard.
func (s *Store) Delete(ctx context.Context, id string) error {
	lic, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(lic.Teams) > 0 {
		return fmt.Errorf("license %s holds %d teams: %w", id, len(lic.Teams), apperrors.ErrHasBoundTeams)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	s.invalidate(id)

	s.logger.InfoContext(ctx, "license deleted", slog.String("license_id", id))
	return nil
}

// Get returns the license with the given id.
func (s *Store) Get(ctx context.Context, id string) (*domain.License, error) {
	return s.repo.Get(ctx, id)
}

// GetByKey returns the license holding the given credential key.
func (s *Store) GetByKey(ctx context.Context, key string) (*domain.License, error) {
	return s.repo.GetByKey(ctx, key)
}

// List returns all licenses with their status re-derived at read time so
// dashboards never see a stale cached status.
func (s *Store) List(ctx context.Context) ([]*domain.License, error) {
	licenses, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, lic := range licenses {
		lic.Status = lic.DeriveStatus(now)
	}
	return licenses, nil
}

// BindTeam appends a team binding and consumes one seat. Coordinator-only:
// callers must hold the coordinator's per-license lock.
func (s *Store) BindTeam(ctx context.Context, lic *domain.License, teamID string) error {
	lic.Teams = append(lic.Teams, teamID)
	if lic.Model == domain.LicenseModelEnterprise {
		lic.UsedCount++
	}
	lic.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, lic); err != nil {
		// Roll back the in-memory side so the caller's record stays
		// consistent with the store.
		lic.Teams = lic.Teams[:len(lic.Teams)-1]
		if lic.Model == domain.LicenseModelEnterprise {
			lic.UsedCount--
		}
		return fmt.Errorf("bind team %s: %w", teamID, err)
	}
	s.invalidate(lic.ID)
	return nil
}

// UnbindTeam removes a team binding and releases its seat. A team that is
// not bound is a no-op. Coordinator-only, like BindTeam.
func (s *Store) UnbindTeam(ctx context.Context, lic *domain.License, teamID string) error {
	idx := -1
	for i, id := range lic.Teams {
		if id == teamID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	lic.Teams = append(lic.Teams[:idx], lic.Teams[idx+1:]...)
	if lic.Model == domain.LicenseModelEnterprise && lic.UsedCount > 0 {
		lic.UsedCount--
	}
	lic.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, lic); err != nil {
		return fmt.Errorf("unbind team %s: %w", teamID, err)
	}
	s.invalidate(lic.ID)
	return nil
}

// TouchValidated records a successful validation timestamp. A concurrent
// edit winning the write window is not a failure; the touch is re-applied
// once on the fresh record.
func (s *Store) TouchValidated(ctx context.Context, lic *domain.License, at time.Time) error {
	lic.LastValidated = &at
	lic.UpdatedAt = at
	err := s.repo.Update(ctx, lic)
	if errors.Is(err, apperrors.ErrConflict) {
		fresh, getErr := s.repo.Get(ctx, lic.ID)
		if getErr != nil {
			return fmt.Errorf("touch validated: %w", getErr)
		}
		fresh.LastValidated = &at
		fresh.UpdatedAt = at
		if err = s.repo.Update(ctx, fresh); err == nil {
			*lic = *fresh
		}
	}
	if err != nil {
		return fmt.Errorf("touch validated: %w", err)
	}
	return nil
}

func (s *Store) invalidate(licenseID string) {
	if s.cache != nil {
		s.cache.Invalidate(licenseID)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
