// Package memory provides in-memory implementations of the storage
// repositories. It is the default backend for standalone operation and
// the fixture backend for tests. All records are deep-copied on the way
// in and out so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// LicenseRepository is a map-backed license store.
type LicenseRepository struct {
	mu       sync.RWMutex
	licenses map[string]*domain.License
	byKey    map[string]string
}

// NewLicenseRepository creates an empty in-memory license repository.
func NewLicenseRepository() *LicenseRepository {
	return &LicenseRepository{
		licenses: make(map[string]*domain.License),
		byKey:    make(map[string]string),
	}
}

// Create stores a new license. Key collisions return ErrDuplicateKey.
func (r *LicenseRepository) Create(ctx context.Context, lic *domain.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[lic.Key]; exists {
		return apperrors.ErrDuplicateKey
	}
	r.licenses[lic.ID] = copyLicense(lic)
	r.byKey[lic.Key] = lic.ID
	return nil
}

// Get returns the license with the given id.
func (r *LicenseRepository) Get(ctx context.Context, id string) (*domain.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lic, ok := r.licenses[id]
	if !ok {
		return nil, apperrors.ErrLicenseNotFound
	}
	return copyLicense(lic), nil
}

// GetByKey returns the license holding the given credential key.
func (r *LicenseRepository) GetByKey(ctx context.Context, key string) (*domain.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, apperrors.ErrLicenseNotFound
	}
	return copyLicense(r.licenses[id]), nil
}

// Update replaces the stored record. The id must exist and the caller's
// version must match the stored one; a stale version means another
// writer committed in between and the update is rejected with
// ErrConflict. On success the version is bumped on both sides.
func (r *LicenseRepository) Update(ctx context.Context, lic *domain.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.licenses[lic.ID]
	if !ok {
		return apperrors.ErrLicenseNotFound
	}
	if prev.Version != lic.Version {
		return apperrors.ErrConflict
	}
	if prev.Key != lic.Key {
		delete(r.byKey, prev.Key)
		r.byKey[lic.Key] = lic.ID
	}
	lic.Version++
	r.licenses[lic.ID] = copyLicense(lic)
	return nil
}

// Delete removes the license with the given id.
func (r *LicenseRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lic, ok := r.licenses[id]
	if !ok {
		return apperrors.ErrLicenseNotFound
	}
	delete(r.byKey, lic.Key)
	delete(r.licenses, id)
	return nil
}

// List returns all licenses ordered by creation time.
func (r *LicenseRepository) List(ctx context.Context) ([]*domain.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.License, 0, len(r.licenses))
	for _, lic := range r.licenses {
		out = append(out, copyLicense(lic))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Ping implements storage.Pinger.
func (r *LicenseRepository) Ping(ctx context.Context) error {
	return nil
}

// TeamRepository is a map-backed team store.
type TeamRepository struct {
	mu    sync.RWMutex
	teams map[string]*domain.Team
}

// NewTeamRepository creates an empty in-memory team repository.
func NewTeamRepository() *TeamRepository {
	return &TeamRepository{teams: make(map[string]*domain.Team)}
}

// Create stores a new team.
func (r *TeamRepository) Create(ctx context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.teams[team.ID] = copyTeam(team)
	return nil
}

// Get returns the team with the given id.
func (r *TeamRepository) Get(ctx context.Context, id string) (*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	team, ok := r.teams[id]
	if !ok {
		return nil, apperrors.ErrTeamNotFound
	}
	return copyTeam(team), nil
}

// Update replaces the stored record.
func (r *TeamRepository) Update(ctx context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.teams[team.ID]; !ok {
		return apperrors.ErrTeamNotFound
	}
	r.teams[team.ID] = copyTeam(team)
	return nil
}

// Delete removes the team with the given id.
func (r *TeamRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.teams[id]; !ok {
		return apperrors.ErrTeamNotFound
	}
	delete(r.teams, id)
	return nil
}

// List returns all teams ordered by creation time.
func (r *TeamRepository) List(ctx context.Context) ([]*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Team, 0, len(r.teams))
	for _, team := range r.teams {
		out = append(out, copyTeam(team))
	}
	sortTeams(out)
	return out, nil
}

// ListByLicense returns the teams bound to the given license.
func (r *TeamRepository) ListByLicense(ctx context.Context, licenseID string) ([]*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Team
	for _, team := range r.teams {
		for _, lid := range team.Licenses {
			if lid == licenseID {
				out = append(out, copyTeam(team))
				break
			}
		}
	}
	sortTeams(out)
	return out, nil
}

// Ping implements storage.Pinger.
func (r *TeamRepository) Ping(ctx context.Context) error {
	return nil
}

func sortTeams(teams []*domain.Team) {
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].CreatedAt.Equal(teams[j].CreatedAt) {
			return teams[i].ID < teams[j].ID
		}
		return teams[i].CreatedAt.Before(teams[j].CreatedAt)
	})
}

func copyLicense(lic *domain.License) *domain.License {
	out := *lic
	out.Teams = append([]string(nil), lic.Teams...)
	out.Features = append([]string(nil), lic.Features...)
	if lic.LastValidated != nil {
		ts := *lic.LastValidated
		out.LastValidated = &ts
	}
	return &out
}

func copyTeam(team *domain.Team) *domain.Team {
	out := *team
	out.Members = append([]domain.TeamMember(nil), team.Members...)
	out.Licenses = append([]string(nil), team.Licenses...)
	return &out
}
