// Package storage defines the persistence boundary of the licensing core.
// License and team records are owned by the stores in internal/license and
// internal/team; this package only describes how they reach a backing
// store. Two implementations ship: an in-memory store (default, tests)
// and a Postgres store under storage/postgres.
package storage

import (
	"context"

	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// LicenseRepository persists license records. Implementations return the
// sentinel errors from internal/errors: ErrLicenseNotFound for missing
// ids, ErrDuplicateKey for key collisions, and wrap infrastructure
// failures with NewTransportError so callers can classify retries.
type LicenseRepository interface {
	Create(ctx context.Context, lic *domain.License) error
	Get(ctx context.Context, id string) (*domain.License, error)
	GetByKey(ctx context.Context, key string) (*domain.License, error)
	Update(ctx context.Context, lic *domain.License) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.License, error)
}

// TeamRepository persists team records. Missing ids surface as
// ErrTeamNotFound; infrastructure failures are wrapped as transport
// errors.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	Get(ctx context.Context, id string) (*domain.Team, error)
	Update(ctx context.Context, team *domain.Team) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Team, error)
	ListByLicense(ctx context.Context, licenseID string) ([]*domain.Team, error)
}

// Pinger lets the health endpoint probe store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
