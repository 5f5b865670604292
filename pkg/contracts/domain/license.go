// Package domain contains the core domain models for the Educare licensing
// service. These types serve as the Single Source of Truth (SSOT) for all
// layers of the application.
package domain

import (
	"time"
)

// License represents a capacity-bounded authorization record permitting one
// (individual) or many (enterprise) teams to use the product.
type License struct {
	ID            string        `json:"id" db:"id"`
	Key           string        `json:"key" db:"key" validate:"required,min=10"`
	Type          LicenseType   `json:"type" db:"type" validate:"required"`
	Model         LicenseModel  `json:"model" db:"model" validate:"required"`
	MaxUsers      int           `json:"max_users" db:"max_users" validate:"min=1"`
	TotalCount    int           `json:"total_count" db:"total_count" validate:"min=0"`
	UsedCount     int           `json:"used_count" db:"used_count" validate:"min=0"`
	ExpiresAt     time.Time     `json:"expires_at" db:"expires_at" validate:"required"`
	IsActive      bool          `json:"is_active" db:"is_active"`
	Status        LicenseStatus `json:"status" db:"status"`
	AssignedTo    string        `json:"assigned_to,omitempty" db:"assigned_to"`
	LastValidated *time.Time    `json:"last_validated,omitempty" db:"last_validated"`
	Teams         []string      `json:"teams" db:"teams"`
	Features      []string      `json:"features" db:"features"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`

	// Version guards read-modify-write cycles: repositories reject an
	// update carrying a stale version with ErrConflict.
	Version int64 `json:"-" db:"version"`
}

// LicenseType represents the commercial tier of a license.
type LicenseType string

const (
	LicenseTypeTrial        LicenseType = "trial"
	LicenseTypeStandard     LicenseType = "standard"
	LicenseTypeProfessional LicenseType = "professional"
	LicenseTypeEnterprise   LicenseType = "enterprise"
	LicenseTypeIndividual   LicenseType = "individual"
)

// LicenseModel determines how a license binds to teams: an individual
// license binds to exactly one team, an enterprise license binds to many
// teams up to TotalCount.
type LicenseModel string

const (
	LicenseModelIndividual LicenseModel = "individual"
	LicenseModelEnterprise LicenseModel = "enterprise"
)

// LicenseStatus is the derived lifecycle state cached on the record.
type LicenseStatus string

const (
	LicenseStatusActive   LicenseStatus = "active"
	LicenseStatusInactive LicenseStatus = "inactive"
	LicenseStatusExpired  LicenseStatus = "expired"
)

// DeriveStatus computes the cached Status field from the active flag and
// the expiry date at the given instant.
func (l *License) DeriveStatus(now time.Time) LicenseStatus {
	if !l.IsActive {
		return LicenseStatusInactive
	}
	if now.After(l.ExpiresAt) {
		return LicenseStatusExpired
	}
	return LicenseStatusActive
}

// IsExpired reports whether the license expiry date has passed.
func (l *License) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// ValidationResult represents the outcome of an on-demand license
// validity check.
type ValidationResult struct {
	IsValid   bool              `json:"is_valid"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Validation error codes returned by the validation service, in priority
// order: not-found before inactive before expired.
const (
	ValidationCodeNotFound = "LICENSE_NOT_FOUND"
	ValidationCodeInactive = "LICENSE_INACTIVE"
	ValidationCodeExpired  = "LICENSE_EXPIRED"
)

// LicenseUsage is the read-only capacity projection served to dashboards.
type LicenseUsage struct {
	LicenseID         string       `json:"license_id"`
	Model             LicenseModel `json:"model"`
	UsedCount         int          `json:"used_count"`
	TotalCount        int          `json:"total_count"`
	RemainingCapacity int          `json:"remaining_capacity"`
	Utilization       float64      `json:"utilization"`
	CanAllocate       bool         `json:"can_allocate"`
}
