package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// FixtureTime is the pinned "now" used across fixtures so expiry
// arithmetic is deterministic.
var FixtureTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// EnterpriseLicense returns an active enterprise license with the
// given seat counts.
func EnterpriseLicense(total, used int) *domain.License {
	id := uuid.New().String()
	return &domain.License{
		ID:         id,
		Key:        "EDU-TEST-" + id[:8] + "-ENTP",
		Type:       domain.LicenseTypeEnterprise,
		Model:      domain.LicenseModelEnterprise,
		MaxUsers:   10,
		TotalCount: total,
		UsedCount:  used,
		ExpiresAt:  FixtureTime.AddDate(10, 0, 0),
		IsActive:   true,
		Status:     domain.LicenseStatusActive,
		Teams:      []string{},
		CreatedAt:  FixtureTime,
		UpdatedAt:  FixtureTime,
	}
}

// IndividualLicense returns an active individual license capped at
// maxUsers members.
func IndividualLicense(maxUsers int) *domain.License {
	id := uuid.New().String()
	return &domain.License{
		ID:        id,
		Key:       "EDU-TEST-" + id[:8] + "-INDV",
		Type:      domain.LicenseTypeIndividual,
		Model:     domain.LicenseModelIndividual,
		MaxUsers:  maxUsers,
		ExpiresAt: FixtureTime.AddDate(10, 0, 0),
		IsActive:  true,
		Status:    domain.LicenseStatusActive,
		Teams:     []string{},
		CreatedAt: FixtureTime,
		UpdatedAt: FixtureTime,
	}
}

// ExpiredLicense returns an active-flagged license whose expiry is in
// the past relative to FixtureTime.
func ExpiredLicense() *domain.License {
	lic := EnterpriseLicense(5, 0)
	lic.ExpiresAt = FixtureTime.AddDate(0, -1, 0)
	lic.Status = domain.LicenseStatusExpired
	return lic
}

// InactiveLicense returns a deactivated license that has not expired
func InactiveLicense() *domain.License {
	lic := EnterpriseLicense(5, 0)
	lic.IsActive = false
	lic.Status = domain.LicenseStatusInactive
	return lic
}

// Team returns a team bound to the given license with a coordinator
// and a parent member.
func Team(licenseID, studentName string) *domain.Team {
	return &domain.Team{
		ID:          uuid.New().String(),
		Name:        "Equipe " + studentName,
		StudentName: studentName,
		Members: []domain.TeamMember{
			Member(domain.RoleCoordinator),
			Member(domain.RoleParent),
		},
		Licenses:  []string{licenseID},
		CreatedAt: FixtureTime,
		UpdatedAt: FixtureTime,
	}
}

// Member returns a team member with the given role
func Member(role domain.MemberRole) domain.TeamMember {
	id := uuid.New().String()
	return domain.TeamMember{
		ID:       id,
		Name:     string(role) + "-" + id[:8],
		Email:    id[:8] + "@example.com",
		Role:     role,
		JoinedAt: FixtureTime,
	}
}
