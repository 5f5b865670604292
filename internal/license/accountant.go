package license

import (
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// The capacity accountant is pure computation over license state. It
// never mutates anything, so the coordinator and every dashboard can call
// it repeatedly without corrupting counters.

// CanAllocate reports whether one more team can be bound to the license.
// Individual licenses accept a single team; enterprise licenses accept
// teams while seats remain.
func CanAllocate(lic *domain.License) bool {
	switch lic.Model {
	case domain.LicenseModelIndividual:
		return len(lic.Teams) == 0
	case domain.LicenseModelEnterprise:
		return lic.UsedCount < lic.TotalCount
	default:
		return false
	}
}

// RemainingCapacity returns the number of seats still allocatable.
func RemainingCapacity(lic *domain.License) int {
	switch lic.Model {
	case domain.LicenseModelIndividual:
		return 1 - len(lic.Teams)
	case domain.LicenseModelEnterprise:
		return lic.TotalCount - lic.UsedCount
	default:
		return 0
	}
}

// Utilization returns the consumed share of capacity in [0, 1]. An
// individual license is binary: 0 when unbound, 1 when bound.
func Utilization(lic *domain.License) float64 {
	switch lic.Model {
	case domain.LicenseModelIndividual:
		if len(lic.Teams) > 0 {
			return 1
		}
		return 0
	case domain.LicenseModelEnterprise:
		if lic.TotalCount == 0 {
			return 0
		}
		return float64(lic.UsedCount) / float64(lic.TotalCount)
	default:
		return 0
	}
}

// Usage assembles the read-only capacity projection for dashboards.
func Usage(lic *domain.License) domain.LicenseUsage {
	return domain.LicenseUsage{
		LicenseID:         lic.ID,
		Model:             lic.Model,
		UsedCount:         lic.UsedCount,
		TotalCount:        lic.TotalCount,
		RemainingCapacity: RemainingCapacity(lic),
		Utilization:       Utilization(lic),
		CanAllocate:       CanAllocate(lic),
	}
}
