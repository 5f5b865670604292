package errors

import (
	"errors"
)

// Sentinel errors for the licensing core. Every mutating entry point
// recovers these at the coordinator/store boundary and returns them as
// typed results; none may propagate as an unhandled fault.
var (
	// ErrForbidden is returned when the access gate refuses an action.
	ErrForbidden = errors.New("forbidden")

	// ErrLicenseNotFound is returned when a license id resolves to nothing.
	ErrLicenseNotFound = errors.New("license not found")

	// ErrTeamNotFound is returned when a team id resolves to nothing.
	ErrTeamNotFound = errors.New("team not found")

	// ErrDuplicateKey is returned when creating a license whose key
	// already exists.
	ErrDuplicateKey = errors.New("license key already exists")

	// ErrLicenseInactive is returned when allocating against a license
	// whose active flag is cleared.
	ErrLicenseInactive = errors.New("license inactive")

	// ErrLicenseExpired marks an expired license. Validation-only: a soft
	// failure reported to the caller, never fatal.
	ErrLicenseExpired = errors.New("license expired")

	// ErrCapacityExceeded is returned when a license has no seat left.
	ErrCapacityExceeded = errors.New("license capacity exceeded")

	// ErrHasBoundTeams guards license deletion while teams are still
	// bound; only the coordinator's cascade clears it.
	ErrHasBoundTeams = errors.New("license has bound teams")

	// ErrConflict signals a detected concurrent mutation.
	ErrConflict = errors.New("conflicting concurrent mutation")

	// ErrTransportFailure wraps persistence/network failures; retryable.
	ErrTransportFailure = errors.New("transport failure")

	// ErrImmutableField is returned when an update tries to change a
	// create-only field (key, model, type).
	ErrImmutableField = errors.New("field is immutable after creation")

	// ErrMemberLimitExceeded is returned when a team holds more members
	// than the bound license permits.
	ErrMemberLimitExceeded = errors.New("team member limit exceeded")

	// ErrAccountantOwnedField is returned when a plain update supplies
	// usedCount/teams changes outside the coordinator path.
	ErrAccountantOwnedField = errors.New("field is owned by the capacity accountant")
)

// IsRetryable reports whether err may be retried automatically by the
// caller. Only transport failures qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}
