package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// ValidationCodeKeyInvalid marks a generated-format key whose
// authenticity MAC does not verify. Checked after the state checks so the
// standard not-found/inactive/expired priority is preserved.
const ValidationCodeKeyInvalid = "LICENSE_KEY_INVALID"

// Validator performs on-demand license validity checks. A business-state
// failure (not found, inactive, expired, forged key) is reported inside
// the ValidationResult, never as an error: the caller always gets a
// renderable result. The error return carries transport failures only.
type Validator struct {
	store  *Store
	keys   *KeyGenerator
	cache  *ValidationCache
	logger *slog.Logger
	now    func() time.Time
}

// NewValidator creates a validation service over the license store.
func NewValidator(store *Store, keys *KeyGenerator, cache *ValidationCache, logger *slog.Logger) *Validator {
	return &Validator{
		store:  store,
		keys:   keys,
		cache:  cache,
		logger: logger.With(slog.String("component", "license_validator")),
		now:    store.now,
	}
}

// Validate checks the license with the given id and records lastValidated
// on success. Results are cached briefly; the cache is invalidated by any
// license mutation.
func (v *Validator) Validate(ctx context.Context, licenseID string) (*domain.ValidationResult, error) {
	if v.cache != nil {
		if cached, ok := v.cache.Get(licenseID); ok {
			v.logger.DebugContext(ctx, "validation served from cache",
				slog.String("license_id", licenseID),
				slog.Bool("is_valid", cached.IsValid),
			)
			return cached, nil
		}
	}

	now := v.now()
	result := &domain.ValidationResult{CheckedAt: now}

	lic, err := v.store.Get(ctx, licenseID)
	switch {
	case errors.Is(err, apperrors.ErrLicenseNotFound):
		result.IsValid = false
		result.ErrorCode = domain.ValidationCodeNotFound
		result.Message = "License not found"
		v.finish(ctx, licenseID, result)
		return result, nil
	case err != nil:
		return nil, fmt.Errorf("validate license %s: %w", licenseID, err)
	}

	result.Details = map[string]string{
		"license_key": FormatKey(lic.Key),
		"model":       string(lic.Model),
		"type":        string(lic.Type),
		"expires_at":  lic.ExpiresAt.Format(time.RFC3339),
	}

	switch {
	case !lic.IsActive:
		result.IsValid = false
		result.ErrorCode = domain.ValidationCodeInactive
		result.Message = "License is not active"

	case lic.IsExpired(now):
		// Expiry is a soft failure: the license record is genuine, its
		// term has simply lapsed.
		result.IsValid = false
		result.ErrorCode = domain.ValidationCodeExpired
		result.Message = fmt.Sprintf("License expired on %s", lic.ExpiresAt.Format("2006-01-02"))
		result.Details["severity"] = "warning"

	case HasGeneratedFormat(lic.Key) && !v.keys.Verify(lic.Key):
		result.IsValid = false
		result.ErrorCode = ValidationCodeKeyInvalid
		result.Message = "License key failed the authenticity check"

	default:
		result.IsValid = true
		result.Message = "License is valid"
		if err := v.store.TouchValidated(ctx, lic, now); err != nil {
			return nil, err
		}
	}

	v.finish(ctx, licenseID, result)
	return result, nil
}

func (v *Validator) finish(ctx context.Context, licenseID string, result *domain.ValidationResult) {
	if v.cache != nil {
		v.cache.Set(licenseID, *result)
	}

	v.logger.InfoContext(ctx, "license validated",
		slog.String("license_id", licenseID),
		slog.Bool("is_valid", result.IsValid),
		slog.String("error_code", result.ErrorCode),
	)
}
