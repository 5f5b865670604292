package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhsobrinho/educareapp-sub000/internal/shared/testutil"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage/memory"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

type validatorFixture struct {
	repo      *memory.LicenseRepository
	store     *Store
	keys      *KeyGenerator
	cache     *ValidationCache
	validator *Validator
}

func newValidatorFixture(t *testing.T) *validatorFixture {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	repo := memory.NewLicenseRepository()
	cache := NewValidationCache(time.Minute, 16)
	t.Cleanup(cache.Stop)

	store := NewStore(repo, logger,
		WithClock(func() time.Time { return testutil.FixtureTime }),
		WithValidationCache(cache))
	keys := NewKeyGenerator("test-secret")

	return &validatorFixture{
		repo:      repo,
		store:     store,
		keys:      keys,
		cache:     cache,
		validator: NewValidator(store, keys, cache, logger),
	}
}

func (f *validatorFixture) seed(t *testing.T, lic *domain.License) *domain.License {
	t.Helper()
	require.NoError(t, f.repo.Create(context.Background(), lic))
	return lic
}

func TestValidateUnknownLicense(t *testing.T) {
	f := newValidatorFixture(t)

	result, err := f.validator.Validate(context.Background(), "no-such-id")
	require.NoError(t, err, "a missing license is a result, not an error")

	assert.False(t, result.IsValid)
	assert.Equal(t, domain.ValidationCodeNotFound, result.ErrorCode)
	assert.Equal(t, testutil.FixtureTime, result.CheckedAt)
	assert.Empty(t, result.Details)
}

func TestValidateInactiveLicense(t *testing.T) {
	f := newValidatorFixture(t)
	lic := f.seed(t, testutil.InactiveLicense())

	result, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Equal(t, domain.ValidationCodeInactive, result.ErrorCode)
	assert.Equal(t, string(domain.LicenseModelEnterprise), result.Details["model"])
}

func TestValidateInactiveWinsOverExpired(t *testing.T) {
	f := newValidatorFixture(t)

	lic := testutil.ExpiredLicense()
	lic.IsActive = false
	f.seed(t, lic)

	result, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationCodeInactive, result.ErrorCode,
		"inactive is reported before expiry")
}

func TestValidateExpiredLicense(t *testing.T) {
	f := newValidatorFixture(t)
	lic := f.seed(t, testutil.ExpiredLicense())

	result, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Equal(t, domain.ValidationCodeExpired, result.ErrorCode)
	assert.Contains(t, result.Message, lic.ExpiresAt.Format("2006-01-02"))
	assert.Equal(t, "warning", result.Details["severity"])
}

func TestValidateForgedGeneratedKey(t *testing.T) {
	f := newValidatorFixture(t)

	// A key minted under a different signing secret has the generated
	// shape but fails the MAC check.
	forged, err := NewKeyGenerator("another-secret").Generate()
	require.NoError(t, err)

	lic := testutil.EnterpriseLicense(5, 0)
	lic.Key = forged
	f.seed(t, lic)

	result, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Equal(t, ValidationCodeKeyInvalid, result.ErrorCode)
}

func TestValidateHealthyLicense(t *testing.T) {
	f := newValidatorFixture(t)

	key, err := f.keys.Generate()
	require.NoError(t, err)

	lic := testutil.EnterpriseLicense(5, 0)
	lic.Key = key
	f.seed(t, lic)

	result, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.ErrorCode)
	assert.Equal(t, FormatKey(key), result.Details["license_key"])
	assert.Equal(t, lic.ExpiresAt.Format(time.RFC3339), result.Details["expires_at"])

	stored, err := f.store.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastValidated)
	assert.Equal(t, testutil.FixtureTime, *stored.LastValidated)
}

func TestValidateManualKeySkipsAuthenticityCheck(t *testing.T) {
	f := newValidatorFixture(t)

	// Fixture keys don't follow the generated shape, so the MAC check is
	// skipped and the license validates on state alone.
	lic := f.seed(t, testutil.EnterpriseLicense(5, 0))

	result, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestValidateServesCachedResult(t *testing.T) {
	f := newValidatorFixture(t)
	lic := f.seed(t, testutil.EnterpriseLicense(5, 0))

	first, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.True(t, first.IsValid)

	// Flip the record behind the cache's back; the stale result is
	// served until the TTL lapses or a store mutation invalidates it.
	lic.IsActive = false
	require.NoError(t, f.repo.Update(context.Background(), lic))

	cached, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.True(t, cached.IsValid)

	f.cache.Invalidate(lic.ID)

	fresh, err := f.validator.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsValid)
	assert.Equal(t, domain.ValidationCodeInactive, fresh.ErrorCode)
}
