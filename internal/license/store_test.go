package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/shared/testutil"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage/memory"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewStore(memory.NewLicenseRepository(), logger,
		WithClock(func() time.Time { return testutil.FixtureTime }))
}

func enterpriseCreateRequest(total int) CreateRequest {
	return CreateRequest{
		Key:        "EDU-ENTERPRISE-KEY-001",
		Type:       domain.LicenseTypeEnterprise,
		Model:      domain.LicenseModelEnterprise,
		MaxUsers:   10,
		TotalCount: total,
		ExpiresAt:  testutil.FixtureTime.AddDate(1, 0, 0),
		IsActive:   true,
	}
}

func TestStoreCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	assert.NotEmpty(t, lic.ID)
	assert.Equal(t, 0, lic.UsedCount, "a new license starts with no seats consumed")
	assert.Empty(t, lic.Teams)
	assert.Equal(t, domain.LicenseStatusActive, lic.Status)
	assert.Equal(t, testutil.FixtureTime, lic.CreatedAt)

	stored, err := store.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, lic.Key, stored.Key)
}

func TestStoreCreateDerivesStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expired := enterpriseCreateRequest(5)
	expired.Key = "EDU-ENTERPRISE-KEY-EXP"
	expired.ExpiresAt = testutil.FixtureTime.AddDate(0, -1, 0)
	lic, err := store.Create(ctx, expired)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusExpired, lic.Status)

	inactive := enterpriseCreateRequest(5)
	inactive.Key = "EDU-ENTERPRISE-KEY-OFF"
	inactive.IsActive = false
	lic, err = store.Create(ctx, inactive)
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusInactive, lic.Status)
}

func TestStoreCreateRejectsBadCapacity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := enterpriseCreateRequest(0)
	_, err := store.Create(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))

	individual := CreateRequest{
		Key:       "EDU-INDIVIDUAL-KEY-001",
		Type:      domain.LicenseTypeIndividual,
		Model:     domain.LicenseModelIndividual,
		MaxUsers:  0,
		ExpiresAt: testutil.FixtureTime.AddDate(1, 0, 0),
		IsActive:  true,
	}
	_, err = store.Create(ctx, individual)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))
}

func TestStoreCreateRejectsDuplicateKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	_, err = store.Create(ctx, enterpriseCreateRequest(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateKey)
}

func TestStoreUpdateMutableFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	total := 8
	active := false
	assigned := "org-42"
	updated, err := store.Update(ctx, lic.ID, UpdateRequest{
		TotalCount: &total,
		IsActive:   &active,
		AssignedTo: &assigned,
		Features:   []string{"reports"},
	})
	require.NoError(t, err)

	assert.Equal(t, 8, updated.TotalCount)
	assert.False(t, updated.IsActive)
	assert.Equal(t, domain.LicenseStatusInactive, updated.Status, "status re-derives after the edit")
	assert.Equal(t, "org-42", updated.AssignedTo)
	assert.Equal(t, []string{"reports"}, updated.Features)
}

func TestStoreUpdateRejectsImmutableFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	otherKey := "EDU-ANOTHER-KEY-00001"
	otherModel := string(domain.LicenseModelIndividual)
	otherType := string(domain.LicenseTypeTrial)

	tests := []struct {
		name string
		req  UpdateRequest
	}{
		{"key", UpdateRequest{Key: &otherKey}},
		{"model", UpdateRequest{Model: &otherModel}},
		{"type", UpdateRequest{Type: &otherType}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Update(ctx, lic.ID, tt.req)
			assert.ErrorIs(t, err, apperrors.ErrImmutableField)
		})
	}

	// Echoing the current value back is not a change and passes.
	sameKey := lic.Key
	_, err = store.Update(ctx, lic.ID, UpdateRequest{Key: &sameKey})
	assert.NoError(t, err)
}

func TestStoreUpdateRejectsAccountantOwnedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	used := 3
	_, err = store.Update(ctx, lic.ID, UpdateRequest{UsedCount: &used})
	assert.ErrorIs(t, err, apperrors.ErrAccountantOwnedField)

	_, err = store.Update(ctx, lic.ID, UpdateRequest{Teams: []string{"team-1"}})
	assert.ErrorIs(t, err, apperrors.ErrAccountantOwnedField)
}

// raceLicenseRepo runs a hook after the first Get, emulating a writer
// that commits inside another caller's read-modify-write window.
type raceLicenseRepo struct {
	*memory.LicenseRepository
	hook func()
}

func (r *raceLicenseRepo) Get(ctx context.Context, id string) (*domain.License, error) {
	lic, err := r.LicenseRepository.Get(ctx, id)
	if h := r.hook; h != nil {
		r.hook = nil
		h()
	}
	return lic, err
}

func TestStoreUpdateDetectsLostUpdate(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	repo := &raceLicenseRepo{LicenseRepository: memory.NewLicenseRepository()}
	store := NewStore(repo, logger,
		WithClock(func() time.Time { return testutil.FixtureTime }))
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	// An allocation binds a team inside the edit's window; the edit's
	// snapshot no longer reflects the stored record.
	repo.hook = func() {
		fresh, err := repo.LicenseRepository.Get(ctx, lic.ID)
		require.NoError(t, err)
		require.NoError(t, store.BindTeam(ctx, fresh, "team-race"))
	}

	total := 9
	_, err = store.Update(ctx, lic.ID, UpdateRequest{TotalCount: &total})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// The binding survives; the stale edit never landed.
	got, err := store.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"team-race"}, got.Teams)
	assert.Equal(t, 1, got.UsedCount)
	assert.Equal(t, 5, got.TotalCount)
}

func TestTouchValidatedSurvivesConcurrentEdit(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	repo := memory.NewLicenseRepository()
	store := NewStore(repo, logger,
		WithClock(func() time.Time { return testutil.FixtureTime }))
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	stale, err := store.Get(ctx, lic.ID)
	require.NoError(t, err)

	// An edit commits between the validator's read and its touch.
	maxUsers := 20
	_, err = store.Update(ctx, lic.ID, UpdateRequest{MaxUsers: &maxUsers})
	require.NoError(t, err)

	require.NoError(t, store.TouchValidated(ctx, stale, testutil.FixtureTime))

	got, err := store.Get(ctx, lic.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastValidated)
	assert.True(t, got.LastValidated.Equal(testutil.FixtureTime))
	assert.Equal(t, 20, got.MaxUsers, "the touch must not roll back the edit")
}

func TestStoreUpdateRejectsTotalBelowUsed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	require.NoError(t, store.BindTeam(ctx, lic, "team-1"))
	require.NoError(t, store.BindTeam(ctx, lic, "team-2"))

	total := 1
	_, err = store.Update(ctx, lic.ID, UpdateRequest{TotalCount: &total})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))

	// The failed shrink must not have touched the record.
	stored, err := store.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.TotalCount)
	assert.Equal(t, 2, stored.UsedCount)
}

func TestStoreDeleteGuardsBoundTeams(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)
	require.NoError(t, store.BindTeam(ctx, lic, "team-1"))

	err = store.Delete(ctx, lic.ID)
	assert.ErrorIs(t, err, apperrors.ErrHasBoundTeams)

	require.NoError(t, store.UnbindTeam(ctx, lic, "team-1"))
	require.NoError(t, store.Delete(ctx, lic.ID))

	_, err = store.Get(ctx, lic.ID)
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotFound)
}

func TestStoreBindAndUnbindTeam(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(3))
	require.NoError(t, err)

	require.NoError(t, store.BindTeam(ctx, lic, "team-1"))
	assert.Equal(t, 1, lic.UsedCount)
	assert.Equal(t, []string{"team-1"}, lic.Teams)

	stored, err := store.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)

	require.NoError(t, store.UnbindTeam(ctx, lic, "team-1"))
	assert.Equal(t, 0, lic.UsedCount)
	assert.Empty(t, lic.Teams)

	// Unbinding a team that is not bound is a no-op.
	require.NoError(t, store.UnbindTeam(ctx, lic, "team-ghost"))
	assert.Equal(t, 0, lic.UsedCount)
}

func TestStoreBindTeamIndividualKeepsUsedCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lic, err := store.Create(ctx, CreateRequest{
		Key:       "EDU-INDIVIDUAL-KEY-001",
		Type:      domain.LicenseTypeIndividual,
		Model:     domain.LicenseModelIndividual,
		MaxUsers:  5,
		ExpiresAt: testutil.FixtureTime.AddDate(1, 0, 0),
		IsActive:  true,
	})
	require.NoError(t, err)

	require.NoError(t, store.BindTeam(ctx, lic, "team-1"))
	assert.Equal(t, 0, lic.UsedCount, "individual capacity is tracked by the binding itself")
	assert.Equal(t, []string{"team-1"}, lic.Teams)
}

func TestStoreListRederivesStatus(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	repo := memory.NewLicenseRepository()

	now := testutil.FixtureTime
	store := NewStore(repo, logger, WithClock(func() time.Time { return now }))

	lic, err := store.Create(context.Background(), CreateRequest{
		Key:        "EDU-ENTERPRISE-KEY-001",
		Type:       domain.LicenseTypeEnterprise,
		Model:      domain.LicenseModelEnterprise,
		MaxUsers:   10,
		TotalCount: 5,
		ExpiresAt:  testutil.FixtureTime.AddDate(0, 0, 7),
		IsActive:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusActive, lic.Status)

	// A week passes; the stored status is stale but List re-derives it.
	now = testutil.FixtureTime.AddDate(0, 0, 8)
	licenses, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	assert.Equal(t, domain.LicenseStatusExpired, licenses[0].Status)
}

func TestStoreMutationsInvalidateValidationCache(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	cache := NewValidationCache(time.Minute, 16)
	defer cache.Stop()

	store := NewStore(memory.NewLicenseRepository(), logger,
		WithClock(func() time.Time { return testutil.FixtureTime }),
		WithValidationCache(cache))
	ctx := context.Background()

	lic, err := store.Create(ctx, enterpriseCreateRequest(5))
	require.NoError(t, err)

	cache.Set(lic.ID, domain.ValidationResult{IsValid: true})

	active := false
	_, err = store.Update(ctx, lic.ID, UpdateRequest{IsActive: &active})
	require.NoError(t, err)

	_, ok := cache.Get(lic.ID)
	assert.False(t, ok, "edits must drop the cached validation result")
}
