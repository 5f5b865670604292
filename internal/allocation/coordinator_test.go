package allocation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/license"
	"github.com/jhsobrinho/educareapp-sub000/internal/shared/testutil"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage/memory"
	"github.com/jhsobrinho/educareapp-sub000/internal/team"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// recordingSink captures published events for assertion.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ctx context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) byType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type coordinatorFixture struct {
	licenses    *license.Store
	teams       *team.Store
	sink        *recordingSink
	coordinator *Coordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	return newCoordinatorFixtureWith(t, memory.NewLicenseRepository())
}

func newCoordinatorFixtureWith(t *testing.T, repo storage.LicenseRepository) *coordinatorFixture {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	licenses := license.NewStore(repo, logger)
	teams := team.NewStore(memory.NewTeamRepository(), logger)
	sink := &recordingSink{}

	return &coordinatorFixture{
		licenses:    licenses,
		teams:       teams,
		sink:        sink,
		coordinator: NewCoordinator(licenses, teams, sink, logger),
	}
}

func (f *coordinatorFixture) createEnterprise(t *testing.T, total int) *domain.License {
	t.Helper()
	lic, err := f.licenses.Create(context.Background(), license.CreateRequest{
		Key:        "EDU-ENTERPRISE-KEY-" + t.Name(),
		Type:       domain.LicenseTypeEnterprise,
		Model:      domain.LicenseModelEnterprise,
		MaxUsers:   10,
		TotalCount: total,
		ExpiresAt:  time.Now().AddDate(1, 0, 0),
		IsActive:   true,
	})
	require.NoError(t, err)
	return lic
}

func (f *coordinatorFixture) createIndividual(t *testing.T, maxUsers int) *domain.License {
	t.Helper()
	lic, err := f.licenses.Create(context.Background(), license.CreateRequest{
		Key:       "EDU-INDIVIDUAL-KEY-" + t.Name(),
		Type:      domain.LicenseTypeIndividual,
		Model:     domain.LicenseModelIndividual,
		MaxUsers:  maxUsers,
		ExpiresAt: time.Now().AddDate(1, 0, 0),
		IsActive:  true,
	})
	require.NoError(t, err)
	return lic
}

func allocateAna(licenseID string) AllocateRequest {
	coordinator := testutil.Member(domain.RoleCoordinator)
	parent := testutil.Member(domain.RoleParent)
	return AllocateRequest{
		LicenseID:   licenseID,
		StudentName: "Ana",
		TeamName:    "Equipe Ana",
		Coordinator: &coordinator,
		Parent:      &parent,
	}
}

func TestAllocateConsumesSeat(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 3)

	teamID, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.NoError(t, err)
	require.NotEmpty(t, teamID)

	created, err := f.teams.Get(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, "Equipe Ana", created.Name)
	assert.Equal(t, "Ana", created.StudentName)
	assert.Equal(t, lic.ID, created.LicenseID())
	assert.Equal(t, 1, created.CountRole(domain.RoleCoordinator))
	assert.Equal(t, 1, created.CountRole(domain.RoleParent))

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
	assert.Equal(t, []string{teamID}, stored.Teams)

	events := f.sink.byType(EventAllocated)
	require.Len(t, events, 1)
	assert.Equal(t, lic.ID, events[0].LicenseID)
	assert.Equal(t, teamID, events[0].TeamID)
	assert.Equal(t, "Ana", events[0].Detail["student_name"])
}

func TestAllocateUnknownLicense(t *testing.T) {
	f := newCoordinatorFixture(t)

	_, err := f.coordinator.Allocate(context.Background(), allocateAna("no-such-id"))
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotFound)
}

func TestAllocateRejectsInactiveLicense(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 3)

	active := false
	_, err := f.licenses.Update(ctx, lic.ID, license.UpdateRequest{IsActive: &active})
	require.NoError(t, err)

	_, err = f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	assert.ErrorIs(t, err, apperrors.ErrLicenseInactive)
	assert.Empty(t, f.sink.byType(EventAllocated))
}

func TestAllocateRejectsExpiredLicense(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 3)

	past := time.Now().AddDate(0, -1, 0)
	_, err := f.licenses.Update(ctx, lic.ID, license.UpdateRequest{ExpiresAt: &past})
	require.NoError(t, err)

	// Expired allocates fail as inactive; LicenseExpired is a validation
	// result, not an allocation error.
	_, err = f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	assert.ErrorIs(t, err, apperrors.ErrLicenseInactive)
	assert.NotErrorIs(t, err, apperrors.ErrLicenseExpired)
	assert.Contains(t, err.Error(), past.Format("2006-01-02"))
}

func TestAllocateCapacityExceededLeavesStateUnchanged(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 1)

	_, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.NoError(t, err)

	req := allocateAna(lic.ID)
	req.StudentName = "Bruno"
	req.TeamName = "Equipe Bruno"
	_, err = f.coordinator.Allocate(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
	assert.Len(t, stored.Teams, 1)

	teams, err := f.teams.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 1, "the rejected allocation must not leave a team behind")
}

func TestAllocateIndividualBindsOneTeam(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createIndividual(t, 5)

	teamID, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.NoError(t, err)

	req := allocateAna(lic.ID)
	req.StudentName = "Bruno"
	_, err = f.coordinator.Allocate(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount, "individual model never counts seats")
	assert.Equal(t, []string{teamID}, stored.Teams)
}

func TestAllocateIndividualEnforcesMemberLimit(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createIndividual(t, 5)

	// Coordinator, parent and four professionals: six members against a
	// five-member license.
	req := allocateAna(lic.ID)
	for i := 0; i < 4; i++ {
		req.Professionals = append(req.Professionals, testutil.Member(domain.RoleProfessional))
	}
	_, err := f.coordinator.Allocate(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrMemberLimitExceeded)

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Teams)

	teams, err := f.teams.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestAllocateRequestIDReplay(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 5)

	req := allocateAna(lic.ID)
	req.RequestID = "req-001"

	first, err := f.coordinator.Allocate(ctx, req)
	require.NoError(t, err)

	second, err := f.coordinator.Allocate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second, "a replayed request returns the original team")

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount, "a replay never consumes a second seat")
	assert.Len(t, f.sink.byType(EventAllocated), 1)
}

// bindFailLicenseRepo fails the Update that BindTeam issues, simulating a
// storage fault between team creation and seat reservation.
type bindFailLicenseRepo struct {
	*memory.LicenseRepository
	failUpdates bool
}

func (r *bindFailLicenseRepo) Update(ctx context.Context, lic *domain.License) error {
	if r.failUpdates {
		return apperrors.NewTransportError("update license", nil)
	}
	return r.LicenseRepository.Update(ctx, lic)
}

func TestAllocateRollsBackTeamOnBindFailure(t *testing.T) {
	repo := &bindFailLicenseRepo{LicenseRepository: memory.NewLicenseRepository()}
	f := newCoordinatorFixtureWith(t, repo)
	ctx := context.Background()
	lic := f.createEnterprise(t, 3)

	repo.failUpdates = true
	_, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransportFailure)

	repo.failUpdates = false
	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount)
	assert.Empty(t, stored.Teams)

	teams, err := f.teams.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, teams, "the created team must be rolled back")
	assert.Empty(t, f.sink.byType(EventAllocated))
}

func TestDeallocateReleasesSeat(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 2)

	teamID, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.NoError(t, err)

	require.NoError(t, f.coordinator.Deallocate(ctx, teamID))

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount)
	assert.Empty(t, stored.Teams)

	_, err = f.teams.Get(ctx, teamID)
	assert.ErrorIs(t, err, apperrors.ErrTeamNotFound)

	events := f.sink.byType(EventDeallocated)
	require.Len(t, events, 1)
	assert.Equal(t, teamID, events[0].TeamID)

	// The released seat is allocatable again.
	req := allocateAna(lic.ID)
	req.StudentName = "Bruno"
	_, err = f.coordinator.Allocate(ctx, req)
	assert.NoError(t, err)
}

func TestDeallocateIsIdempotent(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 2)

	teamID, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.NoError(t, err)

	require.NoError(t, f.coordinator.Deallocate(ctx, teamID))
	require.NoError(t, f.coordinator.Deallocate(ctx, teamID), "repeat deallocate is a no-op")
	require.NoError(t, f.coordinator.Deallocate(ctx, "never-existed"))

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount, "a seat is never released twice")
	assert.Len(t, f.sink.byType(EventDeallocated), 1)
}

func TestDeallocateUnboundTeamRemnant(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	remnant, err := f.teams.Create(ctx, team.CreateRequest{
		Name:        "Equipe Clara",
		StudentName: "Clara",
	})
	require.NoError(t, err)

	require.NoError(t, f.coordinator.Deallocate(ctx, remnant.ID))

	_, err = f.teams.Get(ctx, remnant.ID)
	assert.ErrorIs(t, err, apperrors.ErrTeamNotFound)
}

func TestDeleteLicenseCascades(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 3)

	for _, student := range []string{"Ana", "Bruno", "Clara"} {
		req := allocateAna(lic.ID)
		req.StudentName = student
		req.TeamName = "Equipe " + student
		_, err := f.coordinator.Allocate(ctx, req)
		require.NoError(t, err)
	}

	require.NoError(t, f.coordinator.DeleteLicense(ctx, lic.ID))

	_, err := f.licenses.Get(ctx, lic.ID)
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotFound)

	teams, err := f.teams.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, teams, "no team may keep referencing a deleted license")

	assert.Len(t, f.sink.byType(EventDeallocated), 3)
	deleted := f.sink.byType(EventDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "3", deleted[0].Detail["detached_teams"])
}

func TestDeleteLicenseUnknown(t *testing.T) {
	f := newCoordinatorFixture(t)

	err := f.coordinator.DeleteLicense(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotFound)
}

func TestDeleteTeamReleasesSeat(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 2)

	teamID, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.NoError(t, err)

	require.NoError(t, f.coordinator.DeleteTeam(ctx, teamID))

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsedCount)
}

func TestConcurrentAllocationsNeverOversell(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 5)

	var wg sync.WaitGroup
	results := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := allocateAna(lic.ID)
			req.StudentName = "Aluno"
			req.TeamName = "Equipe Aluno"
			_, results[i] = f.coordinator.Allocate(ctx, req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 5, succeeded)

	stored, err := f.licenses.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.UsedCount)
	assert.Len(t, stored.Teams, 5)
}

func TestDeleteLicenseExcludesConcurrentAllocates(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	lic := f.createEnterprise(t, 10)

	_, err := f.coordinator.Allocate(ctx, allocateAna(lic.ID))
	require.NoError(t, err)

	// The cascade holds the license lock end to end, so an allocate can
	// only land entirely before the delete's snapshot (and be cascaded)
	// or entirely after it (and find no license).
	start := make(chan struct{})
	var wg sync.WaitGroup
	allocErrs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			req := allocateAna(lic.ID)
			req.StudentName = fmt.Sprintf("Aluno %d", i)
			req.TeamName = fmt.Sprintf("Equipe %d", i)
			_, allocErrs[i] = f.coordinator.Allocate(ctx, req)
		}(i)
	}

	var deleteErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		deleteErr = f.coordinator.DeleteLicense(ctx, lic.ID)
	}()

	close(start)
	wg.Wait()

	require.NoError(t, deleteErr)

	_, err = f.licenses.Get(ctx, lic.ID)
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotFound)

	remaining, err := f.teams.ListByLicense(ctx, lic.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "no team may survive the cascade")

	for _, aErr := range allocErrs {
		if aErr != nil {
			assert.ErrorIs(t, aErr, apperrors.ErrLicenseNotFound)
		}
	}
}
