// Package allocation implements the allocation coordinator: the only
// writer of license seat usage and team bindings. Allocate and Deallocate
// run inside a per-license critical section so two concurrent allocations
// against a license with one remaining seat can never both succeed.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/license"
	"github.com/jhsobrinho/educareapp-sub000/internal/team"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// EventSink receives allocation lifecycle events for the notification
// feed. Implementations must not block; the coordinator depends on no
// return value.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// Event is one allocation lifecycle notification.
type Event struct {
	Type      string            `json:"type"`
	LicenseID string            `json:"license_id,omitempty"`
	TeamID    string            `json:"team_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Event types on the notification feed. The coordinator publishes the
// first three; the HTTP validate endpoint publishes EventValidated.
const (
	EventAllocated   = "license:allocated"
	EventDeallocated = "license:deallocated"
	EventDeleted     = "license:deleted"
	EventValidated   = "license:validated"
)

// Coordinator orchestrates allocating a license to a new team.
type Coordinator struct {
	licenses *license.Store
	teams    *team.Store
	sink     EventSink
	logger   *slog.Logger

	// One mutex per license id, held across the read-check-write
	// sequence of allocate/deallocate.
	locks sync.Map // map[string]*sync.Mutex

	// Completed allocations by request id, so a retried Allocate after a
	// transport failure does not consume a second seat.
	requestsMu sync.Mutex
	requests   map[string]string // request id -> team id
}

// NewCoordinator creates an allocation coordinator over the two stores.
// sink may be nil when no notification feed is attached.
func NewCoordinator(licenses *license.Store, teams *team.Store, sink EventSink, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		licenses: licenses,
		teams:    teams,
		sink:     sink,
		logger:   logger.With(slog.String("component", "allocation_coordinator")),
		requests: make(map[string]string),
	}
}

// AllocateRequest carries the parameters of one allocation.
type AllocateRequest struct {
	LicenseID     string               `json:"license_id" validate:"required"`
	StudentName   string               `json:"student_name" validate:"required,min=1,max=120"`
	TeamName      string               `json:"team_name" validate:"required,min=1,max=120"`
	Description   string               `json:"description,omitempty" validate:"max=500"`
	Coordinator   *domain.TeamMember   `json:"coordinator,omitempty"`
	Parent        *domain.TeamMember   `json:"parent,omitempty"`
	Professionals []domain.TeamMember  `json:"professionals,omitempty" validate:"dive"`

	// RequestID makes the allocation idempotent: replaying an id returns
	// the originally created team without consuming another seat.
	RequestID string `json:"request_id,omitempty"`
}

func (r *AllocateRequest) members() []domain.TeamMember {
	var members []domain.TeamMember
	if r.Coordinator != nil {
		m := *r.Coordinator
		m.Role = domain.RoleCoordinator
		members = append(members, m)
	}
	if r.Parent != nil {
		m := *r.Parent
		m.Role = domain.RoleParent
		members = append(members, m)
	}
	for _, p := range r.Professionals {
		p.Role = domain.RoleProfessional
		members = append(members, p)
	}
	return members
}

// Allocate creates a team and binds it to the license as one logical
// operation: capacity check, team creation, license binding. On a binding
// failure the created team is rolled back so capacity is never reserved
// for a team that does not exist.
func (c *Coordinator) Allocate(ctx context.Context, req AllocateRequest) (string, error) {
	tracer := otel.Tracer("allocation-coordinator")
	ctx, span := tracer.Start(ctx, "allocation.allocate",
		trace.WithAttributes(
			attribute.String("license.id", req.LicenseID),
			attribute.String("team.name", req.TeamName),
		),
	)
	defer span.End()

	if teamID, ok := c.replayedRequest(req.RequestID); ok {
		c.logger.InfoContext(ctx, "allocation request replayed",
			slog.String("request_id", req.RequestID),
			slog.String("team_id", teamID),
		)
		span.SetAttributes(attribute.Bool("allocation.replayed", true))
		return teamID, nil
	}

	unlock := c.lock(req.LicenseID)
	defer unlock()

	lic, err := c.licenses.Get(ctx, req.LicenseID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	now := time.Now()
	if !lic.IsActive {
		return "", fmt.Errorf("license %s: %w", lic.ID, apperrors.ErrLicenseInactive)
	}
	if lic.IsExpired(now) {
		// Expired licenses fail allocation as inactive; LicenseExpired is
		// reserved for the validation report.
		return "", fmt.Errorf("license %s expired %s: %w",
			lic.ID, lic.ExpiresAt.Format("2006-01-02"), apperrors.ErrLicenseInactive)
	}
	if !license.CanAllocate(lic) {
		return "", fmt.Errorf("license %s (%d/%d seats): %w",
			lic.ID, lic.UsedCount, lic.TotalCount, apperrors.ErrCapacityExceeded)
	}

	maxMembers := 0
	if lic.Model == domain.LicenseModelIndividual {
		maxMembers = lic.MaxUsers
	}

	created, err := c.teams.Create(ctx, team.CreateRequest{
		Name:        req.TeamName,
		Description: req.Description,
		StudentName: req.StudentName,
		Members:     req.members(),
		LicenseID:   lic.ID,
		MaxMembers:  maxMembers,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if err := c.licenses.BindTeam(ctx, lic, created.ID); err != nil {
		// The team exists but the seat was never reserved; remove it so
		// no unbound team survives a partial allocation.
		if _, rbErr := c.teams.Delete(ctx, created.ID); rbErr != nil {
			c.logger.ErrorContext(ctx, "allocation rollback failed",
				slog.String("team_id", created.ID),
				slog.String("error", rbErr.Error()),
			)
		}
		span.RecordError(err)
		return "", err
	}

	c.recordRequest(req.RequestID, created.ID)

	span.SetAttributes(
		attribute.String("team.id", created.ID),
		attribute.Int("license.used_count", lic.UsedCount),
	)
	c.logger.InfoContext(ctx, "license allocated",
		slog.String("license_id", lic.ID),
		slog.String("team_id", created.ID),
		slog.String("student_name", req.StudentName),
		slog.Int("used_count", lic.UsedCount),
		slog.Int("total_count", lic.TotalCount),
	)
	c.publish(ctx, Event{
		Type:      EventAllocated,
		LicenseID: lic.ID,
		TeamID:    created.ID,
		Detail:    map[string]string{"team_name": req.TeamName, "student_name": req.StudentName},
		Timestamp: now,
	})

	return created.ID, nil
}

// Deallocate removes the team from its license, releases the seat, and
// deletes the team. Idempotent: deallocating a team that is already gone
// or unbound is a no-op, not an error.
func (c *Coordinator) Deallocate(ctx context.Context, teamID string) error {
	tracer := otel.Tracer("allocation-coordinator")
	ctx, span := tracer.Start(ctx, "allocation.deallocate",
		trace.WithAttributes(attribute.String("team.id", teamID)),
	)
	defer span.End()

	tm, err := c.teams.Get(ctx, teamID)
	if err != nil {
		if isNotFound(err) {
			c.logger.DebugContext(ctx, "deallocate of absent team is a no-op",
				slog.String("team_id", teamID))
			return nil
		}
		span.RecordError(err)
		return err
	}

	licenseID := tm.LicenseID()
	if licenseID == "" {
		// Already unbound: just remove the team remnant.
		if _, err := c.teams.Delete(ctx, teamID); err != nil && !isNotFound(err) {
			return err
		}
		return nil
	}

	unlock := c.lock(licenseID)
	defer unlock()

	return c.deallocateBound(ctx, licenseID, teamID)
}

// deallocateBound releases the seat and removes the team. The caller
// holds the license lock.
func (c *Coordinator) deallocateBound(ctx context.Context, licenseID, teamID string) error {
	span := trace.SpanFromContext(ctx)

	lic, err := c.licenses.Get(ctx, licenseID)
	if err != nil && !isNotFound(err) {
		span.RecordError(err)
		return err
	}

	// Unbind before deleting the team: a seat released twice is worse
	// than a team row that survives one failed attempt.
	if lic != nil {
		if err := c.licenses.UnbindTeam(ctx, lic, teamID); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if _, err := c.teams.Delete(ctx, teamID); err != nil && !isNotFound(err) {
		span.RecordError(err)
		return err
	}

	c.logger.InfoContext(ctx, "license deallocated",
		slog.String("license_id", licenseID),
		slog.String("team_id", teamID),
	)
	c.publish(ctx, Event{
		Type:      EventDeallocated,
		LicenseID: licenseID,
		TeamID:    teamID,
		Timestamp: time.Now(),
	})
	return nil
}

// DeleteLicense deallocates every bound team, then deletes the license.
// This is the only caller permitted through the store's bound-teams
// guard, by virtue of clearing it first.
func (c *Coordinator) DeleteLicense(ctx context.Context, licenseID string) error {
	tracer := otel.Tracer("allocation-coordinator")
	ctx, span := tracer.Start(ctx, "allocation.delete_license",
		trace.WithAttributes(attribute.String("license.id", licenseID)),
	)
	defer span.End()

	// Hold the license lock for the whole cascade so an allocate cannot
	// slip in between the last detach and the store delete.
	unlock := c.lock(licenseID)
	defer unlock()

	lic, err := c.licenses.Get(ctx, licenseID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	// Cascade: detach teams one at a time through the normal deallocate
	// path so every step keeps the counters balanced.
	teams := append([]string(nil), lic.Teams...)
	span.SetAttributes(attribute.Int("license.bound_teams", len(teams)))
	for _, teamID := range teams {
		if err := c.deallocateBound(ctx, licenseID, teamID); err != nil {
			span.RecordError(err)
			return fmt.Errorf("cascade deallocate team %s: %w", teamID, err)
		}
	}

	if err := c.licenses.Delete(ctx, licenseID); err != nil {
		span.RecordError(err)
		return err
	}

	c.logger.InfoContext(ctx, "license deleted with cascade",
		slog.String("license_id", licenseID),
		slog.Int("detached_teams", len(teams)),
	)
	c.publish(ctx, Event{
		Type:      EventDeleted,
		LicenseID: licenseID,
		Detail:    map[string]string{"detached_teams": fmt.Sprintf("%d", len(teams))},
		Timestamp: time.Now(),
	})
	return nil
}

// DeleteTeam runs a full team removal through the deallocation path so
// the owning license's seat is always released.
func (c *Coordinator) DeleteTeam(ctx context.Context, teamID string) error {
	return c.Deallocate(ctx, teamID)
}

func (c *Coordinator) lock(licenseID string) func() {
	v, _ := c.locks.LoadOrStore(licenseID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (c *Coordinator) replayedRequest(requestID string) (string, bool) {
	if requestID == "" {
		return "", false
	}
	c.requestsMu.Lock()
	defer c.requestsMu.Unlock()
	teamID, ok := c.requests[requestID]
	return teamID, ok
}

func (c *Coordinator) recordRequest(requestID, teamID string) {
	if requestID == "" {
		return
	}
	c.requestsMu.Lock()
	defer c.requestsMu.Unlock()
	c.requests[requestID] = teamID
}

func (c *Coordinator) publish(ctx context.Context, event Event) {
	if c.sink != nil {
		c.sink.Publish(ctx, event)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrTeamNotFound) ||
		errors.Is(err, apperrors.ErrLicenseNotFound)
}
