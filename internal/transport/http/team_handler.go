package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/jhsobrinho/educareapp-sub000/internal/access"
	"github.com/jhsobrinho/educareapp-sub000/internal/allocation"
	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/license"
	"github.com/jhsobrinho/educareapp-sub000/internal/middleware"
	"github.com/jhsobrinho/educareapp-sub000/internal/team"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// TeamHandler handles team read, edit, delete and deallocation
// requests. Team creation happens through the allocation endpoint so a
// team never exists without its seat.
type TeamHandler struct {
	teams       *team.Store
	licenses    *license.Store
	coordinator *allocation.Coordinator
	gate        *access.Gate
	validate    *middleware.ValidationMiddleware
	errs        *apperrors.ErrorHandler
	logger      *slog.Logger
}

// NewTeamHandler creates a team handler
func NewTeamHandler(
	teams *team.Store,
	licenses *license.Store,
	coordinator *allocation.Coordinator,
	gate *access.Gate,
	validate *middleware.ValidationMiddleware,
	errs *apperrors.ErrorHandler,
	logger *slog.Logger,
) *TeamHandler {
	return &TeamHandler{
		teams:       teams,
		licenses:    licenses,
		coordinator: coordinator,
		gate:        gate,
		validate:    validate,
		errs:        errs,
		logger:      logger.With(slog.String("handler", "team")),
	}
}

// Routes returns the chi router mounted at /api/teams
func (h *TeamHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Delete("/{id}/allocation", h.Deallocate)

	return r
}

// List handles GET /api/teams. An optional license_id query filters to
// the teams bound to that license.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireAction(w, r, h.gate, h.errs, access.TeamView) {
		return
	}

	var (
		teams []*domain.Team
		err   error
	)
	if licenseID := r.URL.Query().Get("license_id"); licenseID != "" {
		teams, err = h.teams.ListByLicense(r.Context(), licenseID)
	} else {
		teams, err = h.teams.ListAll(r.Context())
	}
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"teams": teams,
		"count": len(teams),
	})
}

// Get handles GET /api/teams/{id}
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !requireAction(w, r, h.gate, h.errs, access.TeamView) {
		return
	}

	t, err := h.teams.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, t)
}

// Update handles PUT /api/teams/{id}. Member changes re-check the
// bound license's member limit.
func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.TeamEdit) {
		return
	}

	id := chi.URLParam(r, "id")

	var req team.UpdateRequest
	if err := render.Decode(r, &req); err != nil {
		h.errs.HandleError(w, r, apperrors.NewValidationError("invalid request body"))
		return
	}
	if fieldErrs := h.validate.ValidateStruct(req); fieldErrs != nil {
		render.Render(w, r, apperrors.NewValidationProblem(r.URL.Path, fieldErrs))
		return
	}

	if len(req.Members) > 0 {
		limit, err := h.memberLimit(r, id)
		if err != nil {
			h.errs.HandleError(w, r, err)
			return
		}
		req.MaxMembers = limit
	}

	t, err := h.teams.Update(ctx, id, req)
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, t)
}

// Delete handles DELETE /api/teams/{id}: deallocates the seat, then
// removes the team.
func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.TeamDelete) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.coordinator.DeleteTeam(ctx, id); err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "team deleted",
		slog.String("team_id", id),
		slog.String("actor_role", access.ActorRole(r)),
	)

	render.NoContent(w, r)
}

// Deallocate handles DELETE /api/teams/{id}/allocation: releases the
// seat and removes the team. Idempotent; a second call is a no-op.
func (h *TeamHandler) Deallocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseAssign) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.coordinator.Deallocate(ctx, id); err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

// memberLimit resolves the member cap imposed by the team's bound
// license: the license's max_users for the individual model, unlimited
// otherwise.
func (h *TeamHandler) memberLimit(r *http.Request, teamID string) (int, error) {
	t, err := h.teams.Get(r.Context(), teamID)
	if err != nil {
		return 0, err
	}
	licenseID := t.LicenseID()
	if licenseID == "" {
		return 0, nil
	}
	lic, err := h.licenses.Get(r.Context(), licenseID)
	if err != nil {
		return 0, err
	}
	if lic.Model == domain.LicenseModelIndividual {
		return lic.MaxUsers, nil
	}
	return 0, nil
}
