package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhsobrinho/educareapp-sub000/internal/access"
	"github.com/jhsobrinho/educareapp-sub000/internal/allocation"
	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/infrastructure"
	"github.com/jhsobrinho/educareapp-sub000/internal/middleware"
)

// AllocationHandler handles seat allocation requests
type AllocationHandler struct {
	coordinator *allocation.Coordinator
	gate        *access.Gate
	validate    *middleware.ValidationMiddleware
	errs        *apperrors.ErrorHandler
	logger      *slog.Logger
}

// NewAllocationHandler creates an allocation handler
func NewAllocationHandler(
	coordinator *allocation.Coordinator,
	gate *access.Gate,
	validate *middleware.ValidationMiddleware,
	errs *apperrors.ErrorHandler,
	logger *slog.Logger,
) *AllocationHandler {
	return &AllocationHandler{
		coordinator: coordinator,
		gate:        gate,
		validate:    validate,
		errs:        errs,
		logger:      logger.With(slog.String("handler", "allocation")),
	}
}

// Routes returns the chi router mounted at /api/allocations
func (h *AllocationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Allocate)
	return r
}

// Allocate handles POST /api/allocations: creates a team and binds it
// to the license in one atomic step.
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseAssign) {
		return
	}

	var req allocation.AllocateRequest
	if err := render.Decode(r, &req); err != nil {
		h.errs.HandleError(w, r, apperrors.NewValidationError("invalid request body"))
		return
	}
	if fieldErrs := h.validate.ValidateStruct(req); fieldErrs != nil {
		render.Render(w, r, apperrors.NewValidationProblem(r.URL.Path, fieldErrs))
		return
	}

	// Callers that do not supply an idempotency key get the request id,
	// so transport-level retries of the same request never double-book
	// a seat.
	if req.RequestID == "" {
		req.RequestID = middleware.GetReqID(ctx)
	}

	tracer := infrastructure.Tracer("allocation-handler")
	ctx, span := tracer.Start(ctx, "allocation.allocate",
		trace.WithAttributes(
			attribute.String("license.id", req.LicenseID),
			attribute.String("allocation.request_id", req.RequestID),
		),
	)
	defer span.End()

	teamID, err := h.coordinator.Allocate(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.errs.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "seat allocated",
		slog.String("license_id", req.LicenseID),
		slog.String("team_id", teamID),
		slog.String("actor_role", access.ActorRole(r)),
	)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{
		"team_id":    teamID,
		"license_id": req.LicenseID,
	})
}
