package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhsobrinho/educareapp-sub000/internal/access"
	"github.com/jhsobrinho/educareapp-sub000/internal/allocation"
	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/infrastructure"
	"github.com/jhsobrinho/educareapp-sub000/internal/license"
	"github.com/jhsobrinho/educareapp-sub000/internal/middleware"
)

// LicenseHandler handles license CRUD, validation, usage and key
// generation requests.
type LicenseHandler struct {
	licenses    *license.Store
	validator   *license.Validator
	coordinator *allocation.Coordinator
	keys        *license.KeyGenerator
	gate        *access.Gate
	validate    *middleware.ValidationMiddleware
	errs        *apperrors.ErrorHandler
	events      allocation.EventSink
	logger      *slog.Logger
}

// NewLicenseHandler creates a license handler
func NewLicenseHandler(
	licenses *license.Store,
	validator *license.Validator,
	coordinator *allocation.Coordinator,
	keys *license.KeyGenerator,
	gate *access.Gate,
	validate *middleware.ValidationMiddleware,
	errs *apperrors.ErrorHandler,
	events allocation.EventSink,
	logger *slog.Logger,
) *LicenseHandler {
	return &LicenseHandler{
		licenses:    licenses,
		validator:   validator,
		coordinator: coordinator,
		keys:        keys,
		gate:        gate,
		validate:    validate,
		errs:        errs,
		events:      events,
		logger:      logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the chi router mounted at /api/licenses
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/usage", h.UsageSummary)
	r.Post("/generate-key", h.GenerateKey)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/validate", h.Validate)
	r.Get("/{id}/usage", h.Usage)

	return r
}

// List handles GET /api/licenses
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireAction(w, r, h.gate, h.errs, access.LicenseView) {
		return
	}

	licenses, err := h.licenses.List(r.Context())
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"licenses": licenses,
		"count":    len(licenses),
	})
}

// Get handles GET /api/licenses/{id}
func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !requireAction(w, r, h.gate, h.errs, access.LicenseView) {
		return
	}

	lic, err := h.licenses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, lic)
}

// Create handles POST /api/licenses
func (h *LicenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseCreate) {
		return
	}

	var req license.CreateRequest
	if err := render.Decode(r, &req); err != nil {
		h.errs.HandleError(w, r, apperrors.NewValidationError("invalid request body"))
		return
	}
	if fieldErrs := h.validate.ValidateStruct(req); fieldErrs != nil {
		render.Render(w, r, apperrors.NewValidationProblem(r.URL.Path, fieldErrs))
		return
	}

	tracer := infrastructure.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license.create",
		trace.WithAttributes(attribute.String("license.type", string(req.Type))))
	defer span.End()

	lic, err := h.licenses.Create(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.errs.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license created",
		slog.String("license_id", lic.ID),
		slog.String("model", string(lic.Model)),
		slog.String("actor_role", access.ActorRole(r)),
	)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, lic)
}

// Update handles PUT /api/licenses/{id}
func (h *LicenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseEdit) {
		return
	}

	var req license.UpdateRequest
	if err := render.Decode(r, &req); err != nil {
		h.errs.HandleError(w, r, apperrors.NewValidationError("invalid request body"))
		return
	}
	if fieldErrs := h.validate.ValidateStruct(req); fieldErrs != nil {
		render.Render(w, r, apperrors.NewValidationProblem(r.URL.Path, fieldErrs))
		return
	}

	lic, err := h.licenses.Update(ctx, chi.URLParam(r, "id"), req)
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, lic)
}

// Delete handles DELETE /api/licenses/{id}. Deletion cascades: every
// bound team is deallocated first, then the license record is removed.
func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseDelete) {
		return
	}

	id := chi.URLParam(r, "id")

	tracer := infrastructure.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license.delete",
		trace.WithAttributes(attribute.String("license.id", id)))
	defer span.End()

	if err := h.coordinator.DeleteLicense(ctx, id); err != nil {
		span.RecordError(err)
		h.errs.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license deleted",
		slog.String("license_id", id),
		slog.String("actor_role", access.ActorRole(r)),
	)

	render.NoContent(w, r)
}

// Validate handles POST /api/licenses/{id}/validate. Business outcomes
// (not found, inactive, expired) arrive in the result body with status
// 200; only infrastructure failures produce a problem response.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseValidate) {
		return
	}

	id := chi.URLParam(r, "id")

	result, err := h.validator.Validate(ctx, id)
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	if h.events != nil {
		h.events.Publish(ctx, allocation.Event{
			Type:      allocation.EventValidated,
			LicenseID: id,
			Detail:    map[string]string{"valid": boolString(result.IsValid)},
			Timestamp: time.Now().UTC(),
		})
	}

	render.JSON(w, r, result)
}

// Usage handles GET /api/licenses/{id}/usage
func (h *LicenseHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if !requireAction(w, r, h.gate, h.errs, access.LicenseView) {
		return
	}

	lic, err := h.licenses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, license.Usage(lic))
}

// UsageSummary handles GET /api/licenses/usage, the dashboard feed of
// per-license capacity projections.
func (h *LicenseHandler) UsageSummary(w http.ResponseWriter, r *http.Request) {
	if !requireAction(w, r, h.gate, h.errs, access.LicenseView) {
		return
	}

	licenses, err := h.licenses.List(r.Context())
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	usages := make([]interface{}, 0, len(licenses))
	for _, lic := range licenses {
		usages = append(usages, license.Usage(lic))
	}

	render.JSON(w, r, map[string]interface{}{
		"usage": usages,
		"count": len(usages),
	})
}

// GenerateKey handles POST /api/licenses/generate-key
func (h *LicenseHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseCreate) {
		return
	}

	key, err := h.keys.Generate()
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license key generated",
		slog.String("actor_role", access.ActorRole(r)),
		slog.String("request_id", middleware.GetReqID(ctx)),
	)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"key": key})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
