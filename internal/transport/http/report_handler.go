package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jhsobrinho/educareapp-sub000/internal/access"
	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/exporter"
	"github.com/jhsobrinho/educareapp-sub000/internal/license"
	"github.com/jhsobrinho/educareapp-sub000/internal/team"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// ReportHandler streams the license utilization workbook
type ReportHandler struct {
	licenses *license.Store
	teams    *team.Store
	report   *exporter.LicenseReport
	gate     *access.Gate
	errs     *apperrors.ErrorHandler
	logger   *slog.Logger
}

// NewReportHandler creates a report handler
func NewReportHandler(
	licenses *license.Store,
	teams *team.Store,
	report *exporter.LicenseReport,
	gate *access.Gate,
	errs *apperrors.ErrorHandler,
	logger *slog.Logger,
) *ReportHandler {
	return &ReportHandler{
		licenses: licenses,
		teams:    teams,
		report:   report,
		gate:     gate,
		errs:     errs,
		logger:   logger.With(slog.String("handler", "report")),
	}
}

// Routes returns the chi router mounted at /api/reports
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/licenses", h.Licenses)
	return r
}

// Licenses handles GET /api/reports/licenses: an XLSX workbook with a
// sheet of licenses and a sheet of their bound teams.
func (h *ReportHandler) Licenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireAction(w, r, h.gate, h.errs, access.LicenseView) {
		return
	}

	licenses, err := h.licenses.List(ctx)
	if err != nil {
		h.errs.HandleError(w, r, err)
		return
	}

	teamsByLicense := make(map[string][]*domain.Team, len(licenses))
	for _, lic := range licenses {
		if len(lic.Teams) == 0 {
			continue
		}
		bound, err := h.teams.ListByLicense(ctx, lic.ID)
		if err != nil {
			h.errs.HandleError(w, r, err)
			return
		}
		teamsByLicense[lic.ID] = bound
	}

	filename := fmt.Sprintf("licenses_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))

	if err := h.report.Write(ctx, w, licenses, teamsByLicense); err != nil {
		// Headers are already on the wire; log and drop the connection.
		h.logger.ErrorContext(ctx, "license report write failed",
			slog.String("error", err.Error()),
		)
	}
}
