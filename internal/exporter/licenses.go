// Package exporter builds downloadable reports for the admin portal.
package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jhsobrinho/educareapp-sub000/internal/license"
	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// LicenseReport writes license utilization workbooks.
type LicenseReport struct {
	logger *slog.Logger
}

// NewLicenseReport creates a license report exporter.
func NewLicenseReport(logger *slog.Logger) *LicenseReport {
	return &LicenseReport{logger: logger.With(slog.String("component", "license_report"))}
}

// Write renders licenses and their teams to an XLSX workbook on w. The
// workbook carries two sheets: Licenses with capacity figures, Teams
// with the team-to-license bindings.
func (r *LicenseReport) Write(ctx context.Context, w io.Writer, licenses []*domain.License, teamsByLicense map[string][]*domain.Team) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			r.logger.Warn("closing workbook", slog.String("error", err.Error()))
		}
	}()

	const licenseSheet = "Licenses"
	if err := f.SetSheetName("Sheet1", licenseSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	licenseHeaders := []interface{}{
		"ID", "Key", "Type", "Model", "Status", "Active",
		"Used", "Total", "Remaining", "Utilization", "Max Users",
		"Assigned To", "Expires At", "Last Validated",
	}
	if err := f.SetSheetRow(licenseSheet, "A1", &licenseHeaders); err != nil {
		return fmt.Errorf("write license headers: %w", err)
	}

	for i, lic := range licenses {
		usage := license.Usage(lic)
		lastValidated := ""
		if lic.LastValidated != nil {
			lastValidated = lic.LastValidated.Format(time.RFC3339)
		}
		row := []interface{}{
			lic.ID,
			license.FormatKey(lic.Key),
			string(lic.Type),
			string(lic.Model),
			string(lic.Status),
			lic.IsActive,
			usage.UsedCount,
			usage.TotalCount,
			usage.RemainingCapacity,
			usage.Utilization,
			lic.MaxUsers,
			lic.AssignedTo,
			lic.ExpiresAt.Format(time.RFC3339),
			lastValidated,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(licenseSheet, cell, &row); err != nil {
			return fmt.Errorf("write license row %d: %w", i, err)
		}
	}

	const teamSheet = "Teams"
	if _, err := f.NewSheet(teamSheet); err != nil {
		return fmt.Errorf("create team sheet: %w", err)
	}

	teamHeaders := []interface{}{
		"Team ID", "Team Name", "Student", "Members", "License ID", "License Key",
	}
	if err := f.SetSheetRow(teamSheet, "A1", &teamHeaders); err != nil {
		return fmt.Errorf("write team headers: %w", err)
	}

	rowIdx := 2
	for _, lic := range licenses {
		for _, team := range teamsByLicense[lic.ID] {
			row := []interface{}{
				team.ID,
				team.Name,
				team.StudentName,
				len(team.Members),
				lic.ID,
				license.FormatKey(lic.Key),
			}
			cell := fmt.Sprintf("A%d", rowIdx)
			if err := f.SetSheetRow(teamSheet, cell, &row); err != nil {
				return fmt.Errorf("write team row %d: %w", rowIdx, err)
			}
			rowIdx++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	r.logger.InfoContext(ctx, "license report exported",
		slog.Int("licenses", len(licenses)),
		slog.Int("teams", rowIdx-2),
	)
	return nil
}
