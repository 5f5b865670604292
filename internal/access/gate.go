// Package access implements the capability gate consulted before every
// mutating entry point. The role-to-permission matrix is owned by an
// external authorization component; the gate only consumes the boolean
// result and short-circuits with Forbidden before any store is touched.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
)

// Action names one gated operation.
type Action string

const (
	LicenseView     Action = "license.view"
	LicenseCreate   Action = "license.create"
	LicenseEdit     Action = "license.edit"
	LicenseDelete   Action = "license.delete"
	LicenseAssign   Action = "license.assign"
	LicenseValidate Action = "license.validate"
	TeamView        Action = "team.view"
	TeamCreate      Action = "team.create"
	TeamEdit        Action = "team.edit"
	TeamDelete      Action = "team.delete"
)

// Matrix is the external capability lookup.
type Matrix interface {
	Can(role string, action Action) bool
}

// ActorRoleHeader carries the caller's role, set upstream by the
// authentication layer.
const ActorRoleHeader = "X-Actor-Role"

// ActorRole extracts the caller's role from the request.
func ActorRole(r *http.Request) string {
	return r.Header.Get(ActorRoleHeader)
}

// Gate wraps the matrix with logging and the Forbidden short-circuit.
type Gate struct {
	matrix Matrix
	logger *slog.Logger
}

// NewGate creates a gate over the given capability matrix.
func NewGate(matrix Matrix, logger *slog.Logger) *Gate {
	return &Gate{
		matrix: matrix,
		logger: logger.With(slog.String("component", "access_gate")),
	}
}

// Can reports whether the role may perform the action.
func (g *Gate) Can(role string, action Action) bool {
	return g.matrix.Can(role, action)
}

// Require returns ErrForbidden when the role may not perform the action.
func (g *Gate) Require(ctx context.Context, role string, action Action) error {
	if g.matrix.Can(role, action) {
		return nil
	}
	g.logger.WarnContext(ctx, "action refused",
		slog.String("role", role),
		slog.String("action", string(action)),
	)
	return fmt.Errorf("role %q may not %s: %w", role, action, apperrors.ErrForbidden)
}

// StaticMatrix is the in-process default capability matrix used for
// standalone operation. Production deployments replace it with a client
// of the external authorization service.
type StaticMatrix map[string]map[Action]bool

// Can implements Matrix.
func (m StaticMatrix) Can(role string, action Action) bool {
	perms, ok := m[role]
	if !ok {
		return false
	}
	return perms[action]
}

// DefaultMatrix mirrors the product's role model: administrators manage
// licenses, coordinators manage their teams, parents and professionals
// read.
func DefaultMatrix() StaticMatrix {
	readOnly := map[Action]bool{
		LicenseView: true,
		TeamView:    true,
	}
	return StaticMatrix{
		"admin": {
			LicenseView: true, LicenseCreate: true, LicenseEdit: true,
			LicenseDelete: true, LicenseAssign: true, LicenseValidate: true,
			TeamView: true, TeamCreate: true, TeamEdit: true, TeamDelete: true,
		},
		"coordinator": {
			LicenseView: true, LicenseValidate: true,
			TeamView: true, TeamCreate: true, TeamEdit: true,
		},
		"parent":       readOnly,
		"professional": readOnly,
	}
}
