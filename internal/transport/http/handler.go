package http

import (
	"net/http"

	"github.com/jhsobrinho/educareapp-sub000/internal/access"
	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
)

// requireAction checks the caller's role against the capability matrix
// and writes a Forbidden problem when the action is not permitted.
// Returns true when the request may proceed.
func requireAction(w http.ResponseWriter, r *http.Request, gate *access.Gate, errs *apperrors.ErrorHandler, action access.Action) bool {
	if err := gate.Require(r.Context(), access.ActorRole(r), action); err != nil {
		errs.HandleError(w, r, err)
		return false
	}
	return true
}
