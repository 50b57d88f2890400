package httpx

import (
	"errors"
	"net/http"

	"github.com/freightbill/freightbill/internal/workflow"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
// Validation and authorization failures are local and non-retryable;
// transaction failures surface as 500 and the caller may resubmit.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case workflow.IsValidation(err):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case workflow.IsUnauthorized(err):
		Problem(w, http.StatusForbidden, "Unauthorized Transition", err.Error())
	case workflow.IsPreconditionFailed(err):
		Problem(w, http.StatusConflict, "Precondition Failed", err.Error())
	case errors.Is(err, workflow.ErrTransactionFailure):
		Problem(w, http.StatusInternalServerError, "Transaction Failure", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
