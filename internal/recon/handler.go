package recon

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/platform/httpx"
)

// Handler exposes the reconciliation report endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation routes under the invoice tree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/reconciliation", h.report)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "id must be a UUID")
		return
	}
	report, err := h.service.Report(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, report)
}
