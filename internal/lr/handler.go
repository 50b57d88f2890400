package lr

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/platform/httpx"
	"github.com/freightbill/freightbill/internal/shared"
)

// Handler exposes LR endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers LR routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/import", h.importBatch)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
}

type importRowRequest struct {
	LRNumber     string   `json:"lrNumber" validate:"required"`
	FileNumber   string   `json:"fileNumber" validate:"required"`
	PriceOffered *float64 `json:"priceOffered"`
	LRPrice      *float64 `json:"lrPrice"`
	PriceSettled *float64 `json:"priceSettled"`
	ExtraCost    *float64 `json:"extraCost"`
	PODLink      *string  `json:"podLink"`
	TVendorID    string   `json:"tvendorId" validate:"required,uuid"`
}

type importBatchRequest struct {
	Rows []importRowRequest `json:"rows" validate:"required,min=1,dive"`
}

func (h *Handler) importBatch(w http.ResponseWriter, r *http.Request) {
	var req importBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows := make([]ImportLRInput, 0, len(req.Rows))
	for _, row := range req.Rows {
		vendorID, _ := uuid.Parse(row.TVendorID)
		rows = append(rows, ImportLRInput{
			LRNumber:     row.LRNumber,
			FileNumber:   row.FileNumber,
			PriceOffered: row.PriceOffered,
			LRPrice:      row.LRPrice,
			PriceSettled: row.PriceSettled,
			ExtraCost:    row.ExtraCost,
			PODLink:      row.PODLink,
			TVendorID:    vendorID,
		})
	}

	result, err := h.service.Import(r.Context(), r.Header.Get("Idempotency-Key"), rows)
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "import batch already processed")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var req ListLRsRequest
	if raw := r.URL.Query().Get("tvendorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tvendorId must be a UUID")
			return
		}
		req.TVendorID = id
	}
	req.FileNumber = r.URL.Query().Get("fileNumber")
	req.Unassigned = r.URL.Query().Get("unassigned") == "true"
	req.Uninvoiced = r.URL.Query().Get("uninvoiced") == "true"
	req.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	req.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	lrs, err := h.service.List(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, lrs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "id must be a UUID")
		return
	}
	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, l)
}

type updateLRRequest struct {
	LRPrice       *float64 `json:"lrPrice"`
	PriceSettled  *float64 `json:"priceSettled"`
	ExtraCost     *float64 `json:"extraCost"`
	ModifiedPrice *float64 `json:"modifiedPrice"`
	PODLink       *string  `json:"podLink"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "id must be a UUID")
		return
	}
	var req updateLRRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}

	updated, err := h.service.Update(r.Context(), id, UpdateLRInput{
		LRPrice:       req.LRPrice,
		PriceSettled:  req.PriceSettled,
		ExtraCost:     req.ExtraCost,
		ModifiedPrice: req.ModifiedPrice,
		PODLink:       req.PODLink,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, updated)
}
