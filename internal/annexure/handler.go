package annexure

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/freightbill/freightbill/internal/platform/httpx"
	"github.com/freightbill/freightbill/internal/shared"
	"github.com/freightbill/freightbill/internal/workflow"
)

// Handler exposes annexure endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers annexure routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/history", h.history)
	r.Get("/{id}/rejections", h.rejections)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/forward", h.forward)
	r.Post("/{id}/boss-approve", h.bossApprove)
	r.Post("/{id}/boss-reject", h.bossReject)
	r.Post("/file-groups/{groupId}/review", h.reviewFileGroup)
}

type createAnnexureRequest struct {
	Name     string   `json:"name" validate:"required"`
	FromDate string   `json:"fromDate" validate:"required"`
	ToDate   string   `json:"toDate" validate:"required"`
	VendorID string   `json:"vendorId" validate:"required,uuid"`
	LRIDs    []string `json:"lrIds" validate:"required,min=1,dive,uuid"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAnnexureRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	fromDate, err := time.Parse("2006-01-02", req.FromDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fromDate must be YYYY-MM-DD")
		return
	}
	toDate, err := time.Parse("2006-01-02", req.ToDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "toDate must be YYYY-MM-DD")
		return
	}
	vendorID, _ := uuid.Parse(req.VendorID)
	lrIDs := make([]uuid.UUID, 0, len(req.LRIDs))
	for _, raw := range req.LRIDs {
		id, _ := uuid.Parse(raw)
		lrIDs = append(lrIDs, id)
	}

	created, err := h.service.Create(r.Context(), shared.ActorFromContext(r.Context()), CreateAnnexureInput{
		Name:     req.Name,
		FromDate: fromDate,
		ToDate:   toDate,
		VendorID: vendorID,
		LRIDs:    lrIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListAnnexuresRequest{
		Status: workflow.Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("vendorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "vendorId must be a UUID")
			return
		}
		req.VendorID = id
	}
	req.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	req.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	annexures, err := h.service.List(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, annexures)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, a)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, entries)
}

func (h *Handler) rejections(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	records, err := h.service.Rejections(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, records)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req notesRequest
	_ = httpx.DecodeJSON(r, &req)

	result, err := h.service.Submit(r.Context(), shared.ActorFromContext(r.Context()), id, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.service.ForwardToBoss(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, a)
}

func (h *Handler) bossApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req notesRequest
	_ = httpx.DecodeJSON(r, &req)

	a, err := h.service.ApproveByBoss(r.Context(), shared.ActorFromContext(r.Context()), id, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, a)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) bossReject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}

	a, err := h.service.RejectByBoss(r.Context(), shared.ActorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, a)
}

type reviewFileGroupRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

func (h *Handler) reviewFileGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.pathID(w, r, "groupId")
	if !ok {
		return
	}
	var req reviewFileGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}

	result, err := h.service.ReviewFileGroup(r.Context(), shared.ActorFromContext(r.Context()), groupID, req.Approve, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", param+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
