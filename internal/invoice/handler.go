package invoice

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

// Handler exposes invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.createFromAnnexure)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/history", h.history)
	r.Get("/{id}/rejections", h.rejections)
	r.Get("/{id}/comments", h.comments)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/tadmin-approve", h.tadminApprove)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/boss-approve", h.bossApprove)
	r.Post("/{id}/authorize-payment", h.authorizePayment)
	r.Post("/{id}/request-deletion", h.requestDeletion)
}

type createInvoiceRequest struct {
	AnnexureID    string  `json:"annexureId" validate:"required,uuid"`
	TaxRate       float64 `json:"taxRate" validate:"gte=0"`
	InvoiceNumber *string `json:"invoiceNumber"`
	InvoiceDate   *string `json:"invoiceDate"`
	BillToID      *string `json:"billToId"`
	BillTo        *string `json:"billTo"`
	BillToGSTIN   *string `json:"billToGstin"`
}

func (h *Handler) createFromAnnexure(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	annexureID, _ := uuid.Parse(req.AnnexureID)
	input := CreateFromAnnexureInput{
		AnnexureID:    annexureID,
		TaxRate:       req.TaxRate,
		InvoiceNumber: req.InvoiceNumber,
		BillTo:        req.BillTo,
		BillToGSTIN:   req.BillToGSTIN,
	}
	if req.InvoiceDate != nil {
		d, err := time.Parse("2006-01-02", *req.InvoiceDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoiceDate must be YYYY-MM-DD")
			return
		}
		input.InvoiceDate = &d
	}
	if req.BillToID != nil {
		id, err := uuid.Parse(*req.BillToID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "billToId must be a UUID")
			return
		}
		input.BillToID = &id
	}

	created, err := h.service.CreateFromAnnexure(r.Context(), shared.ActorFromContext(r.Context()), input)
	if err == ErrDuplicateInvoiceNumber {
		httpx.Problem(w, http.StatusConflict, "Duplicate Invoice Number", err.Error())
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, created)
}

type updateInvoiceRequest struct {
	InvoiceNumber *string  `json:"invoiceNumber"`
	InvoiceDate   *string  `json:"invoiceDate"`
	BillToID      *string  `json:"billToId"`
	BillTo        *string  `json:"billTo"`
	BillToGSTIN   *string  `json:"billToGstin"`
	FileURI       *string  `json:"fileUri"`
	TaxRate       *float64 `json:"taxRate"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}
	input := UpdateInvoiceInput{
		InvoiceNumber: req.InvoiceNumber,
		BillTo:        req.BillTo,
		BillToGSTIN:   req.BillToGSTIN,
		FileURI:       req.FileURI,
		TaxRate:       req.TaxRate,
	}
	if req.InvoiceDate != nil {
		d, err := time.Parse("2006-01-02", *req.InvoiceDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoiceDate must be YYYY-MM-DD")
			return
		}
		input.InvoiceDate = &d
	}
	if req.BillToID != nil {
		bid, err := uuid.Parse(*req.BillToID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "billToId must be a UUID")
			return
		}
		input.BillToID = &bid
	}

	updated, err := h.service.Update(r.Context(), shared.ActorFromContext(r.Context()), id, input)
	if err == ErrDuplicateInvoiceNumber {
		httpx.Problem(w, http.StatusConflict, "Duplicate Invoice Number", err.Error())
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, updated)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListInvoicesRequest{
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

	invoices, err := h.service.List(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, invoices)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, inv)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
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
	id, ok := h.pathID(w, r)
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

func (h *Handler) comments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	thread, err := h.service.Comments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, thread)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.SubmitForReview(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) tadminApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.ApproveByTadmin(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}
	result, err := h.service.Reject(r.Context(), shared.ActorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) bossApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.ApproveByBoss(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) authorizePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.AuthorizePayment(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, inv)
}

func (h *Handler) requestDeletion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.RequestDeletion(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
