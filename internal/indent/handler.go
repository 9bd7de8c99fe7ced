package indent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/shared"
)

// Handler manages indent, GRN, invoice, and payment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers settlement chain routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/vendor-indents", h.listVendorIndents)
	r.Post("/{id}/vendor-indents", h.addVendorIndent)
	r.Post("/grns", h.createGRN)
	r.Get("/grns/{grnID}", h.getGRN)
	r.Get("/invoices/{invoiceID}", h.getInvoice)
	r.Post("/grns/{grnID}/submit", h.submitGRN)
	r.Post("/grns/{grnID}/approve", h.approveGRN)
	r.Post("/grns/{grnID}/reject", h.rejectGRN)
	r.Post("/grns/{grnID}/invoice", h.raiseInvoice)
	r.Post("/invoices/{invoiceID}/approve", h.approveInvoice)
	r.Post("/invoices/{invoiceID}/payments", h.createPayment)
	r.Post("/payments/{paymentID}/complete", h.completePayment)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateIndentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	header, err := h.service.CreateIndent(r.Context(), req)
	if err != nil {
		h.logger.Error("create indent", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, header)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, total, err := h.service.ListIndents(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list indents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page := 1
	if limit > 0 {
		page = offset/limit + 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"indents":    items,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	header, err := h.service.GetIndent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, header)
}

func (h *Handler) listVendorIndents(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListVendorIndents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendor_indents": items})
}

func (h *Handler) addVendorIndent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req CreateVendorIndentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	vi, err := h.service.AddVendorIndent(r.Context(), id, req)
	if err != nil {
		h.logger.Error("add vendor indent", slog.String("indent_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vi)
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var req CreateGRNRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grn, err := h.service.CreateGRN(r.Context(), req)
	if err != nil {
		h.logger.Error("create GRN", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	grn, err := h.service.GetGRN(r.Context(), chi.URLParam(r, "grnID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) submitGRN(w http.ResponseWriter, r *http.Request) {
	h.grnTransition(w, r, h.service.SubmitGRN)
}

func (h *Handler) approveGRN(w http.ResponseWriter, r *http.Request) {
	h.grnTransition(w, r, h.service.ApproveGRN)
}

func (h *Handler) rejectGRN(w http.ResponseWriter, r *http.Request) {
	h.grnTransition(w, r, h.service.RejectGRN)
}

func (h *Handler) grnTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (GoodsReceiptNote, error)) {
	id := chi.URLParam(r, "grnID")
	var req ActorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grn, err := fn(r.Context(), id, req.Actor)
	if err != nil {
		h.logger.Error("GRN transition", slog.String("grn_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) raiseInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "grnID")
	var req RaiseInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.RaiseInvoiceFromGRN(r.Context(), id, req)
	if err != nil {
		h.logger.Error("raise invoice", slog.String("grn_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) approveInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "invoiceID")
	var req ActorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.ApproveInvoice(r.Context(), id, req.Actor)
	if err != nil {
		h.logger.Error("approve invoice", slog.String("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "invoiceID")
	var req CreatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.CreatePayment(r.Context(), id, req)
	if err != nil {
		h.logger.Error("create payment", slog.String("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) completePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")
	var req ActorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.CompletePayment(r.Context(), id, req.Actor); err != nil {
		h.logger.Error("complete payment", slog.String("payment_id", id), slog.Any("error", err))
		if errors.Is(err, ErrInconsistentChain) {
			httpx.Problem(w, http.StatusConflict, "Settlement Incomplete", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment_id": id, "completed": true})
}
