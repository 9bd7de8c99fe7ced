package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/shared"
)

// ResyncEnqueuer schedules a background master-status resync.
type ResyncEnqueuer interface {
	EnqueueOrderResync(ctx context.Context, orderID string) error
}

// Handler manages order and suborder endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	enqueuer ResyncEnqueuer
}

// NewHandler builds a Handler instance. The enqueuer is optional; without it
// the resync endpoint runs synchronously.
func NewHandler(logger *slog.Logger, service *Service, enqueuer ResyncEnqueuer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		enqueuer: enqueuer,
	}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve/site", h.approveSite)
	r.Post("/{id}/approve/company", h.approveCompany)
	r.Post("/{id}/reject", h.reject)
	r.Get("/{id}/suborders", h.listSuborders)
	r.Post("/{id}/suborders", h.createSuborders)
	r.Post("/{id}/status/resync", h.resync)
	r.Post("/suborders/{suborderID}/shipping", h.updateShipping)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.logger.Error("create order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	filters := ListFilters{
		EmployeeID: r.URL.Query().Get("employee_id"),
		CompanyID:  r.URL.Query().Get("company_id"),
		SiteID:     r.URL.Query().Get("site_id"),
		Status:     r.URL.Query().Get("status"),
		Search:     r.URL.Query().Get("search"),
	}
	items, total, err := h.service.ListOrders(r.Context(), limit, offset, filters)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page := 1
	if limit > 0 {
		page = offset/limit + 1
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders":     items,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	master, err := h.service.MasterOrderStatus(r.Context(), id)
	if err != nil {
		h.logger.Warn("derive master status", slog.String("order_id", id), slog.Any("error", err))
		master = order.LegacyStatus
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"order":         order,
		"master_status": master,
	})
}

func (h *Handler) approveSite(w http.ResponseWriter, r *http.Request) {
	h.approval(w, r, h.service.ApproveBySite)
}

func (h *Handler) approveCompany(w http.ResponseWriter, r *http.Request) {
	h.approval(w, r, h.service.ApproveByCompany)
}

func (h *Handler) approval(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (Order, error)) {
	id := chi.URLParam(r, "id")
	var req ApprovalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := fn(r.Context(), id, req.ApprovedBy)
	if err != nil {
		h.logger.Error("approve order", slog.String("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RejectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Reject(r.Context(), id, req)
	if err != nil {
		h.logger.Error("reject order", slog.String("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) listSuborders(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	subs, err := h.service.ListSuborders(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suborders": subs})
}

func (h *Handler) createSuborders(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	subs, err := h.service.CreateSubordersForOrder(r.Context(), id)
	if err != nil {
		h.logger.Error("create suborders", slog.String("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"suborders": subs})
}

func (h *Handler) updateShipping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "suborderID")
	var req UpdateShippingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sub, err := h.service.UpdateSuborderShipping(r.Context(), id, req)
	if err != nil {
		h.logger.Error("update suborder shipping", slog.String("suborder_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueOrderResync(r.Context(), id); err != nil {
			h.logger.Error("enqueue resync", slog.String("order_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"order_id": id, "scheduled": true})
		return
	}
	if err := h.service.UpdateMasterOrderStatus(r.Context(), id); err != nil {
		h.logger.Error("resync master status", slog.String("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order_id": id, "scheduled": false})
}
