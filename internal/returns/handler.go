package returns

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for supplier and customer returns.
type Handler struct {
	logger   *slog.Logger
	supplier *SupplierService
	customer *CustomerService
	validate *validator.Validate
}

// NewHandler constructs the returns handler.
func NewHandler(logger *slog.Logger, supplier *SupplierService, customer *CustomerService) *Handler {
	return &Handler{logger: logger, supplier: supplier, customer: customer, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// MountRoutes registers return routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/returns/supplier", func(r chi.Router) {
		r.Get("/", h.listSupplier)
		r.Post("/", h.createSupplier)
		r.Get("/available-batches", h.availableBatches)
		r.Get("/{id}", h.getSupplier)
		r.Post("/{id}/complete", h.completeSupplier)
		r.Post("/{id}/cancel", h.cancelSupplier)
		r.Delete("/{id}", h.deleteSupplier)
	})
	r.Route("/returns/customer", func(r chi.Router) {
		r.Get("/", h.listCustomer)
		r.Post("/", h.createCustomer)
		r.Get("/{id}", h.getCustomer)
		r.Post("/{id}/status", h.updateCustomerStatus)
		r.Delete("/{id}", h.deleteCustomer)
	})
}

type supplierLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	BatchID   int64           `json:"batch_id" validate:"required,gt=0"`
	UnitID    int64           `json:"unit_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type supplierReturnRequest struct {
	SupplierID int64                 `json:"supplier_id" validate:"required,gt=0"`
	Date       string                `json:"date" validate:"required"`
	Reason     string                `json:"reason"`
	Status     string                `json:"status" validate:"omitempty,oneof=draft completed"`
	Lines      []supplierLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type customerLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	UnitID    int64           `json:"unit_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type customerReturnRequest struct {
	Customer string                `json:"customer"`
	SaleRef  string                `json:"sale_ref"`
	Date     string                `json:"date" validate:"required"`
	Reason   string                `json:"reason"`
	Lines    []customerLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type statusRequest struct {
	Event string `json:"event" validate:"required,oneof=approve reject complete"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	var req supplierReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	in := CreateSupplierReturnInput{
		SupplierID: req.SupplierID,
		BranchID:   scope.BranchID,
		ActorID:    scope.ActorID,
		Date:       date,
		Reason:     req.Reason,
		Status:     SupplierStatus(req.Status),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, SupplierReturnLine{
			ProductID: line.ProductID,
			BatchID:   line.BatchID,
			UnitID:    line.UnitID,
			Qty:       line.Qty,
			UnitCost:  line.UnitCost,
		})
	}
	ret, err := h.supplier.Create(r.Context(), scope.TenantID, in)
	if err != nil {
		h.logger.Error("create supplier return", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) completeSupplier(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ret, err := h.supplier.Complete(r.Context(), scope.TenantID, id, scope.ActorID, r.Header.Get("X-Idempotency-Key"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) cancelSupplier(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ret, err := h.supplier.Cancel(r.Context(), scope.TenantID, id, scope.ActorID, r.Header.Get("X-Idempotency-Key"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.supplier.Delete(r.Context(), scope.TenantID, id, scope.ActorID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ret, err := h.supplier.Get(r.Context(), scope.TenantID, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) listSupplier(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	q := r.URL.Query()
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{SupplierID: supplierID, Status: q.Get("status"), Page: page, Limit: limit}

	rets, total, err := h.supplier.List(r.Context(), scope.TenantID, filters)
	if err != nil {
		h.logger.Error("list supplier returns", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"returns":    rets,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) availableBatches(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	batches, err := h.supplier.AvailableBatches(r.Context(), scope.TenantID, productID, supplierID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	var req customerReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	in := CreateCustomerReturnInput{
		BranchID: scope.BranchID,
		ActorID:  scope.ActorID,
		Customer: req.Customer,
		SaleRef:  req.SaleRef,
		Date:     date,
		Reason:   req.Reason,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, CustomerReturnLine{
			ProductID: line.ProductID,
			UnitID:    line.UnitID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
		})
	}
	ret, err := h.customer.Create(r.Context(), scope.TenantID, in)
	if err != nil {
		h.logger.Error("create customer return", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) updateCustomerStatus(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.customer.UpdateStatus(r.Context(), scope.TenantID, id, scope.ActorID, Event(req.Event), r.Header.Get("X-Idempotency-Key"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.customer.Delete(r.Context(), scope.TenantID, id, scope.ActorID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ret, err := h.customer.Get(r.Context(), scope.TenantID, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) listCustomer(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{Status: q.Get("status"), Page: page, Limit: limit}

	rets, total, err := h.customer.List(r.Context(), scope.TenantID, filters)
	if err != nil {
		h.logger.Error("list customer returns", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"returns":    rets,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid return id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrBatchNotFound),
		errors.Is(err, ledger.ErrProductNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBatchMismatch), errors.Is(err, ledger.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock), errors.Is(err, ledger.ErrInsufficientBatchStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
