package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for stock reads, adjustments, and resets.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock", func(r chi.Router) {
		r.Get("/on-hand/{productID}", h.onHand)
		r.Get("/movements", h.listMovements)
		r.Get("/batches", h.listBatches)
		r.Post("/adjustments", h.adjust)
		r.Post("/reset", h.resetAll)
	})
}

type adjustRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Type      string          `json:"type" validate:"required,oneof=add subtract"`
	Qty       decimal.Decimal `json:"qty"`
	Reason    string          `json:"reason" validate:"required"`
}

type resetRequest struct {
	Confirm string `json:"confirm" validate:"required,eq=RESET ALL STOCK"`
}

func (h *Handler) onHand(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	stock, err := h.service.OnHand(r.Context(), scope.TenantID, productID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "on_hand": stock})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	branchID, _ := strconv.ParseInt(q.Get("branch_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	filter := MovementFilter{ProductID: productID, BranchID: branchID, Limit: limit, Offset: offset}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = t
		}
	}
	movements, err := h.service.ListMovements(r.Context(), scope.TenantID, filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	batches, err := h.service.ListAvailableBatches(r.Context(), scope.TenantID, productID, supplierID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	stock, err := h.service.Adjust(r.Context(), scope.TenantID, AdjustInput{
		ProductID: req.ProductID,
		BranchID:  scope.BranchID,
		ActorID:   scope.ActorID,
		Type:      AdjustmentType(req.Type),
		Qty:       req.Qty,
		Reason:    req.Reason,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": req.ProductID, "on_hand": stock})
}

func (h *Handler) resetAll(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "confirmation phrase required")
		return
	}
	if err := h.service.ResetAllStock(r.Context(), scope.TenantID, scope.ActorID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInsufficientBatchStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
