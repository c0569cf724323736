package purchasing

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

// Handler wires HTTP endpoints for goods receiving.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.receive)
		r.Get("/{id}", h.get)
		r.Post("/{id}/complete", h.complete)
		r.Delete("/{id}", h.del)
	})
}

type receiveLineRequest struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	UnitID     int64           `json:"unit_id" validate:"required,gt=0"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ExpiryDate *string         `json:"expiry_date,omitempty"`
}

type receiveRequest struct {
	SupplierID int64                `json:"supplier_id" validate:"omitempty,gt=0"`
	Date       string               `json:"date" validate:"required"`
	Note       string               `json:"note"`
	Status     string               `json:"status" validate:"omitempty,oneof=draft completed"`
	Lines      []receiveLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	var req receiveRequest
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
	in := ReceiveInput{
		SupplierID: req.SupplierID,
		BranchID:   scope.BranchID,
		ActorID:    scope.ActorID,
		Date:       date,
		Note:       req.Note,
		Status:     Status(req.Status),
	}
	for _, line := range req.Lines {
		l := ReceiveLine{ProductID: line.ProductID, UnitID: line.UnitID, Qty: line.Qty, UnitCost: line.UnitCost}
		if line.ExpiryDate != nil && *line.ExpiryDate != "" {
			exp, err := time.Parse("2006-01-02", *line.ExpiryDate)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
				return
			}
			l.ExpiryDate = &exp
		}
		in.Lines = append(in.Lines, l)
	}

	purchase, err := h.service.Receive(r.Context(), scope.TenantID, in)
	if err != nil {
		h.logger.Error("receive purchase", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	purchase, err := h.service.Complete(r.Context(), scope.TenantID, id, scope.ActorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	purchase, err := h.service.Get(r.Context(), scope.TenantID, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	q := r.URL.Query()
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{SupplierID: supplierID, Status: Status(q.Get("status")), Page: page, Limit: limit}

	purchases, total, err := h.service.List(r.Context(), scope.TenantID, filters)
	if err != nil {
		h.logger.Error("list purchases", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  purchases,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) del(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	if err := h.service.Delete(r.Context(), scope.TenantID, id, scope.ActorID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, ledger.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrCompletedLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
