package transfer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for inter-branch transfers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/ship", h.ship)
		r.Post("/{id}/receive", h.receive)
		r.Delete("/{id}", h.del)
	})
}

type lineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	UnitID    int64           `json:"unit_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
}

type createRequest struct {
	FromBranchID int64         `json:"from_branch_id" validate:"required,gt=0"`
	ToBranchID   int64         `json:"to_branch_id" validate:"required,gt=0"`
	Date         string        `json:"date" validate:"required"`
	Note         string        `json:"note"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	var req createRequest
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
	in := CreateInput{
		FromBranchID: req.FromBranchID,
		ToBranchID:   req.ToBranchID,
		ActorID:      scope.ActorID,
		Date:         date,
		Note:         req.Note,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, Line{ProductID: line.ProductID, UnitID: line.UnitID, Qty: line.Qty})
	}
	tr, err := h.service.Create(r.Context(), scope.TenantID, in)
	if err != nil {
		h.logger.Error("create transfer", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tr, err := h.service.Ship(r.Context(), scope.TenantID, id, scope.ActorID, r.Header.Get("X-Idempotency-Key"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tr, err := h.service.Receive(r.Context(), scope.TenantID, id, scope.ActorID, r.Header.Get("X-Idempotency-Key"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tr, err := h.service.Get(r.Context(), scope.TenantID, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	q := r.URL.Query()
	branchID, _ := strconv.ParseInt(q.Get("branch_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{BranchID: branchID, Status: Status(q.Get("status")), Page: page, Limit: limit}

	transfers, total, err := h.service.List(r.Context(), scope.TenantID, filters)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transfers":  transfers,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) del(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), scope.TenantID, id, scope.ActorID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
