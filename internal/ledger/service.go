package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/shared"
)

// Service coordinates manual adjustments, stock resets, and read paths over
// the ledger. Workflow modules (purchasing, returns, transfer) do not go
// through Service; they compose TxLedger into their own transactions.
type Service struct {
	repo   RepositoryPort
	cache  *StockCache
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cache *StockCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// Adjust applies a manual stock correction and writes its movement record in
// the same transaction. Subtractions exceeding the current aggregate fail
// with ErrInsufficientStock and leave stock untouched.
func (s *Service) Adjust(ctx context.Context, tenantID int64, in AdjustInput) (decimal.Decimal, error) {
	if err := validateAdjust(in); err != nil {
		return decimal.Zero, err
	}
	delta := in.Qty
	if in.Type == AdjustmentSubtract {
		delta = in.Qty.Neg()
	}

	var resulting decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		stock, _, err := tx.GetProductStockForUpdate(ctx, tenantID, in.ProductID)
		if err != nil {
			return err
		}
		next := stock.Add(delta)
		if next.IsNegative() {
			return ErrInsufficientStock
		}
		if err := tx.SetProductStock(ctx, tenantID, in.ProductID, next); err != nil {
			return err
		}
		resulting = next
		_, err = tx.InsertMovement(ctx, Movement{
			TenantID:       tenantID,
			ProductID:      in.ProductID,
			BranchID:       in.BranchID,
			ActorID:        in.ActorID,
			Type:           MovementAdjustment,
			Qty:            delta,
			ResultingStock: next,
			Reason:         in.Reason,
			RefModule:      "adjustment",
		})
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.cache.Invalidate(ctx, tenantID, in.ProductID)
	s.recordAudit(ctx, tenantID, in.ActorID, "stock.adjust", fmt.Sprintf("%d", in.ProductID), map[string]any{
		"type":   string(in.Type),
		"qty":    in.Qty.String(),
		"stock":  resulting.String(),
		"reason": in.Reason,
	})
	return resulting, nil
}

// ResetAllStock zeroes every aggregate and batch remainder for the tenant.
// Destructive; callers gate it behind an explicit confirmation.
func (s *Service) ResetAllStock(ctx context.Context, tenantID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		return tx.ResetAllStock(ctx, tenantID)
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateTenant(ctx, tenantID)
	s.recordAudit(ctx, tenantID, actorID, "stock.reset_all", fmt.Sprintf("%d", tenantID), nil)
	s.logger.Warn("all stock reset", slog.Int64("tenant_id", tenantID), slog.Int64("actor_id", actorID))
	return nil
}

// OnHand returns the aggregate stock, served from cache when warm.
func (s *Service) OnHand(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	return s.cache.OnHand(ctx, tenantID, productID, func(ctx context.Context) (decimal.Decimal, error) {
		return s.repo.GetOnHand(ctx, tenantID, productID)
	})
}

// ListMovements returns the movement history, newest first.
func (s *Service) ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, tenantID, filter)
}

// ListAvailableBatches returns batches with remaining stock in FEFO order.
func (s *Service) ListAvailableBatches(ctx context.Context, tenantID, productID, supplierID int64) ([]Batch, error) {
	if productID <= 0 || supplierID <= 0 {
		return nil, fmt.Errorf("%w: product_id and supplier_id are required", ErrValidation)
	}
	return s.repo.ListAvailableBatches(ctx, tenantID, productID, supplierID)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateAdjust(in AdjustInput) error {
	if in.ProductID <= 0 {
		return fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	if in.Type != AdjustmentAdd && in.Type != AdjustmentSubtract {
		return fmt.Errorf("%w: type must be add or subtract", ErrValidation)
	}
	if in.Qty.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidQuantity
	}
	if strings.TrimSpace(in.Reason) == "" {
		return fmt.Errorf("%w: reason is required", ErrValidation)
	}
	return nil
}
