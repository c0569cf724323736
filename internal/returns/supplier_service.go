package returns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// ConverterPort resolves entry-unit quantities to base units.
type ConverterPort interface {
	ToBaseUnits(ctx context.Context, tenantID, productID, unitID int64, qty decimal.Decimal) (decimal.Decimal, error)
}

// UnitChecker verifies a unit record exists before a return references it.
// Conversion fallback covers missing conversion rows, not missing units.
type UnitChecker interface {
	UnitExists(ctx context.Context, tenantID, unitID int64) error
}

// BatchLister lists batches with remaining stock for item picking.
type BatchLister interface {
	ListAvailableBatches(ctx context.Context, tenantID, productID, supplierID int64) ([]ledger.Batch, error)
}

// StockCachePort invalidates cached on-hand values after stock mutations.
type StockCachePort interface {
	Invalidate(ctx context.Context, tenantID, productID int64)
}

// SupplierService implements the supplier return workflow: drafts are plain
// records, completion deducts the referenced batches and the aggregate stock
// exactly once, and cancelling a completed return reverses both.
type SupplierService struct {
	repo      RepositoryPort
	converter ConverterPort
	units     UnitChecker
	batches   BatchLister
	cache     StockCachePort
	idem      *shared.IdempotencyStore
	audit     *shared.AuditLogger
	logger    *slog.Logger
}

// NewSupplierService constructs SupplierService. cache, idem, and audit may be nil.
func NewSupplierService(repo RepositoryPort, converter ConverterPort, units UnitChecker, batches BatchLister, cache StockCachePort, idem *shared.IdempotencyStore, audit *shared.AuditLogger, logger *slog.Logger) *SupplierService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SupplierService{repo: repo, converter: converter, units: units, batches: batches, cache: cache, idem: idem, audit: audit, logger: logger}
}

// Create records a supplier return. Every line must reference an existing
// unit and an existing batch holding the line's product, bought from the
// return's supplier. Drafts have no stock effect; creating with status
// completed applies the deductions in the same transaction.
func (s *SupplierService) Create(ctx context.Context, tenantID int64, in CreateSupplierReturnInput) (SupplierReturn, error) {
	if err := validateSupplierCreate(in); err != nil {
		return SupplierReturn{}, err
	}
	for _, line := range in.Lines {
		if err := s.units.UnitExists(ctx, tenantID, line.UnitID); err != nil {
			return SupplierReturn{}, fmt.Errorf("unit %d: %w", line.UnitID, err)
		}
	}
	status := in.Status
	if status == "" {
		status = SupplierDraft
	}

	var out SupplierReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lg := tx.Ledger()
		ret := SupplierReturn{
			TenantID:   tenantID,
			BranchID:   in.BranchID,
			SupplierID: in.SupplierID,
			Status:     SupplierDraft,
			Total:      decimal.Zero,
			Reason:     in.Reason,
			CreatedBy:  in.ActorID,
			Date:       in.Date,
		}
		var err error
		ret.ID, err = tx.InsertSupplierReturn(ctx, ret)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range in.Lines {
			batch, err := lg.GetBatchForUpdate(ctx, tenantID, line.BatchID)
			if err != nil {
				return err
			}
			if batch.ProductID != line.ProductID {
				return fmt.Errorf("%w: batch %d holds product %d", ErrBatchMismatch, line.BatchID, batch.ProductID)
			}
			batchSupplier, err := tx.BatchPurchaseSupplier(ctx, tenantID, line.BatchID)
			if err != nil {
				return err
			}
			if batchSupplier != in.SupplierID {
				return fmt.Errorf("%w: batch %d was bought from supplier %d", ErrBatchMismatch, line.BatchID, batchSupplier)
			}
			item := SupplierReturnItem{
				ReturnID:  ret.ID,
				ProductID: line.ProductID,
				BatchID:   line.BatchID,
				UnitID:    line.UnitID,
				Qty:       line.Qty,
				UnitCost:  line.UnitCost,
				Subtotal:  line.Qty.Mul(line.UnitCost),
			}
			if item.ID, err = tx.InsertSupplierItem(ctx, item); err != nil {
				return err
			}
			total = total.Add(item.Subtotal)
			ret.Items = append(ret.Items, item)
		}
		ret.Total = total
		if err := tx.SetSupplierTotal(ctx, tenantID, ret.ID, total); err != nil {
			return err
		}

		if status == SupplierCompleted {
			if err := s.applyCompletion(ctx, tx, tenantID, &ret); err != nil {
				return err
			}
		}
		out = ret
		return nil
	})
	if err != nil {
		return SupplierReturn{}, err
	}

	if out.Status == SupplierCompleted {
		s.invalidate(ctx, tenantID, out.Items)
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "supplier_return.create", out.ID, map[string]any{
		"status": string(out.Status),
		"total":  out.Total.String(),
	})
	return out, nil
}

// Complete transitions draft → completed, deducting each item's batch
// remainder and the converted aggregate stock with outbound movements.
// idemKey, when present, rejects replayed requests before any work happens.
func (s *SupplierService) Complete(ctx context.Context, tenantID, returnID, actorID int64, idemKey string) (SupplierReturn, error) {
	if err := s.claimKey(ctx, idemKey); err != nil {
		return SupplierReturn{}, err
	}
	var out SupplierReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetSupplierForUpdate(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		if _, err := NextSupplierStatus(ret.Status, EventComplete); err != nil {
			return err
		}
		ret.Items, err = tx.ListSupplierItems(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		if err := s.applyCompletion(ctx, tx, tenantID, &ret); err != nil {
			return err
		}
		out = ret
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return SupplierReturn{}, err
	}

	s.invalidate(ctx, tenantID, out.Items)
	s.recordAudit(ctx, tenantID, actorID, "supplier_return.complete", returnID, nil)
	return out, nil
}

// Cancel transitions to cancelled. From completed, every batch deduction and
// stock decrease is reversed with inbound movements; from draft, only the
// status changes. Cancelled is terminal.
func (s *SupplierService) Cancel(ctx context.Context, tenantID, returnID, actorID int64, idemKey string) (SupplierReturn, error) {
	if err := s.claimKey(ctx, idemKey); err != nil {
		return SupplierReturn{}, err
	}
	var out SupplierReturn
	var reversed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetSupplierForUpdate(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		if _, err := NextSupplierStatus(ret.Status, EventCancel); err != nil {
			return err
		}
		ret.Items, err = tx.ListSupplierItems(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		if ret.Status == SupplierCompleted {
			reversed = true
			lg := tx.Ledger()
			for _, item := range ret.Items {
				if _, err := ledger.Restore(ctx, lg, tenantID, item.BatchID, item.Qty); err != nil {
					return err
				}
				baseQty, err := s.converter.ToBaseUnits(ctx, tenantID, item.ProductID, item.UnitID, item.Qty)
				if err != nil {
					return err
				}
				next, err := ledger.ApplyStockDelta(ctx, lg, tenantID, item.ProductID, baseQty)
				if err != nil {
					return err
				}
				_, err = lg.InsertMovement(ctx, ledger.Movement{
					TenantID:       tenantID,
					ProductID:      item.ProductID,
					BranchID:       ret.BranchID,
					ActorID:        actorID,
					Type:           ledger.MovementIn,
					Qty:            baseQty,
					ResultingStock: next,
					Reason:         "supplier return cancelled",
					RefModule:      "supplier_return",
					RefID:          fmt.Sprintf("%d", returnID),
				})
				if err != nil {
					return err
				}
			}
		}
		if err := tx.SetSupplierStatus(ctx, tenantID, returnID, SupplierCancelled); err != nil {
			return err
		}
		ret.Status = SupplierCancelled
		out = ret
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return SupplierReturn{}, err
	}

	if reversed {
		s.invalidate(ctx, tenantID, out.Items)
	}
	s.recordAudit(ctx, tenantID, actorID, "supplier_return.cancel", returnID, map[string]any{"reversed": reversed})
	return out, nil
}

// Delete removes a draft return. Completed and cancelled returns are part of
// the audit trail and stay.
func (s *SupplierService) Delete(ctx context.Context, tenantID, returnID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetSupplierForUpdate(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		if ret.Status != SupplierDraft {
			return fmt.Errorf("%w: only draft returns can be deleted", ErrInvalidTransition)
		}
		return tx.DeleteSupplierReturn(ctx, tenantID, returnID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "supplier_return.delete", returnID, nil)
	return nil
}

// Get returns one supplier return with items.
func (s *SupplierService) Get(ctx context.Context, tenantID, returnID int64) (SupplierReturn, error) {
	return s.repo.GetSupplierReturn(ctx, tenantID, returnID)
}

// List returns supplier returns newest first.
func (s *SupplierService) List(ctx context.Context, tenantID int64, filters ListFilters) ([]SupplierReturn, int, error) {
	return s.repo.ListSupplierReturns(ctx, tenantID, filters)
}

// AvailableBatches lists batches an item can draw from, FEFO ordered.
func (s *SupplierService) AvailableBatches(ctx context.Context, tenantID, productID, supplierID int64) ([]ledger.Batch, error) {
	if productID <= 0 || supplierID <= 0 {
		return nil, fmt.Errorf("%w: product_id and supplier_id are required", ErrValidation)
	}
	return s.batches.ListAvailableBatches(ctx, tenantID, productID, supplierID)
}

// applyCompletion performs the stock effects of completing a return inside
// the caller's transaction and flips the status.
func (s *SupplierService) applyCompletion(ctx context.Context, tx TxRepository, tenantID int64, ret *SupplierReturn) error {
	lg := tx.Ledger()
	for _, item := range ret.Items {
		if _, err := ledger.Deduct(ctx, lg, tenantID, item.BatchID, item.Qty); err != nil {
			return err
		}
		baseQty, err := s.converter.ToBaseUnits(ctx, tenantID, item.ProductID, item.UnitID, item.Qty)
		if err != nil {
			return err
		}
		next, err := ledger.ApplyStockDelta(ctx, lg, tenantID, item.ProductID, baseQty.Neg())
		if err != nil {
			return err
		}
		_, err = lg.InsertMovement(ctx, ledger.Movement{
			TenantID:       tenantID,
			ProductID:      item.ProductID,
			BranchID:       ret.BranchID,
			ActorID:        ret.CreatedBy,
			Type:           ledger.MovementOut,
			Qty:            baseQty.Neg(),
			ResultingStock: next,
			Reason:         "supplier return",
			RefModule:      "supplier_return",
			RefID:          fmt.Sprintf("%d", ret.ID),
		})
		if err != nil {
			return err
		}
	}
	if err := tx.SetSupplierStatus(ctx, tenantID, ret.ID, SupplierCompleted); err != nil {
		return err
	}
	ret.Status = SupplierCompleted
	return nil
}

func (s *SupplierService) claimKey(ctx context.Context, key string) error {
	if s.idem == nil || key == "" {
		return nil
	}
	return s.idem.CheckAndInsert(ctx, key, "supplier_return")
}

func (s *SupplierService) releaseKey(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Error("idempotency key release failed", slog.Any("error", err))
	}
}

func (s *SupplierService) invalidate(ctx context.Context, tenantID int64, items []SupplierReturnItem) {
	if s.cache == nil {
		return
	}
	seen := map[int64]struct{}{}
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		s.cache.Invalidate(ctx, tenantID, item.ProductID)
	}
}

func (s *SupplierService) recordAudit(ctx context.Context, tenantID, actorID int64, action string, returnID any, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "supplier_return",
		EntityID: fmt.Sprintf("%v", returnID),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateSupplierCreate(in CreateSupplierReturnInput) error {
	if in.SupplierID <= 0 {
		return fmt.Errorf("%w: supplier_id is required", ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrValidation)
	}
	if in.Status != "" && in.Status != SupplierDraft && in.Status != SupplierCompleted {
		return fmt.Errorf("%w: status must be draft or completed", ErrValidation)
	}
	for i, line := range in.Lines {
		if line.ProductID <= 0 || line.BatchID <= 0 || line.UnitID <= 0 {
			return fmt.Errorf("%w: line %d requires product_id, batch_id and unit_id", ErrValidation, i+1)
		}
		if line.Qty.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: line %d qty must be positive", ErrValidation, i+1)
		}
		if line.UnitCost.IsNegative() {
			return fmt.Errorf("%w: line %d unit cost cannot be negative", ErrValidation, i+1)
		}
	}
	return nil
}
