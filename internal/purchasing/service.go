package purchasing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// CatalogPort is the narrow product surface receiving consumes.
type CatalogPort interface {
	GetProduct(ctx context.Context, tenantID, productID int64) (catalog.Product, error)
	ToBaseUnits(ctx context.Context, tenantID, productID, unitID int64, qty decimal.Decimal) (decimal.Decimal, error)
}

// StockCachePort invalidates cached on-hand values after stock mutations.
type StockCachePort interface {
	Invalidate(ctx context.Context, tenantID, productID int64)
}

// Service implements the receiving workflow.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	cache   StockCachePort
	audit   *shared.AuditLogger
	logger  *slog.Logger
}

// NewService constructs Service. cache and audit may be nil.
func NewService(repo RepositoryPort, cat CatalogPort, cache StockCachePort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, cache: cache, audit: audit, logger: logger}
}

// Receive records a goods receipt in one transaction: a date-prefixed
// reference is allocated, each line produces one batch, stock-tracked
// products gain the base-unit quantity on their aggregate with an inbound
// movement, and the header total accumulates line subtotals. Any failure
// rolls the whole receipt back.
func (s *Service) Receive(ctx context.Context, tenantID int64, in ReceiveInput) (Purchase, error) {
	if err := validateReceive(in); err != nil {
		return Purchase{}, err
	}
	status := in.Status
	if status == "" {
		status = StatusCompleted
	}

	// Collaborator lookups happen before the transaction opens; stock writes
	// are re-guarded under row locks inside it.
	lines, err := s.resolveLines(ctx, tenantID, in.Lines)
	if err != nil {
		return Purchase{}, err
	}

	var out Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		day := in.Date.Format("20060102")
		seq, err := tx.NextReceiptSeq(ctx, tenantID, day)
		if err != nil {
			return err
		}
		p := Purchase{
			TenantID:   tenantID,
			BranchID:   in.BranchID,
			RefNo:      fmt.Sprintf("RCV-%s-%04d", day, seq),
			SupplierID: in.SupplierID,
			Status:     status,
			Total:      decimal.Zero,
			Note:       in.Note,
			CreatedBy:  in.ActorID,
			Date:       in.Date,
		}
		p.ID, err = tx.InsertPurchase(ctx, p)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range lines {
			item := Item{
				PurchaseID: p.ID,
				ProductID:  line.in.ProductID,
				UnitID:     line.in.UnitID,
				Qty:        line.in.Qty,
				UnitCost:   line.in.UnitCost,
				Subtotal:   line.in.Qty.Mul(line.in.UnitCost),
				ExpiryDate: line.in.ExpiryDate,
			}
			if status == StatusCompleted {
				item.BatchID, err = s.postLine(ctx, tx, tenantID, p, line)
				if err != nil {
					return err
				}
			}
			if item.ID, err = tx.InsertItem(ctx, item); err != nil {
				return err
			}
			total = total.Add(item.Subtotal)
			p.Items = append(p.Items, item)
		}
		if err := tx.SetTotal(ctx, tenantID, p.ID, total); err != nil {
			return err
		}
		p.Total = total
		out = p
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}

	if status == StatusCompleted {
		s.invalidate(ctx, tenantID, lines)
	}
	s.recordAudit(ctx, tenantID, in.ActorID, "purchase.receive", out.RefNo, map[string]any{
		"purchase_id": out.ID,
		"status":      string(status),
		"total":       out.Total.String(),
		"lines":       len(lines),
	})
	return out, nil
}

// Complete posts a draft receipt: batches are created and tracked products
// gain stock, exactly as an immediate completed receive would have done.
func (s *Service) Complete(ctx context.Context, tenantID, purchaseID, actorID int64) (Purchase, error) {
	var out Purchase
	var lines []resolvedLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, tenantID, purchaseID)
		if err != nil {
			return err
		}
		if p.Status != StatusDraft {
			return fmt.Errorf("%w: %s receipt cannot complete", ErrInvalidTransition, p.Status)
		}
		items, err := tx.ListItems(ctx, tenantID, purchaseID)
		if err != nil {
			return err
		}
		for _, it := range items {
			line, err := s.resolveLine(ctx, tenantID, ReceiveLine{
				ProductID:  it.ProductID,
				UnitID:     it.UnitID,
				Qty:        it.Qty,
				UnitCost:   it.UnitCost,
				ExpiryDate: it.ExpiryDate,
			})
			if err != nil {
				return err
			}
			if _, err := s.postLine(ctx, tx, tenantID, p, line); err != nil {
				return err
			}
			lines = append(lines, line)
		}
		if err := tx.SetStatus(ctx, tenantID, purchaseID, StatusCompleted); err != nil {
			return err
		}
		p.Status = StatusCompleted
		p.Items = items
		out = p
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}

	s.invalidate(ctx, tenantID, lines)
	s.recordAudit(ctx, tenantID, actorID, "purchase.complete", out.RefNo, map[string]any{"purchase_id": out.ID})
	return out, nil
}

// Get returns one receipt with items.
func (s *Service) Get(ctx context.Context, tenantID, purchaseID int64) (Purchase, error) {
	return s.repo.Get(ctx, tenantID, purchaseID)
}

// List returns receipts newest first.
func (s *Service) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Purchase, int, error) {
	return s.repo.List(ctx, tenantID, filters)
}

// Delete removes a receipt and its lines. Completed receipts are immutable;
// their stock has already moved.
func (s *Service) Delete(ctx context.Context, tenantID, purchaseID, actorID int64) error {
	var refNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, tenantID, purchaseID)
		if err != nil {
			return err
		}
		if p.Status == StatusCompleted {
			return ErrCompletedLocked
		}
		refNo = p.RefNo
		return tx.DeleteCascade(ctx, tenantID, purchaseID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "purchase.delete", refNo, map[string]any{"purchase_id": purchaseID})
	return nil
}

type resolvedLine struct {
	in      ReceiveLine
	tracked bool
	baseQty decimal.Decimal
}

func (s *Service) resolveLines(ctx context.Context, tenantID int64, in []ReceiveLine) ([]resolvedLine, error) {
	lines := make([]resolvedLine, 0, len(in))
	for _, line := range in {
		resolved, err := s.resolveLine(ctx, tenantID, line)
		if err != nil {
			return nil, err
		}
		lines = append(lines, resolved)
	}
	return lines, nil
}

func (s *Service) resolveLine(ctx context.Context, tenantID int64, line ReceiveLine) (resolvedLine, error) {
	product, err := s.catalog.GetProduct(ctx, tenantID, line.ProductID)
	if err != nil {
		return resolvedLine{}, fmt.Errorf("product %d: %w", line.ProductID, err)
	}
	baseQty, err := s.catalog.ToBaseUnits(ctx, tenantID, line.ProductID, line.UnitID, line.Qty)
	if err != nil {
		return resolvedLine{}, err
	}
	return resolvedLine{in: line, tracked: product.TrackStock, baseQty: baseQty}, nil
}

// postLine creates the line's batch and, for tracked products, applies the
// converted aggregate stock increase with its movement record.
func (s *Service) postLine(ctx context.Context, tx TxRepository, tenantID int64, p Purchase, line resolvedLine) (int64, error) {
	lg := tx.Ledger()
	batchID, err := lg.CreateBatch(ctx, ledger.Batch{
		TenantID:   tenantID,
		ProductID:  line.in.ProductID,
		PurchaseID: p.ID,
		UnitID:     line.in.UnitID,
		InitialQty: line.in.Qty,
		UnitCost:   line.in.UnitCost,
		ExpiryDate: line.in.ExpiryDate,
		ReceivedAt: p.Date,
	})
	if err != nil {
		return 0, err
	}
	if !line.tracked {
		return batchID, nil
	}
	next, err := ledger.ApplyStockDelta(ctx, lg, tenantID, line.in.ProductID, line.baseQty)
	if err != nil {
		return 0, err
	}
	_, err = lg.InsertMovement(ctx, ledger.Movement{
		TenantID:       tenantID,
		ProductID:      line.in.ProductID,
		BranchID:       p.BranchID,
		ActorID:        p.CreatedBy,
		Type:           ledger.MovementIn,
		Qty:            line.baseQty,
		ResultingStock: next,
		Reason:         "purchase receipt",
		RefModule:      "purchase",
		RefID:          p.RefNo,
	})
	if err != nil {
		return 0, err
	}
	return batchID, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID int64, lines []resolvedLine) {
	if s.cache == nil {
		return
	}
	seen := map[int64]struct{}{}
	for _, line := range lines {
		if _, ok := seen[line.in.ProductID]; ok {
			continue
		}
		seen[line.in.ProductID] = struct{}{}
		s.cache.Invalidate(ctx, tenantID, line.in.ProductID)
	}
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateReceive(in ReceiveInput) error {
	// Supplier is optional: walk-in and cash purchases carry none.
	if in.SupplierID < 0 {
		return fmt.Errorf("%w: supplier_id cannot be negative", ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrValidation)
	}
	if in.Status != "" && in.Status != StatusDraft && in.Status != StatusCompleted {
		return fmt.Errorf("%w: status must be draft or completed", ErrValidation)
	}
	for i, line := range in.Lines {
		if line.ProductID <= 0 || line.UnitID <= 0 {
			return fmt.Errorf("%w: line %d requires product_id and unit_id", ErrValidation, i+1)
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
