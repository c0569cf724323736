package returns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// ProductChecker verifies a product exists before a return references it.
type ProductChecker interface {
	ProductExists(ctx context.Context, tenantID, productID int64) error
}

// CustomerService implements the customer return workflow. Returned goods
// raise the aggregate stock on approval; no batch is recreated for them.
type CustomerService struct {
	repo      RepositoryPort
	converter ConverterPort
	products  ProductChecker
	cache     StockCachePort
	idem      *shared.IdempotencyStore
	audit     *shared.AuditLogger
	logger    *slog.Logger
}

// NewCustomerService constructs CustomerService. cache, idem, and audit may be nil.
func NewCustomerService(repo RepositoryPort, converter ConverterPort, products ProductChecker, cache StockCachePort, idem *shared.IdempotencyStore, audit *shared.AuditLogger, logger *slog.Logger) *CustomerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerService{repo: repo, converter: converter, products: products, cache: cache, idem: idem, audit: audit, logger: logger}
}

// Create records a pending customer return. No stock moves until approval.
func (s *CustomerService) Create(ctx context.Context, tenantID int64, in CreateCustomerReturnInput) (CustomerReturn, error) {
	if err := validateCustomerCreate(in); err != nil {
		return CustomerReturn{}, err
	}
	for _, line := range in.Lines {
		if err := s.products.ProductExists(ctx, tenantID, line.ProductID); err != nil {
			return CustomerReturn{}, fmt.Errorf("product %d: %w", line.ProductID, err)
		}
	}

	total := decimal.Zero
	for _, line := range in.Lines {
		total = total.Add(line.Qty.Mul(line.UnitPrice))
	}

	var out CustomerReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret := CustomerReturn{
			TenantID:  tenantID,
			BranchID:  in.BranchID,
			Customer:  in.Customer,
			SaleRef:   in.SaleRef,
			Status:    CustomerPending,
			Total:     total,
			Reason:    in.Reason,
			CreatedBy: in.ActorID,
			Date:      in.Date,
		}
		var err error
		ret.ID, err = tx.InsertCustomerReturn(ctx, ret)
		if err != nil {
			return err
		}
		for _, line := range in.Lines {
			item := CustomerReturnItem{
				ReturnID:  ret.ID,
				ProductID: line.ProductID,
				UnitID:    line.UnitID,
				Qty:       line.Qty,
				UnitPrice: line.UnitPrice,
				Subtotal:  line.Qty.Mul(line.UnitPrice),
			}
			if item.ID, err = tx.InsertCustomerItem(ctx, item); err != nil {
				return err
			}
			ret.Items = append(ret.Items, item)
		}
		out = ret
		return nil
	})
	if err != nil {
		return CustomerReturn{}, err
	}

	s.recordAudit(ctx, tenantID, in.ActorID, "customer_return.create", out.ID, map[string]any{"total": out.Total.String()})
	return out, nil
}

// UpdateStatus drives the customer return state machine. Approval raises the
// converted aggregate stock with an inbound movement per item; rejection and
// fulfillment only change the status.
func (s *CustomerService) UpdateStatus(ctx context.Context, tenantID, returnID, actorID int64, event Event, idemKey string) (CustomerReturn, error) {
	if err := s.claimKey(ctx, idemKey); err != nil {
		return CustomerReturn{}, err
	}
	var out CustomerReturn
	var approved bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetCustomerForUpdate(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		next, err := NextCustomerStatus(ret.Status, event)
		if err != nil {
			return err
		}
		ret.Items, err = tx.ListCustomerItems(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		if next == CustomerApproved {
			approved = true
			lg := tx.Ledger()
			for _, item := range ret.Items {
				baseQty, err := s.converter.ToBaseUnits(ctx, tenantID, item.ProductID, item.UnitID, item.Qty)
				if err != nil {
					return err
				}
				nextStock, err := ledger.ApplyStockDelta(ctx, lg, tenantID, item.ProductID, baseQty)
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
					ResultingStock: nextStock,
					Reason:         "customer return approved",
					RefModule:      "customer_return",
					RefID:          fmt.Sprintf("%d", returnID),
				})
				if err != nil {
					return err
				}
			}
		}
		if err := tx.SetCustomerStatus(ctx, tenantID, returnID, next); err != nil {
			return err
		}
		ret.Status = next
		out = ret
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return CustomerReturn{}, err
	}

	if approved {
		s.invalidate(ctx, tenantID, out.Items)
	}
	s.recordAudit(ctx, tenantID, actorID, "customer_return."+string(event), returnID, map[string]any{"status": string(out.Status)})
	return out, nil
}

// Delete removes a pending return.
func (s *CustomerService) Delete(ctx context.Context, tenantID, returnID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetCustomerForUpdate(ctx, tenantID, returnID)
		if err != nil {
			return err
		}
		if ret.Status != CustomerPending {
			return fmt.Errorf("%w: only pending returns can be deleted", ErrInvalidTransition)
		}
		return tx.DeleteCustomerReturn(ctx, tenantID, returnID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "customer_return.delete", returnID, nil)
	return nil
}

// Get returns one customer return with items.
func (s *CustomerService) Get(ctx context.Context, tenantID, returnID int64) (CustomerReturn, error) {
	return s.repo.GetCustomerReturn(ctx, tenantID, returnID)
}

// List returns customer returns newest first.
func (s *CustomerService) List(ctx context.Context, tenantID int64, filters ListFilters) ([]CustomerReturn, int, error) {
	return s.repo.ListCustomerReturns(ctx, tenantID, filters)
}

func (s *CustomerService) claimKey(ctx context.Context, key string) error {
	if s.idem == nil || key == "" {
		return nil
	}
	return s.idem.CheckAndInsert(ctx, key, "customer_return")
}

func (s *CustomerService) releaseKey(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Error("idempotency key release failed", slog.Any("error", err))
	}
}

func (s *CustomerService) invalidate(ctx context.Context, tenantID int64, items []CustomerReturnItem) {
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

func (s *CustomerService) recordAudit(ctx context.Context, tenantID, actorID int64, action string, returnID any, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "customer_return",
		EntityID: fmt.Sprintf("%v", returnID),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateCustomerCreate(in CreateCustomerReturnInput) error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrValidation)
	}
	for i, line := range in.Lines {
		if line.ProductID <= 0 || line.UnitID <= 0 {
			return fmt.Errorf("%w: line %d requires product_id and unit_id", ErrValidation, i+1)
		}
		if line.Qty.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: line %d qty must be positive", ErrValidation, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price cannot be negative", ErrValidation, i+1)
		}
	}
	return nil
}
