package transfer

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

// ProductChecker verifies a product exists before a transfer references it.
type ProductChecker interface {
	ProductExists(ctx context.Context, tenantID, productID int64) error
}

// StockCachePort invalidates cached on-hand values after stock mutations.
type StockCachePort interface {
	Invalidate(ctx context.Context, tenantID, productID int64)
}

// Service implements the inter-branch transfer workflow. Creation has no
// stock effect; shipping removes the converted quantities from circulation,
// receiving books them back at the destination. The status guard inside the
// transaction plus the idempotency key keep each transition exactly-once.
type Service struct {
	repo      RepositoryPort
	converter ConverterPort
	products  ProductChecker
	cache     StockCachePort
	idem      *shared.IdempotencyStore
	audit     *shared.AuditLogger
	logger    *slog.Logger
}

// NewService constructs Service. cache, idem, and audit may be nil.
func NewService(repo RepositoryPort, converter ConverterPort, products ProductChecker, cache StockCachePort, idem *shared.IdempotencyStore, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, converter: converter, products: products, cache: cache, idem: idem, audit: audit, logger: logger}
}

// Create records a pending transfer.
func (s *Service) Create(ctx context.Context, tenantID int64, in CreateInput) (Transfer, error) {
	if err := validateCreate(in); err != nil {
		return Transfer{}, err
	}
	for _, line := range in.Lines {
		if err := s.products.ProductExists(ctx, tenantID, line.ProductID); err != nil {
			return Transfer{}, fmt.Errorf("product %d: %w", line.ProductID, err)
		}
	}

	var out Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr := Transfer{
			TenantID:     tenantID,
			FromBranchID: in.FromBranchID,
			ToBranchID:   in.ToBranchID,
			Status:       StatusPending,
			Note:         in.Note,
			CreatedBy:    in.ActorID,
			Date:         in.Date,
		}
		var err error
		tr.ID, err = tx.Insert(ctx, tr)
		if err != nil {
			return err
		}
		for _, line := range in.Lines {
			item := Item{TransferID: tr.ID, ProductID: line.ProductID, UnitID: line.UnitID, Qty: line.Qty}
			if item.ID, err = tx.InsertItem(ctx, item); err != nil {
				return err
			}
			tr.Items = append(tr.Items, item)
		}
		out = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}

	s.recordAudit(ctx, tenantID, in.ActorID, "transfer.create", out.ID, map[string]any{
		"from_branch": in.FromBranchID,
		"to_branch":   in.ToBranchID,
		"lines":       len(in.Lines),
	})
	return out, nil
}

// Ship transitions pending → shipped, deducting every line's converted
// quantity at the origin with transfer movements.
func (s *Service) Ship(ctx context.Context, tenantID, transferID, actorID int64, idemKey string) (Transfer, error) {
	return s.transition(ctx, tenantID, transferID, actorID, EventShip, idemKey)
}

// Receive transitions shipped → received, booking every line's converted
// quantity at the destination.
func (s *Service) Receive(ctx context.Context, tenantID, transferID, actorID int64, idemKey string) (Transfer, error) {
	return s.transition(ctx, tenantID, transferID, actorID, EventReceive, idemKey)
}

func (s *Service) transition(ctx context.Context, tenantID, transferID, actorID int64, event Event, idemKey string) (Transfer, error) {
	if err := s.claimKey(ctx, idemKey); err != nil {
		return Transfer{}, err
	}
	var out Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		next, err := NextStatus(tr.Status, event)
		if err != nil {
			return err
		}
		tr.Items, err = tx.ListItems(ctx, tenantID, transferID)
		if err != nil {
			return err
		}

		lg := tx.Ledger()
		for _, item := range tr.Items {
			baseQty, err := s.converter.ToBaseUnits(ctx, tenantID, item.ProductID, item.UnitID, item.Qty)
			if err != nil {
				return err
			}
			delta := baseQty
			branchID := tr.ToBranchID
			reason := "transfer received"
			if event == EventShip {
				delta = baseQty.Neg()
				branchID = tr.FromBranchID
				reason = "transfer shipped"
			}
			nextStock, err := ledger.ApplyStockDelta(ctx, lg, tenantID, item.ProductID, delta)
			if err != nil {
				return err
			}
			_, err = lg.InsertMovement(ctx, ledger.Movement{
				TenantID:       tenantID,
				ProductID:      item.ProductID,
				BranchID:       branchID,
				ActorID:        actorID,
				Type:           ledger.MovementTransfer,
				Qty:            delta,
				ResultingStock: nextStock,
				Reason:         reason,
				RefModule:      "transfer",
				RefID:          fmt.Sprintf("%d", transferID),
			})
			if err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, tenantID, transferID, next); err != nil {
			return err
		}
		tr.Status = next
		out = tr
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return Transfer{}, err
	}

	s.invalidate(ctx, tenantID, out.Items)
	s.recordAudit(ctx, tenantID, actorID, "transfer."+string(event), transferID, map[string]any{"status": string(out.Status)})
	return out, nil
}

// Delete removes a pending transfer. Shipped and received transfers have
// moved stock and stay.
func (s *Service) Delete(ctx context.Context, tenantID, transferID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusPending {
			return fmt.Errorf("%w: only pending transfers can be deleted", ErrInvalidTransition)
		}
		return tx.Delete(ctx, tenantID, transferID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "transfer.delete", transferID, nil)
	return nil
}

// Get returns one transfer with items.
func (s *Service) Get(ctx context.Context, tenantID, transferID int64) (Transfer, error) {
	return s.repo.Get(ctx, tenantID, transferID)
}

// List returns transfers newest first.
func (s *Service) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Transfer, int, error) {
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) claimKey(ctx context.Context, key string) error {
	if s.idem == nil || key == "" {
		return nil
	}
	return s.idem.CheckAndInsert(ctx, key, "transfer")
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Error("idempotency key release failed", slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, tenantID int64, items []Item) {
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

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, transferID any, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "transfer",
		EntityID: fmt.Sprintf("%v", transferID),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateCreate(in CreateInput) error {
	if in.FromBranchID <= 0 || in.ToBranchID <= 0 {
		return fmt.Errorf("%w: from_branch_id and to_branch_id are required", ErrValidation)
	}
	if in.FromBranchID == in.ToBranchID {
		return fmt.Errorf("%w: origin and destination must differ", ErrValidation)
	}
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
	}
	return nil
}
