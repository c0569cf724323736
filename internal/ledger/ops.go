package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Deduct decrements a batch remainder inside the caller's transaction. The
// remainder is re-checked under the row lock even when the caller validated
// beforehand.
func Deduct(ctx context.Context, tx TxLedger, tenantID, batchID int64, qty decimal.Decimal) (Batch, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return Batch{}, ErrInvalidQuantity
	}
	b, err := tx.GetBatchForUpdate(ctx, tenantID, batchID)
	if err != nil {
		return Batch{}, err
	}
	if qty.GreaterThan(b.CurrentStock) {
		return Batch{}, ErrInsufficientBatchStock
	}
	b.CurrentStock = b.CurrentStock.Sub(qty)
	if err := tx.SetBatchStock(ctx, tenantID, batchID, b.CurrentStock); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Restore increments a batch remainder, used when a completed supplier return
// is cancelled. No upper bound against the initial quantity is enforced; the
// reconcile job surfaces remainders that drift above it.
func Restore(ctx context.Context, tx TxLedger, tenantID, batchID int64, qty decimal.Decimal) (Batch, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return Batch{}, ErrInvalidQuantity
	}
	b, err := tx.GetBatchForUpdate(ctx, tenantID, batchID)
	if err != nil {
		return Batch{}, err
	}
	b.CurrentStock = b.CurrentStock.Add(qty)
	if err := tx.SetBatchStock(ctx, tenantID, batchID, b.CurrentStock); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// ApplyStockDelta mutates a product's aggregate stock under its row lock.
// Stock-tracked products reject deltas that would drive the aggregate
// negative. The new aggregate value is returned; untracked products keep a
// counter too but without the floor.
func ApplyStockDelta(ctx context.Context, tx TxLedger, tenantID, productID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	stock, tracked, err := tx.GetProductStockForUpdate(ctx, tenantID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	next := stock.Add(delta)
	if tracked && next.IsNegative() {
		return decimal.Zero, ErrInsufficientStock
	}
	if err := tx.SetProductStock(ctx, tenantID, productID, next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}
