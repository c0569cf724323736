package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/platform/db"
)

// TxLedger exposes the ledger mutations available inside one transaction.
// Workflow repositories obtain one with NewTxLedger bound to their own pgx.Tx
// so batch and aggregate-stock writes commit or roll back with the workflow.
type TxLedger interface {
	CreateBatch(ctx context.Context, b Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, tenantID, batchID int64) (Batch, error)
	SetBatchStock(ctx context.Context, tenantID, batchID int64, qty decimal.Decimal) error
	GetProductStockForUpdate(ctx context.Context, tenantID, productID int64) (decimal.Decimal, bool, error)
	SetProductStock(ctx context.Context, tenantID, productID int64, qty decimal.Decimal) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	ResetAllStock(ctx context.Context, tenantID int64) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error
	ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]Movement, error)
	ListAvailableBatches(ctx context.Context, tenantID, productID, supplierID int64) ([]Batch, error)
	GetOnHand(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error)
}

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txLedger struct {
	tx pgx.Tx
}

// NewTxLedger binds ledger operations to an existing transaction.
func NewTxLedger(tx pgx.Tx) TxLedger {
	return &txLedger{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txLedger{tx: tx})
	})
}

const batchColumns = `b.id, b.tenant_id, b.product_id, b.purchase_id, b.unit_id, b.initial_qty, b.current_stock, b.unit_cost, b.expiry_date, b.received_at`

// ListAvailableBatches returns batches with remaining stock for the product,
// restricted to purchases from the supplier, in FEFO order.
func (r *Repository) ListAvailableBatches(ctx context.Context, tenantID, productID, supplierID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
FROM batches b
JOIN purchases p ON p.id = b.purchase_id
WHERE b.tenant_id=$1 AND b.product_id=$2 AND p.supplier_id=$3 AND b.current_stock > 0
ORDER BY b.expiry_date ASC NULLS LAST, b.received_at ASC, b.id ASC`, tenantID, productID, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

// ListMovements returns the append-only movement history.
func (r *Repository) ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, product_id, branch_id, actor_id, movement_type, qty, resulting_stock, reason, ref_module, ref_id, created_at
FROM inventory_movements
WHERE tenant_id=$1
  AND ($2=0 OR product_id=$2)
  AND ($3=0 OR branch_id=$3)
  AND created_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY created_at DESC, id DESC
LIMIT $6 OFFSET $7`,
		tenantID, filter.ProductID, filter.BranchID, nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ProductID, &m.BranchID, &m.ActorID, &m.Type, &m.Qty, &m.ResultingStock, &m.Reason, &m.RefModule, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// GetOnHand returns the aggregate stock of a product.
func (r *Repository) GetOnHand(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	var stock decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT stock FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrProductNotFound
		}
		return decimal.Zero, err
	}
	return stock, nil
}

func (l *txLedger) CreateBatch(ctx context.Context, b Batch) (int64, error) {
	if b.InitialQty.LessThanOrEqual(decimal.Zero) {
		return 0, ErrInvalidQuantity
	}
	var id int64
	err := l.tx.QueryRow(ctx, `INSERT INTO batches (tenant_id, product_id, purchase_id, unit_id, initial_qty, current_stock, unit_cost, expiry_date, received_at)
VALUES ($1,$2,$3,$4,$5,$5,$6,$7,$8) RETURNING id`,
		b.TenantID, b.ProductID, b.PurchaseID, b.UnitID, b.InitialQty, b.UnitCost, b.ExpiryDate, b.ReceivedAt).Scan(&id)
	return id, err
}

func (l *txLedger) GetBatchForUpdate(ctx context.Context, tenantID, batchID int64) (Batch, error) {
	row := l.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches b WHERE b.tenant_id=$1 AND b.id=$2 FOR UPDATE`, tenantID, batchID)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (l *txLedger) SetBatchStock(ctx context.Context, tenantID, batchID int64, qty decimal.Decimal) error {
	tag, err := l.tx.Exec(ctx, `UPDATE batches SET current_stock=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, batchID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (l *txLedger) GetProductStockForUpdate(ctx context.Context, tenantID, productID int64) (decimal.Decimal, bool, error) {
	var stock decimal.Decimal
	var tracked bool
	err := l.tx.QueryRow(ctx, `SELECT stock, track_stock FROM products WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, productID).Scan(&stock, &tracked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, ErrProductNotFound
		}
		return decimal.Zero, false, err
	}
	return stock, tracked, nil
}

func (l *txLedger) SetProductStock(ctx context.Context, tenantID, productID int64, qty decimal.Decimal) error {
	tag, err := l.tx.Exec(ctx, `UPDATE products SET stock=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (l *txLedger) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := l.tx.QueryRow(ctx, `INSERT INTO inventory_movements (tenant_id, product_id, branch_id, actor_id, movement_type, qty, resulting_stock, reason, ref_module, ref_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		m.TenantID, m.ProductID, m.BranchID, m.ActorID, string(m.Type), m.Qty, m.ResultingStock, m.Reason, m.RefModule, m.RefID).Scan(&id)
	return id, err
}

func (l *txLedger) ResetAllStock(ctx context.Context, tenantID int64) error {
	if _, err := l.tx.Exec(ctx, `UPDATE batches SET current_stock=0 WHERE tenant_id=$1`, tenantID); err != nil {
		return err
	}
	_, err := l.tx.Exec(ctx, `UPDATE products SET stock=0, updated_at=NOW() WHERE tenant_id=$1`, tenantID)
	return err
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.TenantID, &b.ProductID, &b.PurchaseID, &b.UnitID, &b.InitialQty, &b.CurrentStock, &b.UnitCost, &b.ExpiryDate, &b.ReceivedAt)
	return b, err
}

func collectBatches(rows pgx.Rows) ([]Batch, error) {
	batches := []Batch{}
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ProductID, &b.PurchaseID, &b.UnitID, &b.InitialQty, &b.CurrentStock, &b.UnitCost, &b.ExpiryDate, &b.ReceivedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
