package purchasing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/db"
	"github.com/meridian-retail/meridian/internal/shared"
)

// TxRepository exposes receipt persistence inside one transaction. Ledger()
// returns the batch/stock mutations bound to the same transaction so a failed
// line rolls the whole receipt back.
type TxRepository interface {
	NextReceiptSeq(ctx context.Context, tenantID int64, day string) (int64, error)
	InsertPurchase(ctx context.Context, p Purchase) (int64, error)
	InsertItem(ctx context.Context, it Item) (int64, error)
	SetTotal(ctx context.Context, tenantID, purchaseID int64, total decimal.Decimal) error
	SetStatus(ctx context.Context, tenantID, purchaseID int64, status Status) error
	GetForUpdate(ctx context.Context, tenantID, purchaseID int64) (Purchase, error)
	ListItems(ctx context.Context, tenantID, purchaseID int64) ([]Item, error)
	DeleteCascade(ctx context.Context, tenantID, purchaseID int64) error
	Ledger() ledger.TxLedger
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, purchaseID int64) (Purchase, error)
	List(ctx context.Context, tenantID int64, filters ListFilters) ([]Purchase, int, error)
}

// Repository persists receipts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const purchaseColumns = `id, tenant_id, branch_id, ref_no, COALESCE(supplier_id, 0), status, total, note, created_by, purchase_date, created_at, updated_at`

// Get returns one receipt with its items.
func (r *Repository) Get(ctx context.Context, tenantID, purchaseID int64) (Purchase, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE tenant_id=$1 AND id=$2`, tenantID, purchaseID)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}
	items, err := listItems(ctx, r.pool, tenantID, purchaseID)
	if err != nil {
		return Purchase{}, err
	}
	p.Items = items
	return p, nil
}

// List returns receipts with a total count for pagination.
func (r *Repository) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Purchase, int, error) {
	page := shared.NewPagination(filters.Page, filters.Limit, 0)
	rows, err := r.pool.Query(ctx, `SELECT `+purchaseColumns+` FROM purchases
WHERE tenant_id=$1 AND ($2=0 OR supplier_id=$2) AND ($3='' OR status=$3)
ORDER BY purchase_date DESC, id DESC
LIMIT $4 OFFSET $5`,
		tenantID, filters.SupplierID, string(filters.Status), page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	purchases := []Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases WHERE tenant_id=$1 AND ($2=0 OR supplier_id=$2) AND ($3='' OR status=$3)`,
		tenantID, filters.SupplierID, string(filters.Status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}

// NextReceiptSeq returns the next per-day counter value. The upsert holds the
// counter row's lock until commit, serialising concurrent receipts on the same
// day without gaps from rollbacks colliding.
func (t *txRepo) NextReceiptSeq(ctx context.Context, tenantID int64, day string) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `INSERT INTO receipt_counters (tenant_id, day, seq) VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, day) DO UPDATE SET seq = receipt_counters.seq + 1
RETURNING seq`, tenantID, day).Scan(&seq)
	return seq, err
}

func (t *txRepo) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchases (tenant_id, branch_id, ref_no, supplier_id, status, total, note, created_by, purchase_date, created_at, updated_at)
VALUES ($1,$2,$3,NULLIF($4,0),$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		p.TenantID, p.BranchID, p.RefNo, p.SupplierID, string(p.Status), p.Total, p.Note, p.CreatedBy, p.Date).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, it Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_items (purchase_id, product_id, unit_id, qty, unit_cost, subtotal, expiry_date, batch_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,0)) RETURNING id`,
		it.PurchaseID, it.ProductID, it.UnitID, it.Qty, it.UnitCost, it.Subtotal, it.ExpiryDate, it.BatchID).Scan(&id)
	return id, err
}

func (t *txRepo) SetTotal(ctx context.Context, tenantID, purchaseID int64, total decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchases SET total=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, purchaseID, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetStatus(ctx context.Context, tenantID, purchaseID int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchases SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, purchaseID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, tenantID, purchaseID int64) (Purchase, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, purchaseID)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

func (t *txRepo) ListItems(ctx context.Context, tenantID, purchaseID int64) ([]Item, error) {
	return listItems(ctx, t.tx, tenantID, purchaseID)
}

func (t *txRepo) DeleteCascade(ctx context.Context, tenantID, purchaseID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM batches WHERE tenant_id=$1 AND purchase_id=$2`, tenantID, purchaseID); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id IN (SELECT id FROM purchases WHERE tenant_id=$1 AND id=$2)`, tenantID, purchaseID); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchases WHERE tenant_id=$1 AND id=$2`, tenantID, purchaseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) Ledger() ledger.TxLedger {
	return ledger.NewTxLedger(t.tx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, tenantID, purchaseID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.purchase_id, i.product_id, i.unit_id, i.qty, i.unit_cost, i.subtotal, i.expiry_date, COALESCE(i.batch_id, 0)
FROM purchase_items i
JOIN purchases p ON p.id = i.purchase_id
WHERE p.tenant_id=$1 AND i.purchase_id=$2
ORDER BY i.id`, tenantID, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PurchaseID, &it.ProductID, &it.UnitID, &it.Qty, &it.UnitCost, &it.Subtotal, &it.ExpiryDate, &it.BatchID); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var status string
	err := row.Scan(&p.ID, &p.TenantID, &p.BranchID, &p.RefNo, &p.SupplierID, &status, &p.Total, &p.Note, &p.CreatedBy, &p.Date, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Purchase{}, err
	}
	p.Status = Status(status)
	return p, nil
}
