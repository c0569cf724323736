package returns

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

// TxRepository exposes return persistence inside one transaction. Ledger()
// binds batch and aggregate-stock mutations to the same transaction.
type TxRepository interface {
	InsertSupplierReturn(ctx context.Context, ret SupplierReturn) (int64, error)
	InsertSupplierItem(ctx context.Context, it SupplierReturnItem) (int64, error)
	GetSupplierForUpdate(ctx context.Context, tenantID, returnID int64) (SupplierReturn, error)
	ListSupplierItems(ctx context.Context, tenantID, returnID int64) ([]SupplierReturnItem, error)
	SetSupplierStatus(ctx context.Context, tenantID, returnID int64, status SupplierStatus) error
	SetSupplierTotal(ctx context.Context, tenantID, returnID int64, total decimal.Decimal) error
	DeleteSupplierReturn(ctx context.Context, tenantID, returnID int64) error
	BatchPurchaseSupplier(ctx context.Context, tenantID, batchID int64) (int64, error)

	InsertCustomerReturn(ctx context.Context, ret CustomerReturn) (int64, error)
	InsertCustomerItem(ctx context.Context, it CustomerReturnItem) (int64, error)
	GetCustomerForUpdate(ctx context.Context, tenantID, returnID int64) (CustomerReturn, error)
	ListCustomerItems(ctx context.Context, tenantID, returnID int64) ([]CustomerReturnItem, error)
	SetCustomerStatus(ctx context.Context, tenantID, returnID int64, status CustomerStatus) error
	DeleteCustomerReturn(ctx context.Context, tenantID, returnID int64) error

	Ledger() ledger.TxLedger
}

// RepositoryPort abstracts repository usage for the services.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSupplierReturn(ctx context.Context, tenantID, returnID int64) (SupplierReturn, error)
	ListSupplierReturns(ctx context.Context, tenantID int64, filters ListFilters) ([]SupplierReturn, int, error)
	GetCustomerReturn(ctx context.Context, tenantID, returnID int64) (CustomerReturn, error)
	ListCustomerReturns(ctx context.Context, tenantID int64, filters ListFilters) ([]CustomerReturn, int, error)
}

// Repository persists returns in PostgreSQL.
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

const supplierReturnColumns = `id, tenant_id, branch_id, supplier_id, status, total, reason, created_by, return_date, created_at, updated_at`

// GetSupplierReturn returns one supplier return with items.
func (r *Repository) GetSupplierReturn(ctx context.Context, tenantID, returnID int64) (SupplierReturn, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+supplierReturnColumns+` FROM supplier_returns WHERE tenant_id=$1 AND id=$2`, tenantID, returnID)
	ret, err := scanSupplierReturn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierReturn{}, ErrNotFound
		}
		return SupplierReturn{}, err
	}
	items, err := listSupplierItems(ctx, r.pool, tenantID, returnID)
	if err != nil {
		return SupplierReturn{}, err
	}
	ret.Items = items
	return ret, nil
}

// ListSupplierReturns returns supplier returns with a count.
func (r *Repository) ListSupplierReturns(ctx context.Context, tenantID int64, filters ListFilters) ([]SupplierReturn, int, error) {
	page := shared.NewPagination(filters.Page, filters.Limit, 0)
	rows, err := r.pool.Query(ctx, `SELECT `+supplierReturnColumns+` FROM supplier_returns
WHERE tenant_id=$1 AND ($2=0 OR supplier_id=$2) AND ($3='' OR status=$3)
ORDER BY return_date DESC, id DESC
LIMIT $4 OFFSET $5`, tenantID, filters.SupplierID, filters.Status, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []SupplierReturn{}
	for rows.Next() {
		ret, err := scanSupplierReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM supplier_returns WHERE tenant_id=$1 AND ($2=0 OR supplier_id=$2) AND ($3='' OR status=$3)`,
		tenantID, filters.SupplierID, filters.Status).Scan(&total)
	return out, total, err
}

const customerReturnColumns = `id, tenant_id, branch_id, customer, sale_ref, status, total, reason, created_by, return_date, created_at, updated_at`

// GetCustomerReturn returns one customer return with items.
func (r *Repository) GetCustomerReturn(ctx context.Context, tenantID, returnID int64) (CustomerReturn, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerReturnColumns+` FROM customer_returns WHERE tenant_id=$1 AND id=$2`, tenantID, returnID)
	ret, err := scanCustomerReturn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerReturn{}, ErrNotFound
		}
		return CustomerReturn{}, err
	}
	items, err := listCustomerItems(ctx, r.pool, tenantID, returnID)
	if err != nil {
		return CustomerReturn{}, err
	}
	ret.Items = items
	return ret, nil
}

// ListCustomerReturns returns customer returns with a count.
func (r *Repository) ListCustomerReturns(ctx context.Context, tenantID int64, filters ListFilters) ([]CustomerReturn, int, error) {
	page := shared.NewPagination(filters.Page, filters.Limit, 0)
	rows, err := r.pool.Query(ctx, `SELECT `+customerReturnColumns+` FROM customer_returns
WHERE tenant_id=$1 AND ($2='' OR status=$2)
ORDER BY return_date DESC, id DESC
LIMIT $3 OFFSET $4`, tenantID, filters.Status, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []CustomerReturn{}
	for rows.Next() {
		ret, err := scanCustomerReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customer_returns WHERE tenant_id=$1 AND ($2='' OR status=$2)`,
		tenantID, filters.Status).Scan(&total)
	return out, total, err
}

func (t *txRepo) InsertSupplierReturn(ctx context.Context, ret SupplierReturn) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_returns (tenant_id, branch_id, supplier_id, status, total, reason, created_by, return_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		ret.TenantID, ret.BranchID, ret.SupplierID, string(ret.Status), ret.Total, ret.Reason, ret.CreatedBy, ret.Date).Scan(&id)
	return id, err
}

func (t *txRepo) InsertSupplierItem(ctx context.Context, it SupplierReturnItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_return_items (return_id, product_id, batch_id, unit_id, qty, unit_cost, subtotal)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		it.ReturnID, it.ProductID, it.BatchID, it.UnitID, it.Qty, it.UnitCost, it.Subtotal).Scan(&id)
	return id, err
}

func (t *txRepo) GetSupplierForUpdate(ctx context.Context, tenantID, returnID int64) (SupplierReturn, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+supplierReturnColumns+` FROM supplier_returns WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, returnID)
	ret, err := scanSupplierReturn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierReturn{}, ErrNotFound
		}
		return SupplierReturn{}, err
	}
	return ret, nil
}

func (t *txRepo) ListSupplierItems(ctx context.Context, tenantID, returnID int64) ([]SupplierReturnItem, error) {
	return listSupplierItems(ctx, t.tx, tenantID, returnID)
}

func (t *txRepo) SetSupplierStatus(ctx context.Context, tenantID, returnID int64, status SupplierStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE supplier_returns SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, returnID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetSupplierTotal(ctx context.Context, tenantID, returnID int64, total decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE supplier_returns SET total=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, returnID, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteSupplierReturn(ctx context.Context, tenantID, returnID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM supplier_return_items WHERE return_id IN (SELECT id FROM supplier_returns WHERE tenant_id=$1 AND id=$2)`, tenantID, returnID); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM supplier_returns WHERE tenant_id=$1 AND id=$2`, tenantID, returnID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertCustomerReturn(ctx context.Context, ret CustomerReturn) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO customer_returns (tenant_id, branch_id, customer, sale_ref, status, total, reason, created_by, return_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		ret.TenantID, ret.BranchID, ret.Customer, ret.SaleRef, string(ret.Status), ret.Total, ret.Reason, ret.CreatedBy, ret.Date).Scan(&id)
	return id, err
}

func (t *txRepo) InsertCustomerItem(ctx context.Context, it CustomerReturnItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO customer_return_items (return_id, product_id, unit_id, qty, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		it.ReturnID, it.ProductID, it.UnitID, it.Qty, it.UnitPrice, it.Subtotal).Scan(&id)
	return id, err
}

func (t *txRepo) GetCustomerForUpdate(ctx context.Context, tenantID, returnID int64) (CustomerReturn, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+customerReturnColumns+` FROM customer_returns WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, returnID)
	ret, err := scanCustomerReturn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerReturn{}, ErrNotFound
		}
		return CustomerReturn{}, err
	}
	return ret, nil
}

func (t *txRepo) ListCustomerItems(ctx context.Context, tenantID, returnID int64) ([]CustomerReturnItem, error) {
	return listCustomerItems(ctx, t.tx, tenantID, returnID)
}

func (t *txRepo) SetCustomerStatus(ctx context.Context, tenantID, returnID int64, status CustomerStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE customer_returns SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, returnID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteCustomerReturn(ctx context.Context, tenantID, returnID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM customer_return_items WHERE return_id IN (SELECT id FROM customer_returns WHERE tenant_id=$1 AND id=$2)`, tenantID, returnID); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM customer_returns WHERE tenant_id=$1 AND id=$2`, tenantID, returnID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BatchPurchaseSupplier resolves which supplier a batch was bought from,
// zero when the receipt carried none.
func (t *txRepo) BatchPurchaseSupplier(ctx context.Context, tenantID, batchID int64) (int64, error) {
	var supplierID int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(p.supplier_id, 0)
FROM batches b
JOIN purchases p ON p.id = b.purchase_id
WHERE b.tenant_id=$1 AND b.id=$2`, tenantID, batchID).Scan(&supplierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ledger.ErrBatchNotFound
		}
		return 0, err
	}
	return supplierID, nil
}

func (t *txRepo) Ledger() ledger.TxLedger {
	return ledger.NewTxLedger(t.tx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listSupplierItems(ctx context.Context, q querier, tenantID, returnID int64) ([]SupplierReturnItem, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.return_id, i.product_id, i.batch_id, i.unit_id, i.qty, i.unit_cost, i.subtotal
FROM supplier_return_items i
JOIN supplier_returns r ON r.id = i.return_id
WHERE r.tenant_id=$1 AND i.return_id=$2
ORDER BY i.id`, tenantID, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []SupplierReturnItem{}
	for rows.Next() {
		var it SupplierReturnItem
		if err := rows.Scan(&it.ID, &it.ReturnID, &it.ProductID, &it.BatchID, &it.UnitID, &it.Qty, &it.UnitCost, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func listCustomerItems(ctx context.Context, q querier, tenantID, returnID int64) ([]CustomerReturnItem, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.return_id, i.product_id, i.unit_id, i.qty, i.unit_price, i.subtotal
FROM customer_return_items i
JOIN customer_returns r ON r.id = i.return_id
WHERE r.tenant_id=$1 AND i.return_id=$2
ORDER BY i.id`, tenantID, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []CustomerReturnItem{}
	for rows.Next() {
		var it CustomerReturnItem
		if err := rows.Scan(&it.ID, &it.ReturnID, &it.ProductID, &it.UnitID, &it.Qty, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanSupplierReturn(row pgx.Row) (SupplierReturn, error) {
	var ret SupplierReturn
	var status string
	err := row.Scan(&ret.ID, &ret.TenantID, &ret.BranchID, &ret.SupplierID, &status, &ret.Total, &ret.Reason, &ret.CreatedBy, &ret.Date, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		return SupplierReturn{}, err
	}
	ret.Status = SupplierStatus(status)
	return ret, nil
}

func scanCustomerReturn(row pgx.Row) (CustomerReturn, error) {
	var ret CustomerReturn
	var status string
	err := row.Scan(&ret.ID, &ret.TenantID, &ret.BranchID, &ret.Customer, &ret.SaleRef, &status, &ret.Total, &ret.Reason, &ret.CreatedBy, &ret.Date, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		return CustomerReturn{}, err
	}
	ret.Status = CustomerStatus(status)
	return ret, nil
}

