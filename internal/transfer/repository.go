package transfer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/db"
	"github.com/meridian-retail/meridian/internal/shared"
)

// TxRepository exposes transfer persistence inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, tr Transfer) (int64, error)
	InsertItem(ctx context.Context, it Item) (int64, error)
	GetForUpdate(ctx context.Context, tenantID, transferID int64) (Transfer, error)
	ListItems(ctx context.Context, tenantID, transferID int64) ([]Item, error)
	SetStatus(ctx context.Context, tenantID, transferID int64, status Status) error
	Delete(ctx context.Context, tenantID, transferID int64) error
	Ledger() ledger.TxLedger
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, transferID int64) (Transfer, error)
	List(ctx context.Context, tenantID int64, filters ListFilters) ([]Transfer, int, error)
}

// Repository persists transfers in PostgreSQL.
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

const transferColumns = `id, tenant_id, from_branch_id, to_branch_id, status, note, created_by, transfer_date, shipped_at, received_at, created_at, updated_at`

// Get returns one transfer with items.
func (r *Repository) Get(ctx context.Context, tenantID, transferID int64) (Transfer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE tenant_id=$1 AND id=$2`, tenantID, transferID)
	tr, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	items, err := listItems(ctx, r.pool, tenantID, transferID)
	if err != nil {
		return Transfer{}, err
	}
	tr.Items = items
	return tr, nil
}

// List returns transfers touching the branch, newest first.
func (r *Repository) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Transfer, int, error) {
	page := shared.NewPagination(filters.Page, filters.Limit, 0)
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
WHERE tenant_id=$1
  AND ($2=0 OR from_branch_id=$2 OR to_branch_id=$2)
  AND ($3='' OR status=$3)
ORDER BY transfer_date DESC, id DESC
LIMIT $4 OFFSET $5`, tenantID, filters.BranchID, string(filters.Status), page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transfers := []Transfer{}
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE tenant_id=$1 AND ($2=0 OR from_branch_id=$2 OR to_branch_id=$2) AND ($3='' OR status=$3)`,
		tenantID, filters.BranchID, string(filters.Status)).Scan(&total)
	return transfers, total, err
}

func (t *txRepo) Insert(ctx context.Context, tr Transfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfers (tenant_id, from_branch_id, to_branch_id, status, note, created_by, transfer_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		tr.TenantID, tr.FromBranchID, tr.ToBranchID, string(tr.Status), tr.Note, tr.CreatedBy, tr.Date).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, it Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfer_items (transfer_id, product_id, unit_id, qty)
VALUES ($1,$2,$3,$4) RETURNING id`,
		it.TransferID, it.ProductID, it.UnitID, it.Qty).Scan(&id)
	return id, err
}

func (t *txRepo) GetForUpdate(ctx context.Context, tenantID, transferID int64) (Transfer, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, transferID)
	tr, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	return tr, nil
}

func (t *txRepo) ListItems(ctx context.Context, tenantID, transferID int64) ([]Item, error) {
	return listItems(ctx, t.tx, tenantID, transferID)
}

func (t *txRepo) SetStatus(ctx context.Context, tenantID, transferID int64, status Status) error {
	var column string
	switch status {
	case StatusShipped:
		column = "shipped_at"
	case StatusReceived:
		column = "received_at"
	}
	query := `UPDATE transfers SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`
	if column != "" {
		query = `UPDATE transfers SET status=$3, ` + column + `=NOW(), updated_at=NOW() WHERE tenant_id=$1 AND id=$2`
	}
	tag, err := t.tx.Exec(ctx, query, tenantID, transferID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) Delete(ctx context.Context, tenantID, transferID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM transfer_items WHERE transfer_id IN (SELECT id FROM transfers WHERE tenant_id=$1 AND id=$2)`, tenantID, transferID); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM transfers WHERE tenant_id=$1 AND id=$2`, tenantID, transferID)
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

func listItems(ctx context.Context, q querier, tenantID, transferID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.transfer_id, i.product_id, i.unit_id, i.qty
FROM transfer_items i
JOIN transfers t ON t.id = i.transfer_id
WHERE t.tenant_id=$1 AND i.transfer_id=$2
ORDER BY i.id`, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TransferID, &it.ProductID, &it.UnitID, &it.Qty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var tr Transfer
	var status string
	err := row.Scan(&tr.ID, &tr.TenantID, &tr.FromBranchID, &tr.ToBranchID, &status, &tr.Note, &tr.CreatedBy, &tr.Date, &tr.ShippedAt, &tr.ReceivedAt, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return Transfer{}, err
	}
	tr.Status = Status(status)
	return tr, nil
}
