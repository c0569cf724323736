package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalog data in PostgreSQL.
type Repository interface {
	GetProduct(ctx context.Context, tenantID, id int64) (Product, error)
	ListProducts(ctx context.Context, tenantID int64, filters ListFilters) ([]Product, int, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, tenantID, id int64) error

	GetUnit(ctx context.Context, tenantID, id int64) (Unit, error)
	ListUnits(ctx context.Context, tenantID int64) ([]Unit, error)
	CreateUnit(ctx context.Context, u Unit) (Unit, error)

	GetProductUnit(ctx context.Context, tenantID, productID, unitID int64) (ProductUnit, error)
	ListProductUnits(ctx context.Context, tenantID, productID int64) ([]ProductUnit, error)
	UpsertProductUnit(ctx context.Context, tenantID int64, pu ProductUnit) (ProductUnit, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, tenant_id, sku, name, track_stock, stock, min_stock, buy_price, sell_price, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.TrackStock, &p.Stock, &p.MinStock, &p.BuyPrice, &p.SellPrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanProduct(row)
}

func (r *repository) ListProducts(ctx context.Context, tenantID int64, filters ListFilters) ([]Product, int, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	search := "%" + filters.Search + "%"

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE tenant_id=$1 AND ($2='%%' OR name ILIKE $2 OR sku ILIKE $2)`, tenantID, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE tenant_id=$1 AND ($2='%%' OR name ILIKE $2 OR sku ILIKE $2)
ORDER BY name ASC
LIMIT $3 OFFSET $4`, tenantID, search, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.TrackStock, &p.Stock, &p.MinStock, &p.BuyPrice, &p.SellPrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (tenant_id, sku, name, track_stock, stock, min_stock, buy_price, sell_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		p.TenantID, p.SKU, p.Name, p.TrackStock, p.Stock, p.MinStock, p.BuyPrice, p.SellPrice).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Product{}, ErrDuplicateSKU
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET sku=$3, name=$4, track_stock=$5, min_stock=$6, buy_price=$7, sell_price=$8, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, p.TenantID, p.ID, p.SKU, p.Name, p.TrackStock, p.MinStock, p.BuyPrice, p.SellPrice)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSKU
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) GetUnit(ctx context.Context, tenantID, id int64) (Unit, error) {
	var u Unit
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name FROM units WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&u.ID, &u.TenantID, &u.Code, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrNotFound
		}
		return Unit{}, err
	}
	return u, nil
}

func (r *repository) ListUnits(ctx context.Context, tenantID int64) ([]Unit, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, code, name FROM units WHERE tenant_id=$1 ORDER BY code ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := []Unit{}
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Code, &u.Name); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *repository) CreateUnit(ctx context.Context, u Unit) (Unit, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO units (tenant_id, code, name) VALUES ($1,$2,$3) RETURNING id`, u.TenantID, u.Code, u.Name).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Unit{}, ErrDuplicateCode
		}
		return Unit{}, err
	}
	return u, nil
}

func (r *repository) GetProductUnit(ctx context.Context, tenantID, productID, unitID int64) (ProductUnit, error) {
	var pu ProductUnit
	err := r.pool.QueryRow(ctx, `SELECT pu.id, pu.product_id, pu.unit_id, pu.conversion_factor, pu.is_base_unit, pu.buy_price, pu.sell_price
FROM product_units pu
JOIN products p ON p.id = pu.product_id
WHERE p.tenant_id=$1 AND pu.product_id=$2 AND pu.unit_id=$3`, tenantID, productID, unitID).
		Scan(&pu.ID, &pu.ProductID, &pu.UnitID, &pu.ConversionFactor, &pu.IsBaseUnit, &pu.BuyPrice, &pu.SellPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductUnit{}, ErrNotFound
		}
		return ProductUnit{}, err
	}
	return pu, nil
}

func (r *repository) ListProductUnits(ctx context.Context, tenantID, productID int64) ([]ProductUnit, error) {
	rows, err := r.pool.Query(ctx, `SELECT pu.id, pu.product_id, pu.unit_id, pu.conversion_factor, pu.is_base_unit, pu.buy_price, pu.sell_price
FROM product_units pu
JOIN products p ON p.id = pu.product_id
WHERE p.tenant_id=$1 AND pu.product_id=$2
ORDER BY pu.is_base_unit DESC, pu.id ASC`, tenantID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProductUnit
	for rows.Next() {
		var pu ProductUnit
		if err := rows.Scan(&pu.ID, &pu.ProductID, &pu.UnitID, &pu.ConversionFactor, &pu.IsBaseUnit, &pu.BuyPrice, &pu.SellPrice); err != nil {
			return nil, err
		}
		result = append(result, pu)
	}
	return result, rows.Err()
}

func (r *repository) UpsertProductUnit(ctx context.Context, tenantID int64, pu ProductUnit) (ProductUnit, error) {
	if _, err := r.GetProduct(ctx, tenantID, pu.ProductID); err != nil {
		return ProductUnit{}, err
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO product_units (product_id, unit_id, conversion_factor, is_base_unit, buy_price, sell_price)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (product_id, unit_id) DO UPDATE SET conversion_factor=EXCLUDED.conversion_factor, is_base_unit=EXCLUDED.is_base_unit, buy_price=EXCLUDED.buy_price, sell_price=EXCLUDED.sell_price
RETURNING id`, pu.ProductID, pu.UnitID, pu.ConversionFactor, pu.IsBaseUnit, pu.BuyPrice, pu.SellPrice).Scan(&pu.ID)
	if err != nil {
		return ProductUnit{}, err
	}
	return pu, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
