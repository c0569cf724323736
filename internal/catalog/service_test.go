package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products     map[int64]Product
	units        map[int64]Unit
	productUnits map[string]ProductUnit
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:     make(map[int64]Product),
		units:        make(map[int64]Unit),
		productUnits: make(map[string]ProductUnit),
	}
}

func puKey(productID, unitID int64) string {
	return fmt.Sprintf("%d:%d", productID, unitID)
}

func (r *memoryRepo) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context, tenantID int64, filters ListFilters) ([]Product, int, error) {
	var result []Product
	for _, p := range r.products {
		if p.TenantID == tenantID {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	for _, existing := range r.products {
		if existing.TenantID == p.TenantID && existing.SKU == p.SKU {
			return Product{}, ErrDuplicateSKU
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, p Product) error {
	existing, ok := r.products[p.ID]
	if !ok || existing.TenantID != p.TenantID {
		return ErrNotFound
	}
	p.Stock = existing.Stock
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) DeleteProduct(ctx context.Context, tenantID, id int64) error {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) GetUnit(ctx context.Context, tenantID, id int64) (Unit, error) {
	u, ok := r.units[id]
	if !ok || u.TenantID != tenantID {
		return Unit{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryRepo) ListUnits(ctx context.Context, tenantID int64) ([]Unit, error) {
	var result []Unit
	for _, u := range r.units {
		if u.TenantID == tenantID {
			result = append(result, u)
		}
	}
	return result, nil
}

func (r *memoryRepo) CreateUnit(ctx context.Context, u Unit) (Unit, error) {
	for _, existing := range r.units {
		if existing.TenantID == u.TenantID && existing.Code == u.Code {
			return Unit{}, ErrDuplicateCode
		}
	}
	r.nextID++
	u.ID = r.nextID
	r.units[u.ID] = u
	return u, nil
}

func (r *memoryRepo) GetProductUnit(ctx context.Context, tenantID, productID, unitID int64) (ProductUnit, error) {
	pu, ok := r.productUnits[puKey(productID, unitID)]
	if !ok {
		return ProductUnit{}, ErrNotFound
	}
	return pu, nil
}

func (r *memoryRepo) ListProductUnits(ctx context.Context, tenantID, productID int64) ([]ProductUnit, error) {
	var result []ProductUnit
	for _, pu := range r.productUnits {
		if pu.ProductID == productID {
			result = append(result, pu)
		}
	}
	return result, nil
}

func (r *memoryRepo) UpsertProductUnit(ctx context.Context, tenantID int64, pu ProductUnit) (ProductUnit, error) {
	if _, ok := r.products[pu.ProductID]; !ok {
		return ProductUnit{}, ErrNotFound
	}
	r.nextID++
	pu.ID = r.nextID
	r.productUnits[puKey(pu.ProductID, pu.UnitID)] = pu
	return pu, nil
}

func TestToBaseUnitsConversion(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, Product{TenantID: 1, SKU: "COLA-330", Name: "Cola 330ml", TrackStock: true})
	require.NoError(t, err)
	box, err := svc.CreateUnit(ctx, Unit{TenantID: 1, Code: "BOX", Name: "Box of 12"})
	require.NoError(t, err)

	_, err = svc.SetProductUnit(ctx, 1, ProductUnit{
		ProductID:        product.ID,
		UnitID:           box.ID,
		ConversionFactor: decimal.NewFromInt(12),
	})
	require.NoError(t, err)

	qty, err := svc.ToBaseUnits(ctx, 1, product.ID, box.ID, decimal.NewFromInt(3))
	require.NoError(t, err)
	require.True(t, qty.Equal(decimal.NewFromInt(36)), "got %s", qty)
}

func TestToBaseUnitsUnconfiguredUnitPassthrough(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, Product{TenantID: 1, SKU: "RICE-1KG", Name: "Rice 1kg"})
	require.NoError(t, err)

	// Unit 99 has no conversion row: the quantity passes through unchanged.
	qty, err := svc.ToBaseUnits(ctx, 1, product.ID, 99, decimal.NewFromInt(7))
	require.NoError(t, err)
	require.True(t, qty.Equal(decimal.NewFromInt(7)), "got %s", qty)
}

func TestSetProductUnitValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, Product{TenantID: 1, SKU: "SKU-1", Name: "Item"})
	require.NoError(t, err)

	_, err = svc.SetProductUnit(ctx, 1, ProductUnit{ProductID: product.ID, UnitID: 1, ConversionFactor: decimal.Zero})
	require.ErrorIs(t, err, ErrValidation)

	// Base unit rows must use a conversion factor of exactly 1.
	_, err = svc.SetProductUnit(ctx, 1, ProductUnit{ProductID: product.ID, UnitID: 1, ConversionFactor: decimal.NewFromInt(5), IsBaseUnit: true})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, Product{TenantID: 1, SKU: "DUP", Name: "First"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, Product{TenantID: 1, SKU: "DUP", Name: "Second"})
	require.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestCreateUnitDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateUnit(ctx, Unit{TenantID: 1, Code: "BOX", Name: "Box of 12"})
	require.NoError(t, err)
	_, err = svc.CreateUnit(ctx, Unit{TenantID: 1, Code: "BOX", Name: "Box again"})
	require.ErrorIs(t, err, ErrDuplicateCode)
}
