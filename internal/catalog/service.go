package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Service coordinates catalog operations and unit conversion.
type Service struct {
	repo Repository
}

// NewService constructs the catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ToBaseUnits converts a quantity expressed in the given unit into the
// product's base unit. When the unit is not configured for the product the
// quantity is returned unchanged; callers historically rely on this
// treat-as-base-unit fallback, so it is kept rather than turned into an error.
func (s *Service) ToBaseUnits(ctx context.Context, tenantID, productID, unitID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	pu, err := s.repo.GetProductUnit(ctx, tenantID, productID, unitID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return qty, nil
		}
		return decimal.Zero, err
	}
	return qty.Mul(pu.ConversionFactor), nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrValidation
	}
	return s.repo.GetProduct(ctx, tenantID, id)
}

// ProductExists reports whether a product exists, as ErrNotFound when not.
func (s *Service) ProductExists(ctx context.Context, tenantID, productID int64) error {
	_, err := s.GetProduct(ctx, tenantID, productID)
	return err
}

// ListProducts returns products matching the filters plus the total count.
func (s *Service) ListProducts(ctx context.Context, tenantID int64, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, tenantID, filters)
}

// CreateProduct validates and persists a product.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, p)
}

// UpdateProduct validates and updates product master fields. Aggregate stock
// is never written through this path; only the ledger mutates it.
func (s *Service) UpdateProduct(ctx context.Context, p Product) error {
	if p.ID <= 0 {
		return ErrValidation
	}
	if err := validateProduct(p); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, p)
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, tenantID, id int64) error {
	if id <= 0 {
		return ErrValidation
	}
	return s.repo.DeleteProduct(ctx, tenantID, id)
}

// GetUnit returns a unit by id.
func (s *Service) GetUnit(ctx context.Context, tenantID, id int64) (Unit, error) {
	if id <= 0 {
		return Unit{}, ErrValidation
	}
	return s.repo.GetUnit(ctx, tenantID, id)
}

// UnitExists reports whether a unit exists, as ErrNotFound when not.
func (s *Service) UnitExists(ctx context.Context, tenantID, unitID int64) error {
	_, err := s.GetUnit(ctx, tenantID, unitID)
	return err
}

// ListUnits returns all units for the tenant.
func (s *Service) ListUnits(ctx context.Context, tenantID int64) ([]Unit, error) {
	return s.repo.ListUnits(ctx, tenantID)
}

// CreateUnit validates and persists a unit.
func (s *Service) CreateUnit(ctx context.Context, u Unit) (Unit, error) {
	if strings.TrimSpace(u.Code) == "" || strings.TrimSpace(u.Name) == "" {
		return Unit{}, ErrValidation
	}
	return s.repo.CreateUnit(ctx, u)
}

// ListProductUnits returns the unit configuration of a product.
func (s *Service) ListProductUnits(ctx context.Context, tenantID, productID int64) ([]ProductUnit, error) {
	return s.repo.ListProductUnits(ctx, tenantID, productID)
}

// SetProductUnit creates or updates a unit mapping for a product. Base units
// must carry a conversion factor of exactly 1.
func (s *Service) SetProductUnit(ctx context.Context, tenantID int64, pu ProductUnit) (ProductUnit, error) {
	if pu.ProductID <= 0 || pu.UnitID <= 0 {
		return ProductUnit{}, ErrValidation
	}
	if pu.ConversionFactor.LessThanOrEqual(decimal.Zero) {
		return ProductUnit{}, ErrValidation
	}
	if pu.IsBaseUnit && !pu.ConversionFactor.Equal(decimal.NewFromInt(1)) {
		return ProductUnit{}, ErrValidation
	}
	return s.repo.UpsertProductUnit(ctx, tenantID, pu)
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return ErrValidation
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrValidation
	}
	if p.MinStock.IsNegative() || p.BuyPrice.IsNegative() || p.SellPrice.IsNegative() {
		return ErrValidation
	}
	return nil
}
