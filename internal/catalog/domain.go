package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item whose on-hand quantity is tracked in base units.
type Product struct {
	ID         int64           `json:"id"`
	TenantID   int64           `json:"-"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	TrackStock bool            `json:"track_stock"`
	Stock      decimal.Decimal `json:"stock"`
	MinStock   decimal.Decimal `json:"min_stock"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	SellPrice  decimal.Decimal `json:"sell_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Unit represents a unit of measure.
type Unit struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"-"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// ProductUnit maps a unit onto a product. Exactly one row per product is the
// base unit with conversion factor 1; every other row reads "1 of this unit
// equals ConversionFactor base units".
type ProductUnit struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	UnitID           int64           `json:"unit_id"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	IsBaseUnit       bool            `json:"is_base_unit"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search string
	Page   int
	Limit  int
}

var (
	// ErrNotFound indicates a missing catalog record.
	ErrNotFound = errors.New("catalog: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
	// ErrDuplicateSKU indicates the SKU is already taken within the tenant.
	ErrDuplicateSKU = errors.New("catalog: sku already exists")
	// ErrDuplicateCode indicates the unit code is already taken within the tenant.
	ErrDuplicateCode = errors.New("catalog: unit code already exists")
)
