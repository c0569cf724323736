package purchasing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates receipt states. Draft receipts carry header and lines
// only; stock and batches materialise when the receipt completes.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// Purchase is a goods receipt from a supplier.
type Purchase struct {
	ID         int64           `json:"id"`
	TenantID   int64           `json:"-"`
	BranchID   int64           `json:"branch_id"`
	RefNo      string          `json:"ref_no"`
	SupplierID int64           `json:"supplier_id"`
	Status     Status          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Note       string          `json:"note,omitempty"`
	CreatedBy  int64           `json:"created_by"`
	Date       time.Time       `json:"date"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Items      []Item          `json:"items,omitempty"`
}

// Item is one received line. Qty is expressed in the entry unit; the batch it
// produces keeps the entry unit while the aggregate stock effect is converted
// to base units.
type Item struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchase_id"`
	ProductID  int64           `json:"product_id"`
	UnitID     int64           `json:"unit_id"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	BatchID    int64           `json:"batch_id,omitempty"`
}

// ReceiveLine is one line of a receive request.
type ReceiveLine struct {
	ProductID  int64
	UnitID     int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	ExpiryDate *time.Time
}

// ReceiveInput describes a goods receipt.
type ReceiveInput struct {
	SupplierID int64
	BranchID   int64
	ActorID    int64
	Date       time.Time
	Note       string
	Status     Status
	Lines      []ReceiveLine
}

// ListFilters narrows receipt listings.
type ListFilters struct {
	SupplierID int64
	Status     Status
	Page       int
	Limit      int
}

var (
	// ErrNotFound indicates the receipt does not exist for the tenant.
	ErrNotFound = errors.New("purchasing: receipt not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
	// ErrInvalidTransition indicates a status pair the receipt lifecycle forbids.
	ErrInvalidTransition = errors.New("purchasing: invalid status transition")
	// ErrCompletedLocked indicates a completed receipt cannot be deleted.
	ErrCompletedLocked = errors.New("purchasing: completed receipt cannot be deleted")
)
