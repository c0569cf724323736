package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (receipt, approved customer return).
	MovementIn MovementType = "in"
	// MovementOut represents an outbound movement (completed supplier return).
	MovementOut MovementType = "out"
	// MovementAdjustment indicates a manual correction.
	MovementAdjustment MovementType = "adjustment"
	// MovementTransfer is used for inter-branch transfer legs.
	MovementTransfer MovementType = "transfer"
)

// AdjustmentType selects the direction of a manual adjustment.
type AdjustmentType string

const (
	AdjustmentAdd      AdjustmentType = "add"
	AdjustmentSubtract AdjustmentType = "subtract"
)

// Batch is a discrete incoming-goods record. CurrentStock starts equal to
// InitialQty, is decremented by completed supplier returns and restored on
// cancellation. Sales never touch batches; they deduct aggregate stock only.
type Batch struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"-"`
	ProductID    int64           `json:"product_id"`
	PurchaseID   int64           `json:"purchase_id"`
	UnitID       int64           `json:"unit_id"`
	InitialQty   decimal.Decimal `json:"initial_qty"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// Movement is an append-only audit record of one stock change. It is never
// mutated after creation; the resulting stock snapshot makes the history
// replayable without recomputation.
type Movement struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"-"`
	ProductID      int64           `json:"product_id"`
	BranchID       int64           `json:"branch_id"`
	ActorID        int64           `json:"actor_id"`
	Type           MovementType    `json:"type"`
	Qty            decimal.Decimal `json:"qty"`
	ResultingStock decimal.Decimal `json:"resulting_stock"`
	Reason         string          `json:"reason"`
	RefModule      string          `json:"ref_module,omitempty"`
	RefID          string          `json:"ref_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AdjustInput describes a manual stock adjustment request.
type AdjustInput struct {
	ProductID int64
	BranchID  int64
	ActorID   int64
	Type      AdjustmentType
	Qty       decimal.Decimal
	Reason    string
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID int64
	BranchID  int64
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

var (
	// ErrProductNotFound indicates the referenced product row is missing.
	ErrProductNotFound = errors.New("ledger: product not found")
	// ErrBatchNotFound indicates the referenced batch row is missing.
	ErrBatchNotFound = errors.New("ledger: batch not found")
	// ErrInsufficientStock indicates the aggregate stock cannot cover the request.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrInsufficientBatchStock indicates the batch remainder cannot cover the request.
	ErrInsufficientBatchStock = errors.New("ledger: insufficient batch stock")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("ledger: invalid input")
)

// OrderFEFO sorts batches first-expiring-first-out: earliest expiry first,
// batches without expiry last, ties broken by oldest receipt then id. This is
// the canonical ordering; SQL listings mirror it.
func OrderFEFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		bi, bj := batches[i], batches[j]
		switch {
		case bi.ExpiryDate == nil && bj.ExpiryDate == nil:
			// fall through to receipt tie-break
		case bi.ExpiryDate == nil:
			return false
		case bj.ExpiryDate == nil:
			return true
		case !bi.ExpiryDate.Equal(*bj.ExpiryDate):
			return bi.ExpiryDate.Before(*bj.ExpiryDate)
		}
		if !bi.ReceivedAt.Equal(bj.ReceivedAt) {
			return bi.ReceivedAt.Before(bj.ReceivedAt)
		}
		return bi.ID < bj.ID
	})
}
