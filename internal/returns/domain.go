package returns

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SupplierStatus enumerates supplier return states.
type SupplierStatus string

const (
	SupplierDraft     SupplierStatus = "draft"
	SupplierCompleted SupplierStatus = "completed"
	SupplierCancelled SupplierStatus = "cancelled"
)

// CustomerStatus enumerates customer return states.
type CustomerStatus string

const (
	CustomerPending   CustomerStatus = "pending"
	CustomerApproved  CustomerStatus = "approved"
	CustomerRejected  CustomerStatus = "rejected"
	CustomerCompleted CustomerStatus = "completed"
)

// Event drives a state machine transition.
type Event string

const (
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
)

// NextSupplierStatus is the supplier return transition table. Stock effects
// hang off the (from, event) pair: completing deducts, cancelling a completed
// return restores, cancelling a draft touches nothing. Cancelled is terminal.
func NextSupplierStatus(from SupplierStatus, event Event) (SupplierStatus, error) {
	switch {
	case from == SupplierDraft && event == EventComplete:
		return SupplierCompleted, nil
	case from == SupplierDraft && event == EventCancel:
		return SupplierCancelled, nil
	case from == SupplierCompleted && event == EventCancel:
		return SupplierCancelled, nil
	default:
		return "", fmt.Errorf("%w: %s return cannot %s", ErrInvalidTransition, from, event)
	}
}

// NextCustomerStatus is the customer return transition table. Only approval
// moves stock; rejection and fulfillment are bookkeeping.
func NextCustomerStatus(from CustomerStatus, event Event) (CustomerStatus, error) {
	switch {
	case from == CustomerPending && event == EventApprove:
		return CustomerApproved, nil
	case from == CustomerPending && event == EventReject:
		return CustomerRejected, nil
	case from == CustomerApproved && event == EventComplete:
		return CustomerCompleted, nil
	default:
		return "", fmt.Errorf("%w: %s return cannot %s", ErrInvalidTransition, from, event)
	}
}

// SupplierReturn sends goods back to a supplier, drawing down specific
// batches.
type SupplierReturn struct {
	ID         int64                `json:"id"`
	TenantID   int64                `json:"-"`
	BranchID   int64                `json:"branch_id"`
	SupplierID int64                `json:"supplier_id"`
	Status     SupplierStatus       `json:"status"`
	Total      decimal.Decimal      `json:"total"`
	Reason     string               `json:"reason,omitempty"`
	CreatedBy  int64                `json:"created_by"`
	Date       time.Time            `json:"date"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Items      []SupplierReturnItem `json:"items,omitempty"`
}

// SupplierReturnItem references the batch it draws down. Qty is in the item's
// entry unit; aggregate stock effects convert to base units.
type SupplierReturnItem struct {
	ID        int64           `json:"id"`
	ReturnID  int64           `json:"return_id"`
	ProductID int64           `json:"product_id"`
	BatchID   int64           `json:"batch_id"`
	UnitID    int64           `json:"unit_id"`
	Qty       decimal.Decimal `json:"qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CustomerReturn accepts goods back from a customer. Approval raises
// aggregate stock only; no batch is recreated for returned goods.
type CustomerReturn struct {
	ID        int64                `json:"id"`
	TenantID  int64                `json:"-"`
	BranchID  int64                `json:"branch_id"`
	Customer  string               `json:"customer,omitempty"`
	SaleRef   string               `json:"sale_ref,omitempty"`
	Status    CustomerStatus       `json:"status"`
	Total     decimal.Decimal      `json:"total"`
	Reason    string               `json:"reason,omitempty"`
	CreatedBy int64                `json:"created_by"`
	Date      time.Time            `json:"date"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Items     []CustomerReturnItem `json:"items,omitempty"`
}

// CustomerReturnItem is one returned line.
type CustomerReturnItem struct {
	ID        int64           `json:"id"`
	ReturnID  int64           `json:"return_id"`
	ProductID int64           `json:"product_id"`
	UnitID    int64           `json:"unit_id"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// SupplierReturnLine is one line of a create request.
type SupplierReturnLine struct {
	ProductID int64
	BatchID   int64
	UnitID    int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
}

// CreateSupplierReturnInput describes a new supplier return.
type CreateSupplierReturnInput struct {
	SupplierID int64
	BranchID   int64
	ActorID    int64
	Date       time.Time
	Reason     string
	Status     SupplierStatus
	Lines      []SupplierReturnLine
}

// CustomerReturnLine is one line of a create request.
type CustomerReturnLine struct {
	ProductID int64
	UnitID    int64
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateCustomerReturnInput describes a new customer return.
type CreateCustomerReturnInput struct {
	BranchID int64
	ActorID  int64
	Customer string
	SaleRef  string
	Date     time.Time
	Reason   string
	Lines    []CustomerReturnLine
}

// ListFilters narrows return listings.
type ListFilters struct {
	SupplierID int64
	Status     string
	Page       int
	Limit      int
}

var (
	// ErrNotFound indicates the return does not exist for the tenant.
	ErrNotFound = errors.New("returns: return not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("returns: invalid input")
	// ErrInvalidTransition indicates a (status, event) pair the state machine forbids.
	ErrInvalidTransition = errors.New("returns: invalid status transition")
	// ErrBatchMismatch indicates the referenced batch does not hold the item's product.
	ErrBatchMismatch = errors.New("returns: batch does not match product")
)
