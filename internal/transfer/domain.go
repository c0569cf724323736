package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates transfer states.
type Status string

const (
	StatusPending  Status = "pending"
	StatusShipped  Status = "shipped"
	StatusReceived Status = "received"
)

// Event drives a transfer transition.
type Event string

const (
	EventShip    Event = "ship"
	EventReceive Event = "receive"
)

// NextStatus is the transfer transition table. Shipping removes the goods
// from the origin's stock; receiving books them at the destination. While
// shipped, the quantity is in transit and counted nowhere.
func NextStatus(from Status, event Event) (Status, error) {
	switch {
	case from == StatusPending && event == EventShip:
		return StatusShipped, nil
	case from == StatusShipped && event == EventReceive:
		return StatusReceived, nil
	default:
		return "", fmt.Errorf("%w: %s transfer cannot %s", ErrInvalidTransition, from, event)
	}
}

// Transfer moves goods between two branches.
type Transfer struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"-"`
	FromBranchID int64      `json:"from_branch_id"`
	ToBranchID   int64      `json:"to_branch_id"`
	Status       Status     `json:"status"`
	Note         string     `json:"note,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	Date         time.Time  `json:"date"`
	ShippedAt    *time.Time `json:"shipped_at,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Items        []Item     `json:"items,omitempty"`
}

// Item is one transferred line. Qty is in the entry unit; stock effects
// convert to base units.
type Item struct {
	ID         int64           `json:"id"`
	TransferID int64           `json:"transfer_id"`
	ProductID  int64           `json:"product_id"`
	UnitID     int64           `json:"unit_id"`
	Qty        decimal.Decimal `json:"qty"`
}

// Line is one line of a create request.
type Line struct {
	ProductID int64
	UnitID    int64
	Qty       decimal.Decimal
}

// CreateInput describes a new transfer.
type CreateInput struct {
	FromBranchID int64
	ToBranchID   int64
	ActorID      int64
	Date         time.Time
	Note         string
	Lines        []Line
}

// ListFilters narrows transfer listings.
type ListFilters struct {
	BranchID int64
	Status   Status
	Page     int
	Limit    int
}

var (
	// ErrNotFound indicates the transfer does not exist for the tenant.
	ErrNotFound = errors.New("transfer: transfer not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("transfer: invalid input")
	// ErrInvalidTransition indicates a (status, event) pair the lifecycle forbids.
	ErrInvalidTransition = errors.New("transfer: invalid status transition")
)
