package transaction

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("transaction: not found")
	ErrConflict        = errors.New("transaction: reference already exists")
	ErrTerminalState   = errors.New("transaction: already in a terminal state")
	ErrInvalidQuantity = errors.New("transaction: quantity must be greater than zero")
	ErrInvalidAmount   = errors.New("transaction: amount must be greater than zero")
	ErrInvalidVerdict  = errors.New("transaction: verdict must be a terminal status")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusDeclined  Status = "DECLINED"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusError, StatusCancelled:
		return true
	}
	return false
}

// MapProcessorStatus translates the processor's status vocabulary to the
// local enum. Unknown values are treated as ERROR rather than dropped, so a
// verdict is never lost to a vocabulary change on the processor side.
func MapProcessorStatus(s string) Status {
	switch s {
	case "APPROVED":
		return StatusApproved
	case "DECLINED":
		return StatusDeclined
	case "VOIDED":
		return StatusCancelled
	default:
		return StatusError
	}
}

// Transaction is the local ledger entry for one purchase attempt. Name and
// price are snapshotted from the catalog at creation time; Amount is the
// fee-inclusive total in minor currency units and never changes after the
// entity is persisted.
type Transaction struct {
	ID                    string
	Reference             string
	Status                Status
	ProductID             string
	ProductName           string
	Quantity              int
	Amount                int64
	CustomerEmail         string
	ExternalTransactionID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// New builds a PENDING transaction for quantity units at unitPrice minor
// units each. The total is derived through the fee quote.
func New(id, reference, productID, productName string, quantity int, unitPrice int64, customerEmail string) (*Transaction, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if unitPrice <= 0 {
		return nil, ErrInvalidAmount
	}

	quote := QuoteSubtotal(unitPrice * int64(quantity))
	now := time.Now().UTC()
	return &Transaction{
		ID:            id,
		Reference:     reference,
		Status:        StatusPending,
		ProductID:     productID,
		ProductName:   productName,
		Quantity:      quantity,
		Amount:        quote.Total,
		CustomerEmail: customerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
