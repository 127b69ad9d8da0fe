package stock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	ErrInvalidQuantity   = errors.New("stock: quantity delta must not be zero")
	ErrInvalidType       = errors.New("stock: unknown movement type")
)

type MovementType string

const (
	MovementSale       MovementType = "SALE"
	MovementRestock    MovementType = "RESTOCK"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementReturn     MovementType = "RETURN"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementRestock, MovementAdjustment, MovementReturn:
		return true
	}
	return false
}

// Movement is one signed stock change, recorded together with the counter
// values it moved between. NewStock = PreviousStock + Quantity and is never
// negative; a movement that would break that is rejected before it is
// persisted.
type Movement struct {
	ID            string
	ProductID     string
	TransactionID string
	Quantity      int
	Type          MovementType
	PreviousStock int
	NewStock      int
	Reference     string
	CreatedAt     time.Time
}

// Ledger applies signed quantity deltas atomically. SALE movements are
// created only through the transaction settle path; the ledger API accepts
// the manual movement types (RESTOCK, ADJUSTMENT, RETURN).
type Ledger interface {
	ApplyMovement(ctx context.Context, m Movement) (*Movement, error)
	ListMovements(ctx context.Context, productID string) ([]*Movement, error)
}
