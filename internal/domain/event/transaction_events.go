package event

import "time"

// TransactionApproved is emitted exactly once per transaction, by whichever
// call site wins the settle race. Downstream consumers (delivery assignment)
// must not assume any particular source.
type TransactionApproved struct {
	TransactionID string
	Reference     string
	ProductID     string
	ProductName   string
	Quantity      int
	Amount        int64
	CustomerEmail string
	OccurredAt    time.Time
}

func (TransactionApproved) EventName() string { return "transaction.approved" }

// TransactionClosed is emitted when a transaction reaches a non-approved
// terminal state.
type TransactionClosed struct {
	TransactionID string
	Reference     string
	Status        string
	OccurredAt    time.Time
}

func (TransactionClosed) EventName() string { return "transaction.closed" }
