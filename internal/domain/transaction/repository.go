package transaction

import (
	"context"
	"time"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/stock"
)

// SettleResult reports what a Settle call did. Changed is false when the
// stored status already matched the verdict (idempotent replay); Movement is
// non-nil only when this call flipped the transaction to APPROVED and the
// stock decrement committed with it.
type SettleResult struct {
	Transaction *Transaction
	Changed     bool
	Movement    *stock.Movement
}

// Repository persists transactions and owns the compare-and-swap status
// transition. Both the synchronous authorization path and the webhook
// reconciler settle through the same primitive, so whichever writes first
// wins and the second writer is a no-op.
type Repository interface {
	// Insert persists a new PENDING transaction. Returns ErrConflict when
	// the reference is already taken.
	Insert(ctx context.Context, t *Transaction) error

	FindByID(ctx context.Context, id string) (*Transaction, error)
	FindByReference(ctx context.Context, reference string) (*Transaction, error)

	// ListStalePending returns PENDING transactions last updated before the
	// cutoff, for the status-poll sweep.
	ListStalePending(ctx context.Context, before time.Time) ([]*Transaction, error)

	// RecordExternalID stores the processor's transaction id on a still
	// PENDING transaction, so the sweep can poll it later. Writes to a
	// terminal transaction are rejected with ErrTerminalState.
	RecordExternalID(ctx context.Context, reference, externalID string) error

	// Settle applies a terminal verdict as one atomic unit: the CAS
	// PENDING→verdict transition plus, for APPROVED, the conditional SALE
	// stock decrement. Either both commit or neither does.
	//
	// Already in the verdict state: Changed=false, no movement, no error.
	// In a different terminal state: ErrTerminalState.
	// APPROVED but stock would go negative: stock.ErrInsufficientStock and
	// the transaction stays PENDING.
	Settle(ctx context.Context, reference string, verdict Status, externalID string) (*SettleResult, error)
}
