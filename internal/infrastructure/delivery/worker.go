// Package delivery reacts to approved transactions by assigning the order
// for shipment. Assignment here is a bookkeeping step; the courier side is
// an external concern.
package delivery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/event"
)

type Assignment struct {
	TransactionID string
	Reference     string
	ProductID     string
	Quantity      int
}

type Worker struct {
	subscriber event.Subscriber
	log        *zap.Logger

	mu          sync.Mutex
	assignments map[string]Assignment
}

func New(subscriber event.Subscriber, logger *zap.Logger) *Worker {
	return &Worker{
		subscriber:  subscriber,
		log:         logger.With(zap.String("component", "delivery_worker")),
		assignments: make(map[string]Assignment),
	}
}

func (w *Worker) Start() {
	w.subscriber.Subscribe(event.TransactionApproved{}.EventName(), w.handleApproved)
}

func (w *Worker) handleApproved(ctx context.Context, e event.Event) error {
	_ = ctx

	evt, ok := e.(event.TransactionApproved)
	if !ok {
		return nil
	}

	w.mu.Lock()
	_, seen := w.assignments[evt.TransactionID]
	if !seen {
		w.assignments[evt.TransactionID] = Assignment{
			TransactionID: evt.TransactionID,
			Reference:     evt.Reference,
			ProductID:     evt.ProductID,
			Quantity:      evt.Quantity,
		}
	}
	w.mu.Unlock()

	if seen {
		w.log.Warn("delivery_already_assigned", zap.String("reference", evt.Reference))
		return nil
	}

	w.log.Info("delivery_assigned",
		zap.String("reference", evt.Reference),
		zap.String("product_id", evt.ProductID),
		zap.Int("quantity", evt.Quantity),
	)
	return nil
}

// Assignments returns a snapshot of everything assigned so far.
func (w *Worker) Assignments() []Assignment {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Assignment, 0, len(w.assignments))
	for _, a := range w.assignments {
		out = append(out, a)
	}
	return out
}
