// Package reconcile applies the payment processor's asynchronous verdicts.
// The webhook contract is one-shot: the sender never retries after a 200, so
// every outcome here, including a forged signature or an unknown reference,
// still ends in a 200 upstream. What varies is only whether state changed.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/event"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/stock"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/transaction"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/wompi"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/pkg/logging"
)

const eventTransactionUpdated = "transaction.updated"

type Service struct {
	repo         transaction.Repository
	publisher    event.Publisher
	eventsSecret string

	events *prometheus.CounterVec // webhook_events_total{outcome}
	tracer trace.Tracer
}

func NewService(
	repo transaction.Repository,
	publisher event.Publisher,
	eventsSecret string,
	events *prometheus.CounterVec,
) *Service {
	return &Service{
		repo:         repo,
		publisher:    publisher,
		eventsSecret: eventsSecret,
		events:       events,
		tracer:       otel.Tracer("tienda.reconcile"),
	}
}

// Outcome is what the transport reports back. Processed is the flag the
// processor reads; the rest is diagnostic.
type Outcome struct {
	Processed    bool
	Reference    string
	Status       transaction.Status
	StockUpdated bool
	Message      string
}

// Handle applies one webhook event. It never returns an error: whatever
// happens internally, the transport answers HTTP 200.
func (s *Service) Handle(ctx context.Context, e wompi.Event) Outcome {
	logger := logging.FromContext(ctx).With(zap.String("use_case", "webhook.reconcile"))

	ctx, span := s.tracer.Start(ctx, "UC.ReconcileWebhook",
		trace.WithAttributes(attribute.String("webhook.event", e.Event)),
	)
	defer span.End()

	if e.Event != eventTransactionUpdated {
		s.count("ignored_event")
		return Outcome{Processed: false, Message: "event received but not processed"}
	}

	// A bad signature is discarded without revealing why: no state change,
	// no error to the caller.
	if !wompi.VerifyEvent(e, s.eventsSecret) {
		logger.Warn("webhook_discarded_bad_signature",
			zap.String("reference", e.Data.Transaction.Reference),
		)
		s.count("invalid_signature")
		return Outcome{Processed: false, Message: "event received"}
	}

	reference := e.Data.Transaction.Reference
	span.SetAttributes(attribute.String("transaction.reference", reference))

	// Lookup is by reference, never by the processor's id: the local side
	// may not know the external id yet.
	existing, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			logger.Error("webhook_unknown_reference", zap.String("reference", reference))
			s.count("unknown_reference")
			return Outcome{Processed: false, Reference: reference, Message: "transaction not found"}
		}
		logger.Error("webhook_lookup_failed", zap.String("reference", reference), zap.Error(err))
		s.count("lookup_error")
		return Outcome{Processed: false, Reference: reference, Message: "internal error"}
	}

	externalID := e.Data.Transaction.ID
	if existing.ExternalTransactionID != "" && externalID != "" && existing.ExternalTransactionID != externalID {
		// Policy decision: a mismatched processor id is logged, not
		// rejected; the reference remains the correlation key.
		logger.Warn("webhook_external_id_mismatch",
			zap.String("reference", reference),
			zap.String("stored_external_id", existing.ExternalTransactionID),
			zap.String("event_external_id", externalID),
		)
	}

	verdict := transaction.MapProcessorStatus(e.Data.Transaction.Status)
	if existing.Status == verdict {
		s.count("replay")
		return Outcome{
			Processed: true,
			Reference: reference,
			Status:    existing.Status,
			Message:   "status already applied",
		}
	}

	res, err := s.repo.Settle(ctx, reference, verdict, externalID)
	switch {
	case errors.Is(err, transaction.ErrTerminalState):
		// Terminal states never get overwritten; a second, different
		// verdict for the same reference is an anomaly worth flagging.
		logger.Error("webhook_terminal_conflict",
			zap.String("reference", reference),
			zap.String("stored_status", string(existing.Status)),
			zap.String("event_status", e.Data.Transaction.Status),
		)
		s.count("terminal_conflict")
		return Outcome{Processed: false, Reference: reference, Status: existing.Status, Message: "transaction already settled"}
	case errors.Is(err, stock.ErrInsufficientStock):
		logger.Error("webhook_stock_rejected",
			zap.String("reference", reference),
			zap.Error(err),
		)
		s.count("insufficient_stock")
		return Outcome{Processed: false, Reference: reference, Status: existing.Status, Message: "stock adjustment rejected"}
	case err != nil:
		logger.Error("webhook_settle_failed", zap.String("reference", reference), zap.Error(err))
		s.count("settle_error")
		return Outcome{Processed: false, Reference: reference, Message: "internal error"}
	}

	s.publishSettled(ctx, logger, res)
	s.count("applied")

	logger.Info("webhook_applied",
		zap.String("reference", reference),
		zap.String("status", string(res.Transaction.Status)),
		zap.Bool("stock_updated", res.Movement != nil),
	)
	return Outcome{
		Processed:    true,
		Reference:    reference,
		Status:       res.Transaction.Status,
		StockUpdated: res.Movement != nil,
		Message:      "webhook processed",
	}
}

func (s *Service) publishSettled(ctx context.Context, logger *zap.Logger, res *transaction.SettleResult) {
	if s.publisher == nil || !res.Changed {
		return
	}
	t := res.Transaction

	var e event.Event
	if t.Status == transaction.StatusApproved {
		e = event.TransactionApproved{
			TransactionID: t.ID,
			Reference:     t.Reference,
			ProductID:     t.ProductID,
			ProductName:   t.ProductName,
			Quantity:      t.Quantity,
			Amount:        t.Amount,
			CustomerEmail: t.CustomerEmail,
			OccurredAt:    time.Now().UTC(),
		}
	} else {
		e = event.TransactionClosed{
			TransactionID: t.ID,
			Reference:     t.Reference,
			Status:        string(t.Status),
			OccurredAt:    time.Now().UTC(),
		}
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		logger.Warn("event_publish_failed",
			zap.String("event", e.EventName()),
			zap.String("reference", t.Reference),
			zap.Error(err),
		)
	}
}

func (s *Service) count(outcome string) {
	if s.events != nil {
		s.events.WithLabelValues(outcome).Inc()
	}
}
