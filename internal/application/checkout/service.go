// Package checkout orchestrates a purchase: catalog lookup, fee calculation,
// PENDING persistence, card tokenization and the authorization attempt. The
// synchronous verdict goes through the same settle primitive as the webhook
// reconciler, so the two paths never disagree about who wrote first.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/event"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/payment"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/product"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/stock"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/transaction"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/pkg/logging"
)

const (
	useCaseCheckout      = "checkout.run"
	maxReferenceAttempts = 3
)

// ErrValidation marks a malformed request, rejected before any orchestration
// side effect.
var ErrValidation = errors.New("checkout: validation")

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

type IDGenerator interface {
	NewID() string
	NewReference() string
}

type Service struct {
	repo      transaction.Repository
	catalog   product.Catalog
	gateway   payment.Gateway
	ids       IDGenerator
	publisher event.Publisher

	requests  *prometheus.CounterVec   // usecase_requests_total{use_case,outcome}
	durations *prometheus.HistogramVec // usecase_duration_seconds{use_case}
	tracer    trace.Tracer
}

func NewService(
	repo transaction.Repository,
	catalog product.Catalog,
	gateway payment.Gateway,
	ids IDGenerator,
	publisher event.Publisher,
	requests *prometheus.CounterVec,
	durations *prometheus.HistogramVec,
) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalog,
		gateway:   gateway,
		ids:       ids,
		publisher: publisher,
		requests:  requests,
		durations: durations,
		tracer:    otel.Tracer("tienda.checkout"),
	}
}

type Input struct {
	ProductID     string
	Quantity      int
	CustomerEmail string
	// Card is optional: without it the transaction is created PENDING and
	// payment is expected to arrive through another channel.
	Card *payment.Card
}

type Result struct {
	TransactionID string
	Reference     string
	Status        transaction.Status
	Amount        int64
	ProductName   string
	Quantity      int
}

// Run executes the purchase flow.
func (s *Service) Run(ctx context.Context, in Input) (_ *Result, err error) {
	logger := logging.FromContext(ctx).With(zap.String("use_case", useCaseCheckout))

	ctx, span := s.tracer.Start(ctx, "UC.Checkout",
		trace.WithAttributes(
			attribute.String("product.id", in.ProductID),
			attribute.Int("quantity", in.Quantity),
		),
	)
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		if s.requests != nil {
			s.requests.WithLabelValues(useCaseCheckout, outcome).Inc()
		}
		if s.durations != nil {
			s.durations.WithLabelValues(useCaseCheckout).Observe(time.Since(start).Seconds())
		}
	}()

	if err := validate(in); err != nil {
		return nil, err
	}

	p, err := s.catalog.FindProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, product.ErrInactive
	}
	// Advisory pre-check only: nothing is reserved here. The binding check
	// is the conditional decrement inside Settle.
	if !p.HasStock(in.Quantity) {
		return nil, stock.ErrInsufficientStock
	}

	entity, err := transaction.New(
		s.ids.NewID(),
		s.ids.NewReference(),
		p.ID,
		p.Name,
		in.Quantity,
		p.Price,
		in.CustomerEmail,
	)
	if err != nil {
		return nil, err
	}

	if err := s.insertWithFreshReference(ctx, entity); err != nil {
		logger.Error("transaction_insert_failed", zap.Error(err))
		return nil, err
	}

	logger.Info("transaction_created",
		zap.String("transaction_id", entity.ID),
		zap.String("reference", entity.Reference),
		zap.Int64("amount_in_cents", entity.Amount),
	)
	span.SetAttributes(attribute.String("transaction.reference", entity.Reference))

	if in.Card == nil {
		return resultFrom(entity), nil
	}

	return s.attemptPayment(ctx, logger, entity, *in.Card)
}

// insertWithFreshReference persists the PENDING transaction, regenerating
// only the reference on a collision. The rest of the entity is kept as is.
func (s *Service) insertWithFreshReference(ctx context.Context, entity *transaction.Transaction) error {
	for attempt := 1; ; attempt++ {
		err := s.repo.Insert(ctx, entity)
		if err == nil {
			return nil
		}
		if !errors.Is(err, transaction.ErrConflict) || attempt >= maxReferenceAttempts {
			return err
		}
		entity.Reference = s.ids.NewReference()
	}
}

func (s *Service) attemptPayment(ctx context.Context, logger *zap.Logger, entity *transaction.Transaction, card payment.Card) (*Result, error) {
	token, err := s.gateway.TokenizeCard(ctx, card)
	if err != nil {
		// Without a token there is nothing to authorize. Tokenization has
		// no external side effect, so ERROR is safe here.
		logger.Warn("tokenize_failed", zap.String("reference", entity.Reference), zap.Error(err))
		if _, serr := s.repo.Settle(ctx, entity.Reference, transaction.StatusError, ""); serr != nil {
			logger.Error("settle_error_failed", zap.String("reference", entity.Reference), zap.Error(serr))
		}
		return nil, err
	}

	auth, err := s.gateway.CreateAuthorization(ctx, payment.AuthorizationRequest{
		Amount:        entity.Amount,
		CustomerEmail: entity.CustomerEmail,
		Reference:     entity.Reference,
		Token:         token.ID,
	})
	if err != nil {
		// The charge may already exist on the processor side. Leave the
		// transaction PENDING; the webhook or the sweep will finish it.
		logger.Warn("authorization_ambiguous",
			zap.String("reference", entity.Reference),
			zap.Error(err),
		)
		return resultFrom(entity), nil
	}

	if !auth.Status.Terminal() {
		if err := s.repo.RecordExternalID(ctx, entity.Reference, auth.ExternalID); err != nil {
			logger.Warn("record_external_id_failed", zap.String("reference", entity.Reference), zap.Error(err))
		}
		entity.ExternalTransactionID = auth.ExternalID
		return resultFrom(entity), nil
	}

	verdict := transaction.MapProcessorStatus(string(auth.Status))
	res, err := s.repo.Settle(ctx, entity.Reference, verdict, auth.ExternalID)
	switch {
	case errors.Is(err, transaction.ErrTerminalState):
		// The webhook won the race with a different verdict. First writer
		// wins; report what is stored.
		current, ferr := s.repo.FindByReference(ctx, entity.Reference)
		if ferr != nil {
			return nil, ferr
		}
		logger.Info("settle_race_lost",
			zap.String("reference", entity.Reference),
			zap.String("status", string(current.Status)),
		)
		return resultFrom(current), nil
	case err != nil:
		logger.Error("settle_failed",
			zap.String("reference", entity.Reference),
			zap.String("verdict", string(verdict)),
			zap.Error(err),
		)
		return nil, err
	}

	s.publishSettled(ctx, logger, res)
	return resultFrom(res.Transaction), nil
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

// Get returns a transaction by id for the status poll.
func (s *Service) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	if id == "" {
		return nil, newValidation("transaction id is required")
	}
	return s.repo.FindByID(ctx, id)
}

func validate(in Input) error {
	if in.ProductID == "" {
		return newValidation("product id is required")
	}
	if in.Quantity <= 0 {
		return newValidation("quantity must be greater than zero")
	}
	if in.CustomerEmail == "" || !strings.Contains(in.CustomerEmail, "@") {
		return newValidation("customer email is required")
	}
	if in.Card != nil {
		if !payment.ValidNumber(in.Card.Number) {
			return newValidation("card number is invalid")
		}
		if in.Card.CVV == "" || in.Card.Holder == "" {
			return newValidation("card holder and cvv are required")
		}
	}
	return nil
}

func resultFrom(t *transaction.Transaction) *Result {
	return &Result{
		TransactionID: t.ID,
		Reference:     t.Reference,
		Status:        t.Status,
		Amount:        t.Amount,
		ProductName:   t.ProductName,
		Quantity:      t.Quantity,
	}
}
