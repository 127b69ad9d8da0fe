// Package sweep is the fallback path for transactions stuck PENDING: the
// synchronous response was lost or ambiguous and the webhook never arrived.
// It polls the processor's side-effect-free status endpoint and settles any
// verdict through the same primitive the other two call sites use.
package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/event"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/payment"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/transaction"
)

type Sweeper struct {
	repo       transaction.Repository
	gateway    payment.Gateway
	publisher  event.Publisher
	interval   time.Duration
	staleAfter time.Duration
	limit      int
	log        *zap.Logger
}

func New(
	repo transaction.Repository,
	gateway payment.Gateway,
	publisher event.Publisher,
	interval, staleAfter time.Duration,
	limit int,
	logger *zap.Logger,
) *Sweeper {
	if limit <= 0 {
		limit = 4
	}
	return &Sweeper{
		repo:       repo,
		gateway:    gateway,
		publisher:  publisher,
		interval:   interval,
		staleAfter: staleAfter,
		limit:      limit,
		log:        logger.With(zap.String("component", "pending_sweeper")),
	}
}

// Start runs the sweep loop until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.log.Warn("sweep_failed", zap.Error(err))
				}
			}
		}
	}()
}

// Sweep polls every stale PENDING transaction once and settles those the
// processor reports terminal. Returns how many were settled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	stale, err := s.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var settled atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, t := range stale {
		if t.ExternalTransactionID == "" {
			// The charge was never acknowledged by the processor; there
			// is nothing to poll. Left for manual review.
			s.log.Warn("sweep_no_external_id", zap.String("reference", t.Reference))
			continue
		}

		g.Go(func() error {
			status, err := s.gateway.QueryStatus(gctx, t.ExternalTransactionID)
			if err != nil {
				// Safe to retry on the next sweep.
				s.log.Warn("sweep_query_failed",
					zap.String("reference", t.Reference),
					zap.Error(err),
				)
				return nil
			}
			if !status.Terminal() {
				return nil
			}

			verdict := transaction.MapProcessorStatus(string(status))
			res, err := s.repo.Settle(gctx, t.Reference, verdict, t.ExternalTransactionID)
			if err != nil {
				if errors.Is(err, transaction.ErrTerminalState) {
					// A webhook landed between the listing and this settle.
					return nil
				}
				s.log.Error("sweep_settle_failed",
					zap.String("reference", t.Reference),
					zap.String("verdict", string(verdict)),
					zap.Error(err),
				)
				return nil
			}
			if !res.Changed {
				return nil
			}

			settled.Add(1)
			s.log.Info("sweep_settled",
				zap.String("reference", t.Reference),
				zap.String("status", string(res.Transaction.Status)),
			)
			s.publishSettled(gctx, res)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(settled.Load()), err
	}
	return int(settled.Load()), nil
}

func (s *Sweeper) publishSettled(ctx context.Context, res *transaction.SettleResult) {
	if s.publisher == nil {
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
		s.log.Warn("event_publish_failed",
			zap.String("event", e.EventName()),
			zap.String("reference", t.Reference),
			zap.Error(err),
		)
	}
}
