package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/event"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()
	b := New(zap.NewNop())

	var mu sync.Mutex
	var got []string
	handler := func(name string) event.Handler {
		return func(_ context.Context, e event.Event) error {
			mu.Lock()
			got = append(got, name+":"+e.EventName())
			mu.Unlock()
			return nil
		}
	}
	b.Subscribe("transaction.approved", handler("a"))
	b.Subscribe("transaction.approved", handler("b"))

	ctx := context.Background()
	b.Start(ctx)
	defer b.Stop(ctx)

	if err := b.Publish(ctx, event.TransactionApproved{TransactionID: "tx-1", Reference: "TXN-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
}

func TestHandlerPanicDoesNotKillDispatch(t *testing.T) {
	t.Parallel()
	b := New(zap.NewNop())

	var mu sync.Mutex
	var delivered int
	b.Subscribe("transaction.closed", func(_ context.Context, _ event.Event) error {
		panic("boom")
	})
	b.Subscribe("transaction.closed", func(_ context.Context, _ event.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	b.Start(ctx)
	defer b.Stop(ctx)

	for i := 0; i < 2; i++ {
		if err := b.Publish(ctx, event.TransactionClosed{TransactionID: "tx", Status: "DECLINED"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	})
}

func TestHandlerErrorIsSwallowed(t *testing.T) {
	t.Parallel()
	b := New(zap.NewNop())

	var mu sync.Mutex
	var calls int
	b.Subscribe("transaction.approved", func(_ context.Context, _ event.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("handler failure")
	})

	ctx := context.Background()
	b.Start(ctx)
	defer b.Stop(ctx)

	if err := b.Publish(ctx, event.TransactionApproved{TransactionID: "tx-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})
}

func TestPublishNilEventIsNoOp(t *testing.T) {
	t.Parallel()
	b := New(zap.NewNop())
	if err := b.Publish(context.Background(), nil); err != nil {
		t.Errorf("Publish(nil) = %v", err)
	}
}
