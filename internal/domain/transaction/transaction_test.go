package transaction

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tr, err := New("tx-1", "TXN-1", "prod-1", "Widget", 3, 100_000, "buyer@example.com")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Status != StatusPending {
		t.Errorf("Status = %q, want PENDING", tr.Status)
	}
	if want := QuoteSubtotal(300_000).Total; tr.Amount != want {
		t.Errorf("Amount = %d, want %d", tr.Amount, want)
	}
	if tr.CreatedAt.IsZero() || tr.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := New("tx", "ref", "p", "n", 0, 100, "a@b.c"); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity: err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := New("tx", "ref", "p", "n", 1, 0, "a@b.c"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero price: err = %v, want ErrInvalidAmount", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	if StatusPending.Terminal() {
		t.Error("PENDING must not be terminal")
	}
	for _, s := range []Status{StatusApproved, StatusDeclined, StatusError, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestMapProcessorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Status
	}{
		{"APPROVED", StatusApproved},
		{"DECLINED", StatusDeclined},
		{"VOIDED", StatusCancelled},
		{"ERROR", StatusError},
		{"SOMETHING_NEW", StatusError},
		{"", StatusError},
	}
	for _, tt := range tests {
		if got := MapProcessorStatus(tt.in); got != tt.want {
			t.Errorf("MapProcessorStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestClone(t *testing.T) {
	t.Parallel()

	orig, err := New("tx-1", "TXN-1", "p", "n", 1, 100, "a@b.c")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clone := orig.Clone()
	clone.Status = StatusApproved
	if orig.Status != StatusPending {
		t.Error("mutating the clone changed the original")
	}
}
