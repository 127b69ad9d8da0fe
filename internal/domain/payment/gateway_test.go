package payment

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		number string
		want   bool
	}{
		{"4242424242424242", true},
		{"4242 4242 4242 4242", true},
		{"5555555555554444", true},
		{"4242424242424241", false},
		{"1234", false},
		{"", false},
		{"4242abcd42424242", false},
	}
	for _, tt := range tests {
		if got := ValidNumber(tt.number); got != tt.want {
			t.Errorf("ValidNumber(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}

func TestParseExpiry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		month     string
		year      string
		wantError bool
	}{
		{"12/28", "12", "2028", false},
		{"0129", "01", "2029", false},
		{"1/28", "", "", true},
		{"13-28", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		month, year, err := ParseExpiry(tt.in)
		if tt.wantError {
			if err == nil {
				t.Errorf("ParseExpiry(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseExpiry(%q): %v", tt.in, err)
			continue
		}
		if month != tt.month || year != tt.year {
			t.Errorf("ParseExpiry(%q) = (%q, %q), want (%q, %q)", tt.in, month, year, tt.month, tt.year)
		}
	}
}

func TestDetectBrand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		number string
		want   string
	}{
		{"4242424242424242", "VISA"},
		{"5555555555554444", "MASTERCARD"},
		{"2221000000000009", "MASTERCARD"},
		{"371449635398431", "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := DetectBrand(tt.number); got != tt.want {
			t.Errorf("DetectBrand(%q) = %q, want %q", tt.number, got, tt.want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	retryable := &Error{Op: "tokenize", Reason: "timeout", Retryable: true}
	final := &Error{Op: "authorize", Reason: "unknown outcome", Retryable: false}

	if !IsRetryable(retryable) {
		t.Error("retryable error not reported as retryable")
	}
	if IsRetryable(final) {
		t.Error("authorization error must not be retryable")
	}
	if !IsGatewayError(fmt.Errorf("wrapped: %w", final)) {
		t.Error("wrapped gateway error not detected")
	}
	if IsGatewayError(errors.New("plain")) {
		t.Error("plain error misclassified as gateway error")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error misclassified as retryable")
	}
}
