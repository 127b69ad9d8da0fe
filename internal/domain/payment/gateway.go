package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
	StatusVoided   Status = "VOIDED"
	StatusError    Status = "ERROR"
)

// Terminal reports whether the processor considers the charge final.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusVoided, StatusError:
		return true
	}
	return false
}

// Card is raw card data supplied by the client. It exists only in flight:
// nothing below the gateway adapter may log or persist Number or CVV.
type Card struct {
	Number      string
	Holder      string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
}

// CardToken is the processor's reference for a tokenized card. Only the
// token and the display metadata come back; the PAN does not.
type CardToken struct {
	ID       string
	Brand    string
	LastFour string
}

type AuthorizationRequest struct {
	Amount        int64
	Currency      string
	CustomerEmail string
	Reference     string
	Token         string
}

type Authorization struct {
	ExternalID string
	Status     Status
}

// Gateway is the payment processor adapter. TokenizeCard and QueryStatus
// have no external side effect and may be retried; CreateAuthorization moves
// money and must never be retried after an ambiguous failure; the caller
// relies on the webhook or the status poll instead.
type Gateway interface {
	TokenizeCard(ctx context.Context, card Card) (*CardToken, error)
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	QueryStatus(ctx context.Context, externalID string) (Status, error)
}

// Error is a gateway failure. Retryable distinguishes the side-effect-free
// operations (tokenize, poll) from an authorization whose outcome is unknown.
type Error struct {
	Op        string
	Reason    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a gateway error that is safe to retry.
func IsRetryable(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// IsGatewayError reports whether err originated in the gateway adapter.
func IsGatewayError(err error) bool {
	var ge *Error
	return errors.As(err, &ge)
}

// ParseExpiry accepts MM/YY or MMYY and returns a zero-padded month and a
// four-digit year.
func ParseExpiry(expiry string) (month, year string, err error) {
	raw := strings.TrimSpace(expiry)
	if idx := strings.Index(raw, "/"); idx >= 0 {
		parts := strings.SplitN(raw, "/", 2)
		if len(parts) == 2 && len(parts[0]) == 2 && len(parts[1]) == 2 {
			return parts[0], "20" + parts[1], nil
		}
	} else if len(raw) == 4 && isDigits(raw) {
		return raw[:2], "20" + raw[2:], nil
	}
	return "", "", fmt.Errorf("payment: invalid expiry %q, expected MM/YY or MMYY", expiry)
}

// ValidNumber runs the Luhn check over a card number, ignoring spaces.
func ValidNumber(number string) bool {
	clean := strings.ReplaceAll(number, " ", "")
	if len(clean) < 13 || len(clean) > 19 || !isDigits(clean) {
		return false
	}

	sum := 0
	double := false
	for i := len(clean) - 1; i >= 0; i-- {
		digit := int(clean[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

// DetectBrand guesses the card network from the leading digits.
func DetectBrand(number string) string {
	clean := strings.ReplaceAll(number, " ", "")
	switch {
	case strings.HasPrefix(clean, "4"):
		return "VISA"
	case len(clean) >= 2 && clean[0] == '5' && clean[1] >= '1' && clean[1] <= '5',
		len(clean) >= 2 && clean[0] == '2' && clean[1] >= '2' && clean[1] <= '7':
		return "MASTERCARD"
	default:
		return "UNKNOWN"
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
