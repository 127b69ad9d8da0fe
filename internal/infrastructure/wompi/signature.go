package wompi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

// IntegritySignature is the anti-tampering signature attached to an
// authorization request: lowercase hex SHA-256 over reference, amount,
// currency and the shared integrity secret, concatenated in that order.
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	var b strings.Builder
	b.WriteString(reference)
	b.WriteString(strconv.FormatInt(amountInCents, 10))
	b.WriteString(currency)
	b.WriteString(secret)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Event is the webhook payload the processor delivers.
type Event struct {
	Event     string         `json:"event"`
	Data      EventData      `json:"data"`
	Timestamp int64          `json:"timestamp"`
	Signature EventSignature `json:"signature"`
}

type EventData struct {
	Transaction EventTransaction `json:"transaction"`
}

type EventTransaction struct {
	ID            string `json:"id"`
	AmountInCents int64  `json:"amount_in_cents"`
	Reference     string `json:"reference"`
	CustomerEmail string `json:"customer_email"`
	Status        string `json:"status"`
}

type EventSignature struct {
	Properties []string `json:"properties"`
	Checksum   string   `json:"checksum"`
}

// EventChecksum recomputes the expected webhook checksum: uppercase hex
// SHA-256 over the values of the declared properties in their declared
// order, followed by the event timestamp and the events secret.
func EventChecksum(e Event, secret string) string {
	var b strings.Builder
	for _, prop := range e.Signature.Properties {
		b.WriteString(e.Data.propertyValue(prop))
	}
	b.WriteString(strconv.FormatInt(e.Timestamp, 10))
	b.WriteString(secret)
	sum := sha256.Sum256([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyEvent checks the declared checksum against the recomputed one. The
// comparison is constant-time; an event with no declared properties or no
// checksum never verifies.
func VerifyEvent(e Event, secret string) bool {
	if len(e.Signature.Properties) == 0 || e.Signature.Checksum == "" {
		return false
	}
	want := EventChecksum(e, secret)
	got := strings.ToUpper(e.Signature.Checksum)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// propertyValue resolves a dotted property path ("transaction.id") against
// the event data the way the processor declares them. Unknown paths resolve
// to the empty string, matching the sender's concatenation rules.
func (d EventData) propertyValue(path string) string {
	switch path {
	case "transaction.id":
		return d.Transaction.ID
	case "transaction.amount_in_cents":
		return strconv.FormatInt(d.Transaction.AmountInCents, 10)
	case "transaction.reference":
		return d.Transaction.Reference
	case "transaction.customer_email":
		return d.Transaction.CustomerEmail
	case "transaction.status":
		return d.Transaction.Status
	default:
		return ""
	}
}
