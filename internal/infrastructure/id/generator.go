package id

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator { return &UUIDGenerator{} }

func (g *UUIDGenerator) NewID() string { return uuid.NewString() }

// NewReference builds the correlation key shared with the payment processor:
// a TXN prefix, the creation instant in milliseconds, and a short random
// suffix. Globally unique for the lifetime of the system; collisions are
// handled by the caller regenerating the reference.
func (g *UUIDGenerator) NewReference() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return "TXN-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + suffix
}
