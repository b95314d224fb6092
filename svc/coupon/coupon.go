package coupon

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMonthsOfValidity is informational and does not shorten ExpiresAt.
const DefaultMonthsOfValidity = 3

type Coupon struct {
	ID               uuid.UUID
	Code             string
	IsUsed           bool
	UsedAt           *time.Time
	UsedBy           *string
	ExpiresAt        time.Time
	MonthsOfValidity int
	CreatedBy        string
	CreatedAt        time.Time
}

// ValidAt reports whether the coupon can still be redeemed at now.
func (c *Coupon) ValidAt(now time.Time) bool {
	return !c.IsUsed && c.ExpiresAt.After(now)
}

// GenerateCode returns 32 upper-case hex characters from 16 random bytes.
func GenerateCode() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}

// NormalizeCode is applied to every code before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
