package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewToken generates an opaque per-message tracking token derived from the
// recipient, the send instant and fresh randomness. 16 hex characters keep
// the collision probability negligible at campaign scale.
func NewToken(identity, recipient string) string {
	raw := fmt.Sprintf("%s|%s|%s|%s", identity, recipient, time.Now().Format(time.RFC3339Nano), uuid.NewString())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}
