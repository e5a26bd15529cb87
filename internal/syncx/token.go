package syncx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Token is an opaque per-record sync token.
// Format: "<model>_<random128bits-hex>_<unixtime>"
// The random component guarantees uniqueness across all entity types;
// the trailing unix timestamp makes tokens roughly chronological.
type Token struct {
	Model  string
	Random string
	Unix   int64
}

// NewToken generates a sync token for the given model name at the given time.
func NewToken(model string, now time.Time) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s_%s_%d", model, random, now.UTC().Unix())
}

// ParseToken splits a sync token into its components.
// Model names may themselves contain underscores (loan_repayment), so the
// random and timestamp components are taken from the right.
func ParseToken(s string) (Token, bool) {
	parts := strings.Split(s, "_")
	if len(parts) < 3 {
		return Token{}, false
	}

	unix, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return Token{}, false
	}

	random := parts[len(parts)-2]
	if len(random) != 32 {
		return Token{}, false
	}

	return Token{
		Model:  strings.Join(parts[:len(parts)-2], "_"),
		Random: random,
		Unix:   unix,
	}, true
}

// TokenAfter reports whether token a sorts after token b.
// Delta filtering on "token greater than X" uses plain string comparison,
// matching the checkpoint semantics of the wire protocol.
func TokenAfter(a, b string) bool {
	return a > b
}
