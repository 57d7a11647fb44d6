package service

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewJobID returns "<unix-millis>.<random hex>". The millisecond prefix keeps
// lexicographic order close to creation order; the suffix keeps ids unique
// when several jobs land in the same millisecond.
func NewJobID(now time.Time) string {
	id := uuid.New()
	return strconv.FormatInt(now.UnixMilli(), 10) + "." + hex.EncodeToString(id[:8])
}
