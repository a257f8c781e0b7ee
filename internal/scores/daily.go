// internal/scores/daily.go
//
// Daily mode helpers: the UTC date key and the shared seed for that date.

package scores

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DailySeed returns the battle seed shared by every daily run on date,
// derived as HMAC-SHA256(salt, YYYY-MM-DD).
func DailySeed(date time.Time, salt string) int64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	// first 8 bytes, top bit cleared so the seed stays positive in JSON clients
	return int64(binary.BigEndian.Uint64(sum[:8]) >> 1)
}
