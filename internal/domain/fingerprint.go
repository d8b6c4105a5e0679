package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

// fingerprintSeq is the monotonic counter mixed into every fingerprint
// so that submitting the same intent twice into the same session still
// produces two distinct, dedup-safe OrderRecords.
var fingerprintSeq uint64

// NewFingerprint builds a stable identifier for one OrderRecord by
// hashing the session and intent it belongs to together with the next
// value of a process-wide monotonic sequence.
func NewFingerprint(accountID, intentID string) string {
	seq := atomic.AddUint64(&fingerprintSeq, 1)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", accountID, intentID, seq)))
	return hex.EncodeToString(sum[:16])
}
