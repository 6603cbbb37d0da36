package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|sequence|side|entry_time_ms)
// sequence is the 1-based index of the trade within its run.
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	runID string,
	sequence int,
	side string,
	entryTimeMs int64,
) string {
	data := fmt.Sprintf("%s|%d|%s|%d",
		runID,
		sequence,
		side,
		entryTimeMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
