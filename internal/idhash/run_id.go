package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeConfigDigest hashes the JSON encoding of a run configuration.
// Map keys are sorted by encoding/json, so equal configs hash equally.
func ComputeConfigDigest(cfg any) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	hash := sha256.Sum256(raw)
	return hex.EncodeToString(hash[:]), nil
}

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(symbol|fast_tf|slow_tf|first_bar_ms|last_bar_ms|config_digest)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	symbol string,
	fastTF string,
	slowTF string,
	firstBarMs int64,
	lastBarMs int64,
	configDigest string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d|%s",
		symbol,
		fastTF,
		slowTF,
		firstBarMs,
		lastBarMs,
		configDigest,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
