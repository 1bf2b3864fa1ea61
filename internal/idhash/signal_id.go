package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSignalID computes a deterministic signal id using SHA256.
// Formula: SHA256(token_address|trigger_tx)
// Returns hex-encoded hash (64 characters).
//
// The id is stable across redeliveries of the triggering transaction, so a
// replayed webhook can never mint a second signal row for the same trigger.
func ComputeSignalID(tokenAddress, triggerTx string) string {
	data := fmt.Sprintf("%s|%s", tokenAddress, triggerTx)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
