package solana

import (
	"crypto/sha256"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// IsValidAddress reports whether s decodes to a 32-byte base58 public key.
func IsValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// DerivePDA derives a Program Derived Address using the Solana algorithm:
// concatenate the seeds with a bump byte, append the program ID and the
// "ProgramDerivedAddress" marker, SHA256, and keep the first bump (searching
// down from 255) whose hash falls off the ed25519 curve.
func DerivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// DeriveBondingCurve derives the pump.fun bonding curve account for a mint.
// Seeds: ["bonding-curve", mint]. Returns "" for malformed input.
func DeriveBondingCurve(mint string) string {
	mintBytes, err := base58.Decode(mint)
	if err != nil || len(mintBytes) != 32 {
		return ""
	}
	programBytes, err := base58.Decode(PumpFunProgram)
	if err != nil {
		return ""
	}

	seeds := [][]byte{
		[]byte("bonding-curve"),
		mintBytes,
	}
	return DerivePDA(seeds, programBytes)
}
