package idhash

import "testing"

func TestComputeSignalID(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		trigger string
		wantLen int // hash length should be 64
	}{
		{
			name:    "typical pump token",
			token:   "AbCdEfTokenMint1111111111111111111111pump",
			trigger: "5sig9k2TxSignature",
			wantLen: 64,
		},
		{
			name:    "empty trigger",
			token:   "AbCdEfTokenMint1111111111111111111111pump",
			trigger: "",
			wantLen: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSignalID(tt.token, tt.trigger)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeSignalID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeSignalID(tt.token, tt.trigger)
			if got != got2 {
				t.Errorf("ComputeSignalID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeSignalID_DifferentInputs(t *testing.T) {
	base := ComputeSignalID("MintA", "Tx1")

	// Different token should produce different hash
	diffToken := ComputeSignalID("MintB", "Tx1")
	if base == diffToken {
		t.Error("Different token should produce different hash")
	}

	// Different trigger should produce different hash
	diffTrigger := ComputeSignalID("MintA", "Tx2")
	if base == diffTrigger {
		t.Error("Different trigger should produce different hash")
	}

	// Swapped fields should produce different hash
	swapped := ComputeSignalID("Tx1", "MintA")
	if base == swapped {
		t.Error("Swapped fields should produce different hash")
	}
}
