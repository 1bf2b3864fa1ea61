package solana

import "testing"

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"wrapped SOL mint", WSOLMint, true},
		{"USDC mint", USDCMint, true},
		{"pump.fun program", PumpFunProgram, true},
		{"empty", "", false},
		{"too short", "abc", false},
		{"invalid base58 chars", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", false},
		{"valid base58 wrong length", "3yZe7d", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidAddress(tt.addr); got != tt.want {
				t.Errorf("IsValidAddress(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestDeriveBondingCurve(t *testing.T) {
	mint := "So11111111111111111111111111111111111111112"

	curve := DeriveBondingCurve(mint)
	if curve == "" {
		t.Fatal("DeriveBondingCurve() returned empty for a well-formed mint")
	}
	if !IsValidAddress(curve) {
		t.Errorf("DeriveBondingCurve() = %q, not a valid address", curve)
	}

	// Derivation is deterministic
	again := DeriveBondingCurve(mint)
	if curve != again {
		t.Errorf("DeriveBondingCurve() not deterministic: %s != %s", curve, again)
	}

	// Different mints derive different curves
	other := DeriveBondingCurve(USDCMint)
	if other == curve {
		t.Error("different mints should derive different curve accounts")
	}
}

func TestDeriveBondingCurve_MalformedMint(t *testing.T) {
	if got := DeriveBondingCurve("not-base58!!"); got != "" {
		t.Errorf("DeriveBondingCurve() = %q, want empty for malformed mint", got)
	}
	if got := DeriveBondingCurve(""); got != "" {
		t.Errorf("DeriveBondingCurve() = %q, want empty for empty mint", got)
	}
}

func TestIsCommonMint(t *testing.T) {
	if !IsCommonMint(WSOLMint) || !IsCommonMint(USDCMint) || !IsCommonMint(USDTMint) {
		t.Error("settlement and stable mints should be common")
	}
	if IsCommonMint("AbCdEfTokenMint1111111111111111111111pump") {
		t.Error("launch token should not be common")
	}
}

func TestIsPoolProgram(t *testing.T) {
	for _, id := range []string{RaydiumAMMV4Program, RaydiumCLMMProgram, PumpSwapProgram} {
		if !IsPoolProgram(id) {
			t.Errorf("IsPoolProgram(%q) = false, want true", id)
		}
	}
	if IsPoolProgram(PumpFunProgram) {
		t.Error("the curve program is not a pool venue")
	}
}
