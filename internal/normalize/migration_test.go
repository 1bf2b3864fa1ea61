package normalize

import (
	"testing"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/helius"
	"solana-launch-signals/internal/solana"
)

func migrationTx(programID string) *helius.Transaction {
	tx := pumpTx("MIGRATE")
	tx.TokenTransfers = []helius.TokenTransfer{{Mint: testMint, TokenAmount: 200000000}}
	tx.NativeTransfers = []helius.NativeTransfer{{Amount: 85 * 1e9}}
	tx.Instructions = []helius.Instruction{{ProgramID: programID}}
	return tx
}

func TestNormalizeTransaction_MigrationVenues(t *testing.T) {
	tests := []struct {
		name    string
		program string
		want    domain.Venue
	}{
		{"raydium amm", solana.RaydiumAMMV4Program, domain.VenueRaydiumAMM},
		{"raydium clmm", solana.RaydiumCLMMProgram, domain.VenueRaydiumCLMM},
		{"pump swap", solana.PumpSwapProgram, domain.VenuePumpSwap},
	}

	n := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := n.NormalizeTransaction(migrationTx(tt.program))
			if err != nil {
				t.Fatalf("NormalizeTransaction() error = %v", err)
			}
			m, ok := ev.(*domain.Migration)
			if !ok {
				t.Fatalf("NormalizeTransaction() = %T, want *domain.Migration", ev)
			}
			if m.DestinationVenue != tt.want {
				t.Errorf("DestinationVenue = %q, want %q", m.DestinationVenue, tt.want)
			}
			if m.BaseAmount != 200000000 || m.QuoteAmount != 85 {
				t.Errorf("amounts = (%v, %v), want (200000000, 85)", m.BaseAmount, m.QuoteAmount)
			}
		})
	}
}

func TestNormalizeTransaction_MigrationTypeAlias(t *testing.T) {
	tx := migrationTx(solana.PumpSwapProgram)
	tx.Type = "MIGRATION"

	n := New()
	ev, err := n.NormalizeTransaction(tx)
	if err != nil {
		t.Fatalf("NormalizeTransaction() error = %v", err)
	}
	if _, ok := ev.(*domain.Migration); !ok {
		t.Fatalf("NormalizeTransaction() = %T, want *domain.Migration", ev)
	}
}

func TestNormalizeTransaction_StructuralMigrationDetection(t *testing.T) {
	// Some payloads arrive typed as SWAP but touch a pool program.
	tx := pumpTx("SWAP")
	tx.TokenTransfers = []helius.TokenTransfer{{Mint: testMint, TokenAmount: 200000000}}
	tx.NativeTransfers = []helius.NativeTransfer{{Amount: 85 * 1e9}}
	tx.AccountKeys = []helius.AccountKey{
		helius.AccountKey(solana.PumpFunProgram),
		helius.AccountKey(solana.RaydiumAMMV4Program),
	}

	n := New()
	ev, err := n.NormalizeTransaction(tx)
	if err != nil {
		t.Fatalf("NormalizeTransaction() error = %v", err)
	}
	m, ok := ev.(*domain.Migration)
	if !ok {
		t.Fatalf("NormalizeTransaction() = %T, want *domain.Migration", ev)
	}
	if m.DestinationVenue != domain.VenueRaydiumAMM {
		t.Errorf("DestinationVenue = %q, want %q", m.DestinationVenue, domain.VenueRaydiumAMM)
	}
}

func TestNormalizeTransaction_RaydiumPoolAddressExtracted(t *testing.T) {
	pool := "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"
	tx := migrationTx(solana.RaydiumAMMV4Program)
	tx.Instructions = []helius.Instruction{{
		ProgramID: solana.RaydiumAMMV4Program,
		Accounts: []string{
			"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
			"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL",
			"11111111111111111111111111111111",
			solana.RaydiumAMMV4Program,
			pool,
			"5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1",
		},
	}}

	n := New()
	ev, err := n.NormalizeTransaction(tx)
	if err != nil {
		t.Fatalf("NormalizeTransaction() error = %v", err)
	}
	m := ev.(*domain.Migration)
	if m.PoolAddress != pool {
		t.Errorf("PoolAddress = %q, want %q", m.PoolAddress, pool)
	}
}

func TestNormalizeTransaction_UnknownPoolProgramIsOther(t *testing.T) {
	tx := pumpTx("MIGRATE")
	tx.TokenTransfers = []helius.TokenTransfer{{Mint: testMint, TokenAmount: 1}}
	tx.NativeTransfers = []helius.NativeTransfer{{Amount: 1e9}}

	n := New()
	ev, err := n.NormalizeTransaction(tx)
	if err != nil {
		t.Fatalf("NormalizeTransaction() error = %v", err)
	}
	m := ev.(*domain.Migration)
	if m.DestinationVenue != domain.VenueOther {
		t.Errorf("DestinationVenue = %q, want %q", m.DestinationVenue, domain.VenueOther)
	}
	if m.PoolAddress != "" {
		t.Errorf("PoolAddress = %q, want empty", m.PoolAddress)
	}
}
