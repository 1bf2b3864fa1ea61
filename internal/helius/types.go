package helius

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Transaction is one enhanced transaction record as delivered by a Helius
// webhook. Only the fields the pipeline reads are modeled; everything else
// in the record is ignored.
type Transaction struct {
	Signature       string           `json:"signature"`
	Type            string           `json:"type"`   // CREATE, SWAP, MIGRATE, ...
	Source          string           `json:"source"` // PUMP_FUN for launch platform activity
	Slot            int64            `json:"slot"`
	Timestamp       int64            `json:"timestamp"` // Unix seconds
	FeePayer        string           `json:"feePayer"`
	Description     string           `json:"description"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	AccountData     []AccountData    `json:"accountData"`
	AccountKeys     []AccountKey     `json:"accountKeys"`
	Instructions    []Instruction    `json:"instructions"`
}

// TokenTransfer is one SPL token movement, amounts in UI units.
type TokenTransfer struct {
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
}

// NativeTransfer is one SOL movement, amount in lamports.
type NativeTransfer struct {
	Amount          int64  `json:"amount"`
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
}

// AccountData is the per-account balance delta block.
type AccountData struct {
	Account             string               `json:"account"`
	NativeBalanceChange int64                `json:"nativeBalanceChange"`
	TokenBalanceChanges []TokenBalanceChange `json:"tokenBalanceChanges"`
}

// TokenBalanceChange is an SPL balance delta with a raw integer amount.
type TokenBalanceChange struct {
	Mint           string         `json:"mint"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

// RawTokenAmount carries a raw integer amount plus its decimal scale. The
// amount arrives as a string to avoid upstream precision loss.
type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int    `json:"decimals"`
}

// Float converts the raw amount to absolute UI units. Returns false when the
// amount is missing or not an integer string.
func (r RawTokenAmount) Float() (float64, bool) {
	if r.TokenAmount == "" {
		return 0, false
	}
	raw, err := strconv.ParseInt(r.TokenAmount, 10, 64)
	if err != nil {
		return 0, false
	}
	return math.Abs(float64(raw)) / math.Pow(10, float64(r.Decimals)), true
}

// Instruction is a top-level instruction reference.
type Instruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
}

// AccountKey tolerates both wire forms Helius uses: a bare pubkey string or
// an object carrying a pubkey field.
type AccountKey string

// UnmarshalJSON implements json.Unmarshaler.
func (k *AccountKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = AccountKey(s)
		return nil
	}

	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*k = AccountKey(obj.Pubkey)
	return nil
}
