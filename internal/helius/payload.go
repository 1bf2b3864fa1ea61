package helius

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadPayload is returned when a webhook body matches neither accepted
// wire shape.
var ErrBadPayload = errors.New("unrecognized payload shape")

// DecodePayload splits a webhook body into individual transaction records.
// Two wire shapes exist and are told apart by structure, not by a version
// flag: a bare JSON array of records, or an object wrapping the array under
// "transactions". Anything else is rejected with ErrBadPayload.
//
// Records are returned raw so that one malformed record cannot abort the
// rest of the batch; callers decode them one at a time.
func DecodePayload(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBadPayload)
	}

	switch trimmed[0] {
	case '[':
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return records, nil

	case '{':
		var envelope struct {
			WebhookID    string            `json:"webhookID"`
			Transactions []json.RawMessage `json:"transactions"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return envelope.Transactions, nil
	}

	return nil, ErrBadPayload
}

// DecodeTransaction decodes a single raw record.
func DecodeTransaction(raw json.RawMessage) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction record: %w", err)
	}
	return &tx, nil
}
