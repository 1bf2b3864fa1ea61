// Package pipeline drives webhook intake end to end: decode the delivery,
// admit each record exactly once, normalize it into a domain event and hand
// the event to the signal components.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-launch-signals/internal/archive"
	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/helius"
	"solana-launch-signals/internal/normalize"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/signals"
	"solana-launch-signals/internal/storage"
)

// Drop reasons recorded by the intake loop before a record reaches the
// normalizer.
const (
	dropBadRecord   = "bad_record"
	dropNoSignature = "no_signature"
)

// Receipt summarizes one webhook delivery. It is echoed to the caller in the
// acknowledgement body, so the field names are part of the wire contract.
type Receipt struct {
	// Processed counts records admitted for processing, including records
	// that turned out not to be pipeline events.
	Processed int `json:"processed"`
	// Duplicates counts records rejected because their signature had
	// already been admitted, typically webhook redelivery.
	Duplicates int `json:"duplicates"`
	// MigrationsDetected counts normalized migration events.
	MigrationsDetected int `json:"migrations_detected"`
	// SignalsGenerated counts signals created by this delivery.
	SignalsGenerated int `json:"signals_generated"`
}

// Pipeline processes webhook deliveries. Record-level failures are absorbed
// so that one bad record never costs the rest of the batch; only storage
// failures abort a delivery, and those are retriable.
type Pipeline struct {
	idempotency storage.IdempotencyStore
	normalizer  *normalize.Normalizer
	generator   *signals.Generator
	tracker     *signals.Tracker
	archive     *archive.Writer
	logger      *log.Logger
}

// Options configures a Pipeline.
type Options struct {
	Idempotency storage.IdempotencyStore
	Generator   *signals.Generator
	Tracker     *signals.Tracker

	// Archive receives curve trades and migrations for the history store.
	// Optional; nil disables archiving.
	Archive *archive.Writer

	// Logger defaults to the standard logger.
	Logger *log.Logger
}

// New creates a Pipeline from the given options.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Pipeline{
		idempotency: opts.Idempotency,
		normalizer:  normalize.New(),
		generator:   opts.Generator,
		tracker:     opts.Tracker,
		archive:     opts.Archive,
		logger:      logger,
	}
}

// Process handles one webhook delivery body and returns the acknowledgement
// receipt. An error wrapping helius.ErrBadPayload means the body itself was
// unusable; any other error is a storage failure and the delivery should be
// retried by the caller.
func (p *Pipeline) Process(ctx context.Context, body []byte) (*Receipt, error) {
	records, err := helius.DecodePayload(body)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{}
	now := time.Now().UnixMilli()

	for _, raw := range records {
		tx, err := helius.DecodeTransaction(raw)
		if err != nil {
			observability.RecordNormalizeDrop(dropBadRecord)
			p.logger.Printf("Skipping undecodable record: %v", err)
			continue
		}
		if tx.Signature == "" {
			observability.RecordNormalizeDrop(dropNoSignature)
			continue
		}

		claimed, err := p.idempotency.Admit(ctx, tx.Signature, now)
		if err != nil {
			return nil, fmt.Errorf("admit record: %w", err)
		}
		if !claimed {
			receipt.Duplicates++
			continue
		}
		receipt.Processed++

		ev, err := p.normalizer.NormalizeTransaction(tx)
		if err != nil {
			if !errors.Is(err, normalize.ErrNotRelevant) {
				p.logger.Printf("Dropping record %s: %v", tx.Signature, err)
			}
			continue
		}
		observability.RecordEventNormalized(ev.Type().String())

		if err := p.dispatch(ctx, ev, receipt); err != nil {
			return nil, err
		}
	}

	observability.RecordBatch(len(records), receipt.Processed, receipt.Duplicates)
	return receipt, nil
}

// Ingest admits and dispatches one already-normalized event. The live feed
// ingress uses this, having decoded its own wire format; admission goes
// through the same store, so an event seen on both ingress paths is still
// handled once.
func (p *Pipeline) Ingest(ctx context.Context, ev domain.Event) error {
	claimed, err := p.idempotency.Admit(ctx, ev.TransactionID(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("admit event: %w", err)
	}
	if !claimed {
		return nil
	}

	observability.RecordEventNormalized(ev.Type().String())
	return p.dispatch(ctx, ev, &Receipt{})
}

// dispatch routes one normalized event. It returns an error only for storage
// failures; everything else is handled in place.
func (p *Pipeline) dispatch(ctx context.Context, ev domain.Event, receipt *Receipt) error {
	if p.archive != nil {
		p.archive.Record(ev)
	}

	switch ev := ev.(type) {
	case *domain.TokenCreated:
		sig, err := p.generator.OnEvent(ctx, ev)
		if err != nil {
			return fmt.Errorf("handle creation of %s: %w", ev.TokenAddress(), err)
		}
		if sig != nil {
			receipt.SignalsGenerated++
		}

	case *domain.CurveProgress:
		sig, err := p.generator.OnEvent(ctx, ev)
		if err != nil {
			return fmt.Errorf("handle trade on %s: %w", ev.TokenAddress(), err)
		}
		if sig != nil {
			receipt.SignalsGenerated++
		} else {
			// Trades that did not open a signal may still move an
			// already-open one.
			p.tracker.OnCurveProgress(ctx, ev)
		}

	case *domain.Migration:
		receipt.MigrationsDetected++
		if err := p.tracker.OnMigration(ctx, ev); err != nil {
			return fmt.Errorf("handle migration of %s: %w", ev.TokenAddress(), err)
		}
	}

	return nil
}
