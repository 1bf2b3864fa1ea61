// Package archive streams normalized trade observations into the
// trade-history table for offline analysis. Archival is loss-tolerant: a full
// queue or a failed flush drops records with a counter, never backpressure
// into the intake path.
package archive

import (
	"context"
	"log"
	"time"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/storage"
)

// Default tuning for the writer.
const (
	DefaultBatchSize     = 256
	DefaultFlushInterval = 5 * time.Second
	DefaultQueueCapacity = 4096

	// shutdownFlushTimeout bounds the final flush after cancellation.
	shutdownFlushTimeout = 5 * time.Second
)

// Writer batches curve trades and migrations into the trade store. Records
// enter through Record from any goroutine; one Run loop owns the flushing.
type Writer struct {
	store storage.TradeStore
	queue chan *domain.TradeRecord

	batchSize     int
	flushInterval time.Duration
	logger        *log.Logger
}

// Options contains configuration for creating a Writer.
type Options struct {
	BatchSize     int           // 0 means DefaultBatchSize
	FlushInterval time.Duration // 0 means DefaultFlushInterval
	QueueCapacity int           // 0 means DefaultQueueCapacity
	Logger        *log.Logger
}

// NewWriter creates a new Writer over the given trade store.
func NewWriter(store storage.TradeStore, opts Options) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{
		store:         store,
		queue:         make(chan *domain.TradeRecord, opts.QueueCapacity),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        logger,
	}
}

// Record queues a curve trade or migration for archival. Other event types
// are ignored. When the queue is full the record is dropped and counted.
func (w *Writer) Record(ev domain.Event) {
	rec, ok := recordFromEvent(ev)
	if !ok {
		return
	}
	select {
	case w.queue <- rec:
	default:
		observability.RecordArchiveDropped(1)
	}
}

// Run flushes queued records until ctx is cancelled, by size or on a ticker.
// On cancellation the queue is drained and flushed once more with a bounded
// timeout.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]*domain.TradeRecord, 0, w.batchSize)
	for {
		select {
		case rec := <-w.queue:
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				batch = w.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = w.flush(ctx, batch)
		case <-ctx.Done():
			batch = w.drain(batch)
			fctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			w.flush(fctx, batch)
			cancel()
			return
		}
	}
}

// flush writes the batch and returns the emptied slice. A failed write drops
// the batch with a counter.
func (w *Writer) flush(ctx context.Context, batch []*domain.TradeRecord) []*domain.TradeRecord {
	if len(batch) == 0 {
		return batch
	}
	if err := w.store.InsertBatch(ctx, batch); err != nil {
		w.logger.Printf("Archive flush of %d records failed: %v", len(batch), err)
		observability.RecordArchiveDropped(len(batch))
	} else {
		observability.RecordTradesArchived(len(batch))
	}
	return batch[:0]
}

// drain empties whatever the queue still holds into the batch.
func (w *Writer) drain(batch []*domain.TradeRecord) []*domain.TradeRecord {
	for {
		select {
		case rec := <-w.queue:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

// recordFromEvent maps an event to its archive row. Only curve trades and
// migrations carry price points worth keeping.
func recordFromEvent(ev domain.Event) (*domain.TradeRecord, bool) {
	switch e := ev.(type) {
	case *domain.CurveProgress:
		price, _ := e.UnitPrice()
		return &domain.TradeRecord{
			TokenAddress: e.TokenAddress(),
			TxSignature:  e.TransactionID(),
			Slot:         e.Slot(),
			ObservedAt:   e.ObservedAt(),
			EventType:    domain.EventCurveProgress,
			BaseAmount:   e.BaseAmount,
			QuoteAmount:  e.QuoteAmount,
			UnitPrice:    price,
		}, true
	case *domain.Migration:
		price, _ := e.UnitPrice()
		return &domain.TradeRecord{
			TokenAddress: e.TokenAddress(),
			TxSignature:  e.TransactionID(),
			Slot:         e.Slot(),
			ObservedAt:   e.ObservedAt(),
			EventType:    domain.EventMigration,
			BaseAmount:   e.BaseAmount,
			QuoteAmount:  e.QuoteAmount,
			UnitPrice:    price,
			Venue:        e.DestinationVenue.String(),
		}, true
	default:
		return nil, false
	}
}
