package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-signals/internal/archive"
	"solana-launch-signals/internal/config"
	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/filters"
	"solana-launch-signals/internal/helius"
	"solana-launch-signals/internal/signals"
	"solana-launch-signals/internal/storage"
	"solana-launch-signals/internal/storage/memory"
)

const testMint = "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"

type fakeGateway struct {
	snap *domain.MarketSnapshot
}

func (f *fakeGateway) Lookup(context.Context, string) (*domain.MarketSnapshot, error) {
	return f.snap, nil
}

type testPipeline struct {
	p     *Pipeline
	store *memory.SignalStore
	idem  *memory.IdempotencyStore
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	store := memory.NewSignalStore()
	idem := memory.NewIdempotencyStore()
	tp := &testPipeline{store: store, idem: idem}
	tp.p = buildPipeline(store, idem, nil)
	return tp
}

func buildPipeline(store storage.SignalStore, idem storage.IdempotencyStore, arc *archive.Writer) *Pipeline {
	logger := log.New(io.Discard, "", 0)
	gw := &fakeGateway{snap: &domain.MarketSnapshot{
		TokenAddress: testMint,
		PriceUSD:     0.0000052,
		MarketCapUSD: 12000,
		Volume1hUSD:  6000,
		AgeMinutes:   10,
		PairAddress:  "PairAddr111",
		Venue:        "raydium",
		FetchedAt:    time.Now().UnixMilli(),
	}}
	chain := filters.FromConfig(config.FiltersConfig{
		MinMarketCapUSD: 10000,
		MinVolume1hUSD:  5000,
		MaxAgeMins:      30,
	})

	return New(Options{
		Idempotency: idem,
		Generator: signals.NewGenerator(signals.GeneratorOptions{
			Store:   store,
			Gateway: gw,
			Chain:   chain,
			Logger:  logger,
		}),
		Tracker: signals.NewTracker(signals.TrackerOptions{
			Store:   store,
			Gateway: gw,
			Logger:  logger,
		}),
		Archive: arc,
		Logger:  logger,
	})
}

func swapTx(sig, mint string, tokenAmount float64, lamports int64) *helius.Transaction {
	return &helius.Transaction{
		Signature:       sig,
		Type:            "SWAP",
		Source:          "PUMP_FUN",
		Slot:            250000001,
		Timestamp:       1700000000,
		TokenTransfers:  []helius.TokenTransfer{{Mint: mint, TokenAmount: tokenAmount}},
		NativeTransfers: []helius.NativeTransfer{{Amount: lamports}},
	}
}

func migrateTx(sig, mint string, tokenAmount float64, lamports int64) *helius.Transaction {
	tx := swapTx(sig, mint, tokenAmount, lamports)
	tx.Type = "MIGRATE"
	return tx
}

func payload(t *testing.T, txs ...*helius.Transaction) []byte {
	t.Helper()
	body, err := json.Marshal(txs)
	require.NoError(t, err)
	return body
}

func TestPipeline_QualifyingSwapGeneratesSignal(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	receipt, err := tp.p.Process(ctx, payload(t, swapTx("sig-1", testMint, 2, 10*1e9)))
	require.NoError(t, err)

	assert.Equal(t, 1, receipt.Processed)
	assert.Equal(t, 0, receipt.Duplicates)
	assert.Equal(t, 1, receipt.SignalsGenerated)

	sig, err := tp.store.GetOpenByToken(ctx, testMint)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, sig.EntryPrice, 1e-9)
	assert.Equal(t, domain.DenomSOL, sig.EntryDenom)
	assert.Equal(t, "sig-1", sig.TriggerTx)
}

func TestPipeline_EnvelopePayloadAccepted(t *testing.T) {
	tp := newTestPipeline(t)

	inner := payload(t, swapTx("sig-1", testMint, 2, 10*1e9))
	body := []byte(fmt.Sprintf(`{"webhookID":"wh_1","transactions":%s}`, inner))

	receipt, err := tp.p.Process(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Processed)
	assert.Equal(t, 1, receipt.SignalsGenerated)
}

func TestPipeline_BadPayloadRejected(t *testing.T) {
	tp := newTestPipeline(t)

	_, err := tp.p.Process(context.Background(), []byte(`"not a delivery"`))
	require.ErrorIs(t, err, helius.ErrBadPayload)

	_, err = tp.p.Process(context.Background(), nil)
	require.ErrorIs(t, err, helius.ErrBadPayload)
}

func TestPipeline_RedeliveredBatchSuppressed(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()
	body := payload(t, swapTx("sig-1", testMint, 2, 10*1e9))

	_, err := tp.p.Process(ctx, body)
	require.NoError(t, err)

	receipt, err := tp.p.Process(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, 0, receipt.Processed)
	assert.Equal(t, 1, receipt.Duplicates)
	assert.Equal(t, 0, receipt.SignalsGenerated)

	recent, err := tp.store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1, "redelivery must not produce a second signal")
}

func TestPipeline_MalformedRecordDoesNotAbortBatch(t *testing.T) {
	tp := newTestPipeline(t)

	good := payload(t, swapTx("sig-1", testMint, 2, 10*1e9))
	body := []byte(fmt.Sprintf(`[{"signature":42},%s]`, good[1:len(good)-1]))

	receipt, err := tp.p.Process(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Processed)
	assert.Equal(t, 1, receipt.SignalsGenerated)
}

func TestPipeline_IrrelevantRecordStillCountsProcessed(t *testing.T) {
	tp := newTestPipeline(t)

	tx := swapTx("sig-1", testMint, 2, 10*1e9)
	tx.Source = "JUPITER"

	receipt, err := tp.p.Process(context.Background(), payload(t, tx))
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Processed, "admitted records count even when not pipeline events")
	assert.Equal(t, 0, receipt.SignalsGenerated)
}

func TestPipeline_MissingSignatureNotAdmitted(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	tx := swapTx("", testMint, 2, 10*1e9)
	receipt, err := tp.p.Process(ctx, payload(t, tx))
	require.NoError(t, err)
	assert.Equal(t, 0, receipt.Processed)
	assert.Equal(t, 0, receipt.Duplicates)

	n, err := tp.idem.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipeline_MigrationClosesSignal(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	_, err := tp.p.Process(ctx, payload(t, swapTx("sig-1", testMint, 2, 10*1e9)))
	require.NoError(t, err)

	receipt, err := tp.p.Process(ctx, payload(t, migrateTx("sig-2", testMint, 100, 600*1e9)))
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Processed)
	assert.Equal(t, 1, receipt.MigrationsDetected)
	assert.Equal(t, 0, receipt.SignalsGenerated)

	recent, err := tp.store.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.SignalMigrated, recent[0].Status)
	require.NotNil(t, recent[0].Outcome)
	require.NotNil(t, recent[0].Outcome.RealizedPnLPct)
	assert.InDelta(t, 20.0, *recent[0].Outcome.RealizedPnLPct, 1e-9)
}

func TestPipeline_MixedBatchCounts(t *testing.T) {
	tp := newTestPipeline(t)

	irrelevant := swapTx("sig-b", testMint, 1, 1e9)
	irrelevant.Source = "JUPITER"

	good := payload(t, swapTx("sig-a", testMint, 2, 10*1e9))
	rest := payload(t,
		swapTx("sig-a", testMint, 2, 10*1e9),
		irrelevant,
		migrateTx("sig-c", testMint, 100, 600*1e9),
	)
	body := []byte(fmt.Sprintf(`[%s,{"signature":42},%s]`,
		good[1:len(good)-1], rest[1:len(rest)-1]))

	receipt, err := tp.p.Process(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, 3, receipt.Processed)
	assert.Equal(t, 1, receipt.Duplicates)
	assert.Equal(t, 1, receipt.MigrationsDetected)
	assert.Equal(t, 1, receipt.SignalsGenerated)

	ack, err := json.Marshal(receipt)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"processed":3,"duplicates":1,"migrations_detected":1,"signals_generated":1}`,
		string(ack))
}

func TestPipeline_IngestSharesAdmissionWithWebhook(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	ev := &domain.CurveProgress{
		EventMeta: domain.EventMeta{
			TxSignature: "sig-1",
			Token:       testMint,
			Timestamp:   time.Now().UnixMilli(),
			SlotNumber:  250000001,
		},
		BaseAmount:  2,
		QuoteAmount: 10,
	}
	require.NoError(t, tp.p.Ingest(ctx, ev))

	sig, err := tp.store.GetOpenByToken(ctx, testMint)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, sig.EntryPrice, 1e-9)

	// The same transaction arriving over the webhook is a duplicate.
	receipt, err := tp.p.Process(ctx, payload(t, swapTx("sig-1", testMint, 2, 10*1e9)))
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Duplicates)
	assert.Equal(t, 0, receipt.Processed)
}

type failingAdmitStore struct {
	storage.IdempotencyStore
}

func (f *failingAdmitStore) Admit(context.Context, string, int64) (bool, error) {
	return false, errors.New("connection refused")
}

func TestPipeline_AdmitFailureAbortsDelivery(t *testing.T) {
	store := memory.NewSignalStore()
	p := buildPipeline(store, &failingAdmitStore{memory.NewIdempotencyStore()}, nil)

	receipt, err := p.Process(context.Background(), payload(t, swapTx("sig-1", testMint, 2, 10*1e9)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, helius.ErrBadPayload, "storage failures must stay retriable")
	assert.Nil(t, receipt)
}

type failingInsertStore struct {
	storage.SignalStore
}

func (f *failingInsertStore) InsertIfAbsent(context.Context, *domain.Signal, int64) (bool, error) {
	return false, errors.New("connection refused")
}

func TestPipeline_SignalStoreFailureAbortsDelivery(t *testing.T) {
	p := buildPipeline(&failingInsertStore{memory.NewSignalStore()}, memory.NewIdempotencyStore(), nil)

	_, err := p.Process(context.Background(), payload(t, swapTx("sig-1", testMint, 2, 10*1e9)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, helius.ErrBadPayload)
}

type tradeSink struct {
	mu   sync.Mutex
	rows []*domain.TradeRecord
}

func (s *tradeSink) InsertBatch(_ context.Context, trades []*domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, trades...)
	return nil
}

func (s *tradeSink) GetByToken(context.Context, string, int) ([]*domain.TradeRecord, error) {
	return nil, nil
}

func (s *tradeSink) Count(context.Context) (uint64, error) {
	return 0, nil
}

func (s *tradeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func TestPipeline_TradesReachArchive(t *testing.T) {
	sink := &tradeSink{}
	w := archive.NewWriter(sink, archive.Options{
		BatchSize:     1,
		FlushInterval: 10 * time.Millisecond,
		Logger:        log.New(io.Discard, "", 0),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	p := buildPipeline(memory.NewSignalStore(), memory.NewIdempotencyStore(), w)

	create := &helius.Transaction{
		Signature:      "sig-0",
		Type:           "CREATE",
		Source:         "PUMP_FUN",
		Slot:           250000000,
		Timestamp:      1700000000,
		FeePayer:       "Creator111",
		TokenTransfers: []helius.TokenTransfer{{Mint: testMint, TokenAmount: 1e9}},
	}
	body := payload(t,
		create,
		swapTx("sig-1", testMint, 2, 10*1e9),
		migrateTx("sig-2", testMint, 100, 600*1e9),
	)

	_, err := p.Process(ctx, body)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.count() == 2 },
		2*time.Second, 10*time.Millisecond, "swap and migration should be archived, creation not")
}
