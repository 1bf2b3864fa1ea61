package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-signals/internal/domain"
)

func sampleSignal() *domain.Signal {
	priceUSD := 0.0000052
	mcap := 12000.0
	vol := 6000.0
	age := 10.0
	chart := "https://dexscreener.com/solana/PairAddr111"
	return &domain.Signal{
		ID:            "a1b2c3d4e5f6",
		TokenAddress:  "9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump",
		TriggerTx:     "5TestSig",
		Status:        domain.SignalPending,
		EntryPrice:    5.0,
		EntryDenom:    domain.DenomSOL,
		EntryPriceUSD: &priceUSD,
		MarketCapUSD:  &mcap,
		Volume1hUSD:   &vol,
		AgeMinutes:    &age,
		ChartURL:      &chart,
		CreatedAt:     time.Now().UnixMilli(),
		UpdatedAt:     time.Now().UnixMilli(),
	}
}

type recordingNotifier struct {
	created int
	closed  int
	err     error
}

func (r *recordingNotifier) SignalCreated(context.Context, *domain.Signal) error {
	r.created++
	return r.err
}

func (r *recordingNotifier) SignalClosed(context.Context, *domain.Signal) error {
	r.closed++
	return r.err
}

func TestMulti_FansOutToEverySink(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	m := Multi{a, b}

	require.NoError(t, m.SignalCreated(context.Background(), sampleSignal()))
	require.NoError(t, m.SignalClosed(context.Background(), sampleSignal()))

	assert.Equal(t, 1, a.created)
	assert.Equal(t, 1, b.created)
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestMulti_FailureDoesNotShortCircuit(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("sink down")}
	healthy := &recordingNotifier{}
	m := Multi{failing, healthy}

	err := m.SignalCreated(context.Background(), sampleSignal())
	require.Error(t, err)
	assert.Equal(t, 1, healthy.created, "later sinks must still be notified")
}

func TestNoop_AcceptsEverything(t *testing.T) {
	var n Noop
	require.NoError(t, n.SignalCreated(context.Background(), sampleSignal()))
	require.NoError(t, n.SignalClosed(context.Background(), sampleSignal()))
}
