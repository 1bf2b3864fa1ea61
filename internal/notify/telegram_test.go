package notify

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-signals/internal/domain"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestTelegram_SignalCreated(t *testing.T) {
	var gotPath string
	var gotReq sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	tg := NewTelegram("test-token", "-1001234",
		WithTelegramBaseURL(srv.URL),
		WithTelegramLogger(discardLogger()))

	sig := sampleSignal()
	require.NoError(t, tg.SignalCreated(context.Background(), sig))

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "-1001234", gotReq.ChatID)
	assert.Contains(t, gotReq.Text, sig.TokenAddress)
	assert.Contains(t, gotReq.Text, "Entry: 5 sol")
	assert.Contains(t, gotReq.Text, "Market cap: $12000")
	assert.True(t, gotReq.DisableWebPagePreview)
}

func TestTelegram_APIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram("test-token", "nochat",
		WithTelegramBaseURL(srv.URL),
		WithTelegramLogger(discardLogger()))

	err := tg.SignalCreated(context.Background(), sampleSignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestFormatClosed_MigratedWithPnL(t *testing.T) {
	pnl := 20.0
	sig := sampleSignal()
	sig.Status = domain.SignalMigrated
	sig.Outcome = &domain.SignalOutcome{
		ExitPrice:      6.0,
		ExitDenom:      domain.DenomSOL,
		RealizedPnLPct: &pnl,
	}

	text := formatClosed(sig)
	assert.Contains(t, text, "MIGRATED")
	assert.Contains(t, text, "Exit: 6 sol")
	assert.Contains(t, text, "PnL: +20.00%")
}

func TestFormatClosed_Expired(t *testing.T) {
	sig := sampleSignal()
	sig.Status = domain.SignalExpired

	text := formatClosed(sig)
	assert.Contains(t, text, "EXPIRED")
	assert.Contains(t, text, sig.TokenAddress)
}

func TestFormatPrice_NoScientificNotation(t *testing.T) {
	assert.Equal(t, "0.0000052", formatPrice(0.0000052))
	assert.Equal(t, "5", formatPrice(5.0))
}
