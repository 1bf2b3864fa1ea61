package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/observability"
)

// Default Telegram sink configuration.
const (
	DefaultTelegramBaseURL = "https://api.telegram.org"
	DefaultTelegramRate    = 20 // messages per minute, the per-chat bot limit
	DefaultTelegramTimeout = 10 * time.Second
)

// Telegram announces signals to a chat through the Bot API sendMessage
// method. Sends are paced to stay under the per-chat rate limit.
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *log.Logger
}

var _ Notifier = (*Telegram)(nil)

// TelegramOption configures Telegram.
type TelegramOption func(*Telegram)

// WithTelegramBaseURL overrides the Bot API base URL.
func WithTelegramBaseURL(u string) TelegramOption {
	return func(t *Telegram) {
		t.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTelegramClient sets a custom http.Client.
func WithTelegramClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		t.client = client
	}
}

// WithTelegramRate caps outbound messages per minute.
func WithTelegramRate(perMinute int) TelegramOption {
	return func(t *Telegram) {
		if perMinute > 0 {
			t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// WithTelegramLogger sets the diagnostic logger.
func WithTelegramLogger(logger *log.Logger) TelegramOption {
	return func(t *Telegram) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTelegram creates a Telegram sink for the given bot token and chat.
func NewTelegram(botToken, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  DefaultTelegramBaseURL,
		client:   &http.Client{Timeout: DefaultTelegramTimeout},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/DefaultTelegramRate), 1),
		logger:   log.New(os.Stdout, "[notify] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SignalCreated implements Notifier.
func (t *Telegram) SignalCreated(ctx context.Context, sig *domain.Signal) error {
	return t.send(ctx, formatCreated(sig))
}

// SignalClosed implements Notifier.
func (t *Telegram) SignalClosed(ctx context.Context, sig *domain.Signal) error {
	return t.send(ctx, formatClosed(sig))
}

// sendMessageRequest is the Bot API sendMessage payload.
type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// sendMessageResponse is the Bot API response envelope.
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTelegramTimeout)
	defer cancel()

	if err := t.limiter.Wait(ctx); err != nil {
		observability.RecordNotification("telegram", "throttled")
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := t.baseURL + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		observability.RecordNotification("telegram", "error")
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	var apiResp sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil || !apiResp.OK {
		observability.RecordNotification("telegram", "error")
		if apiResp.Description != "" {
			return fmt.Errorf("telegram send failed (%d): %s", resp.StatusCode, apiResp.Description)
		}
		return fmt.Errorf("telegram send failed with status %d", resp.StatusCode)
	}

	observability.RecordNotification("telegram", "ok")
	return nil
}

func formatCreated(sig *domain.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BUY SIGNAL\n")
	fmt.Fprintf(&b, "Token: %s\n", sig.TokenAddress)
	fmt.Fprintf(&b, "Entry: %s %s\n", formatPrice(sig.EntryPrice), sig.EntryDenom)
	if sig.EntryDenom != domain.DenomUSD && sig.EntryPriceUSD != nil {
		fmt.Fprintf(&b, "Price: $%s\n", formatPrice(*sig.EntryPriceUSD))
	}
	if sig.MarketCapUSD != nil {
		fmt.Fprintf(&b, "Market cap: $%.0f\n", *sig.MarketCapUSD)
	}
	if sig.Volume1hUSD != nil {
		fmt.Fprintf(&b, "Volume 1h: $%.0f\n", *sig.Volume1hUSD)
	}
	if sig.AgeMinutes != nil {
		fmt.Fprintf(&b, "Age: %.0f min\n", *sig.AgeMinutes)
	}
	if sig.ChartURL != nil {
		fmt.Fprintf(&b, "%s\n", *sig.ChartURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatClosed(sig *domain.Signal) string {
	switch sig.Status {
	case domain.SignalMigrated:
		var b strings.Builder
		fmt.Fprintf(&b, "MIGRATED\n")
		fmt.Fprintf(&b, "Token: %s\n", sig.TokenAddress)
		if sig.Outcome != nil {
			fmt.Fprintf(&b, "Exit: %s %s\n", formatPrice(sig.Outcome.ExitPrice), sig.Outcome.ExitDenom)
			if sig.Outcome.RealizedPnLPct != nil {
				fmt.Fprintf(&b, "PnL: %+.2f%%\n", *sig.Outcome.RealizedPnLPct)
			}
		}
		return strings.TrimRight(b.String(), "\n")

	case domain.SignalExpired:
		return fmt.Sprintf("EXPIRED\nToken: %s\nNo migration within the tracking window", sig.TokenAddress)
	}

	return fmt.Sprintf("Signal %s for %s is now %s", sig.ID, sig.TokenAddress, sig.Status)
}

// formatPrice renders a price without scientific notation; launch prices sit
// many decimal places below one.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
