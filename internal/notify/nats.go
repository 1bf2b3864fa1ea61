package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/observability"
)

// Default JetStream sink configuration.
const (
	DefaultStreamName    = "SIGNALS"
	DefaultSubjectPrefix = "signals"
	DefaultStreamMaxAge  = 7 * 24 * time.Hour

	natsConnectTimeout = 10 * time.Second
	natsSetupTimeout   = 10 * time.Second
)

// SignalMessage is the wire form of a signal announcement. Consumers subscribe
// to "<prefix>.created.<token>" and "<prefix>.closed.<token>".
type SignalMessage struct {
	ID           string  `json:"id"`
	TokenAddress string  `json:"token_address"`
	TriggerTx    string  `json:"trigger_tx"`
	Status       string  `json:"status"`
	EntryPrice   float64 `json:"entry_price"`
	EntryDenom   string  `json:"entry_denom"`

	EntryPriceUSD *float64 `json:"entry_price_usd,omitempty"`
	MarketCapUSD  *float64 `json:"market_cap_usd,omitempty"`
	Volume1hUSD   *float64 `json:"volume_1h_usd,omitempty"`
	ChartURL      *string  `json:"chart_url,omitempty"`

	ExitPrice      *float64 `json:"exit_price,omitempty"`
	ExitDenom      string   `json:"exit_denom,omitempty"`
	RealizedPnLPct *float64 `json:"realized_pnl_pct,omitempty"`

	CreatedAt   int64 `json:"created_at"`
	PublishedAt int64 `json:"published_at"`
}

// MessageFromSignal converts a signal to its wire form.
func MessageFromSignal(sig *domain.Signal) *SignalMessage {
	msg := &SignalMessage{
		ID:            sig.ID,
		TokenAddress:  sig.TokenAddress,
		TriggerTx:     sig.TriggerTx,
		Status:        sig.Status.String(),
		EntryPrice:    sig.EntryPrice,
		EntryDenom:    sig.EntryDenom.String(),
		EntryPriceUSD: sig.EntryPriceUSD,
		MarketCapUSD:  sig.MarketCapUSD,
		Volume1hUSD:   sig.Volume1hUSD,
		ChartURL:      sig.ChartURL,
		CreatedAt:     sig.CreatedAt,
		PublishedAt:   time.Now().UnixMilli(),
	}
	if sig.Outcome != nil {
		exit := sig.Outcome.ExitPrice
		msg.ExitPrice = &exit
		msg.ExitDenom = sig.Outcome.ExitDenom.String()
		msg.RealizedPnLPct = sig.Outcome.RealizedPnLPct
	}
	return msg
}

// JetStream publishes signal announcements to a NATS JetStream stream so that
// downstream consumers (dashboards, execution bots) replay them at their own
// pace.
type JetStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
	prefix string
	maxAge time.Duration
	logger *log.Logger
}

var _ Notifier = (*JetStream)(nil)

// JetStreamOption configures JetStream.
type JetStreamOption func(*JetStream)

// WithStreamName overrides the stream name.
func WithStreamName(name string) JetStreamOption {
	return func(j *JetStream) {
		if name != "" {
			j.stream = name
		}
	}
}

// WithSubjectPrefix overrides the subject prefix.
func WithSubjectPrefix(prefix string) JetStreamOption {
	return func(j *JetStream) {
		if prefix != "" {
			j.prefix = prefix
		}
	}
}

// WithStreamMaxAge overrides how long announcements are retained.
func WithStreamMaxAge(maxAge time.Duration) JetStreamOption {
	return func(j *JetStream) {
		if maxAge > 0 {
			j.maxAge = maxAge
		}
	}
}

// WithJetStreamLogger sets the diagnostic logger.
func WithJetStreamLogger(logger *log.Logger) JetStreamOption {
	return func(j *JetStream) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// NewJetStream connects to NATS and ensures the signal stream exists.
func NewJetStream(url string, opts ...JetStreamOption) (*JetStream, error) {
	j := &JetStream{
		stream: DefaultStreamName,
		prefix: DefaultSubjectPrefix,
		maxAge: DefaultStreamMaxAge,
		logger: log.New(os.Stdout, "[notify] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(j)
	}

	nc, err := nats.Connect(url,
		nats.Name("launch-signals"),
		nats.Timeout(natsConnectTimeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	j.nc = nc
	j.js = js
	if err := j.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	j.logger.Printf("NATS sink ready: stream=%s prefix=%s", j.stream, j.prefix)
	return j, nil
}

// ensureStream creates the stream when it does not exist yet.
func (j *JetStream) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), natsSetupTimeout)
	defer cancel()

	if _, err := j.js.Stream(ctx, j.stream); err == nil {
		return nil
	}

	_, err := j.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        j.stream,
		Description: "Token launch signal announcements",
		Subjects:    []string{j.prefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      j.maxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", j.stream, err)
	}

	j.logger.Printf("Created JetStream stream %s", j.stream)
	return nil
}

// SignalCreated implements Notifier.
func (j *JetStream) SignalCreated(ctx context.Context, sig *domain.Signal) error {
	return j.publish(ctx, j.prefix+".created."+sig.TokenAddress, sig)
}

// SignalClosed implements Notifier.
func (j *JetStream) SignalClosed(ctx context.Context, sig *domain.Signal) error {
	return j.publish(ctx, j.prefix+".closed."+sig.TokenAddress, sig)
}

func (j *JetStream) publish(ctx context.Context, subject string, sig *domain.Signal) error {
	data, err := json.Marshal(MessageFromSignal(sig))
	if err != nil {
		return fmt.Errorf("marshal signal %s: %w", sig.ID, err)
	}

	if _, err := j.js.Publish(ctx, subject, data); err != nil {
		observability.RecordNotification("nats", "error")
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	observability.RecordNotification("nats", "ok")
	return nil
}

// Close closes the NATS connection.
func (j *JetStream) Close() error {
	if j.nc != nil {
		j.nc.Close()
	}
	return nil
}
