// Package wsfeed ingests launch platform activity over a live WebSocket feed.
// It is the alternative ingress for environments without a public webhook
// URL: stream messages are mapped to the same domain events the webhook path
// produces and handed to the same pipeline.
package wsfeed

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/solana"
)

// Default feed configuration.
const (
	DefaultFeedURL           = "wss://pumpportal.fun/api/data"
	DefaultReconnectDelay    = time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultReadTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultMaxTrackedTokens  = 512
)

// Drop reasons recorded while decoding feed messages.
const (
	dropBadMessage  = "bad_message"
	dropNoSignature = "no_signature"
	dropNoToken     = "no_token"
	dropBadAmounts  = "bad_amounts"
)

// Sink receives the events the feed produces. *pipeline.Pipeline satisfies it.
type Sink interface {
	Ingest(ctx context.Context, ev domain.Event) error
}

// Feed consumes a PumpPortal-style WebSocket stream. On connect it subscribes
// to token creations and migrations; trades are subscribed per token as
// creations come in, bounded by MaxTrackedTokens with the oldest dropped
// first.
type Feed struct {
	url               string
	sink              Sink
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	pingInterval      time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	maxTracked        int
	logger            *log.Logger

	// writeMu serializes frame writes; pings and trade subscriptions come
	// from different goroutines.
	writeMu sync.Mutex

	// Tracked mints in subscription order. Touched only by the consume
	// goroutine.
	tracked    map[string]struct{}
	trackOrder []string
}

// Options configures a Feed.
type Options struct {
	// URL defaults to DefaultFeedURL.
	URL string

	// Sink is required.
	Sink Sink

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	// MaxTrackedTokens bounds per-token trade subscriptions.
	MaxTrackedTokens int

	Logger *log.Logger
}

// New creates a Feed from the given options.
func New(opts Options) *Feed {
	f := &Feed{
		url:               opts.URL,
		sink:              opts.Sink,
		reconnectDelay:    opts.ReconnectDelay,
		maxReconnectDelay: opts.MaxReconnectDelay,
		pingInterval:      opts.PingInterval,
		readTimeout:       opts.ReadTimeout,
		writeTimeout:      opts.WriteTimeout,
		maxTracked:        opts.MaxTrackedTokens,
		logger:            opts.Logger,
		tracked:           make(map[string]struct{}),
	}
	if f.url == "" {
		f.url = DefaultFeedURL
	}
	if f.reconnectDelay <= 0 {
		f.reconnectDelay = DefaultReconnectDelay
	}
	if f.maxReconnectDelay <= 0 {
		f.maxReconnectDelay = DefaultMaxReconnectDelay
	}
	if f.pingInterval <= 0 {
		f.pingInterval = DefaultPingInterval
	}
	if f.readTimeout <= 0 {
		f.readTimeout = DefaultReadTimeout
	}
	if f.writeTimeout <= 0 {
		f.writeTimeout = DefaultWriteTimeout
	}
	if f.maxTracked <= 0 {
		f.maxTracked = DefaultMaxTrackedTokens
	}
	if f.logger == nil {
		f.logger = log.New(os.Stdout, "[wsfeed] ", log.LstdFlags)
	}
	return f
}

// Run connects and consumes the stream until ctx is cancelled, reconnecting
// with exponential backoff after drops. The returned error is ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	delay := f.reconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := f.dial(ctx)
		if err != nil {
			f.logger.Printf("Feed connect failed: %v (retrying in %s)", err, delay)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = nextDelay(delay, f.maxReconnectDelay)
			continue
		}

		if err := f.subscribe(conn); err != nil {
			conn.Close()
			f.logger.Printf("Feed subscribe failed: %v (retrying in %s)", err, delay)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = nextDelay(delay, f.maxReconnectDelay)
			continue
		}

		f.logger.Printf("Feed connected to %s", f.url)
		delay = f.reconnectDelay

		err = f.consume(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		observability.RecordFeedReconnect()
		f.logger.Printf("Feed disconnected: %v (reconnecting in %s)", err, delay)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay = nextDelay(delay, f.maxReconnectDelay)
	}
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	return conn, err
}

// subscriptionRequest is the feed's subscribe/unsubscribe frame.
type subscriptionRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// subscribe requests creations and migrations, plus trades for every mint
// still tracked from before a reconnect.
func (f *Feed) subscribe(conn *websocket.Conn) error {
	if err := f.writeJSON(conn, subscriptionRequest{Method: "subscribeNewToken"}); err != nil {
		return err
	}
	if err := f.writeJSON(conn, subscriptionRequest{Method: "subscribeMigration"}); err != nil {
		return err
	}
	if len(f.trackOrder) > 0 {
		return f.writeJSON(conn, subscriptionRequest{Method: "subscribeTokenTrade", Keys: f.trackOrder})
	}
	return nil
}

func (f *Feed) writeJSON(conn *websocket.Conn, v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
	return conn.WriteJSON(v)
}

// consume reads the stream until the connection drops or ctx is cancelled.
func (f *Feed) consume(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.keepAlive(pingCtx, conn)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(ctx, conn, raw)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// keepAlive pings on an interval and closes the connection when ctx ends so
// the blocked reader returns promptly.
func (f *Feed) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			f.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// feedMessage is one stream record. The same shape serves creations, trades
// and migrations; txType tells them apart.
type feedMessage struct {
	Signature             string  `json:"signature"`
	Mint                  string  `json:"mint"`
	TxType                string  `json:"txType"` // create, buy, sell, migrate
	TraderPublicKey       string  `json:"traderPublicKey"`
	InitialBuy            float64 `json:"initialBuy"`
	SolAmount             float64 `json:"solAmount"`
	TokenAmount           float64 `json:"tokenAmount"`
	MarketCapSol          float64 `json:"marketCapSol"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	Pool                  string  `json:"pool"`

	// Message is set on subscription acknowledgements, which carry no event.
	Message string `json:"message"`
}

func (f *Feed) handleMessage(ctx context.Context, conn *websocket.Conn, raw []byte) {
	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		observability.RecordNormalizeDrop(dropBadMessage)
		f.logger.Printf("Skipping undecodable feed message: %v", err)
		return
	}
	if msg.Message != "" && msg.TxType == "" {
		return
	}

	ev, ok := f.eventFromMessage(&msg)
	if !ok {
		return
	}

	if created, isCreate := ev.(*domain.TokenCreated); isCreate {
		f.trackTrades(conn, created.TokenAddress())
	}

	if err := f.sink.Ingest(ctx, ev); err != nil {
		f.logger.Printf("Dropping feed event %s: %v", ev.TransactionID(), err)
	}
}

// eventFromMessage maps one stream record to a domain event. The feed carries
// no slot or timestamp, so events are stamped with arrival time.
func (f *Feed) eventFromMessage(msg *feedMessage) (domain.Event, bool) {
	if msg.Signature == "" {
		observability.RecordNormalizeDrop(dropNoSignature)
		return nil, false
	}
	if msg.Mint == "" || solana.IsCommonMint(msg.Mint) || !solana.IsValidAddress(msg.Mint) {
		observability.RecordNormalizeDrop(dropNoToken)
		return nil, false
	}

	meta := domain.EventMeta{
		TxSignature: msg.Signature,
		Token:       msg.Mint,
		Timestamp:   time.Now().UnixMilli(),
	}

	switch msg.TxType {
	case "create":
		return &domain.TokenCreated{
			EventMeta:           meta,
			CreatorAddress:      msg.TraderPublicKey,
			InitialLiquiditySOL: msg.SolAmount,
		}, true

	case "buy", "sell":
		if msg.TokenAmount <= 0 || msg.SolAmount <= 0 {
			observability.RecordNormalizeDrop(dropBadAmounts)
			return nil, false
		}
		return &domain.CurveProgress{
			EventMeta:              meta,
			BaseAmount:             msg.TokenAmount,
			QuoteAmount:            msg.SolAmount,
			TokenAmountOutstanding: msg.VTokensInBondingCurve,
		}, true

	case "migrate":
		return &domain.Migration{
			EventMeta:        meta,
			DestinationVenue: venueFromPool(msg.Pool),
		}, true
	}

	return nil, false
}

// venueFromPool maps the feed's pool label to a venue.
func venueFromPool(pool string) domain.Venue {
	switch pool {
	case "pump-amm", "pumpswap":
		return domain.VenuePumpSwap
	case "raydium":
		return domain.VenueRaydiumAMM
	case "raydium-clmm":
		return domain.VenueRaydiumCLMM
	}
	return domain.VenueOther
}

// trackTrades subscribes to a mint's trades, unsubscribing the oldest mint
// when the tracked set is full.
func (f *Feed) trackTrades(conn *websocket.Conn, mint string) {
	if _, ok := f.tracked[mint]; ok {
		return
	}

	for len(f.trackOrder) >= f.maxTracked {
		oldest := f.trackOrder[0]
		f.trackOrder = f.trackOrder[1:]
		delete(f.tracked, oldest)
		if err := f.writeJSON(conn, subscriptionRequest{Method: "unsubscribeTokenTrade", Keys: []string{oldest}}); err != nil {
			f.logger.Printf("Unsubscribe %s failed: %v", oldest, err)
		}
	}

	f.tracked[mint] = struct{}{}
	f.trackOrder = append(f.trackOrder, mint)
	if err := f.writeJSON(conn, subscriptionRequest{Method: "subscribeTokenTrade", Keys: []string{mint}}); err != nil {
		f.logger.Printf("Subscribe trades for %s failed: %v", mint, err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
