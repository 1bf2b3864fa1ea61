// Package config loads service configuration from three layers: compiled-in
// defaults, an optional TOML file, and LAUNCHSIG__SECTION__KEY environment
// variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is consulted by Load when no explicit path is given.
const DefaultPath = "config/default.toml"

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Postgres    PostgresConfig    `toml:"postgres"`
	ClickHouse  ClickHouseConfig  `toml:"clickhouse"`
	Idempotency IdempotencyConfig `toml:"idempotency"`
	Signals     SignalsConfig     `toml:"signals"`
	Filters     FiltersConfig     `toml:"filters"`
	Enrichment  EnrichmentConfig  `toml:"enrichment"`
	Telegram    TelegramConfig    `toml:"telegram"`
	NATS        NATSConfig        `toml:"nats"`
	Feed        FeedConfig        `toml:"feed"`
	Archive     ArchiveConfig     `toml:"archive"`
}

type ServerConfig struct {
	BindAddress string   `toml:"bind_address"`
	CORSOrigins []string `toml:"cors_origins"`
}

type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int    `toml:"max_conns"`
}

// ClickHouseConfig is optional. An empty DSN disables the trade archive.
type ClickHouseConfig struct {
	DSN string `toml:"dsn"`
}

type IdempotencyConfig struct {
	RetentionSecs     int `toml:"retention_secs"`
	PruneIntervalSecs int `toml:"prune_interval_secs"`
	CacheCapacity     int `toml:"cache_capacity"`
}

type SignalsConfig struct {
	DedupWindowSecs   int `toml:"dedup_window_secs"`
	ExpiryHorizonSecs int `toml:"expiry_horizon_secs"`
	SweepIntervalSecs int `toml:"sweep_interval_secs"`
}

// FiltersConfig holds quality thresholds for signal generation.
// MaxTopHolderPct == 0 leaves the holder-concentration filter out of the chain.
type FiltersConfig struct {
	MinMarketCapUSD float64 `toml:"min_market_cap_usd"`
	MinVolume1hUSD  float64 `toml:"min_volume_1h_usd"`
	MaxAgeMins      int     `toml:"max_age_mins"`
	MaxTopHolderPct float64 `toml:"max_top_holder_pct"`
}

type EnrichmentConfig struct {
	DexScreenerBaseURL string `toml:"dexscreener_base_url"`
	TimeoutSecs        int    `toml:"timeout_secs"`
	RateLimitPerSecond int    `toml:"rate_limit_per_second"`
	SolanaRPCEndpoint  string `toml:"solana_rpc_endpoint"`
}

// TelegramConfig enables the Telegram sink when both BotToken and ChatID are set.
type TelegramConfig struct {
	BotToken   string `toml:"bot_token"`
	ChatID     string `toml:"chat_id"`
	RatePerMin int    `toml:"rate_per_min"`
}

// NATSConfig enables the JetStream sink when URL is set.
type NATSConfig struct {
	URL           string `toml:"url"`
	Stream        string `toml:"stream"`
	SubjectPrefix string `toml:"subject_prefix"`
}

type FeedConfig struct {
	URL                string `toml:"url"`
	ReconnectDelaySecs int    `toml:"reconnect_delay_secs"`
}

type ArchiveConfig struct {
	BatchSize         int `toml:"batch_size"`
	FlushIntervalSecs int `toml:"flush_interval_secs"`
	QueueCapacity     int `toml:"queue_capacity"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress: "0.0.0.0:8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Postgres: PostgresConfig{
			DSN:      "",
			MaxConns: 0,
		},
		ClickHouse: ClickHouseConfig{
			DSN: "",
		},
		Idempotency: IdempotencyConfig{
			RetentionSecs:     86400,
			PruneIntervalSecs: 3600,
			CacheCapacity:     65536,
		},
		Signals: SignalsConfig{
			DedupWindowSecs:   86400,
			ExpiryHorizonSecs: 86400,
			SweepIntervalSecs: 600,
		},
		Filters: FiltersConfig{
			MinMarketCapUSD: 10000,
			MinVolume1hUSD:  5000,
			MaxAgeMins:      30,
			MaxTopHolderPct: 0,
		},
		Enrichment: EnrichmentConfig{
			DexScreenerBaseURL: "https://api.dexscreener.com",
			TimeoutSecs:        5,
			RateLimitPerSecond: 5,
			SolanaRPCEndpoint:  "",
		},
		Telegram: TelegramConfig{
			RatePerMin: 20,
		},
		NATS: NATSConfig{
			Stream:        "SIGNALS",
			SubjectPrefix: "signals",
		},
		Feed: FeedConfig{
			URL:                "wss://pumpportal.fun/api/data",
			ReconnectDelaySecs: 5,
		},
		Archive: ArchiveConfig{
			BatchSize:         256,
			FlushIntervalSecs: 5,
			QueueCapacity:     4096,
		},
	}
}

// Load builds the effective configuration. An empty path means "use
// DefaultPath if it exists"; an explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case explicit:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.BindAddress = getEnv("LAUNCHSIG__SERVER__BIND_ADDRESS", cfg.Server.BindAddress)
	cfg.Server.CORSOrigins = getEnvSlice("LAUNCHSIG__SERVER__CORS_ORIGINS", cfg.Server.CORSOrigins)

	cfg.Postgres.DSN = getEnv("LAUNCHSIG__POSTGRES__DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = getEnvInt("LAUNCHSIG__POSTGRES__MAX_CONNS", cfg.Postgres.MaxConns)

	cfg.ClickHouse.DSN = getEnv("LAUNCHSIG__CLICKHOUSE__DSN", cfg.ClickHouse.DSN)

	cfg.Idempotency.RetentionSecs = getEnvInt("LAUNCHSIG__IDEMPOTENCY__RETENTION_SECS", cfg.Idempotency.RetentionSecs)
	cfg.Idempotency.PruneIntervalSecs = getEnvInt("LAUNCHSIG__IDEMPOTENCY__PRUNE_INTERVAL_SECS", cfg.Idempotency.PruneIntervalSecs)
	cfg.Idempotency.CacheCapacity = getEnvInt("LAUNCHSIG__IDEMPOTENCY__CACHE_CAPACITY", cfg.Idempotency.CacheCapacity)

	cfg.Signals.DedupWindowSecs = getEnvInt("LAUNCHSIG__SIGNALS__DEDUP_WINDOW_SECS", cfg.Signals.DedupWindowSecs)
	cfg.Signals.ExpiryHorizonSecs = getEnvInt("LAUNCHSIG__SIGNALS__EXPIRY_HORIZON_SECS", cfg.Signals.ExpiryHorizonSecs)
	cfg.Signals.SweepIntervalSecs = getEnvInt("LAUNCHSIG__SIGNALS__SWEEP_INTERVAL_SECS", cfg.Signals.SweepIntervalSecs)

	cfg.Filters.MinMarketCapUSD = getEnvFloat("LAUNCHSIG__FILTERS__MIN_MARKET_CAP_USD", cfg.Filters.MinMarketCapUSD)
	cfg.Filters.MinVolume1hUSD = getEnvFloat("LAUNCHSIG__FILTERS__MIN_VOLUME_1H_USD", cfg.Filters.MinVolume1hUSD)
	cfg.Filters.MaxAgeMins = getEnvInt("LAUNCHSIG__FILTERS__MAX_AGE_MINS", cfg.Filters.MaxAgeMins)
	cfg.Filters.MaxTopHolderPct = getEnvFloat("LAUNCHSIG__FILTERS__MAX_TOP_HOLDER_PCT", cfg.Filters.MaxTopHolderPct)

	cfg.Enrichment.DexScreenerBaseURL = getEnv("LAUNCHSIG__ENRICHMENT__DEXSCREENER_BASE_URL", cfg.Enrichment.DexScreenerBaseURL)
	cfg.Enrichment.TimeoutSecs = getEnvInt("LAUNCHSIG__ENRICHMENT__TIMEOUT_SECS", cfg.Enrichment.TimeoutSecs)
	cfg.Enrichment.RateLimitPerSecond = getEnvInt("LAUNCHSIG__ENRICHMENT__RATE_LIMIT_PER_SECOND", cfg.Enrichment.RateLimitPerSecond)
	cfg.Enrichment.SolanaRPCEndpoint = getEnv("LAUNCHSIG__ENRICHMENT__SOLANA_RPC_ENDPOINT", cfg.Enrichment.SolanaRPCEndpoint)

	cfg.Telegram.BotToken = getEnv("LAUNCHSIG__TELEGRAM__BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Telegram.ChatID = getEnv("LAUNCHSIG__TELEGRAM__CHAT_ID", cfg.Telegram.ChatID)
	cfg.Telegram.RatePerMin = getEnvInt("LAUNCHSIG__TELEGRAM__RATE_PER_MIN", cfg.Telegram.RatePerMin)

	cfg.NATS.URL = getEnv("LAUNCHSIG__NATS__URL", cfg.NATS.URL)
	cfg.NATS.Stream = getEnv("LAUNCHSIG__NATS__STREAM", cfg.NATS.Stream)
	cfg.NATS.SubjectPrefix = getEnv("LAUNCHSIG__NATS__SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	cfg.Feed.URL = getEnv("LAUNCHSIG__FEED__URL", cfg.Feed.URL)
	cfg.Feed.ReconnectDelaySecs = getEnvInt("LAUNCHSIG__FEED__RECONNECT_DELAY_SECS", cfg.Feed.ReconnectDelaySecs)

	cfg.Archive.BatchSize = getEnvInt("LAUNCHSIG__ARCHIVE__BATCH_SIZE", cfg.Archive.BatchSize)
	cfg.Archive.FlushIntervalSecs = getEnvInt("LAUNCHSIG__ARCHIVE__FLUSH_INTERVAL_SECS", cfg.Archive.FlushIntervalSecs)
	cfg.Archive.QueueCapacity = getEnvInt("LAUNCHSIG__ARCHIVE__QUEUE_CAPACITY", cfg.Archive.QueueCapacity)
}

func (c IdempotencyConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSecs) * time.Second
}

func (c IdempotencyConfig) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalSecs) * time.Second
}

func (c SignalsConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSecs) * time.Second
}

func (c SignalsConfig) ExpiryHorizon() time.Duration {
	return time.Duration(c.ExpiryHorizonSecs) * time.Second
}

func (c SignalsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

func (c FiltersConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMins) * time.Minute
}

func (c EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c FeedConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySecs) * time.Second
}

func (c ArchiveConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSecs) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
