// Package server exposes the HTTP surface: webhook intake, the signal query
// endpoints and the health/status/metrics plumbing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/helius"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/pipeline"
	"solana-launch-signals/internal/storage"
)

// Query limits for /signals/recent.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

const shutdownTimeout = 10 * time.Second

// Server routes HTTP traffic to the pipeline and the signal store.
type Server struct {
	bindAddress string
	corsOrigins []string
	pipeline    *pipeline.Pipeline
	signals     storage.SignalStore
	mode        string
	logger      *log.Logger

	httpServer *http.Server

	mu         sync.Mutex
	startedAt  time.Time
	deliveries int64
	totals     pipeline.Receipt
}

// Options configures a Server.
type Options struct {
	// BindAddress is the listen address, e.g. "0.0.0.0:8080".
	BindAddress string

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string

	// Pipeline handles webhook deliveries. Required.
	Pipeline *pipeline.Pipeline

	// Signals backs the query endpoints. Required.
	Signals storage.SignalStore

	// Mode is reported by /healthz and /status ("postgres" or "memory").
	Mode string

	Logger *log.Logger
}

// New creates a Server from the given options.
func New(opts Options) *Server {
	s := &Server{
		bindAddress: opts.BindAddress,
		corsOrigins: opts.CORSOrigins,
		pipeline:    opts.Pipeline,
		signals:     opts.Signals,
		mode:        opts.Mode,
		logger:      opts.Logger,
		startedAt:   time.Now(),
	}
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[server] ", log.LstdFlags)
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down draining in-flight
// requests for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.bindAddress,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Printf("HTTP server listening on %s", s.bindAddress)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/webhook", s.handleWebhook).Methods("POST")
	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	router.HandleFunc("/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/signals/recent", s.handleRecent).Methods("GET")
	router.HandleFunc("/signals/stats", s.handleStats).Methods("GET")
	router.Handle("/metrics", observability.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         3600,
	})

	return c.Handler(router)
}

// ackResponse is the fixed webhook acknowledgement. The counter fields come
// from the embedded receipt.
type ackResponse struct {
	Status string `json:"status"`
	pipeline.Receipt
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// handleWebhook runs one delivery through the pipeline. Undecodable bodies
// are the sender's fault (400); anything else that fails the delivery is a
// storage problem the sender should retry (503).
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		observability.RecordWebhookRequest("bad_request")
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "unreadable body"})
		return
	}

	receipt, err := s.pipeline.Process(r.Context(), body)
	if err != nil {
		if errors.Is(err, helius.ErrBadPayload) {
			observability.RecordWebhookRequest("bad_request")
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: err.Error()})
			return
		}
		observability.RecordWebhookRequest("storage_error")
		s.logger.Printf("Webhook delivery failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "error", Error: "storage unavailable, retry"})
		return
	}

	s.mu.Lock()
	s.deliveries++
	s.totals.Processed += receipt.Processed
	s.totals.Duplicates += receipt.Duplicates
	s.totals.MigrationsDetected += receipt.MigrationsDetected
	s.totals.SignalsGenerated += receipt.SignalsGenerated
	s.mu.Unlock()

	observability.RecordWebhookRequest("ok")
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok", Receipt: *receipt})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Status    string `json:"status"`
		Mode      string `json:"mode"`
		Timestamp int64  `json:"timestamp"`
	}{
		Status:    "healthy",
		Mode:      s.mode,
		Timestamp: time.Now().UnixMilli(),
	}
	writeJSON(w, http.StatusOK, response)
}

// handleStatus reports process-level counters. Store-level aggregates live on
// /signals/stats.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	deliveries := s.deliveries
	totals := s.totals
	uptime := time.Since(s.startedAt)
	s.mu.Unlock()

	response := struct {
		Status             string `json:"status"`
		Mode               string `json:"mode"`
		Uptime             string `json:"uptime"`
		Deliveries         int64  `json:"deliveries"`
		Processed          int    `json:"processed"`
		Duplicates         int    `json:"duplicates"`
		MigrationsDetected int    `json:"migrations_detected"`
		SignalsGenerated   int    `json:"signals_generated"`
	}{
		Status:             "running",
		Mode:               s.mode,
		Uptime:             uptime.String(),
		Deliveries:         deliveries,
		Processed:          totals.Processed,
		Duplicates:         totals.Duplicates,
		MigrationsDetected: totals.MigrationsDetected,
		SignalsGenerated:   totals.SignalsGenerated,
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "since must be a unix millisecond timestamp"})
			return
		}
		since = parsed
	}

	signals, err := s.signals.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Printf("List recent signals failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "error", Error: "storage unavailable, retry"})
		return
	}

	views := make([]signalView, 0, len(signals))
	for _, sig := range signals {
		if since > 0 && sig.CreatedAt < since {
			continue
		}
		views = append(views, viewFromSignal(sig))
	}

	response := struct {
		Signals []signalView `json:"signals"`
		Count   int          `json:"count"`
	}{
		Signals: views,
		Count:   len(views),
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.signals.Stats(r.Context())
	if err != nil {
		s.logger.Printf("Signal stats failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "error", Error: "storage unavailable, retry"})
		return
	}

	response := struct {
		Total       int64   `json:"total"`
		Pending     int64   `json:"pending"`
		Migrated    int64   `json:"migrated"`
		Expired     int64   `json:"expired"`
		Wins        int64   `json:"wins"`
		WinRate     float64 `json:"win_rate"`
		AvgPnLPct   float64 `json:"avg_pnl_pct"`
		BestPnLPct  float64 `json:"best_pnl_pct"`
		WorstPnLPct float64 `json:"worst_pnl_pct"`
	}{
		Total:       stats.Total,
		Pending:     stats.Pending,
		Migrated:    stats.Migrated,
		Expired:     stats.Expired,
		Wins:        stats.Wins,
		WinRate:     stats.WinRate,
		AvgPnLPct:   stats.AvgPnLPct,
		BestPnLPct:  stats.BestPnLPct,
		WorstPnLPct: stats.WorstPnLPct,
	}
	writeJSON(w, http.StatusOK, response)
}

// signalView is the query surface's JSON shape for one signal. Outcome
// fields are flattened and omitted while the signal is open.
type signalView struct {
	ID            string   `json:"id"`
	TokenAddress  string   `json:"token_address"`
	TriggerTx     string   `json:"trigger_tx"`
	Status        string   `json:"status"`
	EntryPrice    float64  `json:"entry_price"`
	EntryDenom    string   `json:"entry_denom"`
	EntryPriceUSD *float64 `json:"entry_price_usd,omitempty"`
	MarketCapUSD  *float64 `json:"market_cap_usd,omitempty"`
	Volume1hUSD   *float64 `json:"volume_1h_usd,omitempty"`
	AgeMinutes    *float64 `json:"age_minutes,omitempty"`
	PairAddress   *string  `json:"pair_address,omitempty"`
	ChartURL      *string  `json:"chart_url,omitempty"`

	ExitPrice      *float64 `json:"exit_price,omitempty"`
	ExitDenom      string   `json:"exit_denom,omitempty"`
	RealizedPnLPct *float64 `json:"realized_pnl_pct,omitempty"`
	ClosedAt       int64    `json:"closed_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

func viewFromSignal(sig *domain.Signal) signalView {
	view := signalView{
		ID:            sig.ID,
		TokenAddress:  sig.TokenAddress,
		TriggerTx:     sig.TriggerTx,
		Status:        sig.Status.String(),
		EntryPrice:    sig.EntryPrice,
		EntryDenom:    sig.EntryDenom.String(),
		EntryPriceUSD: sig.EntryPriceUSD,
		MarketCapUSD:  sig.MarketCapUSD,
		Volume1hUSD:   sig.Volume1hUSD,
		AgeMinutes:    sig.AgeMinutes,
		PairAddress:   sig.PairAddress,
		ChartURL:      sig.ChartURL,
		CreatedAt:     sig.CreatedAt,
		UpdatedAt:     sig.UpdatedAt,
	}
	if sig.Outcome != nil {
		exit := sig.Outcome.ExitPrice
		view.ExitPrice = &exit
		view.ExitDenom = sig.Outcome.ExitDenom.String()
		view.RealizedPnLPct = sig.Outcome.RealizedPnLPct
		view.ClosedAt = sig.Outcome.ClosedAt
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
