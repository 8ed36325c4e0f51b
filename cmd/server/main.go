// Package main runs the token market gateway: it refreshes the side-chain
// token snapshot on a schedule, serves it over HTTP, and pushes each new
// snapshot to WebSocket subscribers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steem-driver/steem-engine-dex/internal/accounts"
	"github.com/steem-driver/steem-engine-dex/internal/aggregator"
	"github.com/steem-driver/steem-engine-dex/internal/config"
	"github.com/steem-driver/steem-engine-dex/internal/engine"
	"github.com/steem-driver/steem-engine-dex/internal/market"
)

// Server holds the wired services and WebSocket subscriber state.
type Server struct {
	aggregator      *aggregator.Aggregator
	market          *market.Service
	accounts        *accounts.Service
	refreshInterval time.Duration
	logger          *log.Logger

	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*websocket.Conn]bool
	started     time.Time
	lastRefresh time.Time
	refreshes   int
	refreshErrs int
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (empty for defaults)")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	addr := cfg.Server.Listen
	if *listen != "" {
		addr = *listen
	}

	rpc := engine.NewClient(cfg.Endpoints.RPCURL)
	fetcher := engine.NewFetcher()

	agg := aggregator.New(aggregator.Options{
		Source:             rpc,
		DisabledTokens:     cfg.Tokens.Disabled,
		PeggedSymbol:       cfg.Tokens.PeggedSymbol,
		CustodialAccount:   cfg.Tokens.CustodialAccount,
		HighActivitySymbol: cfg.Tokens.HighActivitySymbol,
		Logger:             logger,
	})

	pegged := make([]accounts.PeggedTokenInfo, 0, len(cfg.Tokens.Pegged))
	for _, p := range cfg.Tokens.Pegged {
		pegged = append(pegged, accounts.PeggedTokenInfo{Symbol: p.Symbol, Address: p.Address})
	}

	server := &Server{
		aggregator: agg,
		market:     market.NewService(rpc, agg, cfg.Tokens.PeggedSymbol, cfg.Chain.NativeSymbol),
		accounts: accounts.NewService(accounts.Options{
			Source:       rpc,
			Fetcher:      fetcher,
			PricesURL:    cfg.Endpoints.PricesURL,
			RewardsURL:   cfg.Endpoints.RewardsURL,
			HistoryURL:   cfg.Endpoints.HistoryURL,
			PeggedTokens: pegged,
		}),
		refreshInterval: cfg.Server.RefreshInterval.Std(),
		logger:          logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subscribers: make(map[*websocket.Conn]bool),
		started:     time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go server.runRefreshLoop(ctx)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server error: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
		server.closeSubscribers()
	}

	close(done)
	logger.Println("Shutdown complete")
}

// runRefreshLoop refreshes the snapshot immediately and then on the
// configured interval. A failed pass keeps the previous snapshot.
func (s *Server) runRefreshLoop(ctx context.Context) {
	s.refresh(ctx)

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Server) refresh(ctx context.Context) {
	start := time.Now()
	snapshot, err := s.aggregator.Refresh(ctx)

	s.mu.Lock()
	if err != nil {
		s.refreshErrs++
	} else {
		s.refreshes++
		s.lastRefresh = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Printf("Refresh error: %v", err)
		}
		return
	}

	s.logger.Printf("Refreshed %d tokens in %v", len(snapshot.Tokens), time.Since(start))
	s.broadcast(snapshot)
}

// snapshotMessage is the WebSocket frame sent after each refresh.
type snapshotMessage struct {
	TakenAt time.Time      `json:"taken_at"`
	Tokens  []tokenSummary `json:"tokens"`
}

type tokenSummary struct {
	Symbol             string  `json:"symbol"`
	Name               string  `json:"name"`
	LastPrice          float64 `json:"lastPrice"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	Volume             float64 `json:"volume"`
	MarketCap          float64 `json:"marketCap"`
}

func (s *Server) broadcast(snapshot *aggregator.Snapshot) {
	msg := snapshotMessage{
		TakenAt: snapshot.TakenAt,
		Tokens:  make([]tokenSummary, 0, len(snapshot.Tokens)),
	}
	for _, t := range snapshot.Tokens {
		msg.Tokens = append(msg.Tokens, tokenSummary{
			Symbol:             t.Symbol,
			Name:               t.Name,
			LastPrice:          t.LastPrice,
			PriceChangePercent: t.PriceChangePercent,
			Volume:             t.Volume,
			MarketCap:          t.MarketCap,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.subscribers {
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Printf("Dropping subscriber: %v", err)
			conn.Close()
			delete(s.subscribers, conn)
		}
	}
}

func (s *Server) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.subscribers {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		delete(s.subscribers, conn)
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /tokens", s.handleTokens)
	mux.HandleFunc("GET /tokens/{symbol}", s.handleToken)

	mux.HandleFunc("GET /market/{symbol}/buy-book", s.handleBuyBook)
	mux.HandleFunc("GET /market/{symbol}/sell-book", s.handleSellBook)
	mux.HandleFunc("GET /market/{symbol}/trades", s.handleTrades)

	mux.HandleFunc("GET /accounts/{name}/balances", s.handleBalances)
	mux.HandleFunc("GET /accounts/{name}/pending-unstakes", s.handlePendingUnstakes)
	mux.HandleFunc("GET /accounts/{name}/rewards", s.handleRewards)
	mux.HandleFunc("GET /accounts/{name}/history", s.handleHistory)

	mux.HandleFunc("GET /ws", s.handleWS)

	return mux
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	LastRefresh   time.Time `json:"last_refresh,omitempty"`
	Refreshes     int       `json:"refreshes"`
	RefreshErrors int       `json:"refresh_errors"`
	Tokens        int       `json:"tokens"`
	Subscribers   int       `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tokens := 0
	if snapshot := s.aggregator.Current(); snapshot != nil {
		tokens = len(snapshot.Tokens)
	}

	s.mu.Lock()
	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		LastRefresh:   s.lastRefresh,
		Refreshes:     s.refreshes,
		RefreshErrors: s.refreshErrs,
		Tokens:        tokens,
		Subscribers:   len(s.subscribers),
	}
	s.mu.Unlock()

	writeJSON(w, resp)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	snapshot := s.aggregator.Current()
	if snapshot == nil {
		http.Error(w, "snapshot not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snapshot.Tokens)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token, ok := s.aggregator.Token(r.PathValue("symbol"))
	if !ok {
		http.Error(w, "token not found", http.StatusNotFound)
		return
	}
	writeJSON(w, token)
}

func (s *Server) handleBuyBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.market.BuyBook(r.Context(), r.PathValue("symbol"), r.URL.Query().Get("account"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, book)
}

func (s *Server) handleSellBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.market.SellBook(r.Context(), r.PathValue("symbol"), r.URL.Query().Get("account"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, book)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.market.TradesHistory(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, trades)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.accounts.Balances(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, balances)
}

func (s *Server) handlePendingUnstakes(w http.ResponseWriter, r *http.Request) {
	unstakes, err := s.accounts.PendingUnstakes(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, unstakes)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.accounts.StakingRewards(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, rewards)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.accounts.History(r.Context(), r.PathValue("name"), r.URL.Query().Get("symbol"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, history)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.subscribers[conn] = true
	count := len(s.subscribers)
	s.mu.Unlock()
	s.logger.Printf("Subscriber connected (%d total)", count)

	// Drain the connection so close frames are processed; subscribers
	// are write-only.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.subscribers, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, market.ErrHiddenFromMarket) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Printf("Query error: %v", err)
	http.Error(w, "upstream query failed", http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
