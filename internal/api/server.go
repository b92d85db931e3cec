// Package api provides the HTTP API for the marketplace.
// GET endpoints are public (read-only price checks and stock views).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielvanorman/commandeconomy-sub003/internal/account"
	"github.com/danielvanorman/commandeconomy-sub003/internal/catalog"
	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/market"
	"github.com/danielvanorman/commandeconomy-sub003/internal/persistence"
	"github.com/danielvanorman/commandeconomy-sub003/internal/pricing"
	"github.com/danielvanorman/commandeconomy-sub003/internal/trader"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Server serves marketplace state over HTTP and streams trades over the hub.
type Server struct {
	Mkt         *market.Market
	Traders     *trader.Handler
	Ledger      *account.Ledger
	DB          *persistence.DB
	Hub         *Hub
	Cfg         *config.Snapshot
	CatalogPath string
	Port        int
	AdminKey    string // Bearer token for POST endpoints. Empty = POST disabled.

	started time.Time
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.started = time.Now()

	// Price checks are cheap but unauthenticated; cap bursts per IP.
	checkLimiter := NewRateLimiter(600, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/wares", s.handleWares)
	mux.HandleFunc("/api/v1/ware/", RateLimitMiddleware(checkLimiter, s.handleWareDetail))
	mux.HandleFunc("/api/v1/trades", s.handleTrades)

	// Live trade feed (websocket).
	mux.HandleFunc("/api/v1/stream", s.Hub.ServeWS)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/buy", s.adminOnly(s.handleBuy))
	mux.HandleFunc("/api/v1/sell", s.adminOnly(s.handleSell))
	mux.HandleFunc("/api/v1/reload", s.adminOnly(s.handleReload))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no MARKETD_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reg := s.Mkt.Registry()
	stats := reg.Stats()

	writeJSON(w, map[string]any{
		"uptime":          time.Since(s.started).Round(time.Second).String(),
		"wares":           reg.Len(),
		"traders":         s.Traders.Traders(),
		"stream_clients":  s.Hub.Clients(),
		"median_price":    stats.PriceBaseMedian,
		"average_price":   stats.PriceBaseAverage,
		"median_quantity": stats.QuantityMedian,
	})
}

func (s *Server) handleWares(w http.ResponseWriter, r *http.Request) {
	type wareSummary struct {
		ID       string  `json:"id"`
		Alias    string  `json:"alias,omitempty"`
		Kind     string  `json:"kind"`
		Level    uint8   `json:"level"`
		Quantity int     `json:"quantity"`
		UnitBuy  float64 `json:"unit_buy"`
		UnitSell float64 `json:"unit_sell"`
	}

	crv := s.Mkt.Curve()
	var result []wareSummary
	s.Mkt.Locked(func() {
		for _, wr := range s.Mkt.Registry().Wares() {
			if !wr.Valid() {
				continue
			}
			entry := wareSummary{
				ID:       wr.ID,
				Alias:    wr.Alias,
				Kind:     ware.KindName(wr.Kind),
				Level:    wr.Level,
				Quantity: wr.Quantity(),
			}
			if wr.Kind != ware.Untradeable {
				entry.UnitBuy = crv.Price(wr, 1, pricing.CurrentBuy)
				entry.UnitSell = crv.Price(wr, 1, pricing.CurrentSell)
			}
			result = append(result, entry)
		}
	})
	writeJSON(w, result)
}

// handleWareDetail serves GET /api/v1/ware/:id with an optional ?quantity=
// for total buy/sell pricing of a whole order.
func (s *Server) handleWareDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/ware/")
	if id == "" {
		http.Error(w, "missing ware id", http.StatusBadRequest)
		return
	}

	quantity := 0
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "invalid quantity", http.StatusBadRequest)
			return
		}
		quantity = n
	}

	var res *market.CheckResult
	var err error
	s.Mkt.Locked(func() {
		res, err = s.Mkt.Check(id, quantity)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("ware %q not found", id), http.StatusNotFound)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := s.DB.RecentTradeEvents(limit)
	if err != nil {
		slog.Error("trade log query failed", "error", err)
		writeJSON(w, []persistence.TradeRow{})
		return
	}
	if rows == nil {
		rows = []persistence.TradeRow{}
	}
	writeJSON(w, rows)
}

type tradeRequest struct {
	Player       string  `json:"player"`
	Inventory    string  `json:"inventory,omitempty"` // Defaults to the player's own
	Account      string  `json:"account,omitempty"`   // Defaults to the player's personal account
	Ware         string  `json:"ware"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price,omitempty"` // Max for buys, min for sells
	PricePercent float64 `json:"price_percent,omitempty"`
}

func decodeTrade(w http.ResponseWriter, r *http.Request) (*tradeRequest, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return nil, false
	}
	if req.Player == "" || req.Ware == "" {
		http.Error(w, "player and ware are required", http.StatusBadRequest)
		return nil, false
	}
	if req.Inventory == "" {
		req.Inventory = req.Player
	}
	return &req, true
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTrade(w, r)
	if !ok {
		return
	}
	if req.Quantity <= 0 {
		http.Error(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	err := s.Mkt.Buy(req.Player, req.Inventory, req.Account, req.Ware, req.Quantity, req.UnitPrice, req.PricePercent)
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTrade(w, r)
	if !ok {
		return
	}

	err := s.Mkt.Sell(req.Player, req.Inventory, req.Account, req.Ware, req.Quantity, req.UnitPrice, req.PricePercent)
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

// handleReload rebuilds the registry from the catalog file and swaps it in
// wholesale, then re-binds AI trader ware references.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	reg, err := catalog.Load(s.CatalogPath, s.Cfg)
	if err != nil {
		slog.Error("catalog reload failed", "error", err)
		http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
		return
	}

	s.Mkt.Swap(reg)
	s.Traders.Rebind(reg)
	slog.Info("catalog reloaded", "wares", reg.Len())
	writeJSON(w, map[string]any{"ok": true, "wares": reg.Len()})
}

// handleSnapshot exports a compressed point-in-time snapshot to a file path
// on the server.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	var snapErr error
	s.Mkt.Locked(func() {
		snapErr = persistence.WriteSnapshot(req.Path, s.Mkt.Registry(), s.Ledger)
	})
	if snapErr != nil {
		slog.Error("snapshot failed", "error", snapErr)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "path": req.Path})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
