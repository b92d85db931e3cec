package trader

import (
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/market"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Handler drives all active AI traders from one periodic tick. A single
// goroutine owns the tick, so ticks never overlap; stopping takes effect
// before the next tick and never interrupts one in progress.
type Handler struct {
	mkt *market.Market
	rng *rand.Rand

	mu              sync.Mutex
	ais             []*AI
	cfg             *config.Snapshot
	tradeQuantities [config.Levels]int

	stopReq atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewHandler wires the AI handler. Seed fixes the randomness stream for
// deterministic runs; pass 0 to seed from the clock.
func NewHandler(mkt *market.Market, ais []*AI, cfg *config.Snapshot, seed int64) *Handler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	h := &Handler{
		mkt: mkt,
		rng: rand.New(rand.NewSource(seed)),
		ais: ais,
		cfg: cfg,
	}
	h.Recalc(cfg)
	return h
}

// Recalc recomputes the per-level trade quantities from a config snapshot.
// Called at construction and whenever the configured percent changes.
func (h *Handler) Recalc(cfg *config.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
	h.tradeQuantities = cfg.TradeQuantities()
}

// Rebind re-resolves every trader's ware references after a registry reload.
func (h *Handler) Rebind(reg *ware.Registry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ai := range h.ais {
		ai.Rebind(reg)
	}
}

// Start launches the periodic trading tick. No-op when no traders are active.
func (h *Handler) Start() {
	h.mu.Lock()
	n := len(h.ais)
	interval := h.cfg.AITickInterval
	h.mu.Unlock()
	if n == 0 {
		slog.Info("no active AI traders")
		return
	}

	h.stopCh = make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		slog.Info("AI trading started", "traders", n, "interval", interval)
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.RunTick()
			}
		}
	}()
}

// Stop requests an immediate halt of future ticks and waits for any tick in
// progress to finish.
func (h *Handler) Stop() {
	h.stopReq.Store(true)
	if h.stopCh != nil {
		close(h.stopCh)
		h.wg.Wait()
		h.stopCh = nil
	}
	slog.Info("AI trading stopped")
}

// RunTick performs one trading tick: every trader's decisions are scored
// against the same price snapshot and merged into one batch, then applied
// in a single lock acquisition. Traders within a tick never react to each
// other's trades.
func (h *Handler) RunTick() {
	if h.stopReq.Load() {
		return
	}

	h.mu.Lock()
	cfg := h.cfg
	tq := h.tradeQuantities
	ais := h.ais
	h.mu.Unlock()

	// Scoring reads ware quantities through the curve, so it runs under the
	// market lock; foreground trades cannot mutate stock mid-pass.
	batch := make(market.TradeBatch)
	h.mkt.Locked(func() {
		crv := h.mkt.Curve()
		for _, ai := range ais {
			batch.Merge(ai.Trade(crv, cfg, h.rng, tq))
		}
	})

	if len(batch) == 0 {
		return
	}
	h.mkt.ApplyTradeBatch("ai", batch)
}

// Traders returns the active trader count for status reporting.
func (h *Handler) Traders() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ais)
}
