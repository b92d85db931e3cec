// Package market orchestrates buy/sell/check operations against the ware
// registry: price resolution through the curve, fee application,
// budget/inventory clamping, manufacturing fallback, and the single coarse
// lock that makes price-then-mutate sequences atomic across the AI thread
// and command handlers.
package market

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/pricing"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Stack is one parcel of held goods reported by an inventory: quantity plus
// a 0.0–1.0 quality/wear factor discounting sale proceeds.
type Stack struct {
	ID       string
	Quantity int
	Quality  float64
}

// InventoryAccess is the external inventory collaborator contract.
type InventoryAccess interface {
	// Space returns the free slot count of a container.
	Space(loc string) int
	// MaxStackSize returns how many units of a good fit in one slot.
	MaxStackSize(id string) int
	// Give inserts n units of a good into a container.
	Give(loc, id string, n int) error
	// Take removes n units of a good from a container.
	Take(loc, id string, n int) error
	// Held enumerates a container's stacks of one good (empty id = all).
	Held(loc, id string) []Stack
}

// AccountAccess is the external account collaborator contract. Personal
// accounts are created on demand when first resolved.
type AccountAccess interface {
	Balance(account, player string) (float64, error)
	Debit(account, player string, amount float64) error
	Credit(account, player string, amount float64) error
	// CanCoverSubsidy reports whether the fee collection account can fully
	// fund a negative-fee payout of the given (positive) amount.
	CanCoverSubsidy(amount float64) bool
	// DepositFee pays a collected fee into the fee collection account;
	// negative amounts withdraw a subsidy from it.
	DepositFee(amount float64)
}

// Messenger delivers plain-text results and errors to a user.
type Messenger interface {
	Message(user, text string)
	Error(user, text string)
}

// Manufacturer produces wares from components to cover a buy shortfall.
type Manufacturer interface {
	// Manufacture attempts to produce up to shortfall units of w, spending
	// at most budget and occupying at most space units of inventory.
	// Returns the actual cost and quantity produced; (0, 0) when infeasible.
	Manufacture(w *ware.Ware, shortfall int, budget float64, space int) (float64, int)
}

// TradeEvent describes one applied trade, fanned out to persistence and the
// live feed after the stock mutation commits.
type TradeEvent struct {
	ID       uuid.UUID `json:"id"`
	Time     time.Time `json:"time"`
	Actor    string    `json:"actor"` // Player name or AI profession
	WareID   string    `json:"ware_id"`
	Quantity int       `json:"quantity"`
	Price    float64   `json:"price"`
	Fee      float64   `json:"fee"`
	Side     string    `json:"side"` // "buy", "sell", or "ai"
}

// User-facing refusal conditions callers may branch on.
var (
	ErrWareNotFound      = errors.New("ware not found")
	ErrUntradeable       = errors.New("ware cannot be traded")
	ErrOutOfStock        = errors.New("ware is out of stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPriceFloor        = errors.New("ware is at its price floor")
	ErrFeeExceedsValue   = errors.New("transaction fee exceeds sale value")
	ErrNothingToSell     = errors.New("nothing to sell")
)

// Market is the marketplace engine. One mutex guards every sequence of
// reads-then-writes to ware quantities that must appear atomic: buy/sell
// stock mutation, AI batch application, and bulk registry save/reload.
type Market struct {
	mu  sync.Mutex
	cfg *config.Snapshot
	reg *ware.Registry
	crv pricing.Curve

	inv  InventoryAccess
	acct AccountAccess
	msg  Messenger
	mfg  Manufacturer

	onTrade func(TradeEvent)
}

// New wires a marketplace over a loaded registry. The default manufacturer
// crafts from component stock; pass SetManufacturer to override.
func New(cfg *config.Snapshot, reg *ware.Registry, inv InventoryAccess, acct AccountAccess, msg Messenger) *Market {
	m := &Market{
		cfg:  cfg,
		reg:  reg,
		crv:  pricing.Curve{Cfg: cfg, Stats: reg.Stats()},
		inv:  inv,
		acct: acct,
		msg:  msg,
	}
	m.mfg = &componentCrafter{m: m}
	return m
}

// SetManufacturer replaces the shortfall manufacturer.
func (m *Market) SetManufacturer(mfg Manufacturer) { m.mfg = mfg }

// SetOnTrade registers a callback invoked after each applied trade. The
// callback runs outside the market lock.
func (m *Market) SetOnTrade(fn func(TradeEvent)) { m.onTrade = fn }

// Curve returns the price curve bound to the current registry statistics.
func (m *Market) Curve() pricing.Curve { return m.crv }

// Registry returns the ware registry the market trades against.
func (m *Market) Registry() *ware.Registry { return m.reg }

// Config returns the active tunables snapshot.
func (m *Market) Config() *config.Snapshot { return m.cfg }

// Swap replaces the registry wholesale (bulk reload) under the market lock.
// Callers must re-bind AI ware references afterwards.
func (m *Market) Swap(reg *ware.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg = reg
	m.crv = pricing.Curve{Cfg: m.cfg, Stats: reg.Stats()}
}

// Locked runs fn while holding the market lock. Used by save and reload
// paths that need a consistent view of all ware quantities.
func (m *Market) Locked(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// emit fans a trade event out to the registered callback.
func (m *Market) emit(ev TradeEvent) {
	if m.onTrade != nil {
		m.onTrade(ev)
	}
}

func newTradeEvent(actor, wareID, side string, qty int, price, fee float64) TradeEvent {
	return TradeEvent{
		ID:       uuid.New(),
		Time:     time.Now(),
		Actor:    actor,
		WareID:   wareID,
		Quantity: qty,
		Price:    price,
		Fee:      fee,
		Side:     side,
	}
}

// resolve looks up a tradeable ware, preserving the caller's compound
// variant ID for inventory operations when the registry substitutes the
// base ware.
func (m *Market) resolve(id string) (w *ware.Ware, invID string, err error) {
	w, ok := m.reg.Resolve(id)
	if !ok {
		return nil, "", ErrWareNotFound
	}
	if !w.Valid() {
		return nil, "", ErrWareNotFound
	}
	if w.Kind == ware.Untradeable {
		return nil, "", ErrUntradeable
	}
	invID = w.ID
	if id != w.ID && id != w.Alias {
		// Variant fallback resolved to the base ware; external inventory
		// operations keep the compound ID the caller asked for.
		invID = id
	}
	return w, invID, nil
}

// CheckResult is the read-only price/quantity report for one ware.
type CheckResult struct {
	ID          string  `json:"id"`
	Alias       string  `json:"alias,omitempty"`
	Kind        string  `json:"kind"`
	Level       uint8   `json:"level"`
	Quantity    int     `json:"quantity"`
	UnitBuy     float64 `json:"unit_buy"`
	UnitSell    float64 `json:"unit_sell"`
	Equilibrium float64 `json:"equilibrium"`
	TotalBuy    float64 `json:"total_buy,omitempty"`  // Price for the requested quantity
	TotalSell   float64 `json:"total_sell,omitempty"` // Proceeds for the requested quantity
}

// Check reports current prices and stock without mutating anything. Reads a
// single consistent snapshot per field; no lock is held across the report.
func (m *Market) Check(wareID string, quantity int) (*CheckResult, error) {
	w, ok := m.reg.Resolve(wareID)
	if !ok || !w.Valid() {
		return nil, ErrWareNotFound
	}

	res := &CheckResult{
		ID:    w.ID,
		Alias: w.Alias,
		Kind:  ware.KindName(w.Kind),
		Level: w.Level,
	}

	if w.Kind == ware.Untradeable {
		res.Equilibrium = m.crv.Price(w, 1, pricing.EquilibriumBuy)
		return res, nil
	}

	m.crv.RefreshComponentsPriceMult(w)
	res.Quantity = w.Quantity()
	res.UnitBuy = m.crv.Price(w, 1, pricing.CurrentBuy)
	res.UnitSell = m.crv.Price(w, 1, pricing.CurrentSell)
	res.Equilibrium = m.crv.Price(w, 1, pricing.EquilibriumSell)
	if quantity > 1 {
		res.TotalBuy = m.crv.Price(w, quantity, pricing.CurrentBuy)
		res.TotalSell = m.crv.Price(w, quantity, pricing.CurrentSell)
	}
	return res, nil
}
