package market

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/danielvanorman/commandeconomy-sub003/internal/pricing"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// StockRecord is one parcel of goods offered for liquidation: a resolved
// ware, the inventory identifier the goods are held under, a quantity, and
// the quality discount applied to proceeds.
type StockRecord struct {
	W        *ware.Ware
	InvID    string
	Quantity int
	Quality  float64
}

// Sell liquidates up to quantity units of a ware held in the player's
// inventory. quantity <= 0 sells everything held. minUnitPrice refuses to
// sell any unit below that price (<= 0 disables the bound); pricePercent
// scales proceeds.
func (m *Market) Sell(player, invID, acctID, wareID string, quantity int, minUnitPrice, pricePercent float64) error {
	if pricePercent <= 0 {
		pricePercent = 1.0
	}

	m.mu.Lock()
	w, invWareID, err := m.resolve(wareID)
	if err != nil {
		m.mu.Unlock()
		m.msg.Error(player, refusalText(err, wareID))
		return err
	}

	// Refuse outright at the price floor when garbage disposal is off:
	// selling there would destroy goods for nothing.
	if m.cfg.NoGarbageDisposing && m.atPriceFloor(w) {
		m.mu.Unlock()
		m.msg.Error(player, refusalText(ErrPriceFloor, w.Name()))
		return ErrPriceFloor
	}
	m.mu.Unlock()

	// Enumerate held stock outside the lock; the inventory collaborator
	// does its own concurrency control.
	held := m.inv.Held(invID, invWareID)
	if len(held) == 0 {
		m.msg.Error(player, refusalText(ErrNothingToSell, w.Name()))
		return ErrNothingToSell
	}

	records := make([]StockRecord, 0, len(held))
	remaining := quantity
	for _, st := range held {
		n := st.Quantity
		if quantity > 0 {
			if remaining <= 0 {
				break
			}
			if n > remaining {
				n = remaining
			}
			remaining -= n
		}
		records = append(records, StockRecord{W: w, InvID: st.ID, Quantity: n, Quality: st.Quality})
	}

	return m.SellStock(player, invID, acctID, records, minUnitPrice, pricePercent)
}

// SellStock is the shared bulk liquidation used by targeted sells and
// sell-everything. When a flat selling fee is configured, no item is taken
// from the inventory until cumulative earnings are confirmed to exceed the
// fee; the deferred items are then released in one pass. A sale whose total
// proceeds never clear a flat fee is refused entirely — no partial
// liquidation, no fee charged.
func (m *Market) SellStock(player, invID, acctID string, records []StockRecord, minUnitPrice, pricePercent float64) error {
	if pricePercent <= 0 {
		pricePercent = 1.0
	}
	flatFee := 0.0
	if !m.cfg.FeeSellingIsMult && m.cfg.FeeSelling > 0 {
		flatFee = m.cfg.FeeSelling
	}

	type plan struct {
		rec      StockRecord
		sellable int
		earnings float64
	}

	totalEarnings := 0.0
	totalSold := 0
	var wareID string

	m.mu.Lock()

	released := flatFee == 0
	var deferred []plan
	cumulative := 0.0

	// Stock increments happen under the mutex; inventory removal is queued
	// and performed after release (the collaborator has its own locking).
	var removals []plan
	apply := func(p plan) {
		p.rec.W.AddQuantity(p.sellable)
		totalEarnings += p.earnings
		totalSold += p.sellable
		wareID = p.rec.W.ID
		removals = append(removals, p)
	}

	for _, rec := range records {
		w := rec.W
		if w == nil || !w.Valid() || rec.Quantity <= 0 {
			continue
		}
		if m.cfg.NoGarbageDisposing && m.atPriceFloor(w) {
			continue
		}

		sellable := rec.Quantity
		if minUnitPrice > 0 {
			bound := m.crv.QuantityUntilPrice(w, minUnitPrice/pricePercent, false)
			if bound < sellable {
				sellable = bound
			}
		}
		if sellable <= 0 {
			continue
		}

		quality := rec.Quality
		if quality <= 0 || quality > 1 {
			quality = 1.0
		}
		earnings := m.crv.Truncate(m.crv.Price(w, sellable, pricing.CurrentSell) * pricePercent * quality)
		if earnings <= 0 {
			continue
		}

		p := plan{rec: rec, sellable: sellable, earnings: earnings}
		if released {
			apply(p)
			continue
		}
		// Flat-fee deferral: hold items back until earnings clear the fee.
		deferred = append(deferred, p)
		cumulative += earnings
		if cumulative > flatFee {
			released = true
			for _, dp := range deferred {
				apply(dp)
			}
			deferred = nil
		}
	}
	m.mu.Unlock()

	for _, p := range removals {
		if err := m.inv.Take(invID, p.rec.InvID, p.sellable); err != nil {
			slog.Warn("inventory removal failed after sale", "ware", p.rec.InvID, "quantity", p.sellable, "error", err)
		}
	}

	if flatFee > 0 && !released {
		// Net-loss guard: the whole sale would not cover the flat fee.
		if cumulative > 0 {
			m.msg.Error(player, refusalText(ErrFeeExceedsValue, ""))
			return ErrFeeExceedsValue
		}
		return nil // Nothing met the price constraints: silent no-op.
	}
	if totalSold == 0 {
		return nil // Silent no-op.
	}

	totalEarnings = m.crv.Truncate(totalEarnings)
	if err := m.acct.Credit(acctID, player, totalEarnings); err != nil {
		slog.Error("sale proceeds could not be credited", "account", acctID, "error", err)
	}

	fee := m.sellingFee(totalEarnings)
	m.settleFee(acctID, player, fee)

	m.msg.Message(player, fmt.Sprintf("Sold %s items for $%s",
		humanize.Comma(int64(totalSold)), humanize.CommafWithDigits(totalEarnings, m.cfg.PricePrecision)))
	if fee != 0 {
		m.msg.Message(player, feeText(fee))
	}
	m.emit(newTradeEvent(player, wareID, "sell", totalSold, totalEarnings, fee))
	return nil
}

// sellingFee returns the fee owed on sale proceeds. Negative results are
// subsidies, zeroed when the fee collection account cannot cover them.
func (m *Market) sellingFee(earnings float64) float64 {
	fee := m.cfg.FeeSelling
	if fee == 0 || earnings <= 0 {
		return 0
	}
	amount := fee
	if m.cfg.FeeSellingIsMult {
		amount = m.crv.Truncate(earnings * fee)
	}
	if amount < 0 && !m.acct.CanCoverSubsidy(-amount) {
		return 0
	}
	return amount
}

// atPriceFloor reports whether a ware's current sell price has fallen to its
// floor. Linked wares hit the floor when every component has.
func (m *Market) atPriceFloor(w *ware.Ware) bool {
	if w.Kind == ware.Linked {
		return m.crv.LinkedQuantityUntilExcessive(w) <= 0
	}
	return m.crv.Price(w, 1, pricing.CurrentSell) <= m.crv.Price(w, 1, pricing.FloorSell)
}
