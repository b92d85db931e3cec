package market

import (
	"github.com/danielvanorman/commandeconomy-sub003/internal/pricing"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// TradeBatch accumulates signed quantity deltas per ware across all AI
// traders within one trading tick: negative deltas are purchases, positive
// deltas are sales. Scoring builds batches without touching the market;
// application happens once, atomically.
type TradeBatch map[*ware.Ware]int

// Merge folds another batch's deltas into this one.
func (b TradeBatch) Merge(other TradeBatch) {
	for w, delta := range other {
		b[w] += delta
	}
}

// ApplyTradeBatch applies every accumulated delta under one lock
// acquisition. Buy deltas clamp to available stock (partial buyout when
// insufficient); sell deltas clamp, under noGarbageDisposing, to the
// quantity remaining before the price floor, skipping wares already there.
// Positive fees are summed and deposited once at the end; negative
// (subsidy) fees are withdrawn per-ware when the fee collection account can
// cover them.
func (m *Market) ApplyTradeBatch(actor string, batch TradeBatch) {
	var events []TradeEvent
	totalFees := 0.0

	m.mu.Lock()
	for w, delta := range batch {
		if delta == 0 || w == nil || !w.Valid() {
			continue
		}

		if delta < 0 {
			// Purchase: clamp to stock.
			n := min(-delta, w.Quantity())
			if n <= 0 {
				continue
			}
			price := m.crv.Price(w, n, pricing.CurrentBuy)
			w.SubtractQuantity(n)
			fee := m.buyingFee(price)
			if fee > 0 {
				totalFees += fee
			} else if fee < 0 {
				m.acct.DepositFee(fee)
			}
			events = append(events, newTradeEvent(actor, w.ID, "ai", -n, price, fee))
			continue
		}

		// Sale: clamp to the room left before the price floor.
		n := delta
		if m.cfg.NoGarbageDisposing {
			room := m.floorRoom(w)
			if room <= 0 {
				continue
			}
			if n > room {
				n = room
			}
		}
		price := m.crv.Price(w, n, pricing.CurrentSell)
		w.AddQuantity(n)
		fee := m.sellingFee(price)
		if fee > 0 {
			totalFees += fee
		} else if fee < 0 {
			m.acct.DepositFee(fee)
		}
		events = append(events, newTradeEvent(actor, w.ID, "ai", n, price, fee))
	}
	if totalFees > 0 {
		m.acct.DepositFee(totalFees)
	}
	m.mu.Unlock()

	for _, ev := range events {
		m.emit(ev)
	}
}

// floorRoom returns how many units can be sold before the ware's price hits
// its floor. Linked wares use their component-stock bound instead of the
// generic curve bound.
func (m *Market) floorRoom(w *ware.Ware) int {
	if w.Kind == ware.Linked {
		return m.crv.LinkedQuantityUntilExcessive(w)
	}
	floorUnit := m.crv.Price(w, 1, pricing.FloorSell)
	if floorUnit < pricing.MinWorkingPrice {
		floorUnit = pricing.MinWorkingPrice
	}
	return m.crv.QuantityUntilPrice(w, floorUnit+pricing.MinWorkingPrice, false)
}
