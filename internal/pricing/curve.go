// Package pricing implements the supply-and-demand price curve: price
// computation for a ware at a given quantity on the market, and the inverse
// operations (quantity purchasable for a budget, quantity until a target
// price is reached). Everything here is a pure function of a ware's static
// attributes, the config snapshot, and the registry's load-time statistics.
package pricing

import (
	"math"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Type selects which price a computation returns.
type Type uint8

const (
	CurrentBuy Type = iota
	CurrentSell
	EquilibriumBuy
	EquilibriumSell
	FloorBuy
	FloorSell
	CeilingBuy
	CeilingSell
)

// IsBuy reports whether the price type is a purchase price.
func (t Type) IsBuy() bool {
	return t == CurrentBuy || t == EquilibriumBuy || t == FloorBuy || t == CeilingBuy
}

// MinWorkingPrice is the clamp applied to any price used as a divisor,
// bounding ratio blowup at extreme scarcity.
const MinWorkingPrice = 0.01

// EverythingSellable is the quantity bound returned when a target sell price
// is at or below the price floor, where the curve never drops further.
const EverythingSellable = math.MaxInt32

// Curve evaluates prices against one config snapshot and one set of registry
// statistics. Zero-cost to copy; construct freshly after a reload.
type Curve struct {
	Cfg   *config.Snapshot
	Stats ware.Stats
}

// Truncate cuts a price to the configured decimal precision. Truncation, not
// rounding: repeated transactions must not accumulate float drift upward,
// and displayed prices must match compared prices exactly.
func (c Curve) Truncate(x float64) float64 {
	p10 := math.Pow(10, float64(c.Cfg.PricePrecision))
	return math.Trunc(x*p10) / p10
}

// unitBase returns the per-unit price with no quantity effect applied:
// base price plus spread adjustment, times the global multiplier, times the
// buy upcharge for purchases, times the cached component multiplier for
// manufactured wares when configured.
func (c Curve) unitBase(w *ware.Ware, buy bool) float64 {
	base := w.PriceBase
	adj := 0.0
	if c.Cfg.PriceSpread != 1 && base != 0 {
		adj = (c.Stats.PriceBaseMedian - base) * (1 - c.Cfg.PriceSpread)
	}
	p := (base + adj) * c.Cfg.PriceMult
	if buy {
		p *= c.Cfg.PriceBuyUpchargeMult
	}
	if c.Cfg.ComponentsAffectPrice && w.Manufacturable() && w.ComponentsPriceMult > 0 {
		p *= w.ComponentsPriceMult
	}
	return p
}

// thresholds returns the deficient/equilibrium/excessive stock levels for a
// hierarchy level.
func (c Curve) thresholds(level uint8) (d, e, x int) {
	if int(level) >= config.Levels {
		level = config.Levels - 1
	}
	return c.Cfg.QuanDeficient[level], c.Cfg.QuanEquilibrium[level], c.Cfg.QuanExcessive[level]
}

// multiplier returns the unit-price multiplier at integer stock position p:
// flat ceiling below deficient, linear down to 1.0 at equilibrium, linear
// down to the floor at excessive, flat floor beyond.
func (c Curve) multiplier(level uint8, p int) float64 {
	d, e, x := c.thresholds(level)
	switch {
	case p < d:
		return c.Cfg.PriceCeiling
	case p < e:
		return 1 + (c.Cfg.PriceCeiling-1)*float64(e-p)/float64(e-d)
	case p < x:
		return 1 - (1-c.Cfg.PriceFloor)*float64(p-e)/float64(x-e)
	default:
		return c.Cfg.PriceFloor
	}
}

// sumMultipliers sums the unit-price multiplier over integer stock positions
// [start, start+n). Within each linear quadrant the sum collapses to a
// trapezoid (exact for a linear function over integer positions), so the
// whole walk is O(1) regardless of n.
func (c Curve) sumMultipliers(level uint8, start, n int) float64 {
	if n <= 0 {
		return 0
	}
	end := start + n
	d, e, x := c.thresholds(level)
	total := 0.0

	// Flat ceiling below the deficient threshold.
	if start < d {
		hi := min(end, d)
		total += float64(hi-start) * c.Cfg.PriceCeiling
	}
	// Rising quadrant: deficient up to equilibrium.
	if lo, hi := max(start, d), min(end, e); hi > lo {
		total += float64(hi-lo) * (c.multiplier(level, lo) + c.multiplier(level, hi-1)) / 2
	}
	// Falling quadrant: equilibrium up to excessive. Position e itself prices
	// at exactly 1.0.
	if lo, hi := max(start, e), min(end, x); hi > lo {
		total += float64(hi-lo) * (c.multiplier(level, lo) + c.multiplier(level, hi-1)) / 2
	}
	// Flat floor at and beyond excessive.
	if end > x {
		lo := max(start, x)
		total += float64(end-lo) * c.Cfg.PriceFloor
	}
	return total
}

// Price returns the total price of qty units of w at the requested price
// type. The result is truncated to the configured precision and never less
// than the corresponding floor price.
func (c Curve) Price(w *ware.Ware, qty int, t Type) float64 {
	if w == nil || qty <= 0 {
		return 0
	}

	// Untradeable wares have no curve: everything resolves to the
	// equilibrium buy price.
	if w.Kind == ware.Untradeable {
		return c.Truncate(float64(qty) * c.unitBase(w, true))
	}

	// Linked wares price as the sum of their components at the mapped
	// component quantities, per yield unit, for current prices.
	if w.Kind == ware.Linked && (t == CurrentBuy || t == CurrentSell) {
		if !w.HasValidComponents() {
			return c.Truncate(float64(qty) * c.unitBase(w, t.IsBuy()))
		}
		sum := 0.0
		for i, comp := range w.Components {
			sum += c.Price(comp, qty*w.Ratios[i], t)
		}
		return c.Truncate(sum / float64(w.Yield))
	}

	buy := t.IsBuy()
	unit := c.unitBase(w, buy)
	floorTotal := c.Truncate(float64(qty) * unit * c.Cfg.PriceFloor)

	var total float64
	switch t {
	case EquilibriumBuy, EquilibriumSell:
		total = float64(qty) * unit
	case CeilingBuy, CeilingSell:
		total = float64(qty) * unit * c.Cfg.PriceCeiling
	case FloorBuy, FloorSell:
		return floorTotal
	case CurrentBuy, CurrentSell:
		if c.Cfg.PricesIgnoreSupplyAndDemand {
			total = float64(qty) * unit
			break
		}
		q := w.Quantity()
		start := q
		priced := qty
		if t == CurrentBuy {
			// Buying removes future availability: the range shifts down so a
			// buy followed by a sell of the same unit covers the same
			// positions (reciprocity at the boundary).
			start = q - qty
			if start < 0 && c.Cfg.BuyingOutOfStock && w.Manufacturable() && w.HasValidComponents() {
				// Fold manufacturing cost for the out-of-stock shortfall.
				shortfall := -start
				total += float64(shortfall) * c.ManufacturedUnitPrice(w, true)
				start = 0
				priced = q
			}
		}
		total += unit * c.sumMultipliers(w.Level, start, priced)
	}

	total = c.Truncate(total)
	if total < floorTotal {
		total = floorTotal
	}
	return total
}

// ManufacturedUnitPrice returns the per-unit cost of crafting w from its
// components at their equilibrium prices, scaled by the out-of-stock penalty.
func (c Curve) ManufacturedUnitPrice(w *ware.Ware, buy bool) float64 {
	if !w.HasValidComponents() {
		return math.NaN()
	}
	sum := 0.0
	for i, comp := range w.Components {
		sum += c.unitBase(comp, buy) * float64(w.Ratios[i])
	}
	return sum / float64(w.Yield) * c.Cfg.BuyingOutOfStockPrice
}

// RefreshComponentsPriceMult recomputes the cached multiplier that lets a
// manufactured ware's price track its components' current prices. No-op when
// the feature is disabled or the recipe is unresolved.
func (c Curve) RefreshComponentsPriceMult(w *ware.Ware) {
	if !c.Cfg.ComponentsAffectPrice || !w.Manufacturable() || !w.HasValidComponents() {
		w.ComponentsPriceMult = 1.0
		return
	}
	current, equilibrium := 0.0, 0.0
	for i, comp := range w.Components {
		current += c.Price(comp, w.Ratios[i], CurrentSell)
		equilibrium += c.Price(comp, w.Ratios[i], EquilibriumSell)
	}
	if equilibrium < MinWorkingPrice {
		w.ComponentsPriceMult = 1.0
		return
	}
	mult := current / equilibrium
	if mult < c.Cfg.PriceFloor {
		mult = c.Cfg.PriceFloor
	}
	if mult > c.Cfg.PriceCeiling {
		mult = c.Cfg.PriceCeiling
	}
	w.ComponentsPriceMult = mult
}

// PurchasableQuantity returns how many units of w a budget can buy at the
// current buy price, walking the quadrants in reverse order from the current
// stock position. Where a quadrant would exceed the remaining budget, the
// exact quantity inside it is solved with the quadratic formula derived from
// that quadrant's linear-price integral. Never negative, never more than the
// quantity in stock.
func (c Curve) PurchasableQuantity(w *ware.Ware, budget float64) int {
	if w == nil || !w.Valid() || budget <= 0 {
		return 0
	}
	q := w.Quantity()
	if q <= 0 {
		return 0
	}

	if w.Kind == ware.Linked {
		// No single curve to invert: bound by the current per-unit price.
		unit := c.Price(w, 1, CurrentBuy)
		if unit < MinWorkingPrice {
			return q
		}
		n := int(budget / unit)
		return min(n, q)
	}

	unit := c.unitBase(w, true)
	if unit < MinWorkingPrice {
		return q // Effectively free: the whole stock is affordable.
	}
	if c.Cfg.PricesIgnoreSupplyAndDemand {
		return min(int(budget/unit), q)
	}

	d, e, x := c.thresholds(w.Level)
	remaining := budget / unit // Budget in multiplier units
	pos := q
	count := 0

	// Flat floor quadrant, at and above excessive.
	if pos > x {
		span := pos - x
		if c.Cfg.PriceFloor <= 0 {
			count += span
			pos = x
		} else {
			afford := int(remaining / c.Cfg.PriceFloor)
			if afford < span {
				return count + afford
			}
			count += span
			remaining -= float64(span) * c.Cfg.PriceFloor
			pos = x
		}
	}

	// Falling quadrant in reverse: excessive down to equilibrium.
	if pos > e {
		alpha := 1 + (1-c.Cfg.PriceFloor)*float64(e)/float64(x-e)
		beta := -(1 - c.Cfg.PriceFloor) / float64(x-e)
		n, exhausted := c.consumeLinear(pos, e, alpha, beta, &remaining, w.Level)
		count += n
		if exhausted {
			return count
		}
		pos = e
	}

	// Rising quadrant in reverse: equilibrium down to deficient.
	if pos > d {
		alpha := 1 + (c.Cfg.PriceCeiling-1)*float64(e)/float64(e-d)
		beta := -(c.Cfg.PriceCeiling - 1) / float64(e-d)
		n, exhausted := c.consumeLinear(pos, d, alpha, beta, &remaining, w.Level)
		count += n
		if exhausted {
			return count
		}
		pos = d
	}

	// Flat ceiling quadrant, down to empty stock.
	if pos > 0 {
		afford := int(remaining / c.Cfg.PriceCeiling)
		count += min(afford, pos)
	}
	return count
}

// consumeLinear buys downward through a linear quadrant with unit multiplier
// alpha + beta*p, from position hi down to lo. Returns units bought and
// whether the budget ran out inside the quadrant. The budget is in
// multiplier units and is decremented in place.
func (c Curve) consumeLinear(hi, lo int, alpha, beta float64, remaining *float64, level uint8) (int, bool) {
	span := hi - lo
	full := c.sumMultipliers(level, lo, span)
	if *remaining >= full {
		*remaining -= full
		return span, false
	}
	// Buying n units downward from hi covers positions hi-1 .. hi-n:
	//   sum = alpha*n + beta*n*(2*hi - n - 1)/2
	// Setting sum = remaining gives A*n^2 + B*n + C = 0 with the
	// coefficients below; beta < 0 so A > 0 and the positive root is the one
	// with the + discriminant.
	a := -beta / 2
	b := alpha + beta*(2*float64(hi)-1)/2
	cc := -*remaining
	disc := b*b - 4*a*cc
	if disc < 0 {
		return 0, true
	}
	n := int((-b + math.Sqrt(disc)) / (2 * a))
	if n < 0 {
		n = 0
	}
	if n > span {
		n = span
	}
	return n, true
}

// QuantityUntilPrice returns how many units can be bought (isPurchase) or
// sold before the per-unit price crosses target. Returns 0 when the current
// price already fails the target; returns the full stock (purchases) or
// EverythingSellable (sales) when the target sits at or beyond the
// ceiling/floor plateau.
func (c Curve) QuantityUntilPrice(w *ware.Ware, target float64, isPurchase bool) int {
	if w == nil || !w.Valid() {
		return 0
	}
	if c.Cfg.PricesIgnoreSupplyAndDemand {
		unit := c.unitBase(w, isPurchase)
		if isPurchase {
			if unit > target {
				return 0
			}
			return w.Quantity()
		}
		if unit < target {
			return 0
		}
		return EverythingSellable
	}

	q := w.Quantity()
	unit := c.unitBase(w, isPurchase)
	if unit < MinWorkingPrice {
		unit = MinWorkingPrice
	}
	mt := target / unit
	d, e, x := c.thresholds(w.Level)

	if isPurchase {
		if q <= 0 {
			return 0
		}
		if mt >= c.Cfg.PriceCeiling {
			return q // Even the scarcest unit is acceptable.
		}
		if mt < c.multiplier(w.Level, q-1) {
			return 0 // Next unit already too expensive.
		}
		// Smallest position whose multiplier is within the target; buying
		// may continue down to it.
		var pStar float64
		if mt >= 1 {
			pStar = float64(e) - (mt-1)*float64(e-d)/(c.Cfg.PriceCeiling-1)
		} else {
			pStar = float64(e) + (1-mt)*float64(x-e)/(1-c.Cfg.PriceFloor)
		}
		n := q - int(math.Ceil(pStar))
		if n < 0 {
			return 0
		}
		return min(n, q)
	}

	// Selling: price falls as stock rises.
	if mt <= c.Cfg.PriceFloor {
		return EverythingSellable
	}
	if c.multiplier(w.Level, q) < mt {
		return 0 // Already below the acceptable price.
	}
	var pStar float64
	if mt > 1 {
		pStar = float64(e) - (mt-1)*float64(e-d)/(c.Cfg.PriceCeiling-1)
	} else {
		pStar = float64(e) + (1-mt)*float64(x-e)/(1-c.Cfg.PriceFloor)
	}
	n := int(math.Floor(pStar)) - q + 1
	if n < 0 {
		return 0
	}
	return n
}

// LinkedQuantityUntilExcessive bounds how many units of a linked ware can be
// sold before a component reaches its excessive threshold (the linked price
// floor). Used by the AI in place of the generic curve bound.
func (c Curve) LinkedQuantityUntilExcessive(w *ware.Ware) int {
	if w.Kind != ware.Linked || !w.HasValidComponents() {
		return 0
	}
	recipes := math.MaxInt
	for i, comp := range w.Components {
		_, _, x := c.thresholds(comp.Level)
		room := (x - comp.Quantity()) / w.Ratios[i]
		if room < recipes {
			recipes = room
		}
	}
	if recipes < 0 {
		return 0
	}
	return recipes * w.Yield
}
