// Package ware provides the ware data model and the registry that owns it.
// Wares come in three kinds sharing an identifier/alias/price/level contract
// but differing in quantity semantics: materials store stock directly, linked
// wares compute stock from their components, untradeable wares have none.
package ware

import (
	"math"
)

// Kind discriminates the ware variants.
type Kind uint8

const (
	Material    Kind = iota // Plain stored stock
	Linked                  // Stock derived from component wares
	Untradeable             // Reference price only, no market stock
)

// KindName returns a human-readable kind label for diagnostics.
func KindName(k Kind) string {
	switch k {
	case Material:
		return "material"
	case Linked:
		return "linked"
	case Untradeable:
		return "untradeable"
	default:
		return "unknown"
	}
}

// Ware is a tradeable (or untradeable) good. PriceBase is NaN exactly when
// the ware failed to load or a component is missing; such wares are excluded
// from statistics and from all trading.
type Ware struct {
	ID        string  // Unique identifier, immutable after creation
	Alias     string  // Optional unique display alias
	Kind      Kind
	PriceBase float64 // NaN = invalid/unloaded
	Level     uint8   // 0..5, selects stock thresholds
	Yield     int     // Units produced per recipe application (>= 1)

	// Material payload.
	stock int

	// Component recipe. For linked wares this is the ratio vector the stock
	// is derived through; for materials it marks the ware manufacturable.
	ComponentIDs []string
	Ratios       []int
	Components   []*Ware // Resolved by the registry, nil until then

	// ComponentsPriceMult is the cached "components affect price" multiplier
	// for manufactured wares, refreshed by the marketplace. 1.0 = neutral.
	ComponentsPriceMult float64

	// remainder carries the fractional part of linked-ware mutations between
	// calls so repeated small adjustments are lossless. Always |r| < Yield.
	remainder int

	changed bool
}

// NewMaterial creates a material ware with the given starting stock.
func NewMaterial(id, alias string, price float64, level uint8, quantity int) *Ware {
	return &Ware{
		ID:                  id,
		Alias:               alias,
		Kind:                Material,
		PriceBase:           price,
		Level:               level,
		Yield:               1,
		stock:               quantity,
		ComponentsPriceMult: 1.0,
	}
}

// NewLinked creates a linked ware deriving its stock from the given
// components at the given per-component ratios. Yield must be positive.
func NewLinked(id, alias string, level uint8, componentIDs []string, ratios []int, yield int) *Ware {
	if yield < 1 {
		yield = 1
	}
	return &Ware{
		ID:                  id,
		Alias:               alias,
		Kind:                Linked,
		PriceBase:           math.NaN(), // Derived from components on resolve
		Level:               level,
		Yield:               yield,
		ComponentIDs:        componentIDs,
		Ratios:              ratios,
		ComponentsPriceMult: 1.0,
	}
}

// NewUntradeable creates a ware with a reference price but no market stock.
func NewUntradeable(id, alias string, price float64, level uint8) *Ware {
	return &Ware{
		ID:                  id,
		Alias:               alias,
		Kind:                Untradeable,
		PriceBase:           price,
		Level:               level,
		Yield:               1,
		ComponentsPriceMult: 1.0,
	}
}

// Valid reports whether the ware loaded completely. Invalid wares never trade.
func (w *Ware) Valid() bool {
	return w != nil && !math.IsNaN(w.PriceBase)
}

// Manufacturable reports whether the ware declares a component recipe it can
// be crafted from.
func (w *Ware) Manufacturable() bool {
	return len(w.ComponentIDs) > 0
}

// HasValidComponents reports whether every component is resolved and loaded.
func (w *Ware) HasValidComponents() bool {
	if len(w.Components) != len(w.ComponentIDs) {
		return false
	}
	for _, c := range w.Components {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// Name returns the alias when set, the identifier otherwise.
func (w *Ware) Name() string {
	if w.Alias != "" {
		return w.Alias
	}
	return w.ID
}

// Changed reports whether the ware was mutated since the last save.
func (w *Ware) Changed() bool { return w.changed }

// MarkChanged flags the ware for the next save pass.
func (w *Ware) MarkChanged() { w.changed = true }

// ClearChanged resets the save flag after a successful save.
func (w *Ware) ClearChanged() { w.changed = false }

// Remainder exposes the linked-ware fractional carry for persistence.
func (w *Ware) Remainder() int { return w.remainder }

// SetRemainder restores a persisted fractional carry.
func (w *Ware) SetRemainder(r int) { w.remainder = r }

// Quantity returns the stock available for sale. For linked wares this is
// the binding component constraint: min(componentStock / ratio) recipe
// applications, times yield, plus the carried remainder.
func (w *Ware) Quantity() int {
	switch w.Kind {
	case Material:
		return w.stock
	case Linked:
		if !w.HasValidComponents() {
			return 0
		}
		recipes := math.MaxInt
		for i, c := range w.Components {
			n := c.Quantity() / w.Ratios[i]
			if n < recipes {
				recipes = n
			}
		}
		return recipes*w.Yield + w.remainder
	default:
		return 0
	}
}

// SetQuantity sets the stock to q. Linked wares split q into whole recipe
// applications plus a remainder and push the whole part to every component.
// A linked ware with an unresolved component ignores the call rather than
// corrupting partial state.
func (w *Ware) SetQuantity(q int) {
	switch w.Kind {
	case Material:
		if q < 0 {
			q = 0
		}
		w.stock = q
		w.changed = true
	case Linked:
		if !w.HasValidComponents() {
			return
		}
		if q == 0 {
			w.remainder = 0
			for _, c := range w.Components {
				c.SetQuantity(0)
			}
			w.changed = true
			return
		}
		w.remainder = q % w.Yield
		whole := q - w.remainder
		for i, c := range w.Components {
			c.SetQuantity(whole / w.Yield * w.Ratios[i])
		}
		w.changed = true
	}
}

// AddQuantity increases stock by delta (negative delta decreases it).
// Linked wares accumulate into the remainder first, extract whole recipe
// applications, and only then propagate to components — which is what makes
// many small trades exactly equivalent to one large trade in aggregate.
func (w *Ware) AddQuantity(delta int) {
	switch w.Kind {
	case Material:
		w.stock += delta
		if w.stock < 0 {
			w.stock = 0
		}
		w.changed = true
	case Linked:
		if !w.HasValidComponents() {
			return
		}
		w.remainder += delta
		// Floored division: the remainder normalizes into [0, yield) even
		// when a negative delta drives the running total below zero, so any
		// call sequence lands on the same aggregate state.
		recipes := w.remainder / w.Yield
		if w.remainder%w.Yield < 0 {
			recipes--
		}
		w.remainder -= recipes * w.Yield
		if recipes != 0 {
			for i, c := range w.Components {
				c.AddQuantity(recipes * w.Ratios[i])
			}
		}
		w.changed = true
	}
}

// SubtractQuantity decreases stock by delta.
func (w *Ware) SubtractQuantity(delta int) {
	w.AddQuantity(-delta)
}
