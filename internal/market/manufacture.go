package market

import (
	"math"

	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// componentCrafter is the default Manufacturer: it produces wares by
// consuming their components' market stock in whole recipe applications.
// Callers hold the market lock.
type componentCrafter struct {
	m *Market
}

func (c *componentCrafter) Manufacture(w *ware.Ware, shortfall int, budget float64, space int) (float64, int) {
	if shortfall <= 0 || space <= 0 || budget <= 0 {
		return 0, 0
	}
	if !w.Manufacturable() || !w.HasValidComponents() {
		return 0, 0
	}

	unit := c.m.crv.ManufacturedUnitPrice(w, true)
	if math.IsNaN(unit) || unit <= 0 {
		return 0, 0
	}

	n := shortfall
	if n > space {
		n = space
	}
	if afford := int(budget / unit); afford < n {
		n = afford
	}

	// Whole recipe applications only, bounded by component stock.
	recipes := n / w.Yield
	for i, comp := range w.Components {
		if available := comp.Quantity() / w.Ratios[i]; available < recipes {
			recipes = available
		}
	}
	if recipes <= 0 {
		return 0, 0
	}

	for i, comp := range w.Components {
		comp.SubtractQuantity(recipes * w.Ratios[i])
	}
	produced := recipes * w.Yield
	cost := c.m.crv.Truncate(float64(produced) * unit)
	return cost, produced
}
