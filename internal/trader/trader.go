// Package trader implements the AI trading engine: artificial traders that
// score purchasable and sellable wares by desirability each tick, select the
// best decision (or top K via a bounded heap), and stage quantity deltas
// into a batch the marketplace applies atomically.
package trader

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/market"
	"github.com/danielvanorman/commandeconomy-sub003/internal/pricing"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Profession is one AI template from the professions file.
type Profession struct {
	Purchasables []string           `yaml:"purchasables"`
	Sellables    []string           `yaml:"sellables"`
	Preferences  map[string]float64 `yaml:"preferences"`
}

// professionsFile is the on-disk shape of the professions config.
type professionsFile struct {
	Professions map[string]*Profession `yaml:"professions"`
}

// LoadProfessions reads the AI professions YAML file.
func LoadProfessions(path string) (map[string]*Profession, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("professions: %w", err)
	}
	var f professionsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("professions %s: %w", path, err)
	}
	return f.Professions, nil
}

// AI is one active artificial trader. Ware references are resolved at build
// time and re-bound whenever the registry reloads, since wares are swapped
// out wholesale.
type AI struct {
	Name      string
	Decisions int // Trade decisions per tick, aggregated across activations

	purchasableIDs []string
	sellableIDs    []string
	preferences    map[string]float64 // Keyed by resolved ware ID, 1.0 = neutral

	purchasables []*ware.Ware
	sellables    []*ware.Ware
}

// BuildAIs constructs the active traders from the professions table and the
// active roster. Repeating a profession in the roster aggregates its
// decision count. Unknown ware IDs in buy/sell lists are dropped with a
// warning; a preference referencing a ware outside both lists is a hard
// validation error and the whole AI is skipped.
func BuildAIs(profs map[string]*Profession, active []string, reg *ware.Registry) []*AI {
	counts := make(map[string]int)
	var order []string
	for _, name := range active {
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}

	var ais []*AI
	for _, name := range order {
		prof, ok := profs[name]
		if !ok {
			slog.Error("active AI has no profession entry", "ai", name)
			continue
		}
		ai, err := newAI(name, prof, counts[name], reg)
		if err != nil {
			slog.Error("AI failed to load", "ai", name, "error", err)
			continue
		}
		ais = append(ais, ai)
	}
	return ais
}

func newAI(name string, prof *Profession, decisions int, reg *ware.Registry) (*AI, error) {
	ai := &AI{
		Name:        name,
		Decisions:   decisions,
		preferences: make(map[string]float64),
	}

	keep := func(ids []string, side string) []string {
		var kept []string
		for _, id := range ids {
			if _, ok := reg.Resolve(id); !ok {
				slog.Warn("AI references unknown ware", "ai", name, "side", side, "ware", id)
				continue
			}
			kept = append(kept, id)
		}
		return kept
	}
	ai.purchasableIDs = keep(prof.Purchasables, "buy")
	ai.sellableIDs = keep(prof.Sellables, "sell")

	// Preferences must reference wares the AI actually trades.
	tradeable := make(map[string]bool)
	for _, id := range append(append([]string{}, ai.purchasableIDs...), ai.sellableIDs...) {
		if w, ok := reg.Resolve(id); ok {
			tradeable[w.ID] = true
		}
	}
	for id, pref := range prof.Preferences {
		w, ok := reg.Resolve(id)
		if !ok || !tradeable[w.ID] {
			return nil, fmt.Errorf("preference for %q references a ware outside the buy/sell lists", id)
		}
		ai.preferences[w.ID] = pref
	}

	ai.Rebind(reg)
	return ai, nil
}

// Rebind re-resolves the trader's ware references against a (re)loaded
// registry.
func (a *AI) Rebind(reg *ware.Registry) {
	resolve := func(ids []string) []*ware.Ware {
		out := make([]*ware.Ware, 0, len(ids))
		for _, id := range ids {
			if w, ok := reg.Resolve(id); ok && w.Valid() {
				out = append(out, w)
			}
		}
		return out
	}
	a.purchasables = resolve(a.purchasableIDs)
	a.sellables = resolve(a.sellableIDs)
}

// preference returns the trader's bias for a ware, 1.0 when unset.
func (a *AI) preference(w *ware.Ware) float64 {
	if p, ok := a.preferences[w.ID]; ok {
		return p
	}
	return 1.0
}

// decision is one scored trade candidate.
type decision struct {
	w            *ware.Ware
	desirability float64
	buy          bool
}

// Trade scores every candidate ware and returns this trader's staged deltas
// for the tick. The batch is owned by the caller; nothing shared is mutated.
func (a *AI) Trade(crv pricing.Curve, cfg *config.Snapshot, rng *rand.Rand, tradeQty [config.Levels]int) market.TradeBatch {
	batch := make(market.TradeBatch)
	if a.Decisions <= 0 {
		return batch
	}

	stage := func(d decision) {
		qty := tradeQty[d.w.Level]
		if qty <= 0 {
			return
		}
		if d.buy {
			batch[d.w] -= qty
		} else {
			batch[d.w] += qty
		}
	}

	if a.Decisions == 1 {
		best, ok := a.bestDecision(crv, cfg, rng)
		if ok {
			stage(best)
		}
		return batch
	}

	top := a.topDecisions(crv, cfg, rng, a.Decisions)
	if len(top) == 0 {
		return batch
	}
	// Consume round-robin: when the trader wants more decisions than there
	// are distinct candidates, it repeats its best picks.
	for staged, i := 0, 0; staged < a.Decisions; staged, i = staged+1, (i+1)%len(top) {
		stage(top[i])
	}
	return batch
}

// bestDecision linearly scans both candidate sets keeping the single highest
// desirability. Ties keep the first seen.
func (a *AI) bestDecision(crv pricing.Curve, cfg *config.Snapshot, rng *rand.Rand) (decision, bool) {
	best := decision{desirability: -1}
	found := false
	a.scoreAll(crv, cfg, rng, func(d decision) {
		if !found || d.desirability > best.desirability {
			best = d
			found = true
		}
	})
	return best, found
}

// topDecisions keeps the K most desirable candidates in a bounded min-heap,
// returned sorted descending.
func (a *AI) topDecisions(crv pricing.Curve, cfg *config.Snapshot, rng *rand.Rand, k int) []decision {
	h := newDecisionHeap(k)
	a.scoreAll(crv, cfg, rng, h.offer)
	out := h.drain()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].desirability > out[j].desirability
	})
	return out
}

// scoreAll computes desirability for every buy and sell candidate.
// Buying favors wares priced below equilibrium; selling favors wares priced
// above it. Randomness is drawn per candidate per tick and the preference
// bias is applied last. Working prices clamp to 0.01 before division.
func (a *AI) scoreAll(crv pricing.Curve, cfg *config.Snapshot, rng *rand.Rand, visit func(decision)) {
	noise := func() float64 {
		if cfg.AIRandomness <= 0 {
			return 0
		}
		return rng.Float64() * cfg.AIRandomness
	}

	for _, w := range a.purchasables {
		if !w.Valid() || w.Quantity() <= 0 {
			continue
		}
		current := crv.Price(w, 1, pricing.CurrentBuy)
		if current < pricing.MinWorkingPrice {
			current = pricing.MinWorkingPrice
		}
		equilibrium := crv.Price(w, 1, pricing.EquilibriumBuy)
		visit(decision{
			w:            w,
			desirability: (equilibrium/current + noise()) * a.preference(w),
			buy:          true,
		})
	}

	for _, w := range a.sellables {
		if !w.Valid() {
			continue
		}
		if cfg.AIStockCeiling && a.stockCeilingReached(crv, cfg, w) {
			continue
		}
		equilibrium := crv.Price(w, 1, pricing.EquilibriumSell)
		if equilibrium < pricing.MinWorkingPrice {
			equilibrium = pricing.MinWorkingPrice
		}
		current := crv.Price(w, 1, pricing.CurrentSell)
		visit(decision{
			w:            w,
			desirability: (current/equilibrium + noise()) * a.preference(w),
			buy:          false,
		})
	}
}

// stockCeilingReached reports whether selling more of the ware is pointless:
// material stock at or past excessive, or for derived wares no room left
// before a component hits its own bound.
func (a *AI) stockCeilingReached(crv pricing.Curve, cfg *config.Snapshot, w *ware.Ware) bool {
	if w.Kind == ware.Linked {
		return crv.LinkedQuantityUntilExcessive(w) <= 0
	}
	level := w.Level
	if int(level) >= config.Levels {
		level = config.Levels - 1
	}
	return w.Quantity() >= cfg.QuanExcessive[level]
}
