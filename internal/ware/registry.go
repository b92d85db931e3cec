package ware

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
)

// VariantDelimiter splits a compound identifier into base ID and variant
// suffix. Unregistered compound IDs fall back to their base ware, but the
// compound ID is preserved for external inventory operations.
const VariantDelimiter = "&"

// Stats holds the population statistics the price curve consumes, computed
// once per bulk load. Untradeable and linked wares are excluded.
type Stats struct {
	PriceBaseMedian  float64
	PriceBaseAverage float64
	QuantityMedian   [config.Levels]int // Median starting quantity per hierarchy level
}

// Registry owns the authoritative identifier -> ware mapping plus alias and
// variant resolution. Iteration order is stable (insertion order) so saves
// and reports are deterministic. The registry itself is not synchronized;
// the marketplace's lock guards concurrent mutation.
type Registry struct {
	wares   map[string]*Ware
	order   []string
	aliases map[string]string // alias -> identifier
	stats   Stats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		wares:   make(map[string]*Ware),
		aliases: make(map[string]string),
	}
}

// Add registers a ware. Duplicate identifiers or aliases are rejected.
func (r *Registry) Add(w *Ware) error {
	if w.ID == "" {
		return fmt.Errorf("ware with empty identifier")
	}
	if _, dup := r.wares[w.ID]; dup {
		return fmt.Errorf("duplicate ware identifier %q", w.ID)
	}
	if w.Alias != "" {
		if prev, dup := r.aliases[w.Alias]; dup {
			return fmt.Errorf("alias %q of %q already taken by %q", w.Alias, w.ID, prev)
		}
		r.aliases[w.Alias] = w.ID
	}
	r.wares[w.ID] = w
	r.order = append(r.order, w.ID)
	return nil
}

// Resolve finds a ware by identifier, alias, or variant-base fallback.
// A ware found invalid after load (NaN base price) is evicted and reported,
// not returned.
func (r *Registry) Resolve(id string) (*Ware, bool) {
	w := r.lookup(id)
	if w == nil {
		return nil, false
	}
	if !w.Valid() && w.Kind != Linked {
		// Linked wares with broken dependencies stay registered for
		// diagnostics; anything else invalid is evicted lazily.
		r.evict(w)
		return nil, false
	}
	return w, true
}

func (r *Registry) lookup(id string) *Ware {
	if w, ok := r.wares[id]; ok {
		return w
	}
	if target, ok := r.aliases[id]; ok {
		return r.wares[target]
	}
	// Variant fallback: strip the suffix and try the base ID both ways.
	if idx := strings.Index(id, VariantDelimiter); idx > 0 {
		base := id[:idx]
		if w, ok := r.wares[base]; ok {
			return w
		}
		if target, ok := r.aliases[base]; ok {
			return r.wares[target]
		}
	}
	return nil
}

func (r *Registry) evict(w *Ware) {
	slog.Error("evicting invalid ware", "id", w.ID, "kind", KindName(w.Kind))
	delete(r.wares, w.ID)
	if w.Alias != "" {
		delete(r.aliases, w.Alias)
	}
	for i, id := range r.order {
		if id == w.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Wares returns all registered wares in stable insertion order.
func (r *Registry) Wares() []*Ware {
	out := make([]*Ware, 0, len(r.order))
	for _, id := range r.order {
		if w, ok := r.wares[id]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Len returns the number of registered wares.
func (r *Registry) Len() int { return len(r.wares) }

// Changed returns every ware flagged as mutated since the last save.
func (r *Registry) Changed() []*Ware {
	var out []*Ware
	for _, id := range r.order {
		if w := r.wares[id]; w != nil && w.Changed() {
			out = append(out, w)
		}
	}
	return out
}

// Stats returns the statistics computed by the last ResolveComponents pass.
func (r *Registry) Stats() Stats { return r.stats }

// ResolveComponents runs the fixed-point component resolution pass over all
// registered wares, bounded by maxDepth iterations to allow forward
// references and derived-of-derived chains, then recomputes population
// statistics. Wares still unresolved after the bound keep their NaN price
// and are reported; they stay registered for diagnostics but never trade.
func (r *Registry) ResolveComponents(maxDepth int) {
	pending := make([]*Ware, 0)
	for _, id := range r.order {
		w := r.wares[id]
		if w.Manufacturable() {
			w.Components = nil // Re-resolved from scratch on reload
			pending = append(pending, w)
		}
	}

	for depth := 0; depth < maxDepth && len(pending) > 0; depth++ {
		next := pending[:0:0]
		for _, w := range pending {
			if !r.resolveWare(w) {
				next = append(next, w)
			}
		}
		if len(next) == len(pending) {
			// No progress this pass; further iterations cannot help.
			pending = next
			break
		}
		pending = next
	}

	for _, w := range pending {
		slog.Error("ware components unresolved past max depth",
			"id", w.ID, "missing", r.firstMissing(w))
	}

	r.computeStats()
}

// resolveWare binds component pointers and derives the base price for wares
// priced from their recipe. Returns false when a component is missing or not
// yet priced.
func (r *Registry) resolveWare(w *Ware) bool {
	comps := make([]*Ware, len(w.ComponentIDs))
	for i, cid := range w.ComponentIDs {
		c := r.lookup(cid)
		if c == nil || !c.Valid() {
			return false
		}
		comps[i] = c
	}
	w.Components = comps

	if w.Kind == Linked || math.IsNaN(w.PriceBase) {
		// Derived base price: components at their ratios, per yield unit.
		sum := 0.0
		for i, c := range comps {
			sum += c.PriceBase * float64(w.Ratios[i])
		}
		w.PriceBase = sum / float64(w.Yield)
	}
	return true
}

func (r *Registry) firstMissing(w *Ware) string {
	for _, cid := range w.ComponentIDs {
		c := r.lookup(cid)
		if c == nil || !c.Valid() {
			return cid
		}
	}
	return ""
}

// computeStats recalculates median/average base price across valid material
// wares, and the median starting quantity per hierarchy level.
func (r *Registry) computeStats() {
	var prices []float64
	var quantities [config.Levels][]int
	for _, id := range r.order {
		w := r.wares[id]
		if w.Kind != Material || !w.Valid() {
			continue
		}
		prices = append(prices, w.PriceBase)
		lvl := int(w.Level)
		if lvl >= config.Levels {
			lvl = config.Levels - 1
		}
		quantities[lvl] = append(quantities[lvl], w.Quantity())
	}
	if len(prices) == 0 {
		r.stats = Stats{}
		return
	}

	sort.Float64s(prices)
	sum := 0.0
	for _, p := range prices {
		sum += p
	}

	stats := Stats{
		PriceBaseMedian:  median(prices),
		PriceBaseAverage: sum / float64(len(prices)),
	}
	for lvl, qs := range quantities {
		if len(qs) == 0 {
			continue
		}
		sort.Ints(qs)
		stats.QuantityMedian[lvl] = qs[len(qs)/2]
	}
	r.stats = stats
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
