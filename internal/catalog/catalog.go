// Package catalog loads ware definitions from JSON, validates them against
// an embedded JSON schema, and builds the registry. Reloading builds a
// fresh registry that the marketplace swaps in wholesale.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Definition is one ware entry in the catalog file.
type Definition struct {
	Kind       string      `json:"kind"` // "material", "linked", "untradeable"
	ID         string      `json:"id"`
	Alias      string      `json:"alias,omitempty"`
	Price      *float64    `json:"price,omitempty"` // Omitted = derived from components
	Level      uint8       `json:"level,omitempty"`
	Quantity   *int        `json:"quantity,omitempty"` // Omitted = equilibrium for the level
	Yield      int         `json:"yield,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Component is one ingredient of a manufacturable or linked ware.
type Component struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"`
}

type catalogFile struct {
	Wares []Definition `json:"wares"`
}

var schema = jsonschema.MustCompileString("wares.schema.json", `{
	"type": "object",
	"required": ["wares"],
	"properties": {
		"wares": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["kind", "id"],
				"properties": {
					"kind": {"enum": ["material", "linked", "untradeable"]},
					"id": {"type": "string", "minLength": 1},
					"alias": {"type": "string"},
					"price": {"type": "number", "minimum": 0},
					"level": {"type": "integer", "minimum": 0, "maximum": 5},
					"quantity": {"type": "integer", "minimum": 0},
					"yield": {"type": "integer", "minimum": 1},
					"components": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["id", "amount"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"amount": {"type": "integer", "minimum": 1}
							}
						}
					}
				}
			}
		}
	}
}`)

// Load reads, validates, and decodes a catalog file, then builds a resolved
// registry. Individual invalid entries are rejected with a logged error
// without aborting the load.
func Load(path string, cfg *config.Snapshot) (*ware.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	return Build(f.Wares, cfg), nil
}

// Build constructs and resolves a registry from decoded definitions.
func Build(defs []Definition, cfg *config.Snapshot) *ware.Registry {
	reg := ware.NewRegistry()
	accepted := 0
	for _, def := range defs {
		w, err := fromDefinition(def, cfg)
		if err != nil {
			slog.Error("ware rejected", "id", def.ID, "error", err)
			continue
		}
		if err := reg.Add(w); err != nil {
			slog.Error("ware rejected", "id", def.ID, "error", err)
			continue
		}
		accepted++
	}

	reg.ResolveComponents(cfg.MaxCraftingDepth)

	stats := reg.Stats()
	slog.Info("ware catalog loaded",
		"wares", humanize.Comma(int64(accepted)),
		"rejected", len(defs)-accepted,
		"median_price", humanize.CommafWithDigits(stats.PriceBaseMedian, cfg.PricePrecision),
		"average_price", humanize.CommafWithDigits(stats.PriceBaseAverage, cfg.PricePrecision),
		"median_quantity", stats.QuantityMedian,
	)
	return reg
}

func fromDefinition(def Definition, cfg *config.Snapshot) (*ware.Ware, error) {
	level := def.Level
	if int(level) >= config.Levels {
		return nil, fmt.Errorf("level %d out of range", level)
	}
	yield := def.Yield
	if yield < 1 {
		yield = 1
	}

	compIDs, ratios := splitComponents(def.Components)

	switch def.Kind {
	case "material":
		if def.Price == nil && len(compIDs) == 0 {
			return nil, fmt.Errorf("material ware needs a price or components")
		}
		quantity := cfg.QuanEquilibrium[level]
		if def.Quantity != nil {
			quantity = *def.Quantity
		}
		price := math.NaN() // Derived from components during resolution
		if def.Price != nil {
			price = *def.Price
		}
		w := ware.NewMaterial(def.ID, def.Alias, price, level, quantity)
		w.ComponentIDs = compIDs
		w.Ratios = ratios
		w.Yield = yield
		return w, nil

	case "linked":
		if len(compIDs) == 0 {
			return nil, fmt.Errorf("linked ware needs components")
		}
		return ware.NewLinked(def.ID, def.Alias, level, compIDs, ratios, yield), nil

	case "untradeable":
		if def.Price == nil && len(compIDs) == 0 {
			return nil, fmt.Errorf("untradeable ware needs a price or components")
		}
		price := math.NaN()
		if def.Price != nil {
			price = *def.Price
		}
		w := ware.NewUntradeable(def.ID, def.Alias, price, level)
		w.ComponentIDs = compIDs
		w.Ratios = ratios
		return w, nil

	default:
		return nil, fmt.Errorf("unknown ware kind %q", def.Kind)
	}
}

func splitComponents(comps []Component) ([]string, []int) {
	if len(comps) == 0 {
		return nil, nil
	}
	ids := make([]string, len(comps))
	ratios := make([]int, len(comps))
	for i, c := range comps {
		ids[i] = c.ID
		ratios[i] = c.Amount
	}
	return ids, ratios
}
