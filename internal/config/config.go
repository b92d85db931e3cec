// Package config loads marketplace tunables from YAML into an immutable
// snapshot that is passed explicitly into the pricing, market, and trader
// layers. Nothing reads configuration through globals.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Levels is the number of ware hierarchy levels (0..5).
const Levels = 6

// Snapshot holds every tunable the engine consumes. Treated as immutable
// after Load; a config reload produces a fresh snapshot.
type Snapshot struct {
	// Price curve.
	PriceMult            float64 `yaml:"price_mult"`              // Global scale applied to all prices
	PriceSpread          float64 `yaml:"price_spread"`            // 1.0 = no spread dampening
	PriceBuyUpchargeMult float64 `yaml:"price_buy_upcharge_mult"` // Extra multiplier on purchases
	PriceFloor           float64 `yaml:"price_floor"`             // Fraction of base price at excessive stock
	PriceCeiling         float64 `yaml:"price_ceiling"`           // Multiple of base price at deficient stock
	PricePrecision       int     `yaml:"price_precision"`         // Decimal places, truncated not rounded

	// Stock thresholds per hierarchy level. Deficient <= Equilibrium <= Excessive.
	QuanDeficient   [Levels]int `yaml:"quan_deficient"`
	QuanEquilibrium [Levels]int `yaml:"quan_equilibrium"`
	QuanExcessive   [Levels]int `yaml:"quan_excessive"`

	PricesIgnoreSupplyAndDemand bool `yaml:"prices_ignore_supply_and_demand"`

	// Manufacturing.
	BuyingOutOfStock      bool    `yaml:"buying_out_of_stock"`       // Craft shortfalls during purchases
	BuyingOutOfStockPrice float64 `yaml:"buying_out_of_stock_price"` // Cost multiplier on crafted units
	ComponentsAffectPrice bool    `yaml:"components_affect_price"`   // Manufactured prices track component prices
	MaxCraftingDepth      int     `yaml:"max_crafting_depth"`        // Forward-reference resolution bound

	// Transaction fees. Negative values are subsidies paid from the fee
	// collection account when it can cover them.
	FeeBuying            float64 `yaml:"fee_buying"`
	FeeBuyingIsMult      bool    `yaml:"fee_buying_is_mult"`
	FeeSelling           float64 `yaml:"fee_selling"`
	FeeSellingIsMult     bool    `yaml:"fee_selling_is_mult"`
	FeeCollectionAccount string  `yaml:"fee_collection_account"`

	// Selling.
	NoGarbageDisposing bool `yaml:"no_garbage_disposing"` // Refuse sales at the price floor

	// AI traders.
	ActiveAIs              []string      `yaml:"active_ais"`
	AIProfessionsPath      string        `yaml:"ai_professions_path"`
	AITradeQuantityPercent float64       `yaml:"ai_trade_quantity_percent"`
	AIRandomness           float64       `yaml:"ai_randomness"`
	AITickInterval         time.Duration `yaml:"ai_tick_interval"`
	AIStockCeiling         bool          `yaml:"ai_stock_ceiling"` // Skip selling into excessive stock

	// Accounts.
	StartingBalance float64 `yaml:"starting_balance"` // Balance of newly created personal accounts
}

// Default returns a snapshot with the stock tunables the engine ships with.
func Default() *Snapshot {
	return &Snapshot{
		PriceMult:            1.0,
		PriceSpread:          1.0,
		PriceBuyUpchargeMult: 1.0,
		PriceFloor:           0.0,
		PriceCeiling:         2.0,
		PricePrecision:       2,
		QuanDeficient:        [Levels]int{4096, 2048, 1536, 1024, 768, 512},
		QuanEquilibrium:      [Levels]int{16384, 9216, 5120, 3072, 2048, 1024},
		QuanExcessive:        [Levels]int{65536, 43008, 14336, 6144, 3584, 2048},

		BuyingOutOfStock:      false,
		BuyingOutOfStockPrice: 1.10,
		MaxCraftingDepth:      10,

		FeeCollectionAccount: "cumulativeEconomy",

		AITradeQuantityPercent: 0.05,
		AIRandomness:           0.05,
		AITickInterval:         time.Minute,
		AIStockCeiling:         true,

		StartingBalance: 100.0,
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (*Snapshot, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects snapshots the pricing math cannot operate on.
func (c *Snapshot) Validate() error {
	if c.PriceFloor < 0 || c.PriceFloor > 1 {
		return fmt.Errorf("price_floor %.2f outside [0, 1]", c.PriceFloor)
	}
	if c.PriceCeiling < 1 {
		return fmt.Errorf("price_ceiling %.2f below 1", c.PriceCeiling)
	}
	if c.PriceMult <= 0 {
		return fmt.Errorf("price_mult %.2f must be positive", c.PriceMult)
	}
	if c.PricePrecision < 0 || c.PricePrecision > 8 {
		return fmt.Errorf("price_precision %d outside [0, 8]", c.PricePrecision)
	}
	for lvl := 0; lvl < Levels; lvl++ {
		d, e, x := c.QuanDeficient[lvl], c.QuanEquilibrium[lvl], c.QuanExcessive[lvl]
		if d < 0 || d > e || e > x {
			return fmt.Errorf("level %d thresholds not ordered: deficient %d <= equilibrium %d <= excessive %d",
				lvl, d, e, x)
		}
		if e == d || x == e {
			return fmt.Errorf("level %d thresholds must be strictly increasing", lvl)
		}
	}
	if c.MaxCraftingDepth < 1 {
		return fmt.Errorf("max_crafting_depth %d must be at least 1", c.MaxCraftingDepth)
	}
	if c.AITradeQuantityPercent < 0 || c.AITradeQuantityPercent > 1 {
		return fmt.Errorf("ai_trade_quantity_percent %.2f outside [0, 1]", c.AITradeQuantityPercent)
	}
	if c.AIRandomness < 0 {
		return fmt.Errorf("ai_randomness %.2f must not be negative", c.AIRandomness)
	}
	if c.AITickInterval < time.Second {
		return fmt.Errorf("ai_tick_interval %s below 1s", c.AITickInterval)
	}
	return nil
}

// TradeQuantities returns the per-level quantity an AI trader moves per
// decision: floor(percent * equilibrium). Recomputed whenever the snapshot
// changes, never per trade.
func (c *Snapshot) TradeQuantities() [Levels]int {
	var out [Levels]int
	for lvl := 0; lvl < Levels; lvl++ {
		out[lvl] = int(c.AITradeQuantityPercent * float64(c.QuanEquilibrium[lvl]))
	}
	return out
}
