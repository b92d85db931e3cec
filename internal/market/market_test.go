package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danielvanorman/commandeconomy-sub003/internal/config"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// testConfig mirrors the pricing tests: power-of-two thresholds keep every
// expected amount exact in floating point.
func testConfig() *config.Snapshot {
	cfg := config.Default()
	cfg.PriceFloor = 0.5
	cfg.PriceCeiling = 2.0
	cfg.PricePrecision = 2
	for lvl := 0; lvl < config.Levels; lvl++ {
		cfg.QuanDeficient[lvl] = 8
		cfg.QuanEquilibrium[lvl] = 16
		cfg.QuanExcessive[lvl] = 32
	}
	return cfg
}

type fakeInventory struct {
	counts map[string]map[string]int
	space  int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{counts: make(map[string]map[string]int), space: 36}
}

func (f *fakeInventory) Space(loc string) int       { return f.space }
func (f *fakeInventory) MaxStackSize(id string) int { return 64 }

func (f *fakeInventory) Give(loc, id string, n int) error {
	if f.counts[loc] == nil {
		f.counts[loc] = make(map[string]int)
	}
	f.counts[loc][id] += n
	return nil
}

func (f *fakeInventory) Take(loc, id string, n int) error {
	if f.counts[loc][id] < n {
		return fmt.Errorf("held %d of %d %s requested", f.counts[loc][id], n, id)
	}
	f.counts[loc][id] -= n
	return nil
}

func (f *fakeInventory) Held(loc, id string) []Stack {
	n := f.counts[loc][id]
	if n == 0 {
		return nil
	}
	return []Stack{{ID: id, Quantity: n, Quality: 1.0}}
}

type fakeAccounts struct {
	balances    map[string]float64
	feeDeposits float64
	subsidies   bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{balances: make(map[string]float64), subsidies: true}
}

func (f *fakeAccounts) key(account, player string) string {
	if account == "" {
		return player
	}
	return account
}

func (f *fakeAccounts) Balance(account, player string) (float64, error) {
	return f.balances[f.key(account, player)], nil
}

func (f *fakeAccounts) Debit(account, player string, amount float64) error {
	k := f.key(account, player)
	if f.balances[k] < amount {
		return fmt.Errorf("account %q holds %.2f, needs %.2f", k, f.balances[k], amount)
	}
	f.balances[k] -= amount
	return nil
}

func (f *fakeAccounts) Credit(account, player string, amount float64) error {
	f.balances[f.key(account, player)] += amount
	return nil
}

func (f *fakeAccounts) CanCoverSubsidy(amount float64) bool { return f.subsidies }

func (f *fakeAccounts) DepositFee(amount float64) { f.feeDeposits += amount }

type silentMessenger struct{}

func (silentMessenger) Message(user, text string) {}

func (silentMessenger) Error(user, text string) {}

type testHarness struct {
	mkt  *Market
	reg  *ware.Registry
	inv  *fakeInventory
	acct *fakeAccounts
}

func newHarness(t *testing.T, cfg *config.Snapshot, wares ...*ware.Ware) *testHarness {
	t.Helper()
	reg := ware.NewRegistry()
	for _, w := range wares {
		if err := reg.Add(w); err != nil {
			t.Fatalf("Add(%s): %v", w.ID, err)
		}
	}
	reg.ResolveComponents(cfg.MaxCraftingDepth)

	inv := newFakeInventory()
	acct := newFakeAccounts()
	return &testHarness{
		mkt:  New(cfg, reg, inv, acct, silentMessenger{}),
		reg:  reg,
		inv:  inv,
		acct: acct,
	}
}

func TestBuyClampsToStock(t *testing.T) {
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 10)
	h := newHarness(t, testConfig(), w)
	h.acct.balances["alice"] = 1000

	if err := h.mkt.Buy("alice", "alice", "", "test:ore", 50, 0, 0); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if got := w.Quantity(); got != 0 {
		t.Errorf("stock %d, want 0", got)
	}
	if got := h.inv.counts["alice"]["test:ore"]; got != 10 {
		t.Errorf("inventory %d, want 10", got)
	}
	// Positions 0..7 price at the ceiling (16.00 each); 8 and 9 start down
	// the rising quadrant at 16.00 and 15.00, totalling 159.00.
	if got := h.acct.balances["alice"]; got != 841 {
		t.Errorf("balance %v, want 841", got)
	}
}

func TestBuyLimitedByFunds(t *testing.T) {
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 16)
	h := newHarness(t, testConfig(), w)
	h.acct.balances["alice"] = 42

	if err := h.mkt.Buy("alice", "alice", "", "ore", 10, 0, 0); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	// Exactly four units cost 42.00 from equilibrium stock.
	if got := w.Quantity(); got != 12 {
		t.Errorf("stock %d, want 12", got)
	}
	if got := h.acct.balances["alice"]; got != 0 {
		t.Errorf("balance %v, want 0", got)
	}
	if got := h.inv.counts["alice"]["test:ore"]; got != 4 {
		t.Errorf("inventory %d, want 4", got)
	}
}

func TestBuyRespectsMaxUnitPrice(t *testing.T) {
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 16)
	h := newHarness(t, testConfig(), w)
	h.acct.balances["alice"] = 1000

	// Positions 15 and 14 cost 9.00 and 10.00; position 13 is over.
	if err := h.mkt.Buy("alice", "alice", "", "ore", 10, 10.00, 0); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if got := w.Quantity(); got != 14 {
		t.Errorf("stock %d, want 14", got)
	}
	// Too strict a cap is a silent no-op, not an error.
	before := h.acct.balances["alice"]
	if err := h.mkt.Buy("alice", "alice", "", "ore", 10, 0.50, 0); err != nil {
		t.Fatalf("Buy with strict cap: %v", err)
	}
	if got := h.acct.balances["alice"]; got != before {
		t.Errorf("strict cap still charged: %v -> %v", before, got)
	}
}

func TestBuyRefusals(t *testing.T) {
	cfg := testConfig()
	empty := ware.NewMaterial("test:empty", "", 8, 0, 0)
	fixed := ware.NewUntradeable("test:fixed", "", 8, 0)
	h := newHarness(t, cfg, empty, fixed)
	h.acct.balances["alice"] = 100

	if err := h.mkt.Buy("alice", "alice", "", "test:ghost", 1, 0, 0); !errors.Is(err, ErrWareNotFound) {
		t.Errorf("unknown ware: %v", err)
	}
	if err := h.mkt.Buy("alice", "alice", "", "test:fixed", 1, 0, 0); !errors.Is(err, ErrUntradeable) {
		t.Errorf("untradeable: %v", err)
	}
	if err := h.mkt.Buy("alice", "alice", "", "test:empty", 1, 0, 0); !errors.Is(err, ErrOutOfStock) {
		t.Errorf("out of stock: %v", err)
	}
}

func TestBuyPercentFeeChargedOnTop(t *testing.T) {
	cfg := testConfig()
	cfg.FeeBuying = 0.25
	cfg.FeeBuyingIsMult = true
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 16)
	h := newHarness(t, cfg, w)
	h.acct.balances["alice"] = 52.50

	if err := h.mkt.Buy("alice", "alice", "", "ore", 10, 0, 0); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	// The fee pre-adjustment leaves a 42.00 budget, which buys four units;
	// the 10.50 fee lands in the collection account.
	if got := w.Quantity(); got != 12 {
		t.Errorf("stock %d, want 12", got)
	}
	if got := h.acct.balances["alice"]; got != 0 {
		t.Errorf("balance %v, want 0", got)
	}
	if got := h.acct.feeDeposits; got != 10.50 {
		t.Errorf("fee deposits %v, want 10.50", got)
	}
}

func TestBuyManufacturesShortfall(t *testing.T) {
	cfg := testConfig()
	cfg.BuyingOutOfStock = true
	cfg.BuyingOutOfStockPrice = 1.5

	ore := ware.NewMaterial("test:ore", "", 8, 0, 16)
	coal := ware.NewMaterial("test:coal", "", 2, 0, 16)
	ingot := ware.NewMaterial("test:ingot", "ingot", 12, 0, 0)
	ingot.ComponentIDs = []string{"test:ore", "test:coal"}
	ingot.Ratios = []int{1, 1}
	h := newHarness(t, cfg, ore, coal, ingot)
	h.acct.balances["alice"] = 100

	if err := h.mkt.Buy("alice", "alice", "", "ingot", 2, 0, 0); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if got := h.inv.counts["alice"]["test:ingot"]; got != 2 {
		t.Errorf("inventory %d, want 2", got)
	}
	if ore.Quantity() != 14 || coal.Quantity() != 14 {
		t.Errorf("components %d/%d, want 14/14", ore.Quantity(), coal.Quantity())
	}
	// Two crafted units at (8+2)*1.5 each.
	if got := h.acct.balances["alice"]; got != 70 {
		t.Errorf("balance %v, want 70", got)
	}
}

func TestBuyManufacturesUnderPriceCap(t *testing.T) {
	cfg := testConfig()
	cfg.BuyingOutOfStock = true
	cfg.BuyingOutOfStockPrice = 1.5

	ore := ware.NewMaterial("test:ore", "", 8, 0, 16)
	coal := ware.NewMaterial("test:coal", "", 2, 0, 16)
	ingot := ware.NewMaterial("test:ingot", "ingot", 12, 0, 0)
	ingot.ComponentIDs = []string{"test:ore", "test:coal"}
	ingot.Ratios = []int{1, 1}
	h := newHarness(t, cfg, ore, coal, ingot)
	h.acct.balances["alice"] = 100

	// No stock to buy, but crafted units cost 15.00 each: a cap above that
	// still reaches the manufacturing fallback.
	if err := h.mkt.Buy("alice", "alice", "", "ingot", 2, 20.00, 0); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if got := h.inv.counts["alice"]["test:ingot"]; got != 2 {
		t.Errorf("inventory %d, want 2", got)
	}
	if got := h.acct.balances["alice"]; got != 70 {
		t.Errorf("balance %v, want 70", got)
	}

	// A cap below the crafted unit cost buys nothing and charges nothing.
	if err := h.mkt.Buy("alice", "alice", "", "ingot", 2, 10.00, 0); err != nil {
		t.Fatalf("Buy with low cap: %v", err)
	}
	if got := h.acct.balances["alice"]; got != 70 {
		t.Errorf("low cap still charged: balance %v", got)
	}
	if ore.Quantity() != 14 || coal.Quantity() != 14 {
		t.Errorf("low cap still consumed components: %d/%d", ore.Quantity(), coal.Quantity())
	}
}

func TestSellCreditsProceeds(t *testing.T) {
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 16)
	h := newHarness(t, testConfig(), w)
	h.inv.counts["alice"] = map[string]int{"test:ore": 4}

	if err := h.mkt.Sell("alice", "alice", "", "ore", 4, 0, 0); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if got := w.Quantity(); got != 20 {
		t.Errorf("stock %d, want 20", got)
	}
	if got := h.inv.counts["alice"]["test:ore"]; got != 0 {
		t.Errorf("inventory %d, want 0", got)
	}
	// Positions 16..19 sum to 30.50.
	if got := h.acct.balances["alice"]; got != 30.50 {
		t.Errorf("balance %v, want 30.50", got)
	}
}

func TestSellAtFloorRefusedWithoutGarbageDisposal(t *testing.T) {
	cfg := testConfig()
	cfg.NoGarbageDisposing = true
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 40)
	h := newHarness(t, cfg, w)
	h.inv.counts["alice"] = map[string]int{"test:ore": 5}

	err := h.mkt.Sell("alice", "alice", "", "ore", 5, 0, 0)
	if !errors.Is(err, ErrPriceFloor) {
		t.Fatalf("got %v, want ErrPriceFloor", err)
	}
	if got := w.Quantity(); got != 40 {
		t.Errorf("stock moved to %d", got)
	}
	if got := h.inv.counts["alice"]["test:ore"]; got != 5 {
		t.Errorf("inventory moved to %d", got)
	}
}

func TestSellRefusedWhenFlatFeeExceedsProceeds(t *testing.T) {
	cfg := testConfig()
	cfg.FeeSelling = 5.0
	cfg.FeeSellingIsMult = false
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 40)
	h := newHarness(t, cfg, w)
	h.inv.counts["alice"] = map[string]int{"test:ore": 1}

	// One glutted unit sells for 4.00, less than the flat fee.
	err := h.mkt.Sell("alice", "alice", "", "ore", 1, 0, 0)
	if !errors.Is(err, ErrFeeExceedsValue) {
		t.Fatalf("got %v, want ErrFeeExceedsValue", err)
	}
	if got := w.Quantity(); got != 40 {
		t.Errorf("stock moved to %d despite refusal", got)
	}
	if got := h.inv.counts["alice"]["test:ore"]; got != 1 {
		t.Errorf("goods taken despite refusal: %d left", got)
	}
	if got := h.acct.balances["alice"]; got != 0 {
		t.Errorf("balance moved to %v despite refusal", got)
	}
}

func TestSellFlatFeeChargedOnceWhenCleared(t *testing.T) {
	cfg := testConfig()
	cfg.FeeSelling = 5.0
	cfg.FeeSellingIsMult = false
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 40)
	h := newHarness(t, cfg, w)
	h.inv.counts["alice"] = map[string]int{"test:ore": 2}

	if err := h.mkt.Sell("alice", "alice", "", "ore", 2, 0, 0); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	// Proceeds 8.00 minus the 5.00 flat fee.
	if got := h.acct.balances["alice"]; got != 3 {
		t.Errorf("balance %v, want 3", got)
	}
	if got := h.acct.feeDeposits; got != 5 {
		t.Errorf("fee deposits %v, want 5", got)
	}
	if got := w.Quantity(); got != 42 {
		t.Errorf("stock %d, want 42", got)
	}
}

func TestSellWornGoodsDiscounted(t *testing.T) {
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 16)
	h := newHarness(t, testConfig(), w)

	records := []StockRecord{{W: w, InvID: "test:ore", Quantity: 4, Quality: 0.5}}
	h.inv.counts["alice"] = map[string]int{"test:ore": 4}
	if err := h.mkt.SellStock("alice", "alice", "", records, 0, 0); err != nil {
		t.Fatalf("SellStock: %v", err)
	}
	// Half of 30.50, truncated.
	if got := h.acct.balances["alice"]; got != 15.25 {
		t.Errorf("balance %v, want 15.25", got)
	}
}

func TestCheckReportsWithoutMutating(t *testing.T) {
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 16)
	h := newHarness(t, testConfig(), w)

	res, err := h.mkt.Check("ore", 4)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Quantity != 16 {
		t.Errorf("quantity %d, want 16", res.Quantity)
	}
	if res.UnitBuy != 9.00 {
		t.Errorf("unit buy %v, want 9.00", res.UnitBuy)
	}
	if res.UnitSell != 8.00 {
		t.Errorf("unit sell %v, want 8.00", res.UnitSell)
	}
	if res.Equilibrium != 8.00 {
		t.Errorf("equilibrium %v, want 8.00", res.Equilibrium)
	}
	if res.TotalBuy != 42.00 {
		t.Errorf("total buy %v, want 42.00", res.TotalBuy)
	}
	if res.TotalSell != 30.50 {
		t.Errorf("total sell %v, want 30.50", res.TotalSell)
	}
	if got := w.Quantity(); got != 16 {
		t.Errorf("Check mutated stock to %d", got)
	}
}

func TestApplyTradeBatchClampsBothSides(t *testing.T) {
	cfg := testConfig()
	cfg.NoGarbageDisposing = true
	scarce := ware.NewMaterial("test:scarce", "", 8, 0, 10)
	glut := ware.NewMaterial("test:glut", "", 8, 0, 16)
	h := newHarness(t, cfg, scarce, glut)

	var events []TradeEvent
	h.mkt.SetOnTrade(func(ev TradeEvent) { events = append(events, ev) })

	h.mkt.ApplyTradeBatch("ai", TradeBatch{scarce: -50, glut: +100})

	if got := scarce.Quantity(); got != 0 {
		t.Errorf("scarce stock %d, want 0 (clamped buyout)", got)
	}
	// Sales stop one position short of the floor.
	if got := glut.Quantity(); got != 32 {
		t.Errorf("glut stock %d, want 32", got)
	}
	if len(events) != 2 {
		t.Fatalf("events %d, want 2", len(events))
	}
}

func TestTradeBatchMerge(t *testing.T) {
	w1 := ware.NewMaterial("test:a", "", 1, 0, 1)
	w2 := ware.NewMaterial("test:b", "", 1, 0, 1)

	a := TradeBatch{w1: -3, w2: +2}
	a.Merge(TradeBatch{w1: -1, w2: -2})
	if a[w1] != -4 {
		t.Errorf("w1 delta %d, want -4", a[w1])
	}
	if a[w2] != 0 {
		t.Errorf("w2 delta %d, want 0", a[w2])
	}
}

func TestSwapReplacesRegistry(t *testing.T) {
	w := ware.NewMaterial("test:ore", "ore", 8, 0, 16)
	h := newHarness(t, testConfig(), w)

	fresh := ware.NewRegistry()
	if err := fresh.Add(ware.NewMaterial("test:gem", "gem", 20, 0, 5)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	fresh.ResolveComponents(1)

	h.mkt.Swap(fresh)
	if _, err := h.mkt.Check("ore", 0); !errors.Is(err, ErrWareNotFound) {
		t.Errorf("old ware still resolves after swap: %v", err)
	}
	if _, err := h.mkt.Check("gem", 0); err != nil {
		t.Errorf("new ware missing after swap: %v", err)
	}
}

func TestVariantFallbackKeepsCompoundID(t *testing.T) {
	w := ware.NewMaterial("test:pickaxe", "pickaxe", 8, 0, 16)
	h := newHarness(t, testConfig(), w)
	h.acct.balances["alice"] = 1000

	if err := h.mkt.Buy("alice", "alice", "", "test:pickaxe&worn", 1, 0, 0); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	// The marketplace trades the base ware but hands the inventory the
	// compound identifier the caller asked for.
	if got := h.inv.counts["alice"]["test:pickaxe&worn"]; got != 1 {
		t.Errorf("compound-ID units %d, want 1", got)
	}
	if got := w.Quantity(); got != 15 {
		t.Errorf("base stock %d, want 15", got)
	}
}
