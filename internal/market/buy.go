package market

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/danielvanorman/commandeconomy-sub003/internal/pricing"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// Buy purchases up to quantity units of a ware for a player. maxUnitPrice
// caps the acceptable per-unit price (<= 0 disables the cap); pricePercent
// scales the final price (1.0 = list price). The purchasable quantity is the
// minimum of the request, the max-price bound, stock, inventory space, and
// what the account can afford after fee pre-adjustment; shortfalls fall back
// to manufacturing when enabled. A zero-quantity outcome aborts silently —
// routine "buy up to X" attempts must not spam errors.
func (m *Market) Buy(player, invID, acctID, wareID string, quantity int, maxUnitPrice, pricePercent float64) error {
	if quantity <= 0 {
		return nil
	}
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
	ev, err := m.buyLocked(player, invID, acctID, w, invWareID, quantity, maxUnitPrice, pricePercent)
	m.mu.Unlock()
	if err != nil {
		m.msg.Error(player, refusalText(err, w.Name()))
		return err
	}
	if ev == nil {
		return nil // Silent no-op: nothing purchasable at the constraints.
	}

	m.msg.Message(player, fmt.Sprintf("Bought %s %s for $%s",
		humanize.Comma(int64(ev.Quantity)), w.Name(), humanize.CommafWithDigits(ev.Price, m.cfg.PricePrecision)))
	if ev.Fee != 0 {
		m.msg.Message(player, feeText(ev.Fee))
	}
	m.emit(*ev)
	return nil
}

func (m *Market) buyLocked(player, invID, acctID string, w *ware.Ware, invWareID string, quantity int, maxUnitPrice, pricePercent float64) (*TradeEvent, error) {
	m.crv.RefreshComponentsPriceMult(w)

	stock := w.Quantity()
	canManufacture := m.cfg.BuyingOutOfStock && w.Manufacturable() && w.HasValidComponents()
	if stock <= 0 && !canManufacture {
		return nil, ErrOutOfStock
	}

	qty := quantity

	// Max-unit-price bound on stock purchases: never buy at an unacceptable
	// price. Manufacturing applies the same cap to its own unit cost below,
	// so a cap that rules out all stock can still be satisfied by crafting.
	stockLimit := stock
	if maxUnitPrice > 0 {
		bound := m.crv.QuantityUntilPrice(w, maxUnitPrice/pricePercent, true)
		if bound < stockLimit {
			stockLimit = bound
		}
		if stockLimit <= 0 && !canManufacture {
			return nil, nil
		}
	}

	// Inventory space bound, converted through the external stack size.
	capacity := m.inv.Space(invID) * m.inv.MaxStackSize(invWareID)
	if capacity < qty {
		qty = capacity
	}
	if qty <= 0 {
		return nil, nil
	}

	fromStock := min(qty, stockLimit)
	if fromStock < 0 {
		fromStock = 0
	}

	funds, err := m.acct.Balance(acctID, player)
	if err != nil {
		slog.Error("account lookup failed", "account", acctID, "player", player, "error", err)
		return nil, ErrInsufficientFunds
	}
	budget := m.buyingBudget(funds)

	price := m.crv.Truncate(m.crv.Price(w, fromStock, pricing.CurrentBuy) * pricePercent)
	if price > budget {
		// Re-derive the affordable quantity and re-price.
		fromStock = m.crv.PurchasableQuantity(w, budget/pricePercent)
		if fromStock > qty {
			fromStock = qty
		}
		price = m.crv.Truncate(m.crv.Price(w, fromStock, pricing.CurrentBuy) * pricePercent)
	}

	// Manufacturing fallback for the remaining shortfall.
	produced := 0
	mfgCost := 0.0
	if fromStock < qty && canManufacture {
		unitCost := m.crv.ManufacturedUnitPrice(w, true) * pricePercent
		if maxUnitPrice <= 0 || unitCost <= maxUnitPrice {
			cost, n := m.mfg.Manufacture(w, qty-fromStock, (budget-price)/pricePercent, capacity-fromStock)
			mfgCost = m.crv.Truncate(cost * pricePercent)
			produced = n
		}
	}

	total := fromStock + produced
	if total <= 0 {
		return nil, nil
	}
	totalPrice := m.crv.Truncate(price + mfgCost)

	fee := m.buyingFee(totalPrice)
	if totalPrice+max(fee, 0) > funds {
		return nil, ErrInsufficientFunds
	}

	if err := m.acct.Debit(acctID, player, totalPrice); err != nil {
		return nil, ErrInsufficientFunds
	}
	w.SubtractQuantity(fromStock)
	if err := m.inv.Give(invID, invWareID, total); err != nil {
		// Undo: the inventory rejected the goods after funds and stock moved.
		w.AddQuantity(fromStock)
		_ = m.acct.Credit(acctID, player, totalPrice)
		slog.Error("inventory rejected purchase", "ware", invWareID, "quantity", total, "error", err)
		return nil, nil
	}
	m.settleFee(acctID, player, fee)

	ev := newTradeEvent(player, w.ID, "buy", total, totalPrice, fee)
	return &ev, nil
}

// buyingBudget pre-adjusts available funds for the configured buying fee:
// multiplicative fees shrink the effective budget, flat fees subtract
// directly, and negative (subsidy) fees widen it when the fee collection
// account can cover the difference.
func (m *Market) buyingBudget(funds float64) float64 {
	fee := m.cfg.FeeBuying
	if fee == 0 {
		return funds
	}
	var budget float64
	if m.cfg.FeeBuyingIsMult {
		budget = funds / (1 + fee)
	} else {
		budget = funds - fee
	}
	if budget < 0 {
		return 0
	}
	if budget > funds && !m.acct.CanCoverSubsidy(budget-funds) {
		return funds
	}
	return budget
}

// buyingFee returns the fee owed on a purchase of the given price. Negative
// results are subsidies, zeroed when the fee collection account cannot
// cover them.
func (m *Market) buyingFee(price float64) float64 {
	fee := m.cfg.FeeBuying
	if fee == 0 || price <= 0 {
		return 0
	}
	amount := fee
	if m.cfg.FeeBuyingIsMult {
		amount = m.crv.Truncate(price * fee)
	}
	if amount < 0 && !m.acct.CanCoverSubsidy(-amount) {
		return 0
	}
	return amount
}

// settleFee moves a computed fee between the player and the fee collection
// account: positive fees are charged on top of the price, negative fees pay
// the player a subsidy.
func (m *Market) settleFee(acctID, player string, fee float64) {
	if fee == 0 {
		return
	}
	if fee > 0 {
		if err := m.acct.Debit(acctID, player, fee); err != nil {
			slog.Warn("fee could not be charged", "account", acctID, "fee", fee, "error", err)
			return
		}
	} else {
		if err := m.acct.Credit(acctID, player, -fee); err != nil {
			slog.Warn("subsidy could not be paid", "account", acctID, "fee", fee, "error", err)
			return
		}
	}
	m.acct.DepositFee(fee)
}

func refusalText(err error, wareName string) string {
	switch err {
	case ErrWareNotFound:
		return fmt.Sprintf("%s could not be found in the marketplace", wareName)
	case ErrUntradeable:
		return fmt.Sprintf("%s cannot be bought or sold", wareName)
	case ErrOutOfStock:
		return fmt.Sprintf("%s is out of stock", wareName)
	case ErrInsufficientFunds:
		return "You do not have enough money"
	case ErrPriceFloor:
		return fmt.Sprintf("%s is at its price floor and cannot be sold", wareName)
	case ErrFeeExceedsValue:
		return "The transaction fee would exceed the sale's value"
	case ErrNothingToSell:
		return fmt.Sprintf("You have no %s to sell", wareName)
	default:
		return err.Error()
	}
}

func feeText(fee float64) string {
	if fee > 0 {
		return fmt.Sprintf("Transaction fee: $%s", humanize.Commaf(fee))
	}
	return fmt.Sprintf("Transaction subsidy: $%s", humanize.Commaf(-fee))
}
