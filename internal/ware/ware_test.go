package ware

import (
	"math"
	"testing"
)

func TestMaterialStockClampsAtZero(t *testing.T) {
	w := NewMaterial("test:ore", "", 4, 0, 3)
	w.SubtractQuantity(5)
	if got := w.Quantity(); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

// linkedFixture builds a derived ware over two resolved components:
// 3 units of A and 4 of B per recipe, 2 units produced per application.
func linkedFixture(t *testing.T, stockA, stockB int) (*Ware, *Ware, *Ware) {
	t.Helper()
	a := NewMaterial("test:a", "", 1, 0, stockA)
	b := NewMaterial("test:b", "", 1, 0, stockB)
	l := NewLinked("test:derived", "", 0, []string{"test:a", "test:b"}, []int{3, 4}, 2)
	l.Components = []*Ware{a, b}
	l.PriceBase = 3.5
	return l, a, b
}

func TestLinkedQuantityBindsOnScarcestComponent(t *testing.T) {
	l, _, _ := linkedFixture(t, 9, 20)
	// A allows 3 recipe applications, B allows 5; 3 * yield 2 = 6.
	if got := l.Quantity(); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

func TestLinkedSetQuantitySplitsRemainder(t *testing.T) {
	l, a, b := linkedFixture(t, 0, 0)
	l.SetQuantity(9)
	// Four whole recipe applications (8 units) plus remainder 1.
	if got := l.Remainder(); got != 1 {
		t.Errorf("remainder %d, want 1", got)
	}
	if got := a.Quantity(); got != 12 {
		t.Errorf("component a %d, want 12", got)
	}
	if got := b.Quantity(); got != 16 {
		t.Errorf("component b %d, want 16", got)
	}
	if got := l.Quantity(); got != 9 {
		t.Errorf("quantity %d, want 9", got)
	}
}

func TestLinkedSetQuantityZeroClearsEverything(t *testing.T) {
	l, a, b := linkedFixture(t, 9, 20)
	l.SetRemainder(1)
	l.SetQuantity(0)
	if l.Remainder() != 0 || a.Quantity() != 0 || b.Quantity() != 0 || l.Quantity() != 0 {
		t.Errorf("remainder %d, a %d, b %d, quantity %d; want all 0",
			l.Remainder(), a.Quantity(), b.Quantity(), l.Quantity())
	}
}

// Many small additions must land on exactly the state one large addition
// produces: the remainder carry makes fractional recipe progress lossless.
func TestLinkedSmallAddsEqualOneBigAdd(t *testing.T) {
	small, sa, sb := linkedFixture(t, 30, 40)
	big, ba, bb := linkedFixture(t, 30, 40)

	for i := 0; i < 7; i++ {
		small.AddQuantity(1)
	}
	big.AddQuantity(7)

	if sa.Quantity() != ba.Quantity() || sb.Quantity() != bb.Quantity() {
		t.Errorf("components diverged: a %d vs %d, b %d vs %d",
			sa.Quantity(), ba.Quantity(), sb.Quantity(), bb.Quantity())
	}
	if small.Remainder() != big.Remainder() {
		t.Errorf("remainders diverged: %d vs %d", small.Remainder(), big.Remainder())
	}
	if small.Quantity() != big.Quantity() {
		t.Errorf("quantities diverged: %d vs %d", small.Quantity(), big.Quantity())
	}
}

// Mixed-sign deltas must also be order-independent: a negative running
// remainder normalizes the same way the aggregate delta would.
func TestLinkedMixedSignAddsMatchAggregate(t *testing.T) {
	build := func() (*Ware, *Ware, *Ware) {
		a := NewMaterial("test:a", "", 1, 0, 300)
		b := NewMaterial("test:b", "", 1, 0, 400)
		l := NewLinked("test:derived", "", 0, []string{"test:a", "test:b"}, []int{3, 4}, 3)
		l.Components = []*Ware{a, b}
		l.PriceBase = 2
		return l, a, b
	}

	seq, sa, sb := build()
	for _, d := range []int{2, 2, 2, 2, -7} {
		seq.AddQuantity(d)
	}
	agg, aa, ab := build()
	agg.AddQuantity(1) // Same net delta in one call

	if r := seq.Remainder(); r < 0 || r >= 3 {
		t.Errorf("remainder %d outside [0, 3)", r)
	}
	if sa.Quantity() != aa.Quantity() || sb.Quantity() != ab.Quantity() {
		t.Errorf("components diverged: a %d vs %d, b %d vs %d",
			sa.Quantity(), aa.Quantity(), sb.Quantity(), ab.Quantity())
	}
	if seq.Remainder() != agg.Remainder() {
		t.Errorf("remainders diverged: %d vs %d", seq.Remainder(), agg.Remainder())
	}
	if seq.Quantity() != agg.Quantity() {
		t.Errorf("quantities diverged: %d vs %d", seq.Quantity(), agg.Quantity())
	}
}

func TestLinkedAddPropagatesWholeRecipes(t *testing.T) {
	l, a, b := linkedFixture(t, 30, 40)
	l.AddQuantity(7)
	// Three whole recipe applications propagate; remainder keeps 1.
	if got := a.Quantity(); got != 39 {
		t.Errorf("component a %d, want 39", got)
	}
	if got := b.Quantity(); got != 52 {
		t.Errorf("component b %d, want 52", got)
	}
	if got := l.Remainder(); got != 1 {
		t.Errorf("remainder %d, want 1", got)
	}
}

func TestLinkedSubtractDrawsFromComponents(t *testing.T) {
	l, a, b := linkedFixture(t, 30, 40)
	before := l.Quantity()
	l.SubtractQuantity(4)
	if got := l.Quantity(); got != before-4 {
		t.Errorf("quantity %d, want %d", got, before-4)
	}
	if got := a.Quantity(); got != 24 {
		t.Errorf("component a %d, want 24", got)
	}
	if got := b.Quantity(); got != 32 {
		t.Errorf("component b %d, want 32", got)
	}
}

func TestLinkedUnresolvedComponentsIsInert(t *testing.T) {
	l := NewLinked("test:derived", "", 0, []string{"test:missing"}, []int{2}, 1)
	l.AddQuantity(5)
	l.SetQuantity(9)
	if got := l.Quantity(); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := l.Remainder(); got != 0 {
		t.Errorf("remainder %d, want 0", got)
	}
}

func TestValidity(t *testing.T) {
	if w := NewMaterial("test:ore", "", 4, 0, 1); !w.Valid() {
		t.Error("priced material reported invalid")
	}
	if w := NewMaterial("test:ore", "", math.NaN(), 0, 1); w.Valid() {
		t.Error("NaN-priced material reported valid")
	}
	if l := NewLinked("test:derived", "", 0, []string{"x"}, []int{1}, 1); l.Valid() {
		t.Error("unresolved linked ware reported valid")
	}
}

func TestChangedFlag(t *testing.T) {
	w := NewMaterial("test:ore", "", 4, 0, 1)
	if w.Changed() {
		t.Fatal("fresh ware already flagged")
	}
	w.AddQuantity(1)
	if !w.Changed() {
		t.Fatal("mutation did not flag the ware")
	}
	w.ClearChanged()
	if w.Changed() {
		t.Fatal("flag survived ClearChanged")
	}
}

func TestName(t *testing.T) {
	if got := NewMaterial("test:ore", "ore", 4, 0, 1).Name(); got != "ore" {
		t.Errorf("got %q, want alias", got)
	}
	if got := NewMaterial("test:ore", "", 4, 0, 1).Name(); got != "test:ore" {
		t.Errorf("got %q, want identifier", got)
	}
}
