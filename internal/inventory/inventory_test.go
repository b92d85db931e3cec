package inventory

import "testing"

func TestGiveTopsUpBeforeOpeningSlots(t *testing.T) {
	s := NewStore()
	s.SetStackSize("test:ore", 10)

	if err := s.Give("alice", "test:ore", 7); err != nil {
		t.Fatalf("Give: %v", err)
	}
	if err := s.Give("alice", "test:ore", 7); err != nil {
		t.Fatalf("Give: %v", err)
	}
	// 14 units over a stack size of 10 occupy two slots.
	if got := s.Space("alice"); got != DefaultCapacity-2 {
		t.Errorf("space %d, want %d", got, DefaultCapacity-2)
	}
	if got := s.Count("alice", "test:ore"); got != 14 {
		t.Errorf("count %d, want 14", got)
	}
}

func TestGiveSkipsWornStacks(t *testing.T) {
	s := NewStore()
	s.SetStackSize("test:ore", 10)
	if err := s.GiveWorn("alice", "test:ore", 2, 0.5); err != nil {
		t.Fatalf("GiveWorn: %v", err)
	}
	if err := s.Give("alice", "test:ore", 3); err != nil {
		t.Fatalf("Give: %v", err)
	}

	held := s.Held("alice", "test:ore")
	if len(held) != 2 {
		t.Fatalf("held %d stacks, want 2 (worn stacks are never topped up)", len(held))
	}
	if held[0].Quality != 0.5 || held[0].Quantity != 2 {
		t.Errorf("worn stack = %+v", held[0])
	}
	if held[1].Quality != 1.0 || held[1].Quantity != 3 {
		t.Errorf("pristine stack = %+v", held[1])
	}
}

func TestGiveFailsWhenFull(t *testing.T) {
	s := NewStore()
	s.SetStackSize("test:ore", 1)

	if err := s.Give("alice", "test:ore", DefaultCapacity); err != nil {
		t.Fatalf("Give: %v", err)
	}
	if err := s.Give("alice", "test:ore", 1); err == nil {
		t.Error("overfull Give accepted")
	}
	if got := s.Space("alice"); got != 0 {
		t.Errorf("space %d, want 0", got)
	}
}

func TestTakeDrainsFrontStacksFirst(t *testing.T) {
	s := NewStore()
	s.SetStackSize("test:ore", 5)
	if err := s.Give("alice", "test:ore", 12); err != nil {
		t.Fatalf("Give: %v", err)
	}

	if err := s.Take("alice", "test:ore", 7); err != nil {
		t.Fatalf("Take: %v", err)
	}
	held := s.Held("alice", "test:ore")
	// The first stack of 5 drains away entirely, the second loses 2.
	if len(held) != 2 {
		t.Fatalf("held %d stacks, want 2", len(held))
	}
	if held[0].Quantity != 3 || held[1].Quantity != 2 {
		t.Errorf("stacks = %d/%d, want 3/2", held[0].Quantity, held[1].Quantity)
	}
	if got := s.Count("alice", "test:ore"); got != 5 {
		t.Errorf("count %d, want 5", got)
	}
}

func TestTakeReportsShortfall(t *testing.T) {
	s := NewStore()
	if err := s.Give("alice", "test:ore", 3); err != nil {
		t.Fatalf("Give: %v", err)
	}
	if err := s.Take("alice", "test:ore", 5); err == nil {
		t.Error("short Take accepted")
	}
}

func TestHeldFiltersAndEnumerates(t *testing.T) {
	s := NewStore()
	if err := s.Give("alice", "test:ore", 3); err != nil {
		t.Fatalf("Give: %v", err)
	}
	if err := s.Give("alice", "test:gem", 1); err != nil {
		t.Fatalf("Give: %v", err)
	}

	if got := len(s.Held("alice", "test:ore")); got != 1 {
		t.Errorf("filtered held %d stacks, want 1", got)
	}
	if got := len(s.Held("alice", "")); got != 2 {
		t.Errorf("unfiltered held %d stacks, want 2", got)
	}
	if got := len(s.Held("bob", "")); got != 0 {
		t.Errorf("empty container held %d stacks", got)
	}
}

func TestMaxStackSizeDefaultsAndOverrides(t *testing.T) {
	s := NewStore()
	if got := s.MaxStackSize("test:ore"); got != DefaultStackSize {
		t.Errorf("default stack size %d, want %d", got, DefaultStackSize)
	}
	s.SetStackSize("test:ore", 16)
	if got := s.MaxStackSize("test:ore"); got != 16 {
		t.Errorf("stack size %d, want 16", got)
	}
}
