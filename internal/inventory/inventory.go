// Package inventory provides the in-memory inventory collaborator: slot
// based containers with per-stack quantity and a quality/wear factor. The
// marketplace only sees the contract; a game integration would replace this
// with real container I/O.
package inventory

import (
	"fmt"
	"sync"

	"github.com/danielvanorman/commandeconomy-sub003/internal/market"
)

// DefaultCapacity is the slot count of containers created on first use.
const DefaultCapacity = 36

// DefaultStackSize is the per-slot unit limit for goods without an explicit
// stack size.
const DefaultStackSize = 64

type stack struct {
	id      string
	qty     int
	quality float64
}

type container struct {
	capacity int
	slots    []stack
}

// Store holds all containers. Safe for concurrent use independently of the
// market lock, per the collaborator contract.
type Store struct {
	mu         sync.Mutex
	containers map[string]*container
	stackSizes map[string]int
}

// NewStore creates an empty inventory store.
func NewStore() *Store {
	return &Store{
		containers: make(map[string]*container),
		stackSizes: make(map[string]int),
	}
}

// SetStackSize overrides the per-slot unit limit for one good.
func (s *Store) SetStackSize(id string, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stackSizes[id] = size
}

func (s *Store) get(loc string) *container {
	c, ok := s.containers[loc]
	if !ok {
		c = &container{capacity: DefaultCapacity}
		s.containers[loc] = c
	}
	return c
}

// Space returns the number of free slots in a container.
func (s *Store) Space(loc string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(loc)
	return c.capacity - len(c.slots)
}

// MaxStackSize returns how many units of a good fit in one slot.
func (s *Store) MaxStackSize(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size, ok := s.stackSizes[id]; ok {
		return size
	}
	return DefaultStackSize
}

// Give inserts n units of a good, topping up existing pristine stacks before
// opening new slots.
func (s *Store) Give(loc, id string, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(loc)
	limit := s.stackSizes[id]
	if limit == 0 {
		limit = DefaultStackSize
	}

	for i := range c.slots {
		st := &c.slots[i]
		if st.id != id || st.quality != 1.0 || st.qty >= limit {
			continue
		}
		take := min(n, limit-st.qty)
		st.qty += take
		n -= take
		if n == 0 {
			return nil
		}
	}
	for n > 0 {
		if len(c.slots) >= c.capacity {
			return fmt.Errorf("container %q is full, %d units lost", loc, n)
		}
		take := min(n, limit)
		c.slots = append(c.slots, stack{id: id, qty: take, quality: 1.0})
		n -= take
	}
	return nil
}

// Take removes n units of a good, draining front stacks first.
func (s *Store) Take(loc, id string, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(loc)

	remaining := n
	kept := c.slots[:0]
	for _, st := range c.slots {
		if st.id != id || remaining == 0 {
			kept = append(kept, st)
			continue
		}
		take := min(remaining, st.qty)
		st.qty -= take
		remaining -= take
		if st.qty > 0 {
			kept = append(kept, st)
		}
	}
	c.slots = kept
	if remaining > 0 {
		return fmt.Errorf("container %q held %d of %d %s requested", loc, n-remaining, n, id)
	}
	return nil
}

// Held enumerates a container's stacks of one good (empty id = everything).
func (s *Store) Held(loc, id string) []market.Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(loc)
	var out []market.Stack
	for _, st := range c.slots {
		if id != "" && st.id != id {
			continue
		}
		out = append(out, market.Stack{ID: st.id, Quantity: st.qty, Quality: st.quality})
	}
	return out
}

// GiveWorn inserts a stack with a quality/wear factor below 1.0, used by
// tests and the damaged-goods path.
func (s *Store) GiveWorn(loc, id string, n int, quality float64) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(loc)
	if len(c.slots) >= c.capacity {
		return fmt.Errorf("container %q is full", loc)
	}
	c.slots = append(c.slots, stack{id: id, qty: n, quality: quality})
	return nil
}

// Count returns the total units of a good held in a container.
func (s *Store) Count(loc, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(loc)
	total := 0
	for _, st := range c.slots {
		if st.id == id {
			total += st.qty
		}
	}
	return total
}
