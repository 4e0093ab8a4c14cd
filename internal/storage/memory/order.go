package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xenking/eshop/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

type orderEntry struct {
	mu sync.Mutex
	o  *order.Order
}

// OrderStore is an in-memory order.Repository. Updates to one order do not
// block reads or writes of other orders.
type OrderStore struct {
	mu      sync.RWMutex
	entries map[int64]*orderEntry
	lastID  atomic.Int64
}

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{entries: make(map[int64]*orderEntry)}
}

// Save inserts or replaces o. A zero ID is assigned.
func (s *OrderStore) Save(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == 0 {
		o.ID = s.lastID.Add(1)
	} else {
		for {
			cur := s.lastID.Load()
			if o.ID <= cur || s.lastID.CompareAndSwap(cur, o.ID) {
				break
			}
		}
	}

	e, ok := s.entries[o.ID]
	if !ok {
		s.entries[o.ID] = &orderEntry{o: o.Clone()}
		return nil
	}
	e.mu.Lock()
	e.o = o.Clone()
	e.mu.Unlock()
	return nil
}

func (s *OrderStore) entry(id int64) (*orderEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Get returns a copy of the order.
func (s *OrderStore) Get(_ context.Context, id int64) (*order.Order, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, order.NotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.o.Clone(), nil
}

// List returns all orders by ascending ID.
func (s *OrderStore) List(_ context.Context) ([]order.Order, error) {
	return s.filter(func(*order.Order) bool { return true }), nil
}

// FindByUser returns the user's orders by ascending ID.
func (s *OrderStore) FindByUser(_ context.Context, userID int64) ([]order.Order, error) {
	return s.filter(func(o *order.Order) bool { return o.UserID == userID }), nil
}

// FindByStatus returns orders currently in status by ascending ID.
func (s *OrderStore) FindByStatus(_ context.Context, status order.Status) ([]order.Order, error) {
	return s.filter(func(o *order.Order) bool { return o.Status == status }), nil
}

func (s *OrderStore) filter(keep func(*order.Order) bool) []order.Order {
	s.mu.RLock()
	entries := make([]*orderEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]order.Order, 0)
	for _, e := range entries {
		e.mu.Lock()
		if keep(e.o) {
			out = append(out, *e.o.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update applies fn to a copy of the order under the order's lock and stores
// it if fn succeeds.
func (s *OrderStore) Update(_ context.Context, id int64, fn func(o *order.Order) error) (*order.Order, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, order.NotFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.o.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	e.o = next
	return next.Clone(), nil
}
