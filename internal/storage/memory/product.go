// Package memory implements the shop repositories in process memory.
//
// All stores are safe for concurrent use. IDs are assigned from a per-store
// counter and are never reused.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/product"
)

var _ product.Repository = (*ProductStore)(nil)

// productEntry guards one product. Stock and rating mutations lock the entry,
// never the whole catalog.
type productEntry struct {
	mu sync.Mutex
	p  product.Product
}

// ProductStore is an in-memory product.Repository.
type ProductStore struct {
	mu      sync.RWMutex
	entries map[int64]*productEntry
	skus    map[string]int64
	lastID  atomic.Int64
}

// NewProductStore returns an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		entries: make(map[int64]*productEntry),
		skus:    make(map[string]int64),
	}
}

// Save inserts or replaces p. A zero ID is assigned.
func (s *ProductStore) Save(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.SKU != "" {
		if owner, ok := s.skus[p.SKU]; ok && owner != p.ID {
			return fault.InvalidArgumentf("sku %q already used by product %d", p.SKU, owner)
		}
	}

	if p.ID == 0 {
		p.ID = s.lastID.Add(1)
	} else {
		s.bump(p.ID)
	}

	e, ok := s.entries[p.ID]
	if !ok {
		e = &productEntry{}
		s.entries[p.ID] = e
	}
	e.mu.Lock()
	if e.p.SKU != "" && e.p.SKU != p.SKU {
		delete(s.skus, e.p.SKU)
	}
	e.p = *p
	e.mu.Unlock()

	if p.SKU != "" {
		s.skus[p.SKU] = p.ID
	}
	return nil
}

// bump keeps the counter ahead of explicitly supplied IDs.
func (s *ProductStore) bump(id int64) {
	for {
		cur := s.lastID.Load()
		if id <= cur || s.lastID.CompareAndSwap(cur, id) {
			return
		}
	}
}

func (s *ProductStore) entry(id int64) (*productEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (e *productEntry) snapshot() product.Product {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p
}

// Get returns a copy of the product.
func (s *ProductStore) Get(_ context.Context, id int64) (*product.Product, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, product.NotFound(id)
	}
	p := e.snapshot()
	return &p, nil
}

// GetByIDs returns the products that exist among ids. Missing IDs are skipped.
func (s *ProductStore) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entry(id); ok {
			out = append(out, e.snapshot())
		}
	}
	return out, nil
}

// List returns all products by ascending ID.
func (s *ProductStore) List(_ context.Context) ([]product.Product, error) {
	return s.filter(func(product.Product) bool { return true }), nil
}

// FindByCategory returns products in category c by ascending ID.
func (s *ProductStore) FindByCategory(_ context.Context, c product.Category) ([]product.Product, error) {
	return s.filter(func(p product.Product) bool { return p.Category == c }), nil
}

// FindBySKU returns the product with the given SKU.
func (s *ProductStore) FindBySKU(ctx context.Context, sku string) (*product.Product, error) {
	s.mu.RLock()
	id, ok := s.skus[sku]
	s.mu.RUnlock()
	if !ok {
		return nil, fault.NotFoundKey("product", sku)
	}
	return s.Get(ctx, id)
}

func (s *ProductStore) filter(keep func(product.Product) bool) []product.Product {
	s.mu.RLock()
	entries := make([]*productEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]product.Product, 0, len(entries))
	for _, e := range entries {
		if p := e.snapshot(); keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// lock resolves and locks the entries for changes in ascending ID order so
// concurrent multi-product reservations cannot deadlock. The returned unlock
// releases them.
func (s *ProductStore) lock(changes []product.StockChange) (map[int64]*productEntry, func(), error) {
	ids := make([]int64, 0, len(changes))
	seen := make(map[int64]struct{}, len(changes))
	for _, c := range changes {
		if c.Quantity <= 0 {
			return nil, nil, fault.InvalidArgumentf("quantity must be greater than 0 for product %d", c.ProductID)
		}
		if _, ok := seen[c.ProductID]; ok {
			continue
		}
		seen[c.ProductID] = struct{}{}
		ids = append(ids, c.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make(map[int64]*productEntry, len(ids))
	s.mu.RLock()
	for _, id := range ids {
		e, ok := s.entries[id]
		if !ok {
			s.mu.RUnlock()
			return nil, nil, product.NotFound(id)
		}
		locked[id] = e
	}
	s.mu.RUnlock()

	for _, id := range ids {
		locked[id].mu.Lock()
	}
	return locked, func() {
		for _, id := range ids {
			locked[id].mu.Unlock()
		}
	}, nil
}

// Reserve decrements stock for every change or for none of them.
func (s *ProductStore) Reserve(_ context.Context, changes []product.StockChange) error {
	locked, unlock, err := s.lock(changes)
	if err != nil {
		return err
	}
	defer unlock()

	need := make(map[int64]int, len(changes))
	for _, c := range changes {
		need[c.ProductID] += c.Quantity
	}
	for _, c := range changes {
		e := locked[c.ProductID]
		if e.p.Stock < need[c.ProductID] {
			return &fault.InsufficientStockError{
				ProductID: e.p.ID,
				Name:      e.p.Name,
				Available: e.p.Stock,
				Requested: need[c.ProductID],
			}
		}
	}
	for _, c := range changes {
		locked[c.ProductID].p.Stock -= c.Quantity
	}
	return nil
}

// Release returns stock taken by Reserve.
func (s *ProductStore) Release(_ context.Context, changes []product.StockChange) error {
	locked, unlock, err := s.lock(changes)
	if err != nil {
		return err
	}
	defer unlock()

	for _, c := range changes {
		locked[c.ProductID].p.Stock += c.Quantity
	}
	return nil
}

// Patch applies p under the entry lock.
func (s *ProductStore) Patch(_ context.Context, id int64, p product.Patch) (*product.Product, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, product.NotFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p.Apply(&e.p)
	out := e.p
	return &out, nil
}

// Rate folds rating into the product's running mean.
func (s *ProductStore) Rate(_ context.Context, id int64, rating int) (*product.Product, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, product.NotFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.p.ApplyRating(rating); err != nil {
		return nil, err
	}
	p := e.p
	return &p, nil
}
