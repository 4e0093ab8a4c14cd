package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/user"
)

var _ user.Repository = (*UserStore)(nil)

// UserStore is an in-memory user.Repository.
type UserStore struct {
	mu      sync.RWMutex
	users   map[int64]*user.User
	byEmail map[string]int64
	lastID  atomic.Int64
}

// NewUserStore returns an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[int64]*user.User),
		byEmail: make(map[string]int64),
	}
}

// Save inserts or replaces u. Emails are unique case-insensitively.
func (s *UserStore) Save(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if owner, ok := s.byEmail[email]; ok && owner != u.ID {
		return fault.InvalidArgumentf("email %s already registered", u.Email)
	}

	if u.ID == 0 {
		u.ID = s.lastID.Add(1)
	} else {
		for {
			cur := s.lastID.Load()
			if u.ID <= cur || s.lastID.CompareAndSwap(cur, u.ID) {
				break
			}
		}
	}

	if prev, ok := s.users[u.ID]; ok {
		delete(s.byEmail, strings.ToLower(prev.Email))
	}
	s.users[u.ID] = u.Clone()
	s.byEmail[email] = u.ID
	return nil
}

// Get returns a copy of the user.
func (s *UserStore) Get(_ context.Context, id int64) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.NotFound(id)
	}
	return u.Clone(), nil
}

// List returns all users by ascending ID.
func (s *UserStore) List(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByEmail looks a user up by email, ignoring case.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, fault.NotFoundKey("user", email)
	}
	return s.Get(ctx, id)
}

// Update applies fn to a copy of the user and stores it if fn succeeds.
func (s *UserStore) Update(_ context.Context, id int64, fn func(u *user.User) error) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return nil, user.NotFound(id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Email = cur.Email
	s.users[id] = next
	return next.Clone(), nil
}
