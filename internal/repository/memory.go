package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/items-api/internal/model"
)

// MemoryStore keeps users and items in process memory. It satisfies the
// same contracts as UserRepo and ItemRepo and backs STORE=memory as well
// as tests. Records are copied in and out so callers never share state
// with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uint64]model.User
	items    map[uint64]model.Item
	nextUser uint64
	nextItem uint64
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: map[uint64]model.User{},
		items: map[uint64]model.Item{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the store viewed as a user repository.
func (s *MemoryStore) Users() *MemoryUsers { return &MemoryUsers{s: s} }

// Items returns the store viewed as an item repository.
func (s *MemoryStore) Items() *MemoryItems { return &MemoryItems{s: s} }

// MemoryUsers is the user side of a MemoryStore.
type MemoryUsers struct{ s *MemoryStore }

func (m *MemoryUsers) Create(_ context.Context, u *model.User) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailExists
		}
	}
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return ErrUsernameExists
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	return nil
}

func (m *MemoryUsers) FindByUsername(_ context.Context, username string) (model.User, error) {
	return m.find(func(u model.User) bool { return u.Username == username })
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return m.find(func(u model.User) bool { return u.Email == email })
}

func (m *MemoryUsers) FindByID(_ context.Context, id uint64) (model.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

// SetActive flips the active flag; deactivation is an administrative
// action and is not exposed over HTTP.
func (m *MemoryUsers) SetActive(_ context.Context, id uint64, active bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = m.s.now()
	m.s.users[id] = u
	return nil
}

// Delete removes a user record.
func (m *MemoryUsers) Delete(_ context.Context, id uint64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.users, id)
	return nil
}

func (m *MemoryUsers) find(match func(model.User) bool) (model.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, u := range m.s.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

// MemoryItems is the item side of a MemoryStore.
type MemoryItems struct{ s *MemoryStore }

func (m *MemoryItems) Create(_ context.Context, it *model.Item) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItem++
	it.ID = s.nextItem
	it.CreatedAt = s.now()
	it.UpdatedAt = it.CreatedAt
	s.items[it.ID] = *it
	return nil
}

func (m *MemoryItems) GetByID(_ context.Context, id uint64) (model.Item, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	it, ok := m.s.items[id]
	if !ok {
		return model.Item{}, ErrNotFound
	}
	return it, nil
}

func (m *MemoryItems) List(_ context.Context, skip, limit int) ([]model.Item, error) {
	m.s.mu.RLock()
	out := make([]model.Item, 0, len(m.s.items))
	for _, it := range m.s.items {
		out = append(out, it)
	}
	m.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if skip >= len(out) {
		return []model.Item{}, nil
	}
	out = out[skip:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryItems) Update(_ context.Context, id uint64, title, description string) (model.Item, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	it, ok := m.s.items[id]
	if !ok {
		return model.Item{}, ErrNotFound
	}
	it.Title = title
	it.Description = description
	it.UpdatedAt = m.s.now()
	m.s.items[id] = it
	return it, nil
}

func (m *MemoryItems) Delete(_ context.Context, id uint64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.items, id)
	return nil
}
