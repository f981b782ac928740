package phoneconfig

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory repository useful for tests.
type MemoryRepo struct {
	mu  sync.Mutex
	cfg *Configuration
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Get(ctx context.Context) (Configuration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return Configuration{}, ErrNotFound
	}
	return clone(*r.cfg), nil
}

func (r *MemoryRepo) Save(ctx context.Context, c Configuration) (Configuration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := clone(c)
	r.cfg = &stored
	return clone(stored), nil
}

func clone(c Configuration) Configuration {
	c.TransferNumbers = append([]string{}, c.TransferNumbers...)
	c.PhoneBook = append([]PhoneBookEntry{}, c.PhoneBook...)
	return c
}
