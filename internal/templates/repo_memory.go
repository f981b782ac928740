package templates

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory repository useful for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	rows    map[string]Template
	inserts int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Template{}} }

func (r *MemoryRepo) Get(ctx context.Context, templateType string) (Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[templateType]
	if !ok {
		return Template{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) InsertIfAbsent(ctx context.Context, t Template) (Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rows[t.TemplateType]; ok {
		return existing, nil
	}
	r.rows[t.TemplateType] = t
	r.inserts++
	return t, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, t Template) (Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[t.TemplateType] = t
	return t, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Template, 0, len(r.rows))
	for _, t := range r.rows {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateType < out[j].TemplateType })
	return out, nil
}

// Inserts reports how many rows InsertIfAbsent actually created.
func (r *MemoryRepo) Inserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}
