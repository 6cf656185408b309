package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	procedure "qxlog/internal/procedures/domain"
)

// Repository keeps procedures in memory.
type Repository struct {
	mu    sync.RWMutex
	items map[string]*procedure.Procedure
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[string]*procedure.Procedure)}
}

// Create stores a new procedure.
func (r *Repository) Create(ctx context.Context, p *procedure.Procedure) error {
	_ = ctx
	if p == nil {
		return procedure.ErrNilProcedure
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[p.ID]; exists {
		return errors.New("procedure memory repo: duplicate id")
	}
	r.items[p.ID] = p.Clone()
	return nil
}

// Update overwrites a procedure that is still pending.
func (r *Repository) Update(ctx context.Context, p *procedure.Procedure) error {
	return r.replacePending(ctx, p)
}

// Void overwrites a procedure that is still pending with its void state.
func (r *Repository) Void(ctx context.Context, p *procedure.Procedure) error {
	return r.replacePending(ctx, p)
}

// Get returns a copy of a procedure or nil.
func (r *Repository) Get(ctx context.Context, id string) (*procedure.Procedure, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id].Clone(), nil
}

// List returns copies of procedures matching filter.
func (r *Repository) List(ctx context.Context, filter procedure.Filter) ([]procedure.Procedure, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]procedure.Procedure, 0, len(r.items))
	for _, p := range r.items {
		if matches(p, filter) {
			out = append(out, *p.Clone())
		}
	}
	r.mu.RUnlock()
	sortProcedures(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Lock runs fn with exclusive access to the stored procedures.
// It is the in-memory stand-in for SELECT ... FOR UPDATE.
func (r *Repository) Lock(fn func(items map[string]*procedure.Procedure) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.items)
}

func (r *Repository) replacePending(ctx context.Context, p *procedure.Procedure) error {
	_ = ctx
	if p == nil {
		return procedure.ErrNilProcedure
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[p.ID]
	if !ok {
		return procedure.ErrProcedureNotFound
	}
	if current.Status != procedure.StatusPending {
		return procedure.ErrInvalidTransition
	}
	r.items[p.ID] = p.Clone()
	return nil
}

func matches(p *procedure.Procedure, filter procedure.Filter) bool {
	if filter.InstrumentistID != "" && p.InstrumentistID != filter.InstrumentistID {
		return false
	}
	if filter.Status != "" && p.Status != filter.Status {
		return false
	}
	if filter.PayoutBatchID != "" && p.PayoutBatchID != filter.PayoutBatchID {
		return false
	}
	if !filter.From.IsZero() && p.ProcedureDate.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && p.ProcedureDate.After(filter.To) {
		return false
	}
	return true
}

func sortProcedures(items []procedure.Procedure) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ProcedureDate.Equal(items[j].ProcedureDate) {
			return items[i].ProcedureDate.Before(items[j].ProcedureDate)
		}
		if items[i].StartTime != items[j].StartTime {
			return items[i].StartTime < items[j].StartTime
		}
		return items[i].ID < items[j].ID
	})
}
