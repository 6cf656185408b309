package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	payout "qxlog/internal/payouts/domain"
	procedure "qxlog/internal/procedures/domain"
	proceduremem "qxlog/internal/procedures/infrastructure/memory"
)

// ErrInjectedFailure is returned by a repository configured WithItemFailure.
var ErrInjectedFailure = errors.New("payout memory repo: injected item failure")

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithItemFailure makes Settle fail after staging n items.
func WithItemFailure(n int) RepositoryOption {
	return func(r *Repository) {
		r.failAfter = n
	}
}

// Repository keeps payout batches in memory next to a procedure repository.
// Settlement holds the procedure store lock for the whole operation.
type Repository struct {
	procedures *proceduremem.Repository

	mu        sync.RWMutex
	batches   map[string]*payout.Batch
	items     map[string][]payout.Item
	failAfter int
}

// NewRepository constructs a repository over procedures.
func NewRepository(procedures *proceduremem.Repository, opts ...RepositoryOption) *Repository {
	r := &Repository{
		procedures: procedures,
		batches:    make(map[string]*payout.Batch),
		items:      make(map[string][]payout.Item),
		failAfter:  -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Settle locks, validates and pays the selected procedures atomically.
func (r *Repository) Settle(ctx context.Context, instrumentistID string, procedureIDs []string, build payout.BuildFunc) (*payout.Batch, []payout.Item, error) {
	if r == nil || r.procedures == nil {
		return nil, nil, errors.New("payout memory repo: nil procedures")
	}
	if build == nil {
		return nil, nil, errors.New("payout memory repo: nil build func")
	}
	var (
		batch *payout.Batch
		items []payout.Item
	)
	err := r.procedures.Lock(func(store map[string]*procedure.Procedure) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		locked := make([]procedure.Procedure, 0, len(procedureIDs))
		for _, id := range procedureIDs {
			p, ok := store[id]
			if !ok || p.InstrumentistID != instrumentistID || p.Status != procedure.StatusPending {
				continue
			}
			locked = append(locked, *p.Clone())
		}
		if len(locked) != len(procedureIDs) {
			return payout.ErrStaleSelection
		}
		sort.Slice(locked, func(i, j int) bool { return locked[i].ID < locked[j].ID })

		built, builtItems, err := build(locked)
		if err != nil {
			return err
		}

		stagedItems := make([]payout.Item, 0, len(builtItems))
		for i, item := range builtItems {
			if r.failAfter >= 0 && i >= r.failAfter {
				return ErrInjectedFailure
			}
			stagedItems = append(stagedItems, item.Clone())
		}
		staged := make(map[string]*procedure.Procedure, len(locked))
		for _, p := range locked {
			paid := p.Clone()
			if err := paid.MarkPaid(built.ID, built.PaidAt); err != nil {
				return err
			}
			staged[p.ID] = paid
		}

		r.mu.Lock()
		if _, exists := r.batches[built.ID]; exists {
			r.mu.Unlock()
			return errors.New("payout memory repo: duplicate batch id")
		}
		r.batches[built.ID] = built.Clone()
		r.items[built.ID] = stagedItems
		r.mu.Unlock()
		for id, p := range staged {
			store[id] = p
		}
		batch, items = built, builtItems
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return batch, items, nil
}

// Void stores the void state of an active batch.
func (r *Repository) Void(ctx context.Context, batch *payout.Batch) error {
	_ = ctx
	if batch == nil {
		return payout.ErrInvalidBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.batches[batch.ID]
	if !ok {
		return payout.ErrBatchNotFound
	}
	if current.Status != payout.StatusActive {
		return payout.ErrBatchVoided
	}
	current.Status = payout.StatusVoid
	current.VoidReason = batch.VoidReason
	current.VoidedAt = batch.VoidedAt
	return nil
}

// Get returns a copy of a batch or nil.
func (r *Repository) Get(ctx context.Context, id string) (*payout.Batch, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batches[id].Clone(), nil
}

// Items returns copies of the batch items.
func (r *Repository) Items(ctx context.Context, batchID string) ([]payout.Item, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.items[batchID]
	out := make([]payout.Item, 0, len(stored))
	for _, item := range stored {
		out = append(out, item.Clone())
	}
	return out, nil
}

// List returns batches newest first.
func (r *Repository) List(ctx context.Context, filter payout.Filter) ([]payout.Batch, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]payout.Batch, 0, len(r.batches))
	for _, b := range r.batches {
		if filter.InstrumentistID != "" && b.InstrumentistID != filter.InstrumentistID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && b.PaidAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && b.PaidAt.After(filter.To) {
			continue
		}
		out = append(out, *b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.After(out[j].PaidAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
