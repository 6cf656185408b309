package payout

import (
	"context"
	"time"

	procedure "qxlog/internal/procedures/domain"
)

// BuildFunc turns the locked procedures into a batch and its items.
type BuildFunc func(locked []procedure.Procedure) (*Batch, []Item, error)

// Filter narrows batch listings. Zero fields are ignored.
type Filter struct {
	InstrumentistID string
	Status          Status
	From            time.Time
	To              time.Time
	Limit           int
}

// Repository persists payout batches.
//
// Settle locks the pending procedures of instrumentistID among procedureIDs,
// returns ErrStaleSelection unless every id matched, then stores the batch
// built by build, its items and the paid procedures in one transaction.
type Repository interface {
	Settle(ctx context.Context, instrumentistID string, procedureIDs []string, build BuildFunc) (*Batch, []Item, error)
	Void(ctx context.Context, batch *Batch) error
	Get(ctx context.Context, id string) (*Batch, error)
	Items(ctx context.Context, batchID string) ([]Item, error)
	List(ctx context.Context, filter Filter) ([]Batch, error)
}
