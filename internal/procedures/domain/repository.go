package procedure

import (
	"context"
	"time"
)

// Filter narrows procedure listings. Zero fields are ignored.
type Filter struct {
	InstrumentistID string
	Status          Status
	PayoutBatchID   string
	From            time.Time
	To              time.Time
	Limit           int
}

// Repository persists procedures.
// Update and Void only touch rows that are still pending and return
// ErrInvalidTransition otherwise.
type Repository interface {
	Create(ctx context.Context, p *Procedure) error
	Update(ctx context.Context, p *Procedure) error
	Void(ctx context.Context, p *Procedure) error
	Get(ctx context.Context, id string) (*Procedure, error)
	List(ctx context.Context, filter Filter) ([]Procedure, error)
}
