package payout

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	procedure "qxlog/internal/procedures/domain"
)

// Status is the lifecycle state of a payout batch.
type Status string

const (
	StatusActive Status = "active"
	StatusVoid   Status = "void"
)

// Batch is a settled group of procedures paid to one instrumentist.
// TotalAmount is frozen at settlement and never recomputed.
type Batch struct {
	ID              string
	InstrumentistID string
	PaidByID        string
	PaidAt          time.Time
	TotalAmount     decimal.Decimal
	Status          Status
	VoidReason      string
	VoidedAt        time.Time
	ItemCount       int
}

// Item is one settled procedure inside a batch.
type Item struct {
	ID          string
	BatchID     string
	ProcedureID string
	Amount      decimal.Decimal
	Snapshot    ItemSnapshot
}

// BuildBatch creates an active batch and its items from locked pending procedures.
// Every procedure must be pending and belong to instrumentistID.
func BuildBatch(batchID, instrumentistID, paidByID string, paidAt time.Time, locked []procedure.Procedure, newItemID func() string) (*Batch, []Item, error) {
	if batchID == "" || instrumentistID == "" || paidByID == "" || paidAt.IsZero() || newItemID == nil {
		return nil, nil, ErrInvalidBatch
	}
	if len(locked) == 0 {
		return nil, nil, ErrEmptySelection
	}
	total := decimal.Zero
	items := make([]Item, 0, len(locked))
	for _, p := range locked {
		if p.Status != procedure.StatusPending || p.InstrumentistID != instrumentistID {
			return nil, nil, fmt.Errorf("%w: procedure %s", ErrStaleSelection, p.ID)
		}
		amount := p.CalculatedAmount.Round(2)
		total = total.Add(amount)
		items = append(items, Item{
			ID:          newItemID(),
			BatchID:     batchID,
			ProcedureID: p.ID,
			Amount:      amount,
			Snapshot:    SnapshotOf(p),
		})
	}
	batch := &Batch{
		ID:              batchID,
		InstrumentistID: instrumentistID,
		PaidByID:        paidByID,
		PaidAt:          paidAt,
		TotalAmount:     total,
		Status:          StatusActive,
		ItemCount:       len(items),
	}
	return batch, items, nil
}

// Void flips an active batch to void. Total and items stay unchanged.
func (b *Batch) Void(reason string, now time.Time) error {
	if b.Status == StatusVoid {
		return ErrBatchVoided
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrVoidReasonRequired
	}
	b.Status = StatusVoid
	b.VoidReason = reason
	b.VoidedAt = now
	return nil
}

// Clone returns a copy of the batch.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	copy := *b
	return &copy
}

// Clone returns a copy of the item that shares no mutable state.
func (i Item) Clone() Item {
	i.Snapshot = i.Snapshot.Clone()
	return i
}
