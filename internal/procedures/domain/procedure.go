package procedure

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pricing "qxlog/internal/pricing/domain"
)

// Status is the ledger state of a procedure.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusVoid    Status = "void"
)

// Participant references a person either by resolved user id or by free-text name.
type Participant struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Details holds the editable attributes of a procedure.
type Details struct {
	ProcedureDate  time.Time
	StartTime      string
	EndTime        string
	PatientName    string
	ProcedureType  string
	IsVideosurgery bool
	Doctor         Participant
	Circulating    Participant
}

// Procedure is a surgical procedure billed to one instrumentist.
type Procedure struct {
	ID               string
	InstrumentistID  string
	ProcedureDate    time.Time
	StartTime        string
	EndTime          string
	DurationMinutes  int
	PatientName      string
	ProcedureType    string
	IsVideosurgery   bool
	Doctor           Participant
	Circulating      Participant
	CalculatedAmount decimal.Decimal
	PricingSnapshot  pricing.Snapshot
	Status           Status
	PayoutBatchID    string
	PaidAt           time.Time
	VoidReason       string
	VoidedAt         time.Time
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Duration validates details and returns the procedure duration in minutes.
func (d Details) Duration() (int, error) {
	if strings.TrimSpace(d.PatientName) == "" {
		return 0, fmt.Errorf("%w: patient name required", ErrInvalidProcedure)
	}
	if strings.TrimSpace(d.ProcedureType) == "" {
		return 0, fmt.Errorf("%w: procedure type required", ErrInvalidProcedure)
	}
	if d.ProcedureDate.IsZero() {
		return 0, fmt.Errorf("%w: procedure date required", ErrInvalidProcedure)
	}
	minutes, err := pricing.DurationMinutes(d.ProcedureDate.Format("2006-01-02"), d.StartTime, d.EndTime)
	if err != nil {
		return 0, err
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("%w: %d minutes", pricing.ErrInvalidDuration, minutes)
	}
	if minutes > pricing.MaxDurationMinutes {
		return 0, ErrDurationTooLong
	}
	return minutes, nil
}

// New builds a pending procedure from priced details.
func New(id, instrumentistID string, details Details, duration int, quote pricing.Quote, createdBy string, now time.Time) (*Procedure, error) {
	if id == "" || instrumentistID == "" {
		return nil, fmt.Errorf("%w: id and instrumentist required", ErrInvalidProcedure)
	}
	p := &Procedure{
		ID:              id,
		InstrumentistID: instrumentistID,
		Status:          StatusPending,
		CreatedBy:       createdBy,
		CreatedAt:       now,
	}
	p.apply(details, duration, quote, now)
	return p, nil
}

// Reprice replaces details and pricing of a pending procedure.
func (p *Procedure) Reprice(details Details, duration int, quote pricing.Quote, now time.Time) error {
	if !ValidTransition(ActionEdit, p.Status) {
		return fmt.Errorf("%w: cannot edit %s procedure", ErrInvalidTransition, p.Status)
	}
	p.apply(details, duration, quote, now)
	return nil
}

// Void moves a pending procedure to void, keeping amount and snapshot.
func (p *Procedure) Void(reason string, now time.Time) error {
	if !ValidTransition(ActionVoid, p.Status) {
		return fmt.Errorf("%w: cannot void %s procedure", ErrInvalidTransition, p.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrVoidReasonRequired
	}
	p.Status = StatusVoid
	p.VoidReason = reason
	p.VoidedAt = now
	p.UpdatedAt = now
	return nil
}

// MarkPaid moves a pending procedure to paid under batchID.
func (p *Procedure) MarkPaid(batchID string, paidAt time.Time) error {
	if !ValidTransition(ActionSettle, p.Status) {
		return fmt.Errorf("%w: cannot settle %s procedure", ErrInvalidTransition, p.Status)
	}
	if batchID == "" || paidAt.IsZero() {
		return fmt.Errorf("%w: batch id and paid time required", ErrInvalidProcedure)
	}
	p.Status = StatusPaid
	p.PayoutBatchID = batchID
	p.PaidAt = paidAt
	p.UpdatedAt = paidAt
	return nil
}

// Clone returns a copy that shares no mutable state with p.
func (p *Procedure) Clone() *Procedure {
	if p == nil {
		return nil
	}
	copy := *p
	copy.PricingSnapshot = p.PricingSnapshot.Clone()
	return &copy
}

func (p *Procedure) apply(details Details, duration int, quote pricing.Quote, now time.Time) {
	p.ProcedureDate = details.ProcedureDate
	p.StartTime = details.StartTime
	p.EndTime = details.EndTime
	p.DurationMinutes = duration
	p.PatientName = strings.TrimSpace(details.PatientName)
	p.ProcedureType = strings.TrimSpace(details.ProcedureType)
	p.IsVideosurgery = details.IsVideosurgery
	p.Doctor = details.Doctor
	p.Circulating = details.Circulating
	p.CalculatedAmount = quote.Amount.Round(2)
	p.PricingSnapshot = quote.Snapshot.Clone()
	p.UpdatedAt = now
}
