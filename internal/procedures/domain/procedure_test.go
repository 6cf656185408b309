package procedure

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	pricing "qxlog/internal/pricing/domain"
)

func sampleDetails() Details {
	return Details{
		ProcedureDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		StartTime:     "22:00",
		EndTime:       "02:00",
		PatientName:   " Jane Roe ",
		ProcedureType: "Appendectomy",
		Doctor:        Participant{UserID: "doc-1"},
		Circulating:   Participant{Name: "Nurse Free Text"},
	}
}

func sampleQuote(amount int64) pricing.Quote {
	return pricing.Quote{
		Amount:   decimal.NewFromInt(amount),
		Snapshot: pricing.Snapshot{Version: pricing.SnapshotVersion, Rule: pricing.RuleDefault, Rate: decimal.NewFromInt(amount)},
	}
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   Status
		valid  bool
	}{
		{ActionEdit, StatusPending, true},
		{ActionEdit, StatusPaid, false},
		{ActionEdit, StatusVoid, false},
		{ActionSettle, StatusPending, true},
		{ActionSettle, StatusPaid, false},
		{ActionSettle, StatusVoid, false},
		{ActionVoid, StatusPending, true},
		{ActionVoid, StatusPaid, false},
		{ActionVoid, StatusVoid, false},
		{"unknown", StatusPending, false},
	}
	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestDetailsDuration(t *testing.T) {
	minutes, err := sampleDetails().Duration()
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if minutes != 240 {
		t.Fatalf("duration=%d, want 240", minutes)
	}

	same := sampleDetails()
	same.EndTime = same.StartTime
	if _, err := same.Duration(); !errors.Is(err, pricing.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}

	noPatient := sampleDetails()
	noPatient.PatientName = "  "
	if _, err := noPatient.Duration(); !errors.Is(err, ErrInvalidProcedure) {
		t.Fatalf("expected ErrInvalidProcedure, got %v", err)
	}

	badTime := sampleDetails()
	badTime.EndTime = "2am"
	if _, err := badTime.Duration(); !errors.Is(err, pricing.ErrInvalidTimeFormat) {
		t.Fatalf("expected ErrInvalidTimeFormat, got %v", err)
	}
}

func TestProcedureLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	p, err := New("proc-1", "inst-1", sampleDetails(), 240, sampleQuote(200), "inst-1", now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Status != StatusPending || p.PatientName != "Jane Roe" || !p.CalculatedAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected procedure: %+v", p)
	}

	edited := sampleDetails()
	edited.IsVideosurgery = true
	if err := p.Reprice(edited, 240, sampleQuote(300), now.Add(time.Hour)); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	if !p.CalculatedAmount.Equal(decimal.NewFromInt(300)) || !p.IsVideosurgery {
		t.Fatalf("reprice not applied: %+v", p)
	}

	if err := p.MarkPaid("batch-1", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if p.Status != StatusPaid || p.PayoutBatchID != "batch-1" || p.PaidAt.IsZero() {
		t.Fatalf("paid invariant broken: %+v", p)
	}
	if err := p.Reprice(edited, 240, sampleQuote(1), now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on paid edit, got %v", err)
	}
	if err := p.Void("oops", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on paid void, got %v", err)
	}
}

func TestProcedureVoid(t *testing.T) {
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	p, _ := New("proc-1", "inst-1", sampleDetails(), 240, sampleQuote(200), "inst-1", now)
	if err := p.Void(" ", now); !errors.Is(err, ErrVoidReasonRequired) {
		t.Fatalf("expected ErrVoidReasonRequired, got %v", err)
	}
	if err := p.Void("duplicate entry", now); err != nil {
		t.Fatalf("void: %v", err)
	}
	if p.Status != StatusVoid || !p.CalculatedAmount.Equal(decimal.NewFromInt(200)) || p.PricingSnapshot.Rule != pricing.RuleDefault {
		t.Fatalf("void must keep amount and snapshot: %+v", p)
	}
	if err := p.MarkPaid("batch-1", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on void settle, got %v", err)
	}
}
