package payout

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	pricing "qxlog/internal/pricing/domain"
	procedure "qxlog/internal/procedures/domain"
)

// ItemSnapshotVersion is the current payout item snapshot schema.
const ItemSnapshotVersion = 1

// ItemSnapshot is the frozen state of a procedure at settlement time.
type ItemSnapshot struct {
	Version          int                   `json:"version"`
	ProcedureID      string                `json:"procedure_id"`
	ProcedureDate    string                `json:"procedure_date"`
	StartTime        string                `json:"start_time"`
	EndTime          string                `json:"end_time"`
	DurationMinutes  int                   `json:"duration_minutes"`
	PatientName      string                `json:"patient_name"`
	ProcedureType    string                `json:"procedure_type"`
	IsVideosurgery   bool                  `json:"is_videosurgery"`
	Doctor           procedure.Participant `json:"doctor"`
	Circulating      procedure.Participant `json:"circulating"`
	CalculatedAmount decimal.Decimal       `json:"calculated_amount"`
	PricingSnapshot  pricing.Snapshot      `json:"pricing_snapshot"`
}

// SnapshotOf deep-copies the settlement-relevant state of p.
func SnapshotOf(p procedure.Procedure) ItemSnapshot {
	return ItemSnapshot{
		Version:          ItemSnapshotVersion,
		ProcedureID:      p.ID,
		ProcedureDate:    p.ProcedureDate.Format("2006-01-02"),
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		DurationMinutes:  p.DurationMinutes,
		PatientName:      p.PatientName,
		ProcedureType:    p.ProcedureType,
		IsVideosurgery:   p.IsVideosurgery,
		Doctor:           p.Doctor,
		Circulating:      p.Circulating,
		CalculatedAmount: p.CalculatedAmount,
		PricingSnapshot:  p.PricingSnapshot.Clone(),
	}
}

// Clone returns a deep copy.
func (s ItemSnapshot) Clone() ItemSnapshot {
	s.PricingSnapshot = s.PricingSnapshot.Clone()
	return s
}

// MarshalJSON writes the amount with a fixed two-digit scale.
func (s ItemSnapshot) MarshalJSON() ([]byte, error) {
	type plain ItemSnapshot
	return json.Marshal(struct {
		plain
		CalculatedAmount string `json:"calculated_amount"`
	}{plain: plain(s), CalculatedAmount: s.CalculatedAmount.StringFixed(2)})
}

// UnmarshalJSON decodes a snapshot, rejecting unknown schema versions.
func (s *ItemSnapshot) UnmarshalJSON(data []byte) error {
	type plain ItemSnapshot
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Version == 0 {
		return errors.New("payout snapshot: missing version")
	}
	if decoded.Version > ItemSnapshotVersion {
		return fmt.Errorf("payout snapshot: unsupported version %d", decoded.Version)
	}
	*s = ItemSnapshot(decoded)
	return nil
}

// Value implements driver.Valuer for JSONB columns.
func (s ItemSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB columns.
func (s *ItemSnapshot) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	case nil:
		*s = ItemSnapshot{}
		return nil
	default:
		return fmt.Errorf("payout: unsupported snapshot type %T", src)
	}
}
