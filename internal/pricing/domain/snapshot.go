package pricing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SnapshotVersion is the current pricing snapshot schema.
const SnapshotVersion = 1

// Rule identifies the rate rule that priced a procedure.
type Rule string

const (
	RuleDefault  Rule = "default_rate"
	RuleVideo    Rule = "video_rate"
	RuleNight    Rule = "night_rate"
	RuleLongCase Rule = "long_case_rate"
)

// RuleOrder lists rules in evaluation order.
var RuleOrder = []Rule{RuleVideo, RuleNight, RuleLongCase, RuleDefault}

// RateTable is the frozen copy of the pricing setting used for one calculation.
type RateTable struct {
	DefaultRate              decimal.Decimal `json:"default_rate"`
	VideoRate                decimal.Decimal `json:"video_rate"`
	NightRate                decimal.Decimal `json:"night_rate"`
	LongCaseRate             decimal.Decimal `json:"long_case_rate"`
	LongCaseThresholdMinutes int             `json:"long_case_threshold_minutes"`
	NightStart               string          `json:"night_start"`
	NightEnd                 string          `json:"night_end"`
}

// Snapshot records a pricing decision. Rates is only set for pay-scheme calculations.
type Snapshot struct {
	Version         int             `json:"version"`
	Rule            Rule            `json:"rule"`
	Rate            decimal.Decimal `json:"rate"`
	PayScheme       bool            `json:"pay_scheme"`
	IsVideosurgery  bool            `json:"is_videosurgery"`
	DurationMinutes int             `json:"duration_minutes"`
	StartTime       string          `json:"start_time"`
	EndTime         string          `json:"end_time"`
	Rates           *RateTable      `json:"rates,omitempty"`
}

// MarshalJSON writes rates with a fixed two-digit scale.
func (t RateTable) MarshalJSON() ([]byte, error) {
	type plain RateTable
	return json.Marshal(struct {
		plain
		DefaultRate  string `json:"default_rate"`
		VideoRate    string `json:"video_rate"`
		NightRate    string `json:"night_rate"`
		LongCaseRate string `json:"long_case_rate"`
	}{
		plain:        plain(t),
		DefaultRate:  t.DefaultRate.StringFixed(2),
		VideoRate:    t.VideoRate.StringFixed(2),
		NightRate:    t.NightRate.StringFixed(2),
		LongCaseRate: t.LongCaseRate.StringFixed(2),
	})
}

// MarshalJSON writes the applied rate with a fixed two-digit scale.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		Rate string `json:"rate"`
	}{plain: plain(s), Rate: s.Rate.StringFixed(2)})
}

// Clone returns a deep copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Rates != nil {
		rates := *s.Rates
		out.Rates = &rates
	}
	return out
}

// Value implements driver.Valuer for JSONB columns.
func (s Snapshot) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Scan implements sql.Scanner for JSONB columns.
func (s *Snapshot) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = Snapshot{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("pricing snapshot: unsupported scan type %T", src)
	}
	return s.UnmarshalJSON(data)
}

// UnmarshalJSON decodes a snapshot, rejecting unknown schema versions.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Version == 0 {
		return errors.New("pricing snapshot: missing version")
	}
	if decoded.Version > SnapshotVersion {
		return fmt.Errorf("pricing snapshot: unsupported version %d", decoded.Version)
	}
	*s = Snapshot(decoded)
	return nil
}
