package pricing

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func exampleSetting() Setting {
	return Setting{
		DefaultRate:              decimal.NewFromInt(200),
		VideoRate:                decimal.NewFromInt(300),
		NightRate:                decimal.NewFromInt(350),
		LongCaseRate:             decimal.NewFromInt(350),
		LongCaseThresholdMinutes: 120,
		NightStart:               "22:00",
		NightEnd:                 "06:00",
	}
}

func TestCalculate_SchemeOffAlwaysDefault(t *testing.T) {
	setting := exampleSetting()
	inputs := []Input{
		{IsVideosurgery: true, DurationMinutes: 300, StartTime: "23:00", EndTime: "04:00"},
		{DurationMinutes: 30, StartTime: "10:00", EndTime: "10:30"},
		{DurationMinutes: 200, StartTime: "01:00", EndTime: "04:20"},
	}
	for _, in := range inputs {
		in.Instrumentist = Instrumentist{ID: "inst-1", PaySchemeEnabled: false}
		quote, err := Calculate(setting, in)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if quote.Snapshot.Rule != RuleDefault {
			t.Fatalf("expected default rule, got %s", quote.Snapshot.Rule)
		}
		if !quote.Amount.Equal(decimal.NewFromInt(200)) {
			t.Fatalf("expected 200, got %s", quote.Amount)
		}
		if quote.Snapshot.Rates != nil {
			t.Fatalf("flat-rate snapshot should not carry a rate table")
		}
	}
}

func TestCalculate_Precedence(t *testing.T) {
	setting := exampleSetting()
	scheme := Instrumentist{ID: "inst-1", PaySchemeEnabled: true}
	cases := []struct {
		name   string
		in     Input
		rule   Rule
		amount int64
	}{
		{"video beats night and long", Input{IsVideosurgery: true, DurationMinutes: 180, StartTime: "23:00", EndTime: "02:00"}, RuleVideo, 300},
		{"night beats long", Input{DurationMinutes: 180, StartTime: "23:00", EndTime: "02:00"}, RuleNight, 350},
		{"night short case", Input{DurationMinutes: 60, StartTime: "23:00", EndTime: "00:00"}, RuleNight, 350},
		{"night window end inclusive", Input{DurationMinutes: 60, StartTime: "06:00", EndTime: "07:00"}, RuleNight, 350},
		{"long case daytime", Input{DurationMinutes: 121, StartTime: "08:00", EndTime: "10:01"}, RuleLongCase, 350},
		{"threshold is not long", Input{DurationMinutes: 120, StartTime: "08:00", EndTime: "10:00"}, RuleDefault, 200},
		{"start before night", Input{DurationMinutes: 90, StartTime: "21:59", EndTime: "23:29"}, RuleDefault, 200},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Instrumentist = scheme
			quote, err := Calculate(setting, tt.in)
			if err != nil {
				t.Fatalf("calculate: %v", err)
			}
			if quote.Snapshot.Rule != tt.rule {
				t.Fatalf("rule=%s, want %s", quote.Snapshot.Rule, tt.rule)
			}
			if !quote.Amount.Equal(decimal.NewFromInt(tt.amount)) {
				t.Fatalf("amount=%s, want %d", quote.Amount, tt.amount)
			}
		})
	}
}

func TestCalculate_SnapshotCapturesRateTable(t *testing.T) {
	setting := exampleSetting()
	quote, err := Calculate(setting, Input{
		Instrumentist:   Instrumentist{ID: "inst-1", PaySchemeEnabled: true},
		DurationMinutes: 60,
		StartTime:       "23:00",
		EndTime:         "00:00",
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	snap := quote.Snapshot
	if snap.Version != SnapshotVersion || !snap.PayScheme || snap.DurationMinutes != 60 {
		t.Fatalf("unexpected snapshot header: %+v", snap)
	}
	if snap.StartTime != "23:00" || snap.EndTime != "00:00" {
		t.Fatalf("times not captured: %+v", snap)
	}
	if snap.Rates == nil || snap.Rates.LongCaseThresholdMinutes != 120 || snap.Rates.NightStart != "22:00" {
		t.Fatalf("rate table not captured: %+v", snap.Rates)
	}

	setting.NightRate = decimal.NewFromInt(999)
	if !snap.Rates.NightRate.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("snapshot follows later setting changes")
	}
}

func TestCalculate_InvalidInput(t *testing.T) {
	setting := exampleSetting()
	_, err := Calculate(setting, Input{DurationMinutes: 0, StartTime: "08:00", EndTime: "08:00"})
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	_, err = Calculate(setting, Input{DurationMinutes: -5, StartTime: "08:00", EndTime: "07:55"})
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	_, err = Calculate(setting, Input{DurationMinutes: 30, StartTime: "8h", EndTime: "08:30"})
	if !errors.Is(err, ErrInvalidTimeFormat) {
		t.Fatalf("expected ErrInvalidTimeFormat, got %v", err)
	}
}

func TestSnapshotJSONRoundTripKeepsRates(t *testing.T) {
	quote, err := Calculate(exampleSetting(), Input{
		Instrumentist:   Instrumentist{PaySchemeEnabled: true},
		IsVideosurgery:  true,
		DurationMinutes: 45,
		StartTime:       "10:00",
		EndTime:         "10:45",
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	raw, err := quote.Snapshot.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var decoded Snapshot
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if decoded.Rule != RuleVideo || !decoded.Rate.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("decoded snapshot mismatch: %+v", decoded)
	}
	if decoded.Rates == nil || !decoded.Rates.VideoRate.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("decoded rate table mismatch: %+v", decoded.Rates)
	}
	for _, want := range []string{`"rate":"300.00"`, `"video_rate":"300.00"`, `"default_rate":"200.00"`} {
		if !strings.Contains(string(raw.([]byte)), want) {
			t.Fatalf("expected %s in %s", want, raw)
		}
	}
}

func TestSnapshotScan_RejectsFutureVersion(t *testing.T) {
	var snap Snapshot
	if err := snap.Scan([]byte(`{"version":99,"rule":"default_rate","rate":"1"}`)); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestSnapshotClone_DoesNotAlias(t *testing.T) {
	rates := exampleSetting().RateTable()
	snap := Snapshot{Version: SnapshotVersion, Rule: RuleNight, Rates: &rates}
	clone := snap.Clone()
	clone.Rates.NightStart = "20:00"
	if snap.Rates.NightStart != "22:00" {
		t.Fatalf("clone shares rate table with source")
	}
}
