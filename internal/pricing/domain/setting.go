package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Setting is the singleton pricing configuration.
type Setting struct {
	DefaultRate              decimal.Decimal `json:"default_rate"`
	VideoRate                decimal.Decimal `json:"video_rate"`
	NightRate                decimal.Decimal `json:"night_rate"`
	LongCaseRate             decimal.Decimal `json:"long_case_rate"`
	LongCaseThresholdMinutes int             `json:"long_case_threshold_minutes"`
	NightStart               string          `json:"night_start"`
	NightEnd                 string          `json:"night_end"`
	UpdatedBy                string          `json:"updated_by,omitempty"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// DefaultSetting returns the built-in rate table used when nothing is configured.
func DefaultSetting() Setting {
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

// Validate checks rates, threshold and night window.
func (s Setting) Validate() error {
	rates := []struct {
		name  string
		value decimal.Decimal
	}{
		{"default_rate", s.DefaultRate},
		{"video_rate", s.VideoRate},
		{"night_rate", s.NightRate},
		{"long_case_rate", s.LongCaseRate},
	}
	for _, rate := range rates {
		if rate.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrConfigurationInvalid, rate.name)
		}
		if !rate.value.Equal(rate.value.Round(2)) {
			return fmt.Errorf("%w: %s has more than 2 decimal places", ErrConfigurationInvalid, rate.name)
		}
	}
	if s.LongCaseThresholdMinutes < 1 {
		return fmt.Errorf("%w: long_case_threshold_minutes must be at least 1", ErrConfigurationInvalid)
	}
	if _, err := ParseClock(s.NightStart); err != nil {
		return fmt.Errorf("%w: night_start: %v", ErrConfigurationInvalid, err)
	}
	if _, err := ParseClock(s.NightEnd); err != nil {
		return fmt.Errorf("%w: night_end: %v", ErrConfigurationInvalid, err)
	}
	return nil
}

// Normalized returns the setting with every rate rounded to cents.
func (s Setting) Normalized() Setting {
	s.DefaultRate = s.DefaultRate.Round(2)
	s.VideoRate = s.VideoRate.Round(2)
	s.NightRate = s.NightRate.Round(2)
	s.LongCaseRate = s.LongCaseRate.Round(2)
	return s
}

// RateTable captures the rates in effect at calculation time.
func (s Setting) RateTable() RateTable {
	return RateTable{
		DefaultRate:              s.DefaultRate.Round(2),
		VideoRate:                s.VideoRate.Round(2),
		NightRate:                s.NightRate.Round(2),
		LongCaseRate:             s.LongCaseRate.Round(2),
		LongCaseThresholdMinutes: s.LongCaseThresholdMinutes,
		NightStart:               s.NightStart,
		NightEnd:                 s.NightEnd,
	}
}
