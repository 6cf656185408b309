package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrumentist is the pricing view of a surgical assistant.
type Instrumentist struct {
	ID               string
	PaySchemeEnabled bool
}

// Input describes the procedure attributes that drive pricing.
type Input struct {
	Instrumentist   Instrumentist
	IsVideosurgery  bool
	DurationMinutes int
	StartTime       string
	EndTime         string
}

// Quote is the outcome of a calculation.
type Quote struct {
	Amount   decimal.Decimal
	Snapshot Snapshot
}

// Calculate picks exactly one rate rule for the input.
// Without the pay scheme the default rate always applies. With it the first
// matching rule wins: videosurgery, night start, long case, default.
func Calculate(setting Setting, in Input) (Quote, error) {
	if in.DurationMinutes <= 0 {
		return Quote{}, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, in.DurationMinutes)
	}
	start, err := ParseClock(in.StartTime)
	if err != nil {
		return Quote{}, err
	}
	if _, err := ParseClock(in.EndTime); err != nil {
		return Quote{}, err
	}

	rates := setting.RateTable()
	snap := Snapshot{
		Version:         SnapshotVersion,
		PayScheme:       in.Instrumentist.PaySchemeEnabled,
		IsVideosurgery:  in.IsVideosurgery,
		DurationMinutes: in.DurationMinutes,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
	}

	if !in.Instrumentist.PaySchemeEnabled {
		snap.Rule = RuleDefault
		snap.Rate = rates.DefaultRate
		return Quote{Amount: snap.Rate, Snapshot: snap}, nil
	}

	nightStart, err := ParseClock(rates.NightStart)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: night_start: %v", ErrConfigurationInvalid, err)
	}
	nightEnd, err := ParseClock(rates.NightEnd)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: night_end: %v", ErrConfigurationInvalid, err)
	}

	switch {
	case in.IsVideosurgery:
		snap.Rule, snap.Rate = RuleVideo, rates.VideoRate
	case IsWithinWindow(start, nightStart, nightEnd):
		snap.Rule, snap.Rate = RuleNight, rates.NightRate
	case in.DurationMinutes > rates.LongCaseThresholdMinutes:
		snap.Rule, snap.Rate = RuleLongCase, rates.LongCaseRate
	default:
		snap.Rule, snap.Rate = RuleDefault, rates.DefaultRate
	}
	snap.Rates = &rates
	return Quote{Amount: snap.Rate, Snapshot: snap}, nil
}
