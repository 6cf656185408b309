package pricing

import "errors"

var (
	// ErrInvalidTimeFormat is returned when a clock time is not HH:MM.
	ErrInvalidTimeFormat = errors.New("pricing: invalid time format")
	// ErrInvalidDate is returned when a procedure date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("pricing: invalid date")
	// ErrInvalidDuration is returned when a duration is not positive.
	ErrInvalidDuration = errors.New("pricing: invalid duration")
	// ErrConfigurationInvalid is returned when a pricing setting breaks its invariants.
	ErrConfigurationInvalid = errors.New("pricing: configuration invalid")
	// ErrSettingNotFound is returned when no active pricing setting exists.
	ErrSettingNotFound = errors.New("pricing: setting not found")
)
