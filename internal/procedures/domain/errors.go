package procedure

import "errors"

var (
	// ErrProcedureNotFound is returned when a procedure does not exist.
	ErrProcedureNotFound = errors.New("procedure: not found")
	// ErrInvalidTransition is returned when the current status forbids the action.
	ErrInvalidTransition = errors.New("procedure: invalid state transition")
	// ErrVoidReasonRequired is returned when voiding without a reason.
	ErrVoidReasonRequired = errors.New("procedure: void reason required")
	// ErrDurationTooLong is returned when a procedure exceeds one day.
	ErrDurationTooLong = errors.New("procedure: duration exceeds 1440 minutes")
	// ErrInvalidProcedure is returned when required procedure fields are missing.
	ErrInvalidProcedure = errors.New("procedure: invalid procedure")
	// ErrNilProcedure is returned when saving a nil procedure.
	ErrNilProcedure = errors.New("procedure: nil procedure")
)
