package payout

import "errors"

var (
	// ErrStaleSelection is returned when selected procedures are no longer all pending for the instrumentist.
	ErrStaleSelection = errors.New("payout: stale selection")
	// ErrEmptySelection is returned when settling no procedures.
	ErrEmptySelection = errors.New("payout: empty selection")
	// ErrBatchNotFound is returned when a batch does not exist.
	ErrBatchNotFound = errors.New("payout: batch not found")
	// ErrBatchVoided is returned when voiding a batch twice.
	ErrBatchVoided = errors.New("payout: batch already void")
	// ErrVoidReasonRequired is returned when voiding without a reason.
	ErrVoidReasonRequired = errors.New("payout: void reason required")
	// ErrInvalidBatch is returned when batch fields are missing.
	ErrInvalidBatch = errors.New("payout: invalid batch")
)
