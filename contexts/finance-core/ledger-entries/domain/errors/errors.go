package errors

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid ledger input")
	ErrEntryNotFound         = errors.New("ledger entry not found")
	ErrEntryVoided           = errors.New("ledger entry is voided")
	ErrIdempotencyKeyMissing = errors.New("idempotency key is required")
	ErrIdempotencyConflict   = errors.New("idempotency key reused with a different payload")
	ErrLegacyWritesRetired   = errors.New("legacy ledger writes are retired for this entity type")
)
