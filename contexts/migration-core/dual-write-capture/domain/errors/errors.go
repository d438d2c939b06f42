package errors

import "errors"

var (
	ErrPartitionNotProvisioned = errors.New("target partition is not provisioned")
	ErrInvalidRow              = errors.New("ledger row is missing key fields")
)
