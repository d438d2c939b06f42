package errors

import "errors"

var (
	ErrUnknownEntityType = errors.New("entity type is not onboarded for migration")
	ErrNoKeysRequested   = errors.New("repair requires at least one natural key")
)
