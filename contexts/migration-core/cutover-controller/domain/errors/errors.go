package errors

import "errors"

var (
	ErrUnknownEntityType = errors.New("entity type is not onboarded for migration")
	ErrIllegalTransition = errors.New("stage transition preconditions not met")
)
