package errors

import "errors"

var (
	ErrUnsupportedEntityType = errors.New("no partition scheme registered for entity type")
	ErrInvalidBucket         = errors.New("bucket spec does not match the entity type scheme")
	ErrPartitionOverlap      = errors.New("range bucket overlaps an existing partition")
	ErrPartitionNotFound     = errors.New("partition not found")
	ErrRetireNotAllowed      = errors.New("partition retirement preconditions not met")
)
