package trace

import "errors"

var (
	// ErrSealed is returned when a finished entity is mutated.
	ErrSealed = errors.New("entity is already finished")

	// ErrInvalidArgument is returned when a required field is missing.
	ErrInvalidArgument = errors.New("invalid argument")
)
