package models

import "errors"

// Validation errors for workflow graphs.
var (
	ErrBlockMissingID         = errors.New("block has no id")
	ErrDuplicateBlockID       = errors.New("duplicate block id")
	ErrUnknownBlockReference  = errors.New("referenced block does not exist")
	ErrNegativeLoopIterations = errors.New("loop iterations must not be negative")
)
