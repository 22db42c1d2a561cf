// Package resolver resolves block input parameters: block-output references,
// environment-variable placeholders and type coercion.
package resolver

import (
	"fmt"
	"strings"
)

// Kind classifies resolution failures. Branch-skip and loop-not-yet-available
// are not failures; they resolve to the empty string.
type Kind string

const (
	KindReferenceNotFound    Kind = "reference_not_found"
	KindDependencyDisabled   Kind = "dependency_disabled"
	KindMissingBlockState    Kind = "missing_block_state"
	KindInvalidReferencePath Kind = "invalid_reference_path"
	KindEnvVarNotFound       Kind = "env_var_not_found"
)

// Error is a typed resolution failure. It aborts the consuming block's
// execution and propagates to the run unchanged.
type Error struct {
	Kind      Kind
	Reference string // the offending <reference> or {{NAME}} text
	BlockID   string // consuming block
	Message   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (block %s)", e.Kind, e.Message, e.BlockID)
	}

	return fmt.Sprintf("%s: %s (block %s)", e.Kind, e.Reference, e.BlockID)
}

// Is matches errors by kind so callers can use errors.Is with a bare kinded error.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	return other.Kind == e.Kind
}

func newReferenceNotFound(blockID, reference string, knownNames []string) *Error {
	return &Error{
		Kind:      KindReferenceNotFound,
		Reference: reference,
		BlockID:   blockID,
		Message:   fmt.Sprintf("block %q was not found; available blocks: %s", reference, strings.Join(knownNames, ", ")),
	}
}

// Sentinel values for errors.Is comparisons in tests and callers.
var (
	ErrReferenceNotFound    = &Error{Kind: KindReferenceNotFound}
	ErrDependencyDisabled   = &Error{Kind: KindDependencyDisabled}
	ErrMissingBlockState    = &Error{Kind: KindMissingBlockState}
	ErrInvalidReferencePath = &Error{Kind: KindInvalidReferencePath}
	ErrEnvVarNotFound       = &Error{Kind: KindEnvVarNotFound}
)
