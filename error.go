package pulse

import (
	"errors"
	"fmt"
)

// ErrTokenBoundary is the sentinel for every token boundary violation.
// Use errors.Is against it to detect refused cross-domain calls.
var ErrTokenBoundary = errors.New("token boundary violation")

// ErrForeignHandle is returned when handles backed by different systems
// are combined. A union must route every token to the engine that issued
// it, so handles can only merge within one system.
var ErrForeignHandle = errors.New("handles belong to different systems")

// TokenBoundaryError is returned when a handle is asked to act on a
// token outside its domain set. The engine state is untouched when it is
// returned.
type TokenBoundaryError struct {
	// Handle is the name of the refusing handle.
	Handle string
	// Op is the operation that was refused.
	Op string
	// Token is the string form of the token outside the set.
	Token string
}

func (e *TokenBoundaryError) Error() string {
	return fmt.Sprintf("%s: %s: token %s outside handle domain", e.Handle, e.Op, e.Token)
}

// Is makes the error match ErrTokenBoundary.
func (e *TokenBoundaryError) Is(target error) bool {
	return target == ErrTokenBoundary
}
