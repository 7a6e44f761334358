// Package cancel provides the one-way cancellation token shared between a
// caller and the query executor for the lifetime of a single execution.
package cancel

import (
	"sync/atomic"
	"time"
)

// Token is a terminal one-way cancellation flag with a fixed deadline. Once
// cancelled it never resets. Safe for concurrent use; the caller owns the
// token and the executor only borrows it for one execution.
type Token struct {
	cancelled atomic.Bool
	deadline  time.Time
}

// NewToken creates a token that expires at the given deadline.
func NewToken(deadline time.Time) *Token {
	return &Token{deadline: deadline}
}

// WithTimeout creates a token whose deadline is d from now.
func WithTimeout(now time.Time, d time.Duration) *Token {
	return NewToken(now.Add(d))
}

// Cancel flags the token. Calling it more than once is harmless.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Deadline returns the token's fixed deadline.
func (t *Token) Deadline() time.Time {
	return t.deadline
}

// Expired reports whether the deadline has passed at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.deadline)
}
