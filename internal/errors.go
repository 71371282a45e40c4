package internal

import (
	"errors"
	"fmt"
)

// ErrNotFound means the external entity does not exist under the given
// identity and region. It is terminal and never retried.
var ErrNotFound = errors.New("not found")

// ErrNoRankedData means the account exists but has no entry for the
// tracked queue. Unranked is a legitimate state, not a failure.
var ErrNoRankedData = errors.New("no ranked data")

// TransientError wraps network failures, timeouts, non-2xx responses,
// malformed payloads and missing credentials. The next sync cycle is the
// retry mechanism; nothing retries within the same call.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: transient failure", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transientf(op, format string, args ...interface{}) error {
	return &TransientError{Op: op, Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err (anywhere in its chain) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
