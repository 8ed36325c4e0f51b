package engine

import "fmt"

// RemoteError is a network or decode failure on a side-chain read. It is
// surfaced to the caller as-is; retry policy belongs to the caller, not to
// this layer.
type RemoteError struct {
	Op  string // "find", "findOne", "getTransactionInfo", "fetch"
	URL string
	Err error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RemoteError) Unwrap() error {
	return e.Err
}
