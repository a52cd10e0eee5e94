package coordination

import "github.com/cockroachdb/errors"

// Sentinel errors forming the coordination layer's error taxonomy. Every
// operation that fails due to a transport or protocol condition wraps one
// of these with errors.Wrap/Wrapf so callers can test with errors.Is
// regardless of how deep the wrapping goes.
var (
	// ErrNoConnection means the transport is down or the session has
	// expired. Raised by any operation attempted while disconnected, or
	// when the store reports connection loss or session expiry mid-call.
	ErrNoConnection = errors.New("coordination: no connection")

	// ErrNoNode means a named path was required to exist but did not.
	// Raised by Get, Delete, and Expire when a tracked entry has vanished.
	ErrNoNode = errors.New("coordination: no such node")

	// ErrNodeExists means a create raced with a concurrent creator that
	// won. Callers that treat this as benign (the shared cache writer)
	// check for it explicitly rather than propagating it.
	ErrNodeExists = errors.New("coordination: node already exists")

	// ErrRetryLimit means Retry exhausted its attempt budget without the
	// wrapped function succeeding.
	ErrRetryLimit = errors.New("coordination: retry limit exceeded")
)
