package coordination

import "github.com/cockroachdb/errors"

// isNodeExists reports whether err (possibly wrapped) is ErrNodeExists.
func isNodeExists(err error) bool {
	return errors.Is(err, ErrNodeExists)
}

// isNoNode reports whether err (possibly wrapped) is ErrNoNode.
func isNoNode(err error) bool {
	return errors.Is(err, ErrNoNode)
}

// wrapTransportErr normalizes a transport-layer error into this package's
// taxonomy. Errors already tagged ErrNoNode/ErrNodeExists/ErrNoConnection
// pass through unchanged; anything else is
// treated as a connection problem, matching the source's policy of
// unifying transient transport errors into NoConnection.
func wrapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNoNode), errors.Is(err, ErrNodeExists), errors.Is(err, ErrNoConnection):
		return err
	default:
		return errors.Wrap(ErrNoConnection, err.Error())
	}
}
