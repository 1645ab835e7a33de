package connpool

import "errors"

// IsTimedOut reports whether err is (or wraps) ErrTimedOut.
func IsTimedOut(err error) bool {
	return errors.Is(err, ErrTimedOut)
}
