package fiscal

import (
	"errors"
	"fmt"
)

// ErrInvalidKey is returned for malformed fiscal keys. Fatal to the call;
// never retried.
var ErrInvalidKey = errors.New("invalid fiscal key")

// InvalidKeyError carries the offending key and what was wrong with it.
type InvalidKeyError struct {
	Key    Key
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid fiscal key %q: %s", e.Key, e.Reason)
}

func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }

func invalidKey(k Key, reason string) error {
	return &InvalidKeyError{Key: k, Reason: reason}
}

// IsInvalidKey reports whether err came from fiscal key parsing.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}
