package ds

import (
	"errors"
	"fmt"
)

// ErrNotRunning is returned by operations called before Init or after Stop.
var ErrNotRunning = errors.New("datastore is not running")

// TypeMismatchError reports a payload that failed a required-type check.
// It is raised before any storage is touched.
type TypeMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for %s: want %s, got %s", e.Field, e.Want, e.Got)
}

// InvalidKeyError reports a malformed backend/reference pair or fingerprint.
type InvalidKeyError struct {
	Backend Backend
	Name    string
	Reason  string
}

func (e *InvalidKeyError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("invalid key %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid key %q in backend %q: %s", e.Name, e.Backend, e.Reason)
}

// InitError reports that a backend could not prepare its storage.
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s datastore: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
