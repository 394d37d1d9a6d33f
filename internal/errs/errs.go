// Package errs holds the error categories shared by the registry, runner and bridge.
//
// Concrete errors wrap one of the categories so callers can branch with errors.Is
// on either the specific sentinel or its category.
package errs

import "errors"

var (
	// ErrInvalidInput covers bad URLs, malformed manifests and missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound covers absent buckets, packages and files.
	ErrNotFound = errors.New("not found")
	// ErrConflict covers duplicates and reserved-name collisions.
	ErrConflict = errors.New("conflict")
	// ErrExternalTool covers non-zero exits of git or a script interpreter.
	ErrExternalTool = errors.New("external tool failure")
	// ErrTimeout is returned when a script exceeds its allotted time.
	ErrTimeout = errors.New("timeout")
	// ErrSecurityViolation covers forged, stale or disallowed callback signals.
	ErrSecurityViolation = errors.New("security violation")
)

var categories = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrConflict,
	ErrExternalTool,
	ErrTimeout,
	ErrSecurityViolation,
}

// Kind returns the category an error belongs to, or "" when it matches none.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range categories {
		if errors.Is(err, c) {
			return c.Error()
		}
	}
	return ""
}
