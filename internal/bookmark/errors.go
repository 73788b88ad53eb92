package bookmark

import "errors"

// ErrNotFound is returned by stores when no record matches a key.
var ErrNotFound = errors.New("bookmark not found")

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
