package social

import "errors"

var (
	ErrInvalidInput = errors.New("social: invalid input")
	ErrNotFound     = errors.New("social: not found")
	// ErrDuplicate is returned when a pending request or invitation between the
	// same pair already exists, or a join would add an existing member.
	ErrDuplicate = errors.New("social: duplicate")
	ErrForbidden = errors.New("social: forbidden")
)
