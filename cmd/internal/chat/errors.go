package chat

import "errors"

var (
	// ErrInvalidInput covers empty content, unknown kinds, and bad targets.
	ErrInvalidInput = errors.New("chat: invalid input")
	// ErrNotFound is returned when a referenced user or group does not exist.
	ErrNotFound = errors.New("chat: not found")
	// ErrRecipientOffline is returned by the private send path when the target
	// has no live connections. The message has already been persisted.
	ErrRecipientOffline = errors.New("chat: recipient offline")
	// ErrForbidden is returned for operations the caller is not allowed to
	// perform, e.g. sending into a group they are not a member of.
	ErrForbidden = errors.New("chat: forbidden")
)
