package identity

import "errors"

var (
	// ErrUnauthenticated means credentials were presented and rejected.
	ErrUnauthenticated = errors.New("identity: unauthenticated")

	// ErrInvalidToken means the session token is malformed, expired, or
	// signed with the wrong key.
	ErrInvalidToken = errors.New("identity: invalid token")

	// ErrInvalidHash means a stored password hash is malformed or uses
	// parameters outside the accepted bounds.
	ErrInvalidHash = errors.New("identity: invalid password hash")

	// ErrWeakSecret means the signing secret is too short to be safe.
	ErrWeakSecret = errors.New("identity: signing secret too short")
)
