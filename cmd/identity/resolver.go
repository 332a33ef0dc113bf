package identity

import (
	"context"
	"fmt"

	"parley/cmd/internal/chat"
)

// Resolver turns a presented session token into a canonical user record.
// The websocket gateway calls this before any presence state is created, so
// a failed resolution leaves no trace.
type Resolver interface {
	Resolve(ctx context.Context, token string) (chat.User, error)
}

// TokenResolver verifies a session token and loads the user it names. A
// token whose user has since been deleted resolves to ErrUnauthenticated,
// not a stale identity.
type TokenResolver struct {
	tokens *Manager
	users  chat.UserStore
}

// NewTokenResolver constructs a token-backed resolver.
func NewTokenResolver(tokens *Manager, users chat.UserStore) *TokenResolver {
	return &TokenResolver{tokens: tokens, users: users}
}

func (r *TokenResolver) Resolve(ctx context.Context, token string) (chat.User, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return chat.User{}, err
	}

	u, err := r.users.UserByID(ctx, claims.UserID)
	if err != nil {
		return chat.User{}, fmt.Errorf("%w: user %d", ErrUnauthenticated, claims.UserID)
	}
	return u, nil
}
