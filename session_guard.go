package identity

import (
	"context"
)

// SessionGuard decides whether a previously issued token is still good
// against the current account state. It is consulted on every
// authenticated request, independent of the orchestrator.
//
// Revocation is logical: no per-token deny list is kept. Each account
// carries a single watermark timestamp and any token issued before it is
// rejected, which gives O(1) revoke-all-sessions at the cost of not being
// able to cut a single session loose.
type SessionGuard struct {
	tokens TokenCodec
	users  Users
	logger Logger
}

// NewSessionGuard wires a guard over the token codec and user store.
func NewSessionGuard(tokens TokenCodec, users Users) *SessionGuard {
	return &SessionGuard{
		tokens: tokens,
		users:  users,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the guard
func (g *SessionGuard) WithLogger(logger Logger) *SessionGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Validate verifies the token signature, issuer, and expiry, then checks
// the owning account: it must exist, be active, and the token must have
// been issued at or after the account's revocation watermark.
func (g *SessionGuard) Validate(ctx context.Context, token string) (*AccessClaims, error) {
	claims, err := g.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	if !user.IsActive() {
		return nil, ErrAccountNotVerified
	}

	if user.SessionRevokedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(*user.SessionRevokedAt) {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// ResolveUser returns the account behind a valid token, or nothing.
func (g *SessionGuard) ResolveUser(ctx context.Context, token string) (*User, error) {
	claims, err := g.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	return user, nil
}
