package identity

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the engine options read once at startup. Implementations
// must be immutable after construction.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTokenExpiration() string
	GetRefreshTokenExpiration() string
	GetOTPExpirationMinutes() int
	// GetOTPWhitelistCode returns the development-only bypass code. An empty
	// string disables the bypass; never set this in production.
	GetOTPWhitelistCode() string
}

// Identity is the token-facing view of an account
type Identity interface {
	ID() string
	Email() string
	IsAdmin() bool
}

// Users is the account store the engine runs against. Implementations must
// provide at least atomic single-record updates; the engine does no locking
// of its own.
type Users interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByPhone(ctx context.Context, phone string) (*User, error)
	// GetByResetTokenHash matches the stored reset token digest with an
	// expiry after now. Consumed tokens never match because the winning
	// update clears the fields.
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, id string, patch UserPatch) (*User, error)
}

// TokenCodec signs and verifies the bearer token pair
type TokenCodec interface {
	IssuePair(identity Identity) (*TokenPair, error)
	Validate(token string) (*AccessClaims, error)
	ValidateRefresh(token string) (*RefreshClaims, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
