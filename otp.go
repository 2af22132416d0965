package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/goliatone/go-errors"
)

// OTPIssue is the result of creating a one time code. The raw code is only
// ever handed to the notification dispatch, never to public callers.
type OTPIssue struct {
	Code      string
	ExpiresAt time.Time
}

// OTPManager owns the one time code lifecycle. All state lives on the user
// record; the manager itself is stateless and safe for concurrent use.
type OTPManager struct {
	users     Users
	ttl       time.Duration
	whitelist string
	logger    Logger
	now       func() time.Time
}

// NewOTPManager creates an OTP manager backed by the given user store.
func NewOTPManager(users Users, cfg Config) *OTPManager {
	return &OTPManager{
		users:     users,
		ttl:       time.Duration(cfg.GetOTPExpirationMinutes()) * time.Minute,
		whitelist: cfg.GetOTPWhitelistCode(),
		logger:    defLogger{},
		now:       time.Now,
	}
}

// WithLogger overrides the logger used by the manager
func (m *OTPManager) WithLogger(logger Logger) *OTPManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithClock overrides the time source, mainly for tests
func (m *OTPManager) WithClock(now func() time.Time) *OTPManager {
	if now != nil {
		m.now = now
	}
	return m
}

// TTL returns the configured code lifetime
func (m *OTPManager) TTL() time.Duration {
	return m.ttl
}

// GenerateCode produces a 6 digit decimal code in [100000, 999999]
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate verification code")
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// CreateOTP issues a fresh code for the account, resetting the attempt
// counter and replacing any previous code.
func (m *OTPManager) CreateOTP(ctx context.Context, userID string, method OTPMethod) (*OTPIssue, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().Add(m.ttl)
	attempts := 0

	if _, err := m.users.Update(ctx, userID, UserPatch{
		OTPCode:      &code,
		OTPExpiresAt: &expiresAt,
		OTPMethod:    &method,
		OTPAttempts:  &attempts,
	}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist verification code")
	}

	return &OTPIssue{Code: code, ExpiresAt: expiresAt}, nil
}

// VerifyOTP checks a submitted code against the account's stored state and
// consumes it on success. It returns the delivery method the consumed code
// was issued with so callers can mark the right channel verified.
func (m *OTPManager) VerifyOTP(ctx context.Context, userID, code string) (OTPMethod, error) {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return "", ErrAccountNotFound
	}

	method := user.OTPMethod
	if method == "" {
		method = OTPMethodEmail
	}

	// Development/test escape hatch. Hard non-production setting: with a
	// whitelist code configured, any account verifies with it.
	if m.whitelist != "" && code == m.whitelist {
		if err := m.ClearOTP(ctx, userID); err != nil {
			return "", err
		}
		return method, nil
	}

	switch user.OTPState(m.now()) {
	case OTPStateNone:
		return "", ErrNoActiveOTP
	case OTPStateExpired:
		return "", ErrOTPExpired
	case OTPStateLocked:
		return "", ErrTooManyAttempts
	}

	if user.OTPCode != code {
		attempts := user.OTPAttempts + 1
		if _, err := m.users.Update(ctx, userID, UserPatch{OTPAttempts: &attempts}); err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to record verification attempt")
		}
		// the attempt that spends the budget reports the lock, not a mismatch
		if attempts >= MaxOTPAttempts {
			return "", ErrTooManyAttempts
		}
		return "", OTPMismatchError(MaxOTPAttempts - 1 - user.OTPAttempts)
	}

	if err := m.ClearOTP(ctx, userID); err != nil {
		return "", err
	}

	return method, nil
}

// ClearOTP removes the stored code, expiry, and attempt counter
func (m *OTPManager) ClearOTP(ctx context.Context, userID string) error {
	if _, err := m.users.Update(ctx, userID, UserPatch{ClearOTP: true}); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear verification code")
	}
	return nil
}

// ResendOTP issues a replacement code, enforcing the cooldown window
// measured from the current code's creation.
func (m *OTPManager) ResendOTP(ctx context.Context, userID string) (*OTPIssue, error) {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	if user.OTPExpiresAt != nil {
		elapsed := m.now().Sub(user.OTPCreatedAt(m.ttl))
		if elapsed < OTPResendCooldown {
			wait := OTPResendCooldown - elapsed
			return nil, ResendTooSoonError(int((wait + time.Second - 1) / time.Second))
		}
	}

	method := user.OTPMethod
	if method == "" {
		method = OTPMethodEmail
	}

	return m.CreateOTP(ctx, userID, method)
}
