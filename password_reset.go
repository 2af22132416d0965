package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
)

// resetMessage is deliberately identical whether or not the email exists,
// so requesting a reset cannot be used to probe for accounts.
const resetMessage = "If an account exists with this email, a reset link has been sent."

// ResetRequestResponse is the generic answer to a reset request
type ResetRequestResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// ResetResponse reports the outcome of consuming a reset token
type ResetResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// PasswordResetManager owns the reset token lifecycle: single-use, hashed
// at rest, time-bound.
type PasswordResetManager struct {
	users    Users
	notifier Notifier
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// NewPasswordResetManager creates a reset manager over the user store.
func NewPasswordResetManager(users Users) *PasswordResetManager {
	return &PasswordResetManager{
		users:    users,
		notifier: NewLogNotifier(nil),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}
}

// WithNotifier sets the dispatch used for reset and confirmation messages
func (m *PasswordResetManager) WithNotifier(n Notifier) *PasswordResetManager {
	m.notifier = normalizeNotifier(n, m.logger)
	return m
}

// WithLogger overrides the logger used by the manager
func (m *PasswordResetManager) WithLogger(logger Logger) *PasswordResetManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithActivitySink sets the sink used to emit reset events
func (m *PasswordResetManager) WithActivitySink(sink ActivitySink) *PasswordResetManager {
	m.activity = normalizeActivitySink(sink)
	return m
}

// WithClock overrides the time source, mainly for tests
func (m *PasswordResetManager) WithClock(now func() time.Time) *PasswordResetManager {
	if now != nil {
		m.now = now
	}
	return m
}

// RequestReset issues a reset token for the active account behind the
// email. The response never discloses whether the account exists. The raw
// token leaves the engine only through the notifier; the store keeps a
// SHA-256 digest.
func (m *PasswordResetManager) RequestReset(ctx context.Context, email string) (*ResetRequestResponse, error) {
	resp := &ResetRequestResponse{Message: resetMessage, Email: email}

	user, err := m.users.GetActiveByEmail(ctx, email)
	if err != nil {
		return resp, nil
	}

	raw, hash, err := generateResetToken()
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().Add(ResetTokenTTL)
	if _, err := m.users.Update(ctx, user.ID.String(), UserPatch{
		PasswordResetToken:          &hash,
		PasswordResetTokenExpiresAt: &expiresAt,
	}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist reset token")
	}

	m.dispatch(ctx, TemplatePasswordReset, map[string]any{
		"firstname":  user.FirstName,
		"resetToken": raw,
	}, user)

	return resp, nil
}

// ConsumeReset redeems a raw reset token exactly once: the matching
// account gets the new password, loses the token fields, and has all
// existing sessions revoked.
func (m *PasswordResetManager) ConsumeReset(ctx context.Context, rawToken, newPassword string) (*ResetResponse, error) {
	hash := hashResetToken(rawToken)

	user, err := m.users.GetByResetTokenHash(ctx, hash, m.now())
	if err != nil {
		return nil, ErrResetTokenInvalid
	}

	salt, passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid new password provided")
	}

	revokedAt := m.now()
	if _, err := m.users.Update(ctx, user.ID.String(), UserPatch{
		PasswordHash:       &passwordHash,
		PasswordSalt:       &salt,
		ClearPasswordReset: true,
		SessionRevokedAt:   &revokedAt,
	}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist new password")
	}

	m.dispatch(ctx, TemplatePasswordChanged, map[string]any{
		"firstname": user.FirstName,
	}, user)

	m.recordActivity(ctx, ActivityEventPasswordReset, user)

	return &ResetResponse{
		Message: "Your password has been reset.",
		Success: true,
	}, nil
}

// ChangePassword rotates the password for an authenticated account after
// verifying the current one. Existing sessions stay valid: the caller
// proved possession of the password, unlike the reset flow.
func (m *PasswordResetManager) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return ErrAccountNotFound
	}

	if !IsPasswordMatch(user.PasswordSalt, oldPassword, user.PasswordHash) {
		return ErrOldPasswordMismatch
	}

	salt, passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid new password provided")
	}

	if _, err := m.users.Update(ctx, user.ID.String(), UserPatch{
		PasswordHash: &passwordHash,
		PasswordSalt: &salt,
	}); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist new password")
	}

	m.dispatch(ctx, TemplatePasswordChanged, map[string]any{
		"firstname": user.FirstName,
	}, user)

	m.recordActivity(ctx, ActivityEventPasswordChanged, user)

	return nil
}

func (m *PasswordResetManager) dispatch(ctx context.Context, template string, payload map[string]any, user *User) {
	if err := m.notifier.SendTemplated(ctx, template, payload, user.Email, user.ID.String()); err != nil {
		m.logger.Error("notification dispatch failed", "template", template, "error", err)
	}
}

func (m *PasswordResetManager) recordActivity(ctx context.Context, eventType ActivityEventType, user *User) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		OccurredAt: m.now(),
	}
	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Error("activity sink error", "event", eventType, "error", err)
	}
}

// generateResetToken produces a 32 byte random token. The raw hex value is
// delivered to the user; only the digest is stored.
func generateResetToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, errors.CategoryInternal, "failed to generate reset token")
	}
	raw = hex.EncodeToString(buf)
	return raw, hashResetToken(raw), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
