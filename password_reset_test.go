package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedActiveUser(t *testing.T, users *memoryUsers, password string) *identity.User {
	t.Helper()

	salt, hash, err := identity.HashPassword(password)
	require.NoError(t, err)

	return users.seed(&identity.User{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		Phone:        "+12025550123",
		PasswordHash: hash,
		PasswordSalt: salt,
		Status:       identity.UserStatusActive,
	})
}

func TestRequestResetDoesNotDiscloseAccounts(t *testing.T) {
	ctx := context.Background()
	users := newMemoryUsers()
	seedActiveUser(t, users, "original-password")

	notifier := &recordingNotifier{}
	mgr := identity.NewPasswordResetManager(users).WithNotifier(notifier)

	known, err := mgr.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	unknown, err := mgr.RequestReset(ctx, "nobody@example.com")
	require.NoError(t, err)

	assert.Equal(t, known.Message, unknown.Message)

	// only the real account got a token dispatched
	require.Len(t, notifier.templates, 1)
	sent, ok := notifier.lastTemplate()
	require.True(t, ok)
	assert.Equal(t, identity.TemplatePasswordReset, sent.Template)
	assert.NotEmpty(t, sent.Payload["resetToken"])
}

func TestRequestResetStoresDigestNotToken(t *testing.T) {
	ctx := context.Background()
	users := newMemoryUsers()
	user := seedActiveUser(t, users, "original-password")

	notifier := &recordingNotifier{}
	mgr := identity.NewPasswordResetManager(users).WithNotifier(notifier)

	_, err := mgr.RequestReset(ctx, user.Email)
	require.NoError(t, err)

	sent, ok := notifier.lastTemplate()
	require.True(t, ok)
	raw := sent.Payload["resetToken"].(string)
	require.NotEmpty(t, raw)

	stored, err := users.GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PasswordResetToken)
	assert.NotEqual(t, raw, stored.PasswordResetToken)
	require.NotNil(t, stored.PasswordResetTokenExpiresAt)
}

func TestConsumeResetRotatesPasswordAndRevokesSessions(t *testing.T) {
	ctx := context.Background()
	users := newMemoryUsers()
	user := seedActiveUser(t, users, "original-password")

	notifier := &recordingNotifier{}
	sink := &recordingSink{}
	mgr := identity.NewPasswordResetManager(users).
		WithNotifier(notifier).
		WithActivitySink(sink)

	_, err := mgr.RequestReset(ctx, user.Email)
	require.NoError(t, err)

	sent, _ := notifier.lastTemplate()
	raw := sent.Payload["resetToken"].(string)

	resp, err := mgr.ConsumeReset(ctx, raw, "brand-new-password")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	stored, err := users.GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.True(t, identity.IsPasswordMatch(stored.PasswordSalt, "brand-new-password", stored.PasswordHash))
	assert.False(t, identity.IsPasswordMatch(stored.PasswordSalt, "original-password", stored.PasswordHash))
	assert.Empty(t, stored.PasswordResetToken)
	assert.NotNil(t, stored.SessionRevokedAt)

	assert.Contains(t, sink.eventTypes(), identity.ActivityEventPasswordReset)

	// the token is single use
	_, err = mgr.ConsumeReset(ctx, raw, "yet-another-password")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeResetTokenInvalid))
}

func TestConsumeResetRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	users := newMemoryUsers()
	user := seedActiveUser(t, users, "original-password")

	clock := newTestClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	mgr := identity.NewPasswordResetManager(users).
		WithNotifier(notifier).
		WithClock(clock.Now)

	_, err := mgr.RequestReset(ctx, user.Email)
	require.NoError(t, err)

	sent, _ := notifier.lastTemplate()
	raw := sent.Payload["resetToken"].(string)

	clock.Advance(61 * time.Minute)

	_, err = mgr.ConsumeReset(ctx, raw, "brand-new-password")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeResetTokenInvalid))
}

func TestConsumeResetRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	mgr := identity.NewPasswordResetManager(newMemoryUsers())

	_, err := mgr.ConsumeReset(ctx, "deadbeef", "brand-new-password")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeResetTokenInvalid))
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	ctx := context.Background()
	users := newMemoryUsers()
	user := seedActiveUser(t, users, "original-password")

	mgr := identity.NewPasswordResetManager(users)

	err := mgr.ChangePassword(ctx, user.ID.String(), "not-the-password", "brand-new-password")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeOldPasswordMismatch))

	err = mgr.ChangePassword(ctx, "b5ab70b9-7a7a-4b34-8a6c-0d8f3d2f0000", "original-password", "brand-new-password")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeAccountNotFound))
}

func TestChangePasswordKeepsSessionsAlive(t *testing.T) {
	ctx := context.Background()
	users := newMemoryUsers()
	user := seedActiveUser(t, users, "original-password")

	sink := &recordingSink{}
	mgr := identity.NewPasswordResetManager(users).WithActivitySink(sink)

	err := mgr.ChangePassword(ctx, user.ID.String(), "original-password", "brand-new-password")
	require.NoError(t, err)

	stored, err := users.GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.True(t, identity.IsPasswordMatch(stored.PasswordSalt, "brand-new-password", stored.PasswordHash))

	// rotating a password with the old one in hand does not revoke
	// existing sessions
	assert.Nil(t, stored.SessionRevokedAt)

	assert.Contains(t, sink.eventTypes(), identity.ActivityEventPasswordChanged)
}
