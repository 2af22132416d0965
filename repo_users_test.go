package identity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupUsersDB(t *testing.T) (*bun.DB, identity.Users) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	_, err = db.NewCreateTable().
		Model((*identity.User)(nil)).
		IfNotExists().
		Exec(context.Background())
	require.NoError(t, err)

	_, err = db.NewTruncateTable().
		Model((*identity.User)(nil)).
		Exec(context.Background())
	require.NoError(t, err)

	return db, identity.NewUsersRepository(db)
}

func createTestUser(t *testing.T, repo identity.Users, email, phone string) *identity.User {
	t.Helper()

	user, err := repo.Create(context.Background(), &identity.User{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        email,
		Phone:        phone,
		PasswordHash: "hash",
		PasswordSalt: "salt",
		Status:       identity.UserStatusInactive,
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	return user
}

func TestUsersRepositoryCreateAndGet(t *testing.T) {
	_, repo := setupUsersDB(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "ada@example.com", "+12025550123")

	byID, err := repo.GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)
	assert.Equal(t, identity.UserStatusInactive, byID.Status)

	byEmail, err := repo.GetActiveByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byPhone, err := repo.GetActiveByPhone(ctx, "+12025550123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byPhone.ID)
}

func TestUsersRepositoryMisses(t *testing.T) {
	_, repo := setupUsersDB(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "b5ab70b9-7a7a-4b34-8a6c-0d8f3d2f0000")
	assert.Error(t, err)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.Error(t, err)

	_, err = repo.GetActiveByEmail(ctx, "nobody@example.com")
	assert.Error(t, err)

	_, err = repo.GetActiveByPhone(ctx, "+10000000000")
	assert.Error(t, err)
}

func TestUsersRepositoryPatchUpdate(t *testing.T) {
	_, repo := setupUsersDB(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "ada@example.com", "+12025550123")

	code := "123456"
	expires := time.Now().Add(10 * time.Minute).UTC()
	method := identity.OTPMethodEmail
	attempts := 0

	updated, err := repo.Update(ctx, user.ID.String(), identity.UserPatch{
		OTPCode:      &code,
		OTPExpiresAt: &expires,
		OTPMethod:    &method,
		OTPAttempts:  &attempts,
	})
	require.NoError(t, err)
	assert.Equal(t, "123456", updated.OTPCode)
	require.NotNil(t, updated.OTPExpiresAt)

	// untouched fields survive a partial update
	assert.Equal(t, "ada@example.com", updated.Email)
	assert.Equal(t, "hash", updated.PasswordHash)

	cleared, err := repo.Update(ctx, user.ID.String(), identity.UserPatch{ClearOTP: true})
	require.NoError(t, err)
	assert.Empty(t, cleared.OTPCode)
	assert.Nil(t, cleared.OTPExpiresAt)

	roundTrip, err := repo.GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Empty(t, roundTrip.OTPCode)
	assert.Nil(t, roundTrip.OTPExpiresAt)
	assert.Equal(t, identity.OTPMethodEmail, roundTrip.OTPMethod)
}

func TestUsersRepositoryResetTokenLookup(t *testing.T) {
	_, repo := setupUsersDB(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "ada@example.com", "+12025550123")

	hash := "digest-of-reset-token"
	now := time.Now().UTC()
	expires := now.Add(time.Hour)

	_, err := repo.Update(ctx, user.ID.String(), identity.UserPatch{
		PasswordResetToken:          &hash,
		PasswordResetTokenExpiresAt: &expires,
	})
	require.NoError(t, err)

	found, err := repo.GetByResetTokenHash(ctx, hash, now)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	// expired tokens do not resolve
	_, err = repo.GetByResetTokenHash(ctx, hash, now.Add(2*time.Hour))
	assert.Error(t, err)

	// wrong digests do not resolve
	_, err = repo.GetByResetTokenHash(ctx, "some-other-digest", now)
	assert.Error(t, err)

	// clearing removes the token entirely
	_, err = repo.Update(ctx, user.ID.String(), identity.UserPatch{ClearPasswordReset: true})
	require.NoError(t, err)

	_, err = repo.GetByResetTokenHash(ctx, hash, now)
	assert.Error(t, err)
}

func TestRepositoryManager(t *testing.T) {
	db, _ := setupUsersDB(t)

	mgr := identity.NewRepositoryManager(db)
	require.NoError(t, mgr.Validate())
	require.NotNil(t, mgr.Users())

	err := mgr.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := mgr.Users().Create(ctx, &identity.User{
			Email:  "tx@example.com",
			Phone:  "+12025550124",
			Status: identity.UserStatusInactive,
		})
		return err
	})
	require.NoError(t, err)

	_, err = mgr.Users().GetActiveByEmail(context.Background(), "tx@example.com")
	assert.NoError(t, err)
}
