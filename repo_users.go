package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type bunUsers struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*bunUsers)(nil)

// NewUsersRepository builds the bun backed Users store. The embedded
// repository covers the generic CRUD surface; the engine methods below
// add the lookups and partial updates the auth flows need.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &bunUsers{
		Repository: repo,
		db:         db,
	}
}

func (s *bunUsers) GetByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
			"id": id,
		})
	}

	record := &User{}
	err = s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", uid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, s.notFound(err, "id", id)
	}

	return record, nil
}

func (s *bunUsers) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	record := &User{}
	err := s.db.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, s.notFound(err, "email", email)
	}

	return record, nil
}

func (s *bunUsers) GetActiveByPhone(ctx context.Context, phone string) (*User, error) {
	record := &User{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.phone_number = ?", strings.TrimSpace(phone)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, s.notFound(err, "phone", phone)
	}

	return record, nil
}

func (s *bunUsers) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error) {
	record := &User{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.password_reset_token = ?", hash).
		Where("?TableAlias.password_reset_token_expires_at > ?", now).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, s.notFound(err, "reset_token", "redacted")
	}

	return record, nil
}

func (s *bunUsers) Create(ctx context.Context, user *User) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.EnsureStatus()
	return s.Repository.Create(ctx, user)
}

// Update applies a partial patch by loading the record, mutating it, and
// writing the whole row back. The nullzero column tags turn cleared
// fields into SQL NULLs.
func (s *bunUsers) Update(ctx context.Context, id string, patch UserPatch) (*User, error) {
	record, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(record)
	updatedAt := time.Now()
	record.UpdatedAt = &updatedAt

	if _, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *bunUsers) notFound(err error, field, value string) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			field: value,
		})
	}
	return err
}

// isRecordNotFound reports whether err means the record does not exist, as
// opposed to a store fault that must surface to the caller.
func isRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return true
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich.Category == goerrors.CategoryNotFound
	}
	return false
}
