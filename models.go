package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account lifecycle status
type UserStatus = string

const (
	// UserStatusInactive is the status of a freshly registered account,
	// pending OTP verification
	UserStatusInactive UserStatus = "inactive"
	// UserStatusActive is the status of a verified account
	UserStatusActive UserStatus = "active"
)

// OTPMethod is the delivery channel for one time codes
type OTPMethod = string

const (
	// OTPMethodEmail delivers codes over email
	OTPMethodEmail OTPMethod = "email"
	// OTPMethodSMS delivers codes over SMS
	OTPMethodSMS OTPMethod = "sms"
)

// OTPState is the derived lifecycle state of an account's one time code
type OTPState string

const (
	// OTPStateNone means no code is stored
	OTPStateNone OTPState = "none"
	// OTPStatePending means a code is stored, unexpired, and below the attempt cap
	OTPStatePending OTPState = "pending"
	// OTPStateExpired means the stored code is past its expiry
	OTPStateExpired OTPState = "expired"
	// OTPStateLocked means the stored code burned through its attempt budget
	OTPStateLocked OTPState = "locked"
)

// User is the account model backing the authentication engine
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName    string    `bun:"first_name" json:"first_name,omitempty"`
	LastName     string    `bun:"last_name" json:"last_name,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone        string    `bun:"phone_number,unique" json:"phone_number,omitempty"`
	PasswordHash string    `bun:"password_hash" json:"-"`
	PasswordSalt string    `bun:"password_salt" json:"-"`
	IsAdmin      bool      `bun:"is_admin" json:"is_admin,omitempty"`

	Status          UserStatus `bun:"status,notnull" json:"status,omitempty"`
	EmailVerified   bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	EmailVerifiedAt *time.Time `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	PhoneVerified   bool       `bun:"is_phone_verified" json:"is_phone_verified,omitempty"`
	PhoneVerifiedAt *time.Time `bun:"phone_verified_at,nullzero" json:"phone_verified_at,omitempty"`

	OTPCode      string     `bun:"otp_code" json:"-"`
	OTPExpiresAt *time.Time `bun:"otp_expires_at,nullzero" json:"otp_expires_at,omitempty"`
	OTPMethod    OTPMethod  `bun:"otp_method" json:"otp_method,omitempty"`
	OTPAttempts  int        `bun:"otp_attempts" json:"otp_attempts,omitempty"`

	// PasswordResetToken holds a SHA-256 digest of the reset token,
	// never the raw value
	PasswordResetToken          string     `bun:"password_reset_token" json:"-"`
	PasswordResetTokenExpiresAt *time.Time `bun:"password_reset_token_expires_at,nullzero" json:"-"`

	// SessionRevokedAt invalidates every token issued before it
	SessionRevokedAt *time.Time `bun:"session_revoked_at,nullzero" json:"session_revoked_at,omitempty"`
	// AccessToken is the reference to the most recently issued access token
	AccessToken string `bun:"access_token" json:"-"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults the lifecycle status for records created without one
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusInactive
	}
}

// IsActive reports whether the account finished verification
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// OTPState derives the tagged OTP lifecycle state from the stored fields
func (u *User) OTPState(now time.Time) OTPState {
	if u.OTPCode == "" || u.OTPExpiresAt == nil {
		return OTPStateNone
	}
	if now.After(*u.OTPExpiresAt) {
		return OTPStateExpired
	}
	if u.OTPAttempts >= MaxOTPAttempts {
		return OTPStateLocked
	}
	return OTPStatePending
}

// OTPCreatedAt reconstructs when the current code was issued. The engine
// stores only the expiry, so issuance is expiry minus the configured TTL.
func (u *User) OTPCreatedAt(ttl time.Duration) time.Time {
	if u.OTPExpiresAt == nil {
		return time.Time{}
	}
	return u.OTPExpiresAt.Add(-ttl)
}

// Public returns a copy of the user stripped of credential material and
// the active OTP code
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	pub := *u
	pub.PasswordHash = ""
	pub.PasswordSalt = ""
	pub.OTPCode = ""
	pub.PasswordResetToken = ""
	return &pub
}

// UserPatch is a partial update against a user record. Nil pointer fields
// are left untouched; the Clear flags null out grouped secret fields, which
// a pointer alone cannot express.
type UserPatch struct {
	Status          *UserStatus
	EmailVerified   *bool
	EmailVerifiedAt *time.Time
	PhoneVerified   *bool
	PhoneVerifiedAt *time.Time

	PasswordHash *string
	PasswordSalt *string

	OTPCode      *string
	OTPExpiresAt *time.Time
	OTPMethod    *OTPMethod
	OTPAttempts  *int
	ClearOTP     bool

	PasswordResetToken          *string
	PasswordResetTokenExpiresAt *time.Time
	ClearPasswordReset          bool

	AccessToken      *string
	ClearAccessToken bool

	SessionRevokedAt *time.Time
}

// Apply mutates u in place with the same semantics the stores persist.
// The bun repository uses it to keep returned records in sync without a
// second read; in-memory stores use it directly.
func (p UserPatch) Apply(u *User) {
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.EmailVerifiedAt != nil {
		u.EmailVerifiedAt = p.EmailVerifiedAt
	}
	if p.PhoneVerified != nil {
		u.PhoneVerified = *p.PhoneVerified
	}
	if p.PhoneVerifiedAt != nil {
		u.PhoneVerifiedAt = p.PhoneVerifiedAt
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.PasswordSalt != nil {
		u.PasswordSalt = *p.PasswordSalt
	}
	if p.OTPCode != nil {
		u.OTPCode = *p.OTPCode
	}
	if p.OTPExpiresAt != nil {
		u.OTPExpiresAt = p.OTPExpiresAt
	}
	if p.OTPMethod != nil {
		u.OTPMethod = *p.OTPMethod
	}
	if p.OTPAttempts != nil {
		u.OTPAttempts = *p.OTPAttempts
	}
	if p.ClearOTP {
		u.OTPCode = ""
		u.OTPExpiresAt = nil
		u.OTPAttempts = 0
	}
	if p.PasswordResetToken != nil {
		u.PasswordResetToken = *p.PasswordResetToken
	}
	if p.PasswordResetTokenExpiresAt != nil {
		u.PasswordResetTokenExpiresAt = p.PasswordResetTokenExpiresAt
	}
	if p.ClearPasswordReset {
		u.PasswordResetToken = ""
		u.PasswordResetTokenExpiresAt = nil
	}
	if p.AccessToken != nil {
		u.AccessToken = *p.AccessToken
	}
	if p.ClearAccessToken {
		u.AccessToken = ""
	}
	if p.SessionRevokedAt != nil {
		u.SessionRevokedAt = p.SessionRevokedAt
	}
}
