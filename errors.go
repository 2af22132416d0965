package identity

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds        = "invalid_credentials"
	TextCodeAccountNotVerified  = "account_not_verified"
	TextCodeAccountNotFound     = "account_not_found"
	TextCodeEmailTaken          = "email_taken"
	TextCodePhoneTaken          = "phone_taken"
	TextCodeNoActiveOTP         = "no_active_otp"
	TextCodeOTPExpired          = "otp_expired"
	TextCodeOTPMismatch         = "otp_mismatch"
	TextCodeTooManyAttempts     = "otp_too_many_attempts"
	TextCodeResendTooSoon       = "otp_resend_too_soon"
	TextCodeAlreadyVerified     = "account_already_verified"
	TextCodeTokenInvalid        = "token_invalid"
	TextCodeTokenRevoked        = "token_revoked"
	TextCodeResetTokenInvalid   = "reset_token_invalid"
	TextCodeOldPasswordMismatch = "old_password_mismatch"
)

// ErrInvalidCredentials is returned by login for an unknown identifier or a
// wrong password, deliberately merged so callers cannot enumerate accounts.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrAccountNotVerified is returned when an operation requires an active,
// OTP-verified account.
var ErrAccountNotVerified = errors.New("account has not been verified", errors.CategoryAuth).
	WithTextCode(TextCodeAccountNotVerified).
	WithCode(errors.CodeForbidden)

// ErrAccountNotFound is returned when the referenced account does not exist.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrEmailTaken is returned when registering with an email already bound to
// an active account.
var ErrEmailTaken = errors.New("email address is already in use", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrPhoneTaken is returned when registering with a phone number already
// bound to an active account.
var ErrPhoneTaken = errors.New("phone number is already in use", errors.CategoryConflict).
	WithTextCode(TextCodePhoneTaken).
	WithCode(errors.CodeConflict)

// ErrNoActiveOTP is returned when a verification is attempted and no code
// is stored for the account.
var ErrNoActiveOTP = errors.New("no active verification code", errors.CategoryValidation).
	WithTextCode(TextCodeNoActiveOTP).
	WithCode(errors.CodeBadRequest)

// ErrOTPExpired is returned when the stored code is past its expiry.
var ErrOTPExpired = errors.New("verification code has expired", errors.CategoryValidation).
	WithTextCode(TextCodeOTPExpired).
	WithCode(errors.CodeBadRequest)

// ErrOTPMismatch is returned for a wrong code; instances carry the
// remaining attempt count in metadata (see OTPMismatchError).
var ErrOTPMismatch = errors.New("verification code is incorrect", errors.CategoryValidation).
	WithTextCode(TextCodeOTPMismatch).
	WithCode(errors.CodeBadRequest)

// ErrTooManyAttempts is returned once the attempt budget for the current
// code is exhausted; a fresh code must be requested.
var ErrTooManyAttempts = errors.New("maximum verification attempts reached", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrResendTooSoon is returned when a resend is requested inside the
// cooldown window; instances carry the wait in metadata (see ResendTooSoonError).
var ErrResendTooSoon = errors.New("please wait before requesting a new code", errors.CategoryRateLimit).
	WithTextCode(TextCodeResendTooSoon)

// ErrAlreadyVerified is returned when resending a code for an account that
// already completed verification.
var ErrAlreadyVerified = errors.New("account is already verified", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(errors.CodeConflict)

// ErrTokenInvalid covers malformed, expired, mistyped, and unknown-subject
// tokens. Refresh failures collapse into this error on purpose so the
// response does not leak account state.
var ErrTokenInvalid = errors.New("token is invalid or expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenRevoked is returned by the session guard for tokens issued before
// the account's revocation watermark.
var ErrTokenRevoked = errors.New("token has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrResetTokenInvalid is returned when a reset token does not match any
// account or is past its expiry. Consumed tokens fail the same way.
var ErrResetTokenInvalid = errors.New("reset token is invalid or expired", errors.CategoryValidation).
	WithTextCode(TextCodeResetTokenInvalid).
	WithCode(errors.CodeBadRequest)

// ErrOldPasswordMismatch is returned by change-password when the current
// password does not verify.
var ErrOldPasswordMismatch = errors.New("current password is incorrect", errors.CategoryAuth).
	WithTextCode(TextCodeOldPasswordMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("string must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// OTPMismatchError returns a copy of ErrOTPMismatch annotated with the
// attempts the caller has left before the code locks. The package var is
// never mutated so concurrent callers each get their own metadata.
func OTPMismatchError(remaining int) *errors.Error {
	if remaining < 0 {
		remaining = 0
	}
	clone := ErrOTPMismatch.Clone()
	if clone == nil {
		return ErrOTPMismatch
	}
	clone.Source = ErrOTPMismatch
	return clone.WithMetadata(map[string]any{
		"remaining_attempts": remaining,
	})
}

// ResendTooSoonError returns a copy of ErrResendTooSoon annotated with the
// seconds left in the cooldown window.
func ResendTooSoonError(waitSeconds int) *errors.Error {
	clone := ErrResendTooSoon.Clone()
	if clone == nil {
		return ErrResendTooSoon
	}
	clone.Source = ErrResendTooSoon
	return clone.WithMetadata(map[string]any{
		"wait_seconds": waitSeconds,
	})
}

// HasTextCode reports whether err carries the given structured text code.
// Errors built from the package vars keep their text code through
// WithMetadata, so this is the stable way to branch on the taxonomy.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// CooldownSeconds extracts the wait-seconds metadata from a resend
// cooldown error. The second return is false for any other error.
func CooldownSeconds(err error) (int, bool) {
	if !HasTextCode(err, TextCodeResendTooSoon) {
		return 0, false
	}
	var rich *errors.Error
	errors.As(err, &rich)
	if rich.Metadata == nil {
		return 0, false
	}
	n, ok := rich.Metadata["wait_seconds"].(int)
	return n, ok
}

// RemainingAttempts extracts the remaining-attempts metadata from an
// OTP mismatch error. The second return is false for any other error.
func RemainingAttempts(err error) (int, bool) {
	if !HasTextCode(err, TextCodeOTPMismatch) {
		return 0, false
	}
	var rich *errors.Error
	errors.As(err, &rich)
	if rich.Metadata == nil {
		return 0, false
	}
	n, ok := rich.Metadata["remaining_attempts"].(int)
	return n, ok
}
