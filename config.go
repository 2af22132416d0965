package identity

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Fixed policy values. The original service hard-codes these rather than
// exposing them as configuration, and the engine keeps that contract.
const (
	// MaxOTPAttempts is the total number of verification attempts allowed
	// per issued code
	MaxOTPAttempts = 5
	// OTPResendCooldown is the minimum interval between code issuances
	OTPResendCooldown = 60 * time.Second
	// ResetTokenTTL bounds the lifetime of password reset tokens
	ResetTokenTTL = time.Hour
)

// EngineConfig is a concrete Config for callers that do not bring their own
type EngineConfig struct {
	SigningKey             string
	Issuer                 string
	AccessTokenExpiration  string
	RefreshTokenExpiration string
	OTPExpirationMinutes   int
	// OTPWhitelistCode bypasses verification when submitted as a code.
	// Development and test escape hatch only; leave empty in production.
	OTPWhitelistCode string
}

func (c EngineConfig) GetSigningKey() string { return c.SigningKey }

func (c EngineConfig) GetIssuer() string { return c.Issuer }

func (c EngineConfig) GetAccessTokenExpiration() string { return c.AccessTokenExpiration }

func (c EngineConfig) GetRefreshTokenExpiration() string { return c.RefreshTokenExpiration }

func (c EngineConfig) GetOTPExpirationMinutes() int { return c.OTPExpirationMinutes }

func (c EngineConfig) GetOTPWhitelistCode() string { return c.OTPWhitelistCode }

// Validate will run validation rules
func (c EngineConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.AccessTokenExpiration, validation.Required, validation.By(validateSpan)),
		validation.Field(&c.RefreshTokenExpiration, validation.Required, validation.By(validateSpan)),
		validation.Field(&c.OTPExpirationMinutes, validation.Required, validation.Min(1)),
	)
}

func validateSpan(value any) error {
	s, _ := value.(string)
	_, err := ParseSpan(s)
	return err
}

var _ Config = EngineConfig{}
