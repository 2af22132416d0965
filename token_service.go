package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// AccessClaims are the claims carried by access tokens
type AccessClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
}

// RefreshClaims are the claims carried by refresh tokens; they only bind
// the subject, never profile data
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// TokenPair is the issued credential bundle. Expiry fields are reported
// in seconds.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

// TokenService mints and verifies the HS256 token pair. It holds no state
// beyond the secret and issuer configured at startup, so one instance is
// safe for concurrent use.
type TokenService struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     Logger
	now        func() time.Time
}

var _ TokenCodec = (*TokenService)(nil)

// NewTokenService creates a TokenService from the engine configuration.
// Lifetimes are human-readable spans ("1d", "30m") resolved once here.
func NewTokenService(cfg Config, logger Logger) (*TokenService, error) {
	if logger == nil {
		logger = defLogger{}
	}

	accessTTL, err := ParseSpan(cfg.GetAccessTokenExpiration())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid access token expiration")
	}

	refreshTTL, err := ParseSpan(cfg.GetRefreshTokenExpiration())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid refresh token expiration")
	}

	return &TokenService{
		signingKey: []byte(cfg.GetSigningKey()),
		issuer:     cfg.GetIssuer(),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// WithClock overrides the time source, mainly for tests
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// IssuePair mints an access and refresh token for the identity
func (ts *TokenService) IssuePair(identity Identity) (*TokenPair, error) {
	if identity == nil {
		return nil, errors.New("identity is required", errors.CategoryBadInput)
	}

	now := ts.now()

	access := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
		Email:   identity.Email(),
		IsAdmin: identity.IsAdmin(),
	}

	refresh := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.refreshTTL)),
		},
	}

	accessToken, err := ts.sign(access)
	if err != nil {
		return nil, err
	}

	refreshToken, err := ts.sign(refresh)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        int(ts.accessTTL / time.Second),
		RefreshExpiresIn: int(ts.refreshTTL / time.Second),
	}, nil
}

// Validate parses and verifies an access token
func (ts *TokenService) Validate(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefresh parses and verifies a refresh token
func (ts *TokenService) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (ts *TokenService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

func (ts *TokenService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	},
		jwt.WithIssuer(ts.issuer),
		jwt.WithTimeFunc(ts.now),
	)

	if err != nil {
		return invalidTokenError(err)
	}

	if !token.Valid {
		return ErrTokenInvalid
	}

	return nil
}

// invalidTokenError copies ErrTokenInvalid and records the parse failure
// without mutating the package var.
func invalidTokenError(cause error) *errors.Error {
	clone := ErrTokenInvalid.Clone()
	if clone == nil {
		return ErrTokenInvalid
	}
	clone.Source = ErrTokenInvalid
	return clone.WithMetadata(map[string]any{
		"reason": cause.Error(),
	})
}
