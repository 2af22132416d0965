package identity

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
)

// RegisterInput is the payload for account registration
type RegisterInput struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone_number"`
	Password  string    `json:"password"`
	OTPMethod OTPMethod `json:"otp_method"`
}

// Validate will run validation rules
func (r RegisterInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.OTPMethod, validation.In(OTPMethodEmail, OTPMethodSMS)),
	)
}

// RegisterResponse is returned on successful registration. The account
// stays inactive until the dispatched code is verified.
type RegisterResponse struct {
	User                 *User  `json:"user"`
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requires_verification"`
}

// VerifyOTPInput is the payload for code verification
type VerifyOTPInput struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// Validate will run validation rules
func (r VerifyOTPInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Code, validation.Required),
	)
}

// VerifyOTPResponse carries the activated account and its first token pair
type VerifyOTPResponse struct {
	User    *User      `json:"user"`
	Tokens  *TokenPair `json:"tokens"`
	Message string     `json:"message"`
}

// LoginInput is the payload for credential login. The identifier is an
// email when it contains an "@", otherwise a phone number.
type LoginInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate will run validation rules
func (r LoginInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginResponse carries the authenticated account and a fresh token pair
type LoginResponse struct {
	User    *User      `json:"user"`
	Tokens  *TokenPair `json:"tokens"`
	Message string     `json:"message"`
}

// Authenticator composes the token codec, OTP manager, and reset manager
// into the engine's public operations, enforcing the account state machine
// and the error taxonomy along the way.
type Authenticator struct {
	users            Users
	tokens           *TokenService
	otp              *OTPManager
	resets           *PasswordResetManager
	stateMachine     UserStateMachine
	notifier         Notifier
	logger           Logger
	activity         ActivitySink
	now              func() time.Time
	phoneRegion      string
	deterministicIDs bool
}

// NewAuthenticator wires an engine over the given user store. Components
// share the configuration and can be further customized with the With
// methods before first use.
func NewAuthenticator(users Users, cfg Config) (*Authenticator, error) {
	tokens, err := NewTokenService(cfg, nil)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		users:        users,
		tokens:       tokens,
		otp:          NewOTPManager(users, cfg),
		resets:       NewPasswordResetManager(users),
		stateMachine: NewUserStateMachine(users),
		notifier:     NewLogNotifier(nil),
		logger:       defLogger{},
		activity:     noopActivitySink{},
		now:          time.Now,
		phoneRegion:  "US",
	}

	return a, nil
}

// WithLogger overrides the logger for the engine and its components
func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger == nil {
		return a
	}
	a.logger = logger
	a.otp.WithLogger(logger)
	a.resets.WithLogger(logger)
	return a
}

// WithNotifier sets the notification dispatch used for codes and
// confirmations
func (a *Authenticator) WithNotifier(n Notifier) *Authenticator {
	a.notifier = normalizeNotifier(n, a.logger)
	a.resets.WithNotifier(n)
	return a
}

// WithActivitySink configures an ActivitySink for emitting auth events
func (a *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	a.activity = normalizeActivitySink(sink)
	a.resets.WithActivitySink(sink)
	a.rebuildStateMachine()
	return a
}

// WithClock overrides the time source across every component, mainly
// for tests
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	if now == nil {
		return a
	}
	a.now = now
	a.tokens.WithClock(now)
	a.otp.WithClock(now)
	a.resets.WithClock(now)
	a.rebuildStateMachine()
	return a
}

func (a *Authenticator) rebuildStateMachine() {
	a.stateMachine = NewUserStateMachine(a.users,
		WithStateMachineClock(a.now),
		WithStateMachineActivitySink(a.activity),
		WithStateMachineLogger(a.logger),
	)
}

// WithPhoneRegion sets the default region used to parse phone numbers
// without a country prefix
func (a *Authenticator) WithPhoneRegion(region string) *Authenticator {
	if region != "" {
		a.phoneRegion = region
	}
	return a
}

// WithDeterministicIDs derives account IDs from the email instead of
// random UUIDs, which keeps fixtures and cross-system references stable
func (a *Authenticator) WithDeterministicIDs(enabled bool) *Authenticator {
	a.deterministicIDs = enabled
	return a
}

// Tokens exposes the token codec used by this engine
func (a *Authenticator) Tokens() TokenCodec {
	return a.tokens
}

// OTP exposes the OTP manager used by this engine
func (a *Authenticator) OTP() *OTPManager {
	return a.otp
}

// Resets exposes the password reset manager used by this engine
func (a *Authenticator) Resets() *PasswordResetManager {
	return a.resets
}

// Guard builds a session guard sharing this engine's codec and store
func (a *Authenticator) Guard() *SessionGuard {
	return NewSessionGuard(a.tokens, a.users).WithLogger(a.logger)
}

// Register creates an inactive account and dispatches its first
// verification code.
func (a *Authenticator) Register(ctx context.Context, input RegisterInput) (*RegisterResponse, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid registration payload")
	}

	method := input.OTPMethod
	if method == "" {
		method = OTPMethodEmail
	}

	phone, err := a.normalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}

	if _, err := a.users.GetActiveByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !isRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check email availability")
	}
	if _, err := a.users.GetActiveByPhone(ctx, phone); err == nil {
		return nil, ErrPhoneTaken
	} else if !isRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check phone availability")
	}

	salt, hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid password provided")
	}

	user := &User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		Phone:        phone,
		PasswordHash: hash,
		PasswordSalt: salt,
		Status:       UserStatusInactive,
	}

	if a.deterministicIDs {
		if id, err := hashid.NewUUID(input.Email); err == nil {
			user.ID = id
		}
	}

	created, err := a.users.Create(ctx, user)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConflict, "could not create user")
	}

	issue, err := a.otp.CreateOTP(ctx, created.ID.String(), method)
	if err != nil {
		return nil, err
	}

	a.dispatchOTP(ctx, method, created, issue.Code)
	a.recordActivity(ctx, ActivityEventUserRegistered, created, nil)

	channel := "email"
	if method == OTPMethodSMS {
		channel = "phone"
	}

	return &RegisterResponse{
		User:                 created.Public(),
		Message:              "Registration successful. Please check your " + channel + " for the verification code.",
		RequiresVerification: true,
	}, nil
}

// VerifyOTP consumes a verification code, activates the account, marks
// the delivery channel verified, and issues the first token pair.
func (a *Authenticator) VerifyOTP(ctx context.Context, input VerifyOTPInput) (*VerifyOTPResponse, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid verification payload")
	}

	method, err := a.otp.VerifyOTP(ctx, input.UserID, input.Code)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	user, err = a.stateMachine.Transition(ctx, ActorRef{ID: user.ID.String(), Type: "user"}, user, UserStatusActive)
	if err != nil {
		return nil, err
	}

	verified := true
	verifiedAt := a.now()
	patch := UserPatch{}
	if method == OTPMethodSMS {
		patch.PhoneVerified = &verified
		patch.PhoneVerifiedAt = &verifiedAt
	} else {
		patch.EmailVerified = &verified
		patch.EmailVerifiedAt = &verifiedAt
	}

	user, err = a.users.Update(ctx, user.ID.String(), patch)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to mark channel verified")
	}

	tokens, err := a.issueAndStore(ctx, user)
	if err != nil {
		return nil, err
	}

	a.recordActivity(ctx, ActivityEventOTPVerified, user, map[string]any{"method": method})

	return &VerifyOTPResponse{
		User:    user.Public(),
		Tokens:  tokens,
		Message: "Account verified.",
	}, nil
}

// ResendOTP issues and dispatches a replacement code for an account that
// has not completed verification yet.
func (a *Authenticator) ResendOTP(ctx context.Context, userID string) error {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return ErrAccountNotFound
	}

	if user.IsActive() {
		return ErrAlreadyVerified
	}

	issue, err := a.otp.ResendOTP(ctx, userID)
	if err != nil {
		return err
	}

	method := user.OTPMethod
	if method == "" {
		method = OTPMethodEmail
	}

	a.dispatchOTP(ctx, method, user, issue.Code)
	a.recordActivity(ctx, ActivityEventOTPIssued, user, map[string]any{"method": method})

	return nil
}

// Login authenticates by email or phone plus password and issues a token
// pair. Unknown identifiers and wrong passwords fail identically.
func (a *Authenticator) Login(ctx context.Context, input LoginInput) (*LoginResponse, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid login payload")
	}

	var user *User
	var err error
	if strings.Contains(input.Identifier, "@") {
		user, err = a.users.GetActiveByEmail(ctx, input.Identifier)
	} else {
		user, err = a.users.GetActiveByPhone(ctx, input.Identifier)
	}
	if err != nil {
		a.recordActivity(ctx, ActivityEventLoginFailure, nil, map[string]any{"identifier": input.Identifier})
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		return nil, ErrAccountNotVerified
	}

	if !IsPasswordMatch(user.PasswordSalt, input.Password, user.PasswordHash) {
		a.recordActivity(ctx, ActivityEventLoginFailure, user, nil)
		return nil, ErrInvalidCredentials
	}

	tokens, err := a.issueAndStore(ctx, user)
	if err != nil {
		return nil, err
	}

	a.recordActivity(ctx, ActivityEventLoginSuccess, user, nil)
	a.logger.Info("user logged in", "email", user.Email)

	return &LoginResponse{
		User:    user.Public(),
		Tokens:  tokens,
		Message: "Login successful.",
	}, nil
}

// RefreshTokens exchanges a valid refresh token for a fresh pair. Every
// failure mode collapses into ErrTokenInvalid so the response does not
// reveal whether the subject exists or is active.
func (a *Authenticator) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := a.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		a.logger.Error("refresh token validation failed", "error", err)
		return nil, ErrTokenInvalid
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if !user.IsActive() {
		return nil, ErrTokenInvalid
	}

	tokens, err := a.issueAndStore(ctx, user)
	if err != nil {
		return nil, err
	}

	a.recordActivity(ctx, ActivityEventTokenRefresh, user, nil)

	return tokens, nil
}

// Logout drops the stored access token reference and advances the
// revocation watermark, invalidating every outstanding token.
func (a *Authenticator) Logout(ctx context.Context, userID string) error {
	revokedAt := a.now()
	user, err := a.users.Update(ctx, userID, UserPatch{
		ClearAccessToken: true,
		SessionRevokedAt: &revokedAt,
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke sessions")
	}

	a.recordActivity(ctx, ActivityEventLogout, user, nil)

	return nil
}

// ForgotPassword requests a reset token for the email. The response is
// identical whether or not an account exists.
func (a *Authenticator) ForgotPassword(ctx context.Context, email string) (*ResetRequestResponse, error) {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid email provided")
	}
	return a.resets.RequestReset(ctx, email)
}

// ResetPassword redeems a reset token for a new password.
func (a *Authenticator) ResetPassword(ctx context.Context, rawToken, newPassword string) (*ResetResponse, error) {
	return a.resets.ConsumeReset(ctx, rawToken, newPassword)
}

// ChangePassword rotates the password for an authenticated account.
func (a *Authenticator) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	return a.resets.ChangePassword(ctx, userID, oldPassword, newPassword)
}

func (a *Authenticator) issueAndStore(ctx context.Context, user *User) (*TokenPair, error) {
	tokens, err := a.tokens.IssuePair(NewIdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	if _, err := a.users.Update(ctx, user.ID.String(), UserPatch{
		AccessToken: &tokens.AccessToken,
	}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to store access token reference")
	}

	return tokens, nil
}

func (a *Authenticator) dispatchOTP(ctx context.Context, method OTPMethod, user *User, code string) {
	recipient := user.Email
	if method == OTPMethodSMS {
		recipient = user.Phone
	}

	if err := a.notifier.SendOTP(ctx, method, recipient, code, user.ID.String()); err != nil {
		a.logger.Error("otp dispatch failed", "method", method, "user_id", user.ID.String(), "error", err)
	}
}

func (a *Authenticator) recordActivity(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: a.now(),
	}
	if user != nil {
		event.UserID = user.ID.String()
		event.Actor = ActorRef{ID: user.ID.String(), Type: "user"}
	} else {
		event.Actor = ActorRef{Type: "unknown"}
	}

	if err := a.activity.Record(ctx, event); err != nil {
		a.logger.Error("activity sink error", "event", eventType, "error", err)
	}
}

func (a *Authenticator) normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, a.phoneRegion)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryValidation, "invalid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
