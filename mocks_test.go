package identity_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
)

// memoryUsers is a map backed identity.Users used across the suite. It
// mirrors the store contract: lookups miss with an error, Update applies
// patches atomically.
type memoryUsers struct {
	mu      sync.Mutex
	records map[string]*identity.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{records: map[string]*identity.User{}}
}

func notFoundErr(field string) error {
	return errors.New("record not found", errors.CategoryNotFound).
		WithMetadata(map[string]any{"field": field})
}

func (m *memoryUsers) GetByID(ctx context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.records[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, notFoundErr("id")
}

func (m *memoryUsers) GetActiveByEmail(ctx context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFoundErr("email")
}

func (m *memoryUsers) GetActiveByPhone(ctx context.Context, phone string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFoundErr("phone")
}

func (m *memoryUsers) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.PasswordResetToken == "" || u.PasswordResetToken != hash {
			continue
		}
		if u.PasswordResetTokenExpiresAt == nil || !u.PasswordResetTokenExpiresAt.After(now) {
			continue
		}
		cp := *u
		return &cp, nil
	}
	return nil, notFoundErr("reset_token")
}

func (m *memoryUsers) Create(ctx context.Context, user *identity.User) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.EnsureStatus()
	cp := *user
	m.records[user.ID.String()] = &cp
	out := cp
	return &out, nil
}

func (m *memoryUsers) Update(ctx context.Context, id string, patch identity.UserPatch) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[id]
	if !ok {
		return nil, notFoundErr("id")
	}
	patch.Apply(u)
	cp := *u
	return &cp, nil
}

// remove drops a record, simulating a deleted account
func (m *memoryUsers) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
}

// seed inserts a user directly, bypassing the engine
func (m *memoryUsers) seed(u *identity.User) *identity.User {
	created, _ := m.Create(context.Background(), u)
	return created
}

type sentOTP struct {
	Method    identity.OTPMethod
	Recipient string
	Code      string
	UserID    string
}

type sentTemplate struct {
	Template  string
	Payload   map[string]any
	Recipient string
	UserID    string
}

// recordingNotifier captures dispatches so tests can read raw codes and
// reset tokens back out.
type recordingNotifier struct {
	mu        sync.Mutex
	otps      []sentOTP
	templates []sentTemplate
}

func (r *recordingNotifier) SendOTP(ctx context.Context, method identity.OTPMethod, recipient, code, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.otps = append(r.otps, sentOTP{Method: method, Recipient: recipient, Code: code, UserID: userID})
	return nil
}

func (r *recordingNotifier) SendTemplated(ctx context.Context, template string, payload map[string]any, recipient, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, sentTemplate{Template: template, Payload: payload, Recipient: recipient, UserID: userID})
	return nil
}

func (r *recordingNotifier) lastOTP() (sentOTP, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.otps) == 0 {
		return sentOTP{}, false
	}
	return r.otps[len(r.otps)-1], true
}

func (r *recordingNotifier) lastTemplate() (sentTemplate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.templates) == 0 {
		return sentTemplate{}, false
	}
	return r.templates[len(r.templates)-1], true
}

// recordingSink captures activity events in order
type recordingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (r *recordingSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) eventTypes() []identity.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]identity.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

// testClock is a movable time source shared by engine components
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() identity.EngineConfig {
	return identity.EngineConfig{
		SigningKey:             "test-signing-key-0123456789",
		Issuer:                 "identity-test",
		AccessTokenExpiration:  "15m",
		RefreshTokenExpiration: "7d",
		OTPExpirationMinutes:   10,
	}
}
