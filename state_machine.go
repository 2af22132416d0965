package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "invalid_user_state_transition"

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = errors.New("invalid user state transition", errors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(errors.CodeBadRequest)

// invalidTransitionError copies ErrInvalidTransition before attaching the
// rejection context so the package var stays pristine.
func invalidTransitionError(meta map[string]any) *errors.Error {
	clone := ErrInvalidTransition.Clone()
	if clone == nil {
		return ErrInvalidTransition
	}
	clone.Source = ErrInvalidTransition
	return clone.WithMetadata(meta)
}

// UserStateMachine centralizes account status transitions so they never
// happen through ad hoc field writes.
type UserStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus) (*User, error)
	CurrentStatus(user *User) UserStatus
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*userStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *userStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *userStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *userStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewUserStateMachine returns the default implementation backed by the
// provided store. The engine owns exactly one transition: inactive
// accounts activate on OTP verification, and never go back.
func NewUserStateMachine(users Users, opts ...StateMachineOption) UserStateMachine {
	sm := &userStateMachine{
		users: users,
		transitions: map[UserStatus]map[UserStatus]struct{}{
			UserStatusInactive: {
				UserStatusActive: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type userStateMachine struct {
	users        Users
	transitions  map[UserStatus]map[UserStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *userStateMachine) CurrentStatus(user *User) UserStatus {
	if user == nil {
		return ""
	}
	user.EnsureStatus()
	return user.Status
}

func (sm *userStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus) (*User, error) {
	if user == nil {
		return nil, invalidTransitionError(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	user.EnsureStatus()
	from := user.Status

	if target == "" {
		return nil, invalidTransitionError(map[string]any{
			"reason": "target status is empty",
		})
	}

	if from == target {
		return user, nil
	}

	allowed, ok := sm.transitions[from]
	if !ok {
		return nil, invalidTransitionError(map[string]any{
			"from": from,
			"to":   target,
		})
	}
	if _, ok := allowed[target]; !ok {
		return nil, invalidTransitionError(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	updated, err := sm.users.Update(ctx, user.ID.String(), UserPatch{Status: &target})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist status transition")
	}

	sm.recordActivity(ctx, actor, updated, from, target)

	return updated, nil
}

func (sm *userStateMachine) recordActivity(ctx context.Context, actor ActorRef, user *User, from, to UserStatus) {
	event := ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   to,
		OccurredAt: sm.now(),
	}

	if err := sm.activitySink.Record(ctx, event); err != nil {
		sm.logger.Error("activity sink error during status transition", "error", err)
	}
}
