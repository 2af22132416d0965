package identity

import "context"

// Notifier delivers codes and confirmations out of band. Dispatch is best
// effort from the engine's perspective: failures are logged by callers and
// never roll back the state change that preceded them.
type Notifier interface {
	SendOTP(ctx context.Context, method OTPMethod, recipient, code, userID string) error
	SendTemplated(ctx context.Context, template string, payload map[string]any, recipient, userID string) error
}

// Template keys dispatched by the engine
const (
	TemplatePasswordReset   = "password-reset"
	TemplatePasswordChanged = "password-changed"
)

// NotifierFunc adapts two functions into the Notifier interface, handy for
// tests and small integrations.
type NotifierFunc struct {
	OTP       func(ctx context.Context, method OTPMethod, recipient, code, userID string) error
	Templated func(ctx context.Context, template string, payload map[string]any, recipient, userID string) error
}

func (n NotifierFunc) SendOTP(ctx context.Context, method OTPMethod, recipient, code, userID string) error {
	if n.OTP == nil {
		return nil
	}
	return n.OTP(ctx, method, recipient, code, userID)
}

func (n NotifierFunc) SendTemplated(ctx context.Context, template string, payload map[string]any, recipient, userID string) error {
	if n.Templated == nil {
		return nil
	}
	return n.Templated(ctx, template, payload, recipient, userID)
}

type logNotifier struct {
	logger Logger
}

// NewLogNotifier returns a Notifier that only logs dispatches. It is the
// default wiring so the engine works before a real mail/SMS integration
// is plugged in.
func NewLogNotifier(logger Logger) Notifier {
	if logger == nil {
		logger = defLogger{}
	}
	return logNotifier{logger: logger}
}

func (n logNotifier) SendOTP(ctx context.Context, method OTPMethod, recipient, code, userID string) error {
	n.logger.Info("dispatch otp", "method", method, "recipient", recipient, "user_id", userID)
	return nil
}

func (n logNotifier) SendTemplated(ctx context.Context, template string, payload map[string]any, recipient, userID string) error {
	n.logger.Info("dispatch notification", "template", template, "recipient", recipient, "user_id", userID)
	return nil
}

func normalizeNotifier(n Notifier, logger Logger) Notifier {
	if n == nil {
		return NewLogNotifier(logger)
	}
	return n
}
