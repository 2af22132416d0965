// Package identity implements an identity and session authentication
// engine: credential login, OTP account verification, JWT session
// tokens, and password reset flows over a pluggable user store.
//
// Token handling:
//   - TokenService signs and validates HS256 access/refresh pairs with a
//     shared issuer. Access tokens embed email and admin claims; refresh
//     tokens carry only the subject.
//   - SessionGuard layers account state on top of codec validation: a
//     token for a missing, unverified, or revoked account is rejected
//     even when its signature still checks out. Revocation is a per-user
//     watermark (SessionRevokedAt), so logout invalidates every token
//     issued before it without a denylist.
//
// OTP lifecycle:
//   - OTPManager keeps all one time code state on the user record. Codes
//     are single use, expire after a configured TTL, lock after a fixed
//     attempt budget, and resends are rate limited by a cooldown derived
//     from the stored expiry.
//
// Orchestration:
//   - Authenticator composes the codec, OTP manager, reset manager, and
//     the account state machine into the public operations: Register,
//     VerifyOTP, ResendOTP, Login, RefreshTokens, Logout, and the
//     password flows. Accounts start inactive and only the state machine
//     moves them to active.
//
// Notification and audit are extension points: Notifier receives codes
// and reset tokens, ActivitySink receives lifecycle events. Both run
// best-effort so transports never block authentication.
package identity
