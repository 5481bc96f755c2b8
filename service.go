package otpflow

import "context"

// AuthService is the boundary to credential checking and code issuance. The
// machine treats every returned error as a service failure; refusals are
// reported through [AuthOutcome] or a false verification result instead.
//
// VerifyOtp reports a challenge that no longer exists (expired or exhausted)
// by returning an error wrapping [ErrOTPExpired].
type AuthService interface {
	Authenticate(ctx context.Context, email, password string, role Role) (AuthOutcome, error)
	Register(ctx context.Context, creds Credentials) (AuthOutcome, error)
	IssueOtp(ctx context.Context, email string) (challengeID string, err error)
	VerifyOtp(ctx context.Context, challengeID, code string) (bool, error)
	RequestPasswordReset(ctx context.Context, email string) error
}
