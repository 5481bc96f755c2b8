package otpflow

import "errors"

var (
	// ErrValidation marks input rejected before any service call. Specific
	// rule failures wrap it.
	ErrValidation = errors.New("validation failed")
	// ErrEmailInvalid is returned when the email does not look like an address.
	ErrEmailInvalid = errors.New("please enter a valid email address")
	// ErrPasswordTooShort is returned when the password is below the policy minimum.
	ErrPasswordTooShort = errors.New("password is too short")
	// ErrDigitInvalid is returned when a code slot receives a non-digit.
	ErrDigitInvalid = errors.New("code slot accepts a single digit")
	// ErrEmailNotFound is returned when no account exists for the email.
	ErrEmailNotFound = errors.New("email not found")
	// ErrIncorrectPassword is returned when the password does not match.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrEmailTaken is returned when registration finds an existing account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidOTP is returned when the submitted code is rejected.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrOTPIncomplete is returned when a code is submitted with empty slots.
	ErrOTPIncomplete = errors.New("otp incomplete")
	// ErrOTPExpired is returned when the challenge no longer exists.
	ErrOTPExpired = errors.New("otp challenge expired")
	// ErrUnexpectedFailure wraps any other failure from the service boundary.
	ErrUnexpectedFailure = errors.New("something went wrong")
	// ErrTimeout is returned when a service call exceeds the configured wait.
	ErrTimeout = errors.New("request timed out")
	// ErrSubmissionInFlight is returned when a submit arrives while another is pending.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrIllegalTransition is returned when an event is not valid in the current phase.
	ErrIllegalTransition = errors.New("illegal transition for current phase")
	// ErrFormReset is returned when a role or mode switch discarded a pending result.
	ErrFormReset = errors.New("form was reset while a request was pending")
	// ErrFlowClosed is returned by a presenter after Close.
	ErrFlowClosed = errors.New("flow closed")
	// ErrEngineNotReady is returned by a zero or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
