package otpflow

import (
	"context"
	"errors"
	"fmt"
)

const (
	msgEmailNotFound     = "Email not found in the database."
	msgIncorrectPassword = "Incorrect password."
	msgEmailTaken        = "An account with this email already exists."
	msgInvalidOTP        = "Invalid OTP. Please try again."
	msgOTPExpired        = "The code has expired. Please sign in again."
	msgUnexpected        = "Something went wrong. Please try again later."
	msgTimeout           = "The request timed out. Please try again."
)

// Machine enforces the legal sequence of the credential and code steps. It
// holds no form state of its own: every transition operates on the [Form]
// passed in, so one Machine may serve any number of forms as long as each form
// is mutated by one goroutine at a time.
type Machine struct {
	svc      AuthService
	policies []Policy
}

// NewMachine returns a machine over svc. The first policy is the default; the
// policy whose Mode matches the form's mode is used when present.
func NewMachine(svc AuthService, policies ...Policy) *Machine {
	if len(policies) == 0 {
		cfg := defaultConfig().Flow
		policies = []Policy{LoginPolicy(cfg), RegistrationPolicy(cfg)}
	}
	return &Machine{svc: svc, policies: policies}
}

// Policy returns the policy applied to forms in the given mode.
func (m *Machine) Policy(mode Mode) Policy {
	for _, p := range m.policies {
		if p.Mode == mode {
			return p
		}
	}
	return m.policies[0]
}

// NewForm returns a fresh form sized for the policy of mode.
func (m *Machine) NewForm(mode Mode, role Role) *Form {
	return NewForm(mode, role, m.Policy(mode).OTPDigits)
}

// SubmitCredentials validates c and runs one credential attempt. On success
// the form moves to [PhaseAwaitingOtp] holding the issued challenge.
func (m *Machine) SubmitCredentials(ctx context.Context, f *Form, c Credentials) error {
	if f.OTP.Phase != PhaseCollectingCredentials {
		return fmt.Errorf("%w: submit credentials in %s", ErrIllegalTransition, f.OTP.Phase)
	}
	if c.Role == "" {
		c.Role = f.Credentials.Role
	}
	prev := f.clone()
	f.Credentials = c
	f.Flags.ShowErrors = true
	f.Flags.EmailNotFound = false
	f.Flags.PasswordIncorrect = false
	f.Flags.EmailTaken = false
	f.Flags.ShowForgotPassword = false
	f.Message = ""

	fields, err := ValidateCredentials(m.Policy(f.Mode), c)
	f.FieldErrors = fields
	if f.FieldErrors == nil {
		f.FieldErrors = map[Field]string{}
	}
	if err != nil {
		if _, bad := fields[FieldEmail]; bad {
			f.Focus = Focus{Field: FieldEmail}
		} else if _, bad := fields[FieldPassword]; bad {
			f.Focus = Focus{Field: FieldPassword}
		}
		return err
	}

	var outcome AuthOutcome
	if f.Mode == ModeRegister {
		outcome, err = m.svc.Register(ctx, c)
	} else {
		outcome, err = m.svc.Authenticate(ctx, c.Email, c.Password, c.Role)
	}
	if err != nil {
		return m.restoreAfterFailure(ctx, f, prev, "credentials", err)
	}

	switch outcome {
	case OutcomeAccepted:
	case OutcomeUnknownEmail:
		f.Flags.EmailNotFound = true
		f.Credentials.Password = ""
		f.Focus = Focus{Field: FieldEmail}
		f.Message = msgEmailNotFound
		return ErrEmailNotFound
	case OutcomeWrongPassword:
		f.Flags.PasswordIncorrect = true
		f.Flags.ShowForgotPassword = true
		f.Credentials.Password = ""
		f.Focus = Focus{Field: FieldPassword}
		f.Message = msgIncorrectPassword
		return ErrIncorrectPassword
	case OutcomeEmailTaken:
		f.Flags.EmailTaken = true
		f.Focus = Focus{Field: FieldEmail}
		f.Message = msgEmailTaken
		return ErrEmailTaken
	default:
		return m.restoreAfterFailure(ctx, f, prev, "credentials", fmt.Errorf("unexpected outcome %s", outcome))
	}

	challenge, err := m.svc.IssueOtp(ctx, c.Email)
	if err != nil {
		return m.restoreAfterFailure(ctx, f, prev, "issue otp", err)
	}
	if challenge == "" {
		return m.restoreAfterFailure(ctx, f, prev, "issue otp", errors.New("empty challenge"))
	}

	f.OTP = OtpState{
		Phase:     PhaseAwaitingOtp,
		Digits:    make([]string, m.Policy(f.Mode).OTPDigits),
		Challenge: challenge,
	}
	f.Focus = Focus{Field: FieldOTP, Slot: 0}
	return nil
}

// EditEmail sets the email and clears the errors tied to it, whether or not
// the new value is valid.
func (m *Machine) EditEmail(f *Form, value string) {
	f.Credentials.Email = value
	f.Flags.EmailNotFound = false
	f.Flags.EmailTaken = false
	delete(f.FieldErrors, FieldEmail)
	f.Message = ""
	f.Focus = Focus{Field: FieldEmail}
}

// EditPassword sets the password and clears the errors tied to it.
func (m *Machine) EditPassword(f *Form, value string) {
	f.Credentials.Password = value
	f.Flags.PasswordIncorrect = false
	delete(f.FieldErrors, FieldPassword)
	f.Message = ""
	f.Focus = Focus{Field: FieldPassword}
}

// EditDigit writes one code slot. A non-empty value moves focus to the next
// slot unless index is the last one.
func (m *Machine) EditDigit(f *Form, index int, value string) error {
	if f.OTP.Phase != PhaseAwaitingOtp {
		return fmt.Errorf("%w: edit digit in %s", ErrIllegalTransition, f.OTP.Phase)
	}
	if index < 0 || index >= len(f.OTP.Digits) {
		return fmt.Errorf("%w: slot %d out of range", ErrDigitInvalid, index)
	}
	digit, err := normalizeDigit(value)
	if err != nil {
		return err
	}
	f.OTP.Digits[index] = digit
	delete(f.FieldErrors, FieldOTP)
	if digit != "" && index < len(f.OTP.Digits)-1 {
		f.Focus = Focus{Field: FieldOTP, Slot: index + 1}
	} else {
		f.Focus = Focus{Field: FieldOTP, Slot: index}
	}
	return nil
}

// Backspace clears a filled slot, or moves focus back from an empty one.
func (m *Machine) Backspace(f *Form, index int) error {
	if f.OTP.Phase != PhaseAwaitingOtp {
		return fmt.Errorf("%w: backspace in %s", ErrIllegalTransition, f.OTP.Phase)
	}
	if index < 0 || index >= len(f.OTP.Digits) {
		return fmt.Errorf("%w: slot %d out of range", ErrDigitInvalid, index)
	}
	if f.OTP.Digits[index] != "" {
		f.OTP.Digits[index] = ""
		f.Focus = Focus{Field: FieldOTP, Slot: index}
		return nil
	}
	if index > 0 {
		f.Focus = Focus{Field: FieldOTP, Slot: index - 1}
	}
	return nil
}

// SubmitOtp verifies the joined digits against the held challenge.
func (m *Machine) SubmitOtp(ctx context.Context, f *Form) error {
	if f.OTP.Phase != PhaseAwaitingOtp {
		return fmt.Errorf("%w: submit otp in %s", ErrIllegalTransition, f.OTP.Phase)
	}
	if !f.OTP.Filled() {
		if f.FieldErrors == nil {
			f.FieldErrors = map[Field]string{}
		}
		f.FieldErrors[FieldOTP] = fmt.Sprintf("Enter all %d digits", len(f.OTP.Digits))
		return ErrOTPIncomplete
	}

	ok, err := m.svc.VerifyOtp(ctx, f.OTP.Challenge, f.OTP.Code())
	if err != nil {
		if errors.Is(err, ErrOTPExpired) {
			f.Credentials.Password = ""
			f.OTP = OtpState{
				Phase:  PhaseCollectingCredentials,
				Digits: make([]string, len(f.OTP.Digits)),
			}
			f.Focus = Focus{Field: FieldPassword}
			f.Message = msgOTPExpired
			return ErrOTPExpired
		}
		return m.serviceFailure(ctx, f, "verify otp", err)
	}

	if !ok {
		f.OTP.clearDigits()
		f.OTP.AttemptsInvalid = true
		f.Focus = Focus{Field: FieldOTP, Slot: 0}
		f.Message = msgInvalidOTP
		return ErrInvalidOTP
	}

	f.OTP.clearDigits()
	f.OTP.Phase = PhaseVerified
	f.OTP.Challenge = ""
	f.OTP.AttemptsInvalid = false
	f.Credentials.Password = ""
	f.Message = ""
	return nil
}

// SwitchRole resets the form for role. It applies in every phase.
func (m *Machine) SwitchRole(f *Form, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	f.reset(f.Mode, role, m.Policy(f.Mode).OTPDigits)
	return nil
}

// SwitchMode resets the form for mode, keeping the selected role.
func (m *Machine) SwitchMode(f *Form, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, mode)
	}
	f.reset(mode, f.Credentials.Role, m.Policy(mode).OTPDigits)
	return nil
}

// RequestPasswordReset asks the service for a reset link. It is offered only
// after a wrong password, before a code is issued. An empty email falls back
// to the form's email.
func (m *Machine) RequestPasswordReset(ctx context.Context, f *Form, email string) error {
	if f.OTP.Phase != PhaseCollectingCredentials || !f.Flags.ShowForgotPassword {
		return fmt.Errorf("%w: password reset not offered", ErrIllegalTransition)
	}
	if email == "" {
		email = f.Credentials.Email
	}
	if err := m.svc.RequestPasswordReset(ctx, email); err != nil {
		return m.serviceFailure(ctx, f, "password reset", err)
	}
	f.Flags.ShowForgotPassword = false
	return nil
}

// restoreAfterFailure puts back the form as it was before the credential
// attempt. Only ShowErrors and the failure message survive.
func (m *Machine) restoreAfterFailure(ctx context.Context, f *Form, prev Form, op string, err error) error {
	*f = prev
	f.Flags.ShowErrors = true
	return m.serviceFailure(ctx, f, op, err)
}

// serviceFailure converts a boundary error into ErrTimeout or
// ErrUnexpectedFailure. The form keeps its phase; only the message changes.
func (m *Machine) serviceFailure(ctx context.Context, f *Form, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		f.Message = msgTimeout
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	f.Message = msgUnexpected
	return fmt.Errorf("%w: %s: %v", ErrUnexpectedFailure, op, err)
}
