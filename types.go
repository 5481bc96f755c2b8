package otpflow

import (
	"fmt"
	"strings"
)

// Role selects which dashboard a verified user lands on and whether the
// registration cross-link is offered.
type Role string

const (
	// RoleStudent is the default role of a freshly mounted form.
	RoleStudent Role = "student"
	// RoleAdmin has no self-registration link.
	RoleAdmin Role = "admin"
)

// ParseRole accepts "student" or "admin" in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Mode is the flow variant a form was mounted for.
type Mode string

const (
	// ModeLogin authenticates an existing account before issuing a code.
	ModeLogin Mode = "login"
	// ModeRegister enrolls a pending account before issuing a code.
	ModeRegister Mode = "register"
)

// ParseMode accepts "login" or "register" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLogin:
		return ModeLogin, nil
	case ModeRegister:
		return ModeRegister, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrValidation, s)
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeLogin || m == ModeRegister
}

// Phase is the current step of the flow.
type Phase uint8

const (
	// PhaseCollectingCredentials is the initial phase.
	PhaseCollectingCredentials Phase = iota
	// PhaseAwaitingOtp holds an issued challenge and collects digits.
	PhaseAwaitingOtp
	// PhaseVerified is terminal for the flow; the presenter navigates away.
	PhaseVerified
)

func (p Phase) String() string {
	switch p {
	case PhaseCollectingCredentials:
		return "collecting_credentials"
	case PhaseAwaitingOtp:
		return "awaiting_otp"
	case PhaseVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name for JSON views.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "collecting_credentials":
		*p = PhaseCollectingCredentials
	case "awaiting_otp":
		*p = PhaseAwaitingOtp
	case "verified":
		*p = PhaseVerified
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Destination is a navigation target reached after verification.
type Destination string

const (
	// DestinationStudentDashboard is where verified students land.
	DestinationStudentDashboard Destination = "student-dashboard"
	// DestinationAdminDashboard is where verified admins land.
	DestinationAdminDashboard Destination = "admin-dashboard"
)

// DestinationFor maps a role to its dashboard.
func DestinationFor(role Role) Destination {
	if role == RoleAdmin {
		return DestinationAdminDashboard
	}
	return DestinationStudentDashboard
}

// Credentials is one submitted attempt. The machine copies it on submit, so a
// later edit never alters an attempt already handed to the service.
type Credentials struct {
	Email    string
	Password string
	Role     Role
}

// AuthOutcome is the opaque result of [AuthService.Authenticate] and
// [AuthService.Register]. It never carries the stored password.
type AuthOutcome uint8

const (
	// OutcomeAccepted means the credentials may proceed to the code challenge.
	OutcomeAccepted AuthOutcome = iota
	// OutcomeUnknownEmail means no account exists for the email.
	OutcomeUnknownEmail
	// OutcomeWrongPassword means the account exists and the password differs.
	OutcomeWrongPassword
	// OutcomeEmailTaken means registration found an existing account.
	OutcomeEmailTaken
)

func (o AuthOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeUnknownEmail:
		return "unknown_email"
	case OutcomeWrongPassword:
		return "wrong_password"
	case OutcomeEmailTaken:
		return "email_taken"
	default:
		return "unknown"
	}
}

// Field names an input of the form.
type Field string

const (
	FieldEmail    Field = "email"
	FieldPassword Field = "password"
	FieldOTP      Field = "otp"
)

// Focus is the input that currently holds focus. Slot is meaningful only for
// FieldOTP.
type Focus struct {
	Field Field `json:"field"`
	Slot  int   `json:"slot"`
}

// FieldErrorFlags gate inline error visibility. Each flag is cleared as soon
// as its field is edited or the role or mode changes.
type FieldErrorFlags struct {
	EmailNotFound      bool `json:"email_not_found"`
	PasswordIncorrect  bool `json:"password_incorrect"`
	ShowForgotPassword bool `json:"show_forgot_password"`
	ShowErrors         bool `json:"show_errors"`
	EmailTaken         bool `json:"email_taken"`
}

// OtpState tracks the challenge.
//
// Invariants: Phase == PhaseAwaitingOtp implies Challenge != "", and
// Phase == PhaseVerified implies the last verification succeeded.
type OtpState struct {
	Phase           Phase
	Digits          []string
	Challenge       string
	AttemptsInvalid bool
}

// Code joins the digit slots.
func (s OtpState) Code() string {
	return strings.Join(s.Digits, "")
}

// Filled reports whether every slot holds a digit.
func (s OtpState) Filled() bool {
	if len(s.Digits) == 0 {
		return false
	}
	for _, d := range s.Digits {
		if d == "" {
			return false
		}
	}
	return true
}

func (s *OtpState) clearDigits() {
	for i := range s.Digits {
		s.Digits[i] = ""
	}
}

// Form is the complete mutable state of one mounted form. A presenter owns
// exactly one Form and hands it to the [Machine] by pointer.
type Form struct {
	Mode        Mode
	Credentials Credentials
	OTP         OtpState
	Flags       FieldErrorFlags
	Focus       Focus
	Message     string
	FieldErrors map[Field]string
}

// NewForm returns the initial state for a freshly mounted form.
func NewForm(mode Mode, role Role, digits int) *Form {
	f := &Form{}
	f.reset(mode, role, digits)
	return f
}

func (f *Form) reset(mode Mode, role Role, digits int) {
	if !mode.Valid() {
		mode = ModeLogin
	}
	if !role.Valid() {
		role = RoleStudent
	}
	f.Mode = mode
	f.Credentials = Credentials{Role: role}
	f.OTP = OtpState{
		Phase:  PhaseCollectingCredentials,
		Digits: make([]string, digits),
	}
	f.Flags = FieldErrorFlags{}
	f.Focus = Focus{Field: FieldEmail}
	f.Message = ""
	f.FieldErrors = map[Field]string{}
}

func (f *Form) clone() Form {
	out := *f
	out.OTP.Digits = append([]string(nil), f.OTP.Digits...)
	out.FieldErrors = make(map[Field]string, len(f.FieldErrors))
	for k, v := range f.FieldErrors {
		out.FieldErrors[k] = v
	}
	return out
}
