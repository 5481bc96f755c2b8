package otpflow

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Policy parameterizes the machine per flow variant.
type Policy struct {
	Mode              Mode
	MinPasswordLength int
	OTPDigits         int
}

// LoginPolicy is the policy of the login screen.
func LoginPolicy(cfg FlowConfig) Policy {
	return Policy{Mode: ModeLogin, MinPasswordLength: cfg.LoginMinPasswordLength, OTPDigits: cfg.OTPDigits}
}

// RegistrationPolicy is the policy of the registration screen.
func RegistrationPolicy(cfg FlowConfig) Policy {
	return Policy{Mode: ModeRegister, MinPasswordLength: cfg.RegisterMinPasswordLength, OTPDigits: cfg.OTPDigits}
}

type credentialRule struct {
	field   Field
	tag     func(p Policy) string
	value   func(c Credentials) string
	err     error
	message func(p Policy) string
}

// credentialRules is evaluated in order; each field reports its first failure.
var credentialRules = []credentialRule{
	{
		field:   FieldEmail,
		tag:     func(Policy) string { return "required,email" },
		value:   func(c Credentials) string { return c.Email },
		err:     ErrEmailInvalid,
		message: func(Policy) string { return "Please enter a valid email address" },
	},
	{
		field: FieldPassword,
		tag: func(p Policy) string {
			if p.MinPasswordLength <= 0 {
				return "required"
			}
			return "required,min=" + strconv.Itoa(p.MinPasswordLength)
		},
		value: func(c Credentials) string { return c.Password },
		err:   ErrPasswordTooShort,
		message: func(p Policy) string {
			if p.MinPasswordLength <= 0 {
				return "Password is required"
			}
			return fmt.Sprintf("Password must be at least %d characters", p.MinPasswordLength)
		},
	},
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateCredentials runs the rule table against c. It returns the first
// failing rule's error wrapped in [ErrValidation] together with a message per
// failing field.
func ValidateCredentials(p Policy, c Credentials) (map[Field]string, error) {
	v := fieldValidator()
	var (
		first  error
		fields map[Field]string
	)
	for _, rule := range credentialRules {
		if _, seen := fields[rule.field]; seen {
			continue
		}
		if err := v.Var(rule.value(c), rule.tag(p)); err != nil {
			if fields == nil {
				fields = make(map[Field]string, len(credentialRules))
			}
			fields[rule.field] = rule.message(p)
			if first == nil {
				first = fmt.Errorf("%w: %w", ErrValidation, rule.err)
			}
		}
	}
	if !c.Role.Valid() {
		if first == nil {
			first = fmt.Errorf("%w: unknown role %q", ErrValidation, c.Role)
		}
	}
	return fields, first
}

func normalizeDigit(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	last := value[len(value)-1]
	if last < '0' || last > '9' {
		return "", ErrDigitInvalid
	}
	return string(last), nil
}
