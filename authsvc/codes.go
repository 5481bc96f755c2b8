package authsvc

import (
	"github.com/MrEthical07/otpflow/internal"
)

// CodeSource produces the code issued to email.
type CodeSource func(email string) (string, error)

// RandomCodes draws uniformly random numeric codes of the given length.
func RandomCodes(digits int) CodeSource {
	return func(string) (string, error) {
		return internal.NewOTP(digits)
	}
}

// PinnedCode returns code for the email pinned and defers to next for
// everyone else.
func PinnedCode(pinned, code string, next CodeSource) CodeSource {
	pinned = NormalizeEmail(pinned)
	return func(email string) (string, error) {
		if NormalizeEmail(email) == pinned {
			return code, nil
		}
		return next(email)
	}
}
