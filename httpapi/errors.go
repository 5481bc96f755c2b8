package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/authsvc"
)

var errFlowNotFound = errors.New("flow not found")

// requestError marks a body or path parameter that could not be decoded.
type requestError struct {
	err error
}

func (e requestError) Error() string { return "bad request: " + e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return requestError{err: err}
}

// statusFor maps a presenter error to its HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, new(requestError)):
		return http.StatusBadRequest
	case errors.Is(err, otpflow.ErrValidation),
		errors.Is(err, otpflow.ErrDigitInvalid),
		errors.Is(err, otpflow.ErrOTPIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, otpflow.ErrEmailNotFound),
		errors.Is(err, otpflow.ErrFlowClosed),
		errors.Is(err, errFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, otpflow.ErrIncorrectPassword),
		errors.Is(err, otpflow.ErrInvalidOTP):
		return http.StatusUnauthorized
	case errors.Is(err, otpflow.ErrOTPExpired):
		return http.StatusGone
	case errors.Is(err, otpflow.ErrEmailTaken),
		errors.Is(err, otpflow.ErrSubmissionInFlight),
		errors.Is(err, otpflow.ErrIllegalTransition),
		errors.Is(err, otpflow.ErrFormReset):
		return http.StatusConflict
	case errors.Is(err, otpflow.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, otpflow.ErrUnexpectedFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// resetStatus maps a reset confirmation error to its HTTP status.
func resetStatus(err error) int {
	switch {
	case errors.Is(err, otpflow.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, authsvc.ErrResetLinkInvalid):
		return http.StatusBadRequest
	case errors.Is(err, authsvc.ErrResetDisabled):
		return http.StatusNotFound
	case errors.Is(err, authsvc.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
