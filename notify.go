package otpflow

import (
	"context"

	"github.com/sirupsen/logrus"
)

// NoticeKind separates success toasts from error toasts.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// NoticeCode identifies a user-facing notification.
type NoticeCode string

const (
	NoticeOTPSent           NoticeCode = "otp_sent"
	NoticeOTPVerified       NoticeCode = "otp_verified"
	NoticeInvalidOTP        NoticeCode = "invalid_otp"
	NoticeEmailNotFound     NoticeCode = "email_not_found"
	NoticeIncorrectPassword NoticeCode = "incorrect_password"
	NoticeEmailTaken        NoticeCode = "email_taken"
	NoticeOTPExpired        NoticeCode = "otp_expired"
	NoticeResetLinkSent     NoticeCode = "reset_link_sent"
	NoticeTimeout           NoticeCode = "timeout"
	NoticeUnexpected        NoticeCode = "unexpected_failure"
)

// Notice is one transient notification raised by a presenter.
type Notice struct {
	FlowID  string     `json:"flow_id"`
	Kind    NoticeKind `json:"kind"`
	Code    NoticeCode `json:"code"`
	Message string     `json:"message"`
}

// Notifier receives every notice raised by any presenter of an engine. It is
// called without presenter locks held and must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// LogNotifier writes notices to a logrus logger.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

func (l LogNotifier) Notify(_ context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithFields(logrus.Fields{
		"flow_id": n.FlowID,
		"code":    n.Code,
	})
	if n.Kind == NoticeError {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Navigator performs the role-specific navigation after verification. A
// failed navigation is logged; the destination stays visible in the view.
type Navigator interface {
	Navigate(ctx context.Context, flowID string, dest Destination) error
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(ctx context.Context, flowID string, dest Destination) error

func (f NavigatorFunc) Navigate(ctx context.Context, flowID string, dest Destination) error {
	return f(ctx, flowID, dest)
}

type nopNavigator struct{}

func (nopNavigator) Navigate(context.Context, string, Destination) error { return nil }

var noticeText = map[NoticeCode]string{
	NoticeOTPSent:           "OTP sent to your email.",
	NoticeOTPVerified:       "OTP verified successfully.",
	NoticeInvalidOTP:        "Invalid OTP. Please try again.",
	NoticeEmailNotFound:     "Email not found.",
	NoticeIncorrectPassword: "Incorrect password.",
	NoticeEmailTaken:        "An account with this email already exists.",
	NoticeOTPExpired:        "The code has expired. Please sign in again.",
	NoticeResetLinkSent:     "Password reset link sent to your email!",
	NoticeTimeout:           "The request timed out. Please try again.",
	NoticeUnexpected:        "Something went wrong. Please try again later.",
}

func newNotice(flowID string, code NoticeCode) Notice {
	kind := NoticeError
	switch code {
	case NoticeOTPSent, NoticeOTPVerified, NoticeResetLinkSent:
		kind = NoticeSuccess
	}
	return Notice{FlowID: flowID, Kind: kind, Code: code, Message: noticeText[code]}
}
