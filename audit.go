package otpflow

import (
	"io"

	"github.com/MrEthical07/otpflow/internal/audit"
	"github.com/sirupsen/logrus"
)

// AuditEvent is one flow event delivered to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// AuditStats counts delivered, dropped and failed audit events.
type AuditStats = audit.Stats

// ChannelSink buffers events on a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogrusAuditSink logs events through logger.
func NewLogrusAuditSink(logger logrus.FieldLogger) AuditSink {
	return audit.NewLogrusSink(logger)
}

const (
	auditFormReset              = "form_reset"
	auditCredentialsRejected    = "credentials_rejected"
	auditEmailNotFound          = "email_not_found"
	auditPasswordIncorrect      = "password_incorrect"
	auditEmailTaken             = "email_taken"
	auditOTPIssued              = "otp_issued"
	auditOTPVerified            = "otp_verified"
	auditOTPInvalid             = "otp_invalid"
	auditOTPExpired             = "otp_expired"
	auditPasswordResetRequested = "password_reset_requested"
	auditServiceFailure         = "service_failure"
	auditServiceTimeout         = "service_timeout"
)
