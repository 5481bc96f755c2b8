package internaldefs

import (
	"github.com/MrEthical07/otpflow"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   otpflow.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   otpflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: otpflow.MetricFlowOpened, Name: "otpflow_flow_opened_total", Help: "Forms opened."},
	{ID: otpflow.MetricFlowClosed, Name: "otpflow_flow_closed_total", Help: "Forms closed."},
	{ID: otpflow.MetricCredentialsRejected, Name: "otpflow_credentials_rejected_total", Help: "Credential submissions blocked by validation."},
	{ID: otpflow.MetricEmailNotFound, Name: "otpflow_email_not_found_total", Help: "Credential attempts for unknown emails."},
	{ID: otpflow.MetricPasswordIncorrect, Name: "otpflow_password_incorrect_total", Help: "Credential attempts with a wrong password."},
	{ID: otpflow.MetricEmailTaken, Name: "otpflow_email_taken_total", Help: "Registrations for an existing email."},
	{ID: otpflow.MetricOTPIssued, Name: "otpflow_otp_issued_total", Help: "One-time codes issued."},
	{ID: otpflow.MetricOTPVerified, Name: "otpflow_otp_verified_total", Help: "Successful code verifications."},
	{ID: otpflow.MetricOTPInvalid, Name: "otpflow_otp_invalid_total", Help: "Rejected code submissions."},
	{ID: otpflow.MetricOTPExpired, Name: "otpflow_otp_expired_total", Help: "Code submissions against an expired challenge."},
	{ID: otpflow.MetricPasswordResetRequested, Name: "otpflow_password_reset_requested_total", Help: "Password reset links requested."},
	{ID: otpflow.MetricRoleSwitched, Name: "otpflow_form_reset_total", Help: "Role or mode switches that reset a form."},
	{ID: otpflow.MetricSubmissionBlocked, Name: "otpflow_submission_blocked_total", Help: "Submissions rejected while another was in flight."},
	{ID: otpflow.MetricServiceFailure, Name: "otpflow_service_failure_total", Help: "Unexpected auth service failures."},
	{ID: otpflow.MetricServiceTimeout, Name: "otpflow_service_timeout_total", Help: "Auth service calls that timed out."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: otpflow.MetricServiceCallLatency, Name: "otpflow_service_call_latency_seconds", Help: "Auth service call latency."},
}

// HistogramBounds are the upper bounds of the eight latency buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds for use in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight fixed buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
