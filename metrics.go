package otpflow

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one flow counter.
type MetricID uint16

const (
	// MetricFlowOpened counts presenters opened by the engine.
	MetricFlowOpened MetricID = iota
	// MetricFlowClosed counts presenters released by the caller.
	MetricFlowClosed
	// MetricCredentialsRejected counts submissions blocked by validation.
	MetricCredentialsRejected
	// MetricEmailNotFound counts credential attempts for unknown emails.
	MetricEmailNotFound
	// MetricPasswordIncorrect counts credential attempts with a wrong password.
	MetricPasswordIncorrect
	// MetricEmailTaken counts registrations for an existing email.
	MetricEmailTaken
	// MetricOTPIssued counts challenges issued after accepted credentials.
	MetricOTPIssued
	// MetricOTPVerified counts successful code submissions.
	MetricOTPVerified
	// MetricOTPInvalid counts rejected code submissions.
	MetricOTPInvalid
	// MetricOTPExpired counts code submissions against a vanished challenge.
	MetricOTPExpired
	// MetricPasswordResetRequested counts reset links requested.
	MetricPasswordResetRequested
	// MetricRoleSwitched counts role or mode switches that reset a form.
	MetricRoleSwitched
	// MetricSubmissionBlocked counts submits rejected while another was in flight.
	MetricSubmissionBlocked
	// MetricServiceFailure counts unexpected service errors.
	MetricServiceFailure
	// MetricServiceTimeout counts service calls that exceeded the call timeout.
	MetricServiceTimeout
	// MetricServiceCallLatency is the latency histogram of service calls.
	MetricServiceCallLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricFlowOpened:             "flow_opened",
	MetricFlowClosed:             "flow_closed",
	MetricCredentialsRejected:    "credentials_rejected",
	MetricEmailNotFound:          "email_not_found",
	MetricPasswordIncorrect:      "password_incorrect",
	MetricEmailTaken:             "email_taken",
	MetricOTPIssued:              "otp_issued",
	MetricOTPVerified:            "otp_verified",
	MetricOTPInvalid:             "otp_invalid",
	MetricOTPExpired:             "otp_expired",
	MetricPasswordResetRequested: "password_reset_requested",
	MetricRoleSwitched:           "form_reset",
	MetricSubmissionBlocked:      "submission_blocked",
	MetricServiceFailure:         "service_failure",
	MetricServiceTimeout:         "service_timeout",
	MetricServiceCallLatency:     "service_call_latency",
}

// String returns the snake_case name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a set of lock-free counters shared by every presenter of an
// engine. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the service latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only histogram metrics accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricServiceCallLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Histograms are included only when latency
// recording is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricServiceCallLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricServiceCallLatency].buckets[i])
		}
		s.Histograms[MetricServiceCallLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
