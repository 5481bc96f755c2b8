package otpflow

import (
	"errors"

	"github.com/MrEthical07/otpflow/internal/audit"
	"github.com/sirupsen/logrus"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config

	service   AuthService
	notifier  Notifier
	navigator Navigator
	logger    logrus.FieldLogger
	auditSink AuditSink

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAuthService sets the service boundary. It is required.
func (b *Builder) WithAuthService(svc AuthService) *Builder {
	b.service = svc
	return b
}

// WithNotifier sets where notices are delivered. The default logs them.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithNavigator sets the navigation target. The default only records the
// destination in the view.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithLogger sets the logger. The default is built from Config.Logging.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the sink behind the audit dispatcher. Config.Audit.Enabled
// must also be set for events to flow.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the service latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.service == nil {
		return nil, errors.New("auth service required")
	}

	logger := b.logger
	if logger == nil {
		logger = NewLogger(cfg.Logging, nil)
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	navigator := b.navigator
	if navigator == nil {
		navigator = nopNavigator{}
	}

	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = audit.NewLogrusSink(logger)
	}

	engine := &Engine{
		config:    cfg,
		service:   b.service,
		machine:   NewMachine(b.service, LoginPolicy(cfg.Flow), RegistrationPolicy(cfg.Flow)),
		notifier:  notifier,
		navigator: navigator,
		logger:    logger,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			OnFailure: func(ev audit.Event, cause error) {
				logger.WithFields(logrus.Fields{
					"flow_id":    ev.FlowID,
					"event_type": ev.EventType,
				}).WithError(cause).Error("audit sink failed")
			},
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
