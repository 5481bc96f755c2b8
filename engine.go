package otpflow

import (
	"fmt"
	"sync/atomic"

	"github.com/MrEthical07/otpflow/internal/audit"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine opens presenters over one [AuthService] and shares the ambient
// stack (logger, metrics, audit, notifier, navigator) between them. Build it
// with [New]. An Engine is safe for concurrent use; each presenter owns its
// own form.
type Engine struct {
	config    Config
	service   AuthService
	machine   *Machine
	notifier  Notifier
	navigator Navigator
	logger    logrus.FieldLogger
	audit     *audit.Dispatcher
	metrics   *Metrics
	active    atomic.Int64
}

// Open mounts a new form in mode for role. An invalid mode or role falls back
// to login and student.
func (e *Engine) Open(mode Mode, role Role) (*Presenter, error) {
	if e == nil || e.service == nil || e.machine == nil {
		return nil, ErrEngineNotReady
	}

	p := &Presenter{
		id:      uuid.NewString(),
		engine:  e,
		machine: e.machine,
		timeout: e.config.Flow.CallTimeout,
		form:    e.machine.NewForm(mode, role),
	}

	e.active.Add(1)
	e.metrics.Inc(MetricFlowOpened)
	e.logger.WithFields(logrus.Fields{
		"flow_id": p.id,
		"mode":    p.form.Mode,
		"role":    p.form.Credentials.Role,
	}).Debug("flow opened")
	return p, nil
}

// NewLogin mounts a login form.
func (e *Engine) NewLogin(role Role) (*Presenter, error) {
	return e.Open(ModeLogin, role)
}

// NewRegistration mounts a registration form.
func (e *Engine) NewRegistration(role Role) (*Presenter, error) {
	return e.Open(ModeRegister, role)
}

// Machine returns the shared state machine.
func (e *Engine) Machine() *Machine {
	if e == nil {
		return nil
	}
	return e.machine
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return e.config
}

// Logger returns the engine logger.
func (e *Engine) Logger() logrus.FieldLogger {
	if e == nil || e.logger == nil {
		return logrus.StandardLogger()
	}
	return e.logger
}

// ActiveFlows is the number of presenters opened and not yet closed.
func (e *Engine) ActiveFlows() int64 {
	if e == nil {
		return 0
	}
	return e.active.Load()
}

// AuditDropped is the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditStats reports delivered, dropped and failed audit events.
func (e *Engine) AuditStats() AuditStats {
	if e == nil {
		return AuditStats{}
	}
	return e.audit.Stats()
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Close drains the audit dispatcher. Presenters stay usable but no longer
// emit audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) String() string {
	return fmt.Sprintf("otpflow.Engine{active=%d}", e.ActiveFlows())
}
