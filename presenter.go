package otpflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/otpflow/internal/audit"
	"github.com/sirupsen/logrus"
)

// View is what a form renders for its current state. It never carries the
// password or the challenge handle.
type View struct {
	FlowID             string           `json:"flow_id"`
	Mode               Mode             `json:"mode"`
	Role               Role             `json:"role"`
	Phase              Phase            `json:"phase"`
	Email              string           `json:"email"`
	PasswordEntered    bool             `json:"password_entered"`
	Digits             []string         `json:"digits,omitempty"`
	Focus              Focus            `json:"focus"`
	Message            string           `json:"message,omitempty"`
	FieldErrors        map[Field]string `json:"field_errors,omitempty"`
	Flags              FieldErrorFlags  `json:"flags"`
	AttemptsInvalid    bool             `json:"attempts_invalid"`
	ShowRoleSelector   bool             `json:"show_role_selector"`
	ShowCredentials    bool             `json:"show_credentials"`
	ShowOTP            bool             `json:"show_otp"`
	ShowForgotPassword bool             `json:"show_forgot_password"`
	ShowCrossLink      bool             `json:"show_cross_link"`
	CrossLinkLabel     string           `json:"cross_link_label,omitempty"`
	SubmitLabel        string           `json:"submit_label"`
	SubmitEnabled      bool             `json:"submit_enabled"`
	InFlight           bool             `json:"in_flight"`
	Destination        Destination      `json:"destination,omitempty"`
}

// Presenter binds one form to the machine. Field edits and role or mode
// switches apply immediately; Submit and ForgotPassword run the service call
// on a working copy and commit it when the call returns within the call
// timeout. A call still running at the timeout is abandoned with [ErrTimeout]
// and its result is never committed. While a call is
// pending, a second Submit or ForgotPassword and any field edit return
// [ErrSubmissionInFlight]. A role or mode switch during a pending call resets
// the form and the pending result is discarded with [ErrFormReset].
//
// A Presenter is safe for concurrent use.
type Presenter struct {
	id      string
	engine  *Engine
	machine *Machine
	timeout time.Duration

	mu          sync.Mutex
	form        *Form
	gen         uint64
	destination Destination
	notices     []Notice
	closed      bool

	inFlight  atomic.Bool
	closeOnce sync.Once
}

const maxPendingNotices = 32

// ID returns the flow identifier assigned at open.
func (p *Presenter) ID() string {
	return p.id
}

// View renders the current state. It never waits for a pending call.
func (p *Presenter) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Presenter) viewLocked() View {
	f := p.form
	collecting := f.OTP.Phase == PhaseCollectingCredentials
	inFlight := p.inFlight.Load()

	v := View{
		FlowID:             p.id,
		Mode:               f.Mode,
		Role:               f.Credentials.Role,
		Phase:              f.OTP.Phase,
		Email:              f.Credentials.Email,
		PasswordEntered:    f.Credentials.Password != "",
		Focus:              f.Focus,
		Message:            f.Message,
		Flags:              f.Flags,
		AttemptsInvalid:    f.OTP.AttemptsInvalid,
		ShowRoleSelector:   collecting,
		ShowCredentials:    collecting,
		ShowOTP:            f.OTP.Phase == PhaseAwaitingOtp,
		ShowForgotPassword: f.Flags.ShowForgotPassword && collecting,
		ShowCrossLink:      collecting && f.Credentials.Role == RoleStudent,
		SubmitLabel:        submitLabel(f),
		SubmitEnabled:      !inFlight && f.OTP.Phase != PhaseVerified,
		InFlight:           inFlight,
		Destination:        p.destination,
	}
	if v.ShowOTP {
		v.Digits = append([]string(nil), f.OTP.Digits...)
	}
	if v.ShowCrossLink {
		v.CrossLinkLabel = "Register"
		if f.Mode == ModeRegister {
			v.CrossLinkLabel = "Login"
		}
	}
	if f.Flags.ShowErrors && len(f.FieldErrors) > 0 {
		v.FieldErrors = make(map[Field]string, len(f.FieldErrors))
		for k, msg := range f.FieldErrors {
			v.FieldErrors[k] = msg
		}
	} else if msg, ok := f.FieldErrors[FieldOTP]; ok {
		v.FieldErrors = map[Field]string{FieldOTP: msg}
	}
	return v
}

func submitLabel(f *Form) string {
	if f.OTP.Phase != PhaseCollectingCredentials {
		return "Enter"
	}
	if f.Mode == ModeRegister {
		return "Register"
	}
	return "Sign in"
}

// Notices returns and clears the notices raised since the last call. Every
// notice has also been delivered to the engine's [Notifier].
func (p *Presenter) Notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.notices
	p.notices = nil
	return out
}

// EditEmail records a keystroke in the email field.
func (p *Presenter) EditEmail(value string) error {
	return p.edit(func(f *Form) error {
		p.machine.EditEmail(f, value)
		return nil
	})
}

// EditPassword records a keystroke in the password field.
func (p *Presenter) EditPassword(value string) error {
	return p.edit(func(f *Form) error {
		p.machine.EditPassword(f, value)
		return nil
	})
}

// EditDigit writes one code slot.
func (p *Presenter) EditDigit(index int, value string) error {
	return p.edit(func(f *Form) error {
		return p.machine.EditDigit(f, index, value)
	})
}

// Backspace handles a backspace keypress in code slot index.
func (p *Presenter) Backspace(index int) error {
	return p.edit(func(f *Form) error {
		return p.machine.Backspace(f, index)
	})
}

// EnterCode types code into the slots starting at slot 0. A rejected
// character leaves every slot as it was.
func (p *Presenter) EnterCode(code string) error {
	return p.edit(func(f *Form) error {
		work := f.clone()
		for i := 0; i < len(code); i++ {
			if err := p.machine.EditDigit(&work, i, code[i:i+1]); err != nil {
				return err
			}
		}
		*f = work
		return nil
	})
}

func (p *Presenter) edit(fn func(f *Form) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrFlowClosed
	}
	if p.inFlight.Load() {
		return ErrSubmissionInFlight
	}
	return fn(p.form)
}

// SelectRole resets the form for role. It is accepted in every phase, even
// while a call is pending.
func (p *Presenter) SelectRole(ctx context.Context, role Role) error {
	return p.reset(ctx, func(f *Form) error { return p.machine.SwitchRole(f, role) })
}

// SwitchMode resets the form for mode, keeping the role.
func (p *Presenter) SwitchMode(ctx context.Context, mode Mode) error {
	return p.reset(ctx, func(f *Form) error { return p.machine.SwitchMode(f, mode) })
}

func (p *Presenter) reset(ctx context.Context, fn func(f *Form) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrFlowClosed
	}
	if err := fn(p.form); err != nil {
		p.mu.Unlock()
		return err
	}
	p.gen++
	p.destination = ""
	p.notices = nil
	event := p.auditEventLocked(ctx, auditFormReset, true, nil)
	p.mu.Unlock()

	p.engine.metrics.Inc(MetricRoleSwitched)
	p.engine.audit.Emit(ctx, event)
	return nil
}

// Submit runs the step of the current phase: the credential attempt while
// collecting credentials, code verification while awaiting the code.
func (p *Presenter) Submit(ctx context.Context) error {
	return p.run(ctx, "submit", func(ctx context.Context, f *Form) (string, error) {
		switch f.OTP.Phase {
		case PhaseCollectingCredentials:
			return "credentials", p.machine.SubmitCredentials(ctx, f, f.Credentials)
		case PhaseAwaitingOtp:
			return "otp", p.machine.SubmitOtp(ctx, f)
		default:
			return "submit", ErrIllegalTransition
		}
	})
}

// ForgotPassword requests a reset link for the form's email. It is offered
// only after an incorrect password.
func (p *Presenter) ForgotPassword(ctx context.Context) error {
	return p.run(ctx, "password_reset", func(ctx context.Context, f *Form) (string, error) {
		return "password_reset", p.machine.RequestPasswordReset(ctx, f, "")
	})
}

func (p *Presenter) run(ctx context.Context, op string, fn func(ctx context.Context, f *Form) (string, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.engine.metrics.Inc(MetricSubmissionBlocked)
		return ErrSubmissionInFlight
	}
	defer p.inFlight.Store(false)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrFlowClosed
	}
	work := p.form.clone()
	gen := p.gen
	p.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	done := make(chan stepResult, 1)
	go func() {
		step, err := fn(callCtx, &work)
		done <- stepResult{step: step, err: err}
	}()

	var (
		res       stepResult
		abandoned bool
	)
	select {
	case res = <-done:
	case <-callCtx.Done():
		// A late result lands on work and is never committed.
		abandoned = true
		res = stepResult{step: op, err: p.abandonedError(ctx, callCtx.Err())}
	}
	elapsed := time.Since(start)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrFlowClosed
	}
	if gen != p.gen {
		p.mu.Unlock()
		p.engine.logger.WithFields(p.logFields(ctx, res.step)).Debug("discarded result of a reset form")
		return ErrFormReset
	}
	if abandoned {
		p.form.Flags.ShowErrors = true
		p.form.Message = msgUnexpected
		if errors.Is(res.err, ErrTimeout) {
			p.form.Message = msgTimeout
		}
	} else {
		*p.form = work
	}
	outcome := p.settleLocked(ctx, res.step, res.err)
	p.mu.Unlock()

	p.publish(ctx, res.step, res.err, elapsed, outcome)
	return res.err
}

type stepResult struct {
	step string
	err  error
}

// abandonedError classifies a call that did not return before its context
// ended.
func (p *Presenter) abandonedError(ctx context.Context, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%w: call exceeded %s", ErrTimeout, p.timeout)
	}
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrUnexpectedFailure, cause)
}

type settled struct {
	notice   *Notice
	event    *AuditEvent
	metric   MetricID
	count    bool
	navigate Destination
}

// settleLocked derives the notice, metric, audit event and navigation for one
// committed step. Caller holds p.mu.
func (p *Presenter) settleLocked(ctx context.Context, step string, err error) settled {
	var (
		out    settled
		code   NoticeCode
		evType string
	)
	switch {
	case err == nil && step == "credentials":
		code, evType, out.metric = NoticeOTPSent, auditOTPIssued, MetricOTPIssued
	case err == nil && step == "otp":
		code, evType, out.metric = NoticeOTPVerified, auditOTPVerified, MetricOTPVerified
		p.destination = DestinationFor(p.form.Credentials.Role)
		out.navigate = p.destination
	case err == nil && step == "password_reset":
		code, evType, out.metric = NoticeResetLinkSent, auditPasswordResetRequested, MetricPasswordResetRequested
	case errors.Is(err, ErrValidation):
		evType, out.metric = auditCredentialsRejected, MetricCredentialsRejected
	case errors.Is(err, ErrEmailNotFound):
		code, evType, out.metric = NoticeEmailNotFound, auditEmailNotFound, MetricEmailNotFound
	case errors.Is(err, ErrIncorrectPassword):
		code, evType, out.metric = NoticeIncorrectPassword, auditPasswordIncorrect, MetricPasswordIncorrect
	case errors.Is(err, ErrEmailTaken):
		code, evType, out.metric = NoticeEmailTaken, auditEmailTaken, MetricEmailTaken
	case errors.Is(err, ErrInvalidOTP):
		code, evType, out.metric = NoticeInvalidOTP, auditOTPInvalid, MetricOTPInvalid
	case errors.Is(err, ErrOTPExpired):
		code, evType, out.metric = NoticeOTPExpired, auditOTPExpired, MetricOTPExpired
	case errors.Is(err, ErrTimeout):
		code, evType, out.metric = NoticeTimeout, auditServiceTimeout, MetricServiceTimeout
	case errors.Is(err, ErrUnexpectedFailure):
		code, evType, out.metric = NoticeUnexpected, auditServiceFailure, MetricServiceFailure
	default:
		return out
	}
	out.count = true

	if code != "" {
		n := newNotice(p.id, code)
		if code == NoticeOTPVerified && p.form.Mode == ModeRegister {
			n.Message = "Registration successful!"
		}
		if len(p.notices) >= maxPendingNotices {
			p.notices = p.notices[1:]
		}
		p.notices = append(p.notices, n)
		out.notice = &n
	}
	if evType != "" {
		ev := p.auditEventLocked(ctx, evType, err == nil, err)
		out.event = &ev
	}
	return out
}

// publish delivers the side effects of a settled step without holding p.mu.
func (p *Presenter) publish(ctx context.Context, step string, err error, elapsed time.Duration, s settled) {
	e := p.engine
	e.metrics.Observe(MetricServiceCallLatency, elapsed)
	if s.count {
		e.metrics.Inc(s.metric)
	}
	if s.event != nil {
		e.audit.Emit(ctx, *s.event)
	}

	fields := p.logFields(ctx, step)
	fields["elapsed_ms"] = elapsed.Milliseconds()
	switch {
	case errors.Is(err, ErrUnexpectedFailure):
		e.logger.WithFields(fields).WithError(err).Error("auth service call failed")
	case errors.Is(err, ErrTimeout):
		e.logger.WithFields(fields).WithError(err).Warn("auth service call timed out")
	case err != nil:
		e.logger.WithFields(fields).WithError(err).Debug("step rejected")
	default:
		e.logger.WithFields(fields).Debug("step completed")
	}

	if s.notice != nil {
		e.notifier.Notify(ctx, *s.notice)
	}
	if s.navigate != "" {
		if navErr := e.navigator.Navigate(ctx, p.id, s.navigate); navErr != nil {
			e.logger.WithFields(fields).WithError(navErr).Warn("navigation failed")
		}
	}
}

func (p *Presenter) logFields(ctx context.Context, step string) logrus.Fields {
	fields := logrus.Fields{
		"flow_id": p.id,
		"step":    step,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		fields["request_id"] = rid
	}
	return fields
}

func (p *Presenter) auditEventLocked(ctx context.Context, eventType string, success bool, err error) AuditEvent {
	ev := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		FlowID:    p.id,
		Email:     p.form.Credentials.Email,
		Role:      string(p.form.Credentials.Role),
		Mode:      string(p.form.Mode),
		Phase:     p.form.OTP.Phase.String(),
		Success:   success,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	meta := map[string]string{}
	if ip := clientIPFromContext(ctx); ip != "" {
		meta["ip"] = ip
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		meta["request_id"] = rid
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	return ev
}

// Close releases the flow. Later calls return [ErrFlowClosed]; Close itself
// is idempotent.
func (p *Presenter) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.form.Credentials.Password = ""
		p.mu.Unlock()
		p.engine.active.Add(-1)
		p.engine.metrics.Inc(MetricFlowClosed)
	})
	return nil
}
