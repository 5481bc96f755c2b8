package otpflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func openLogin(t *testing.T, e *Engine, role Role) *Presenter {
	t.Helper()
	p, err := e.NewLogin(role)
	if err != nil {
		t.Fatalf("NewLogin failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func noticeCodes(ns []Notice) []NoticeCode {
	out := make([]NoticeCode, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Code)
	}
	return out
}

func TestPresenterLoginReachesDashboard(t *testing.T) {
	nav := &recordingNavigator{}
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nav, nil)
	p := openLogin(t, e, RoleStudent)
	ctx := context.Background()

	fillCredentials(t, p, fixtureEmail, fixturePassword)
	if err := p.Submit(ctx); err != nil {
		t.Fatalf("Submit credentials failed: %v", err)
	}
	if got := noticeCodes(p.Notices()); len(got) != 1 || got[0] != NoticeOTPSent {
		t.Fatalf("expected otp_sent notice, got %v", got)
	}

	v := p.View()
	if !v.ShowOTP || v.ShowCredentials || v.ShowRoleSelector {
		t.Fatalf("unexpected visibility while awaiting code: %+v", v)
	}
	if v.SubmitLabel != "Enter" {
		t.Fatalf("expected Enter label, got %q", v.SubmitLabel)
	}
	if !v.PasswordEntered {
		t.Fatal("expected password entered to be reported")
	}

	if err := p.EnterCode(fixtureCode); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if err := p.Submit(ctx); err != nil {
		t.Fatalf("Submit otp failed: %v", err)
	}

	v = p.View()
	if v.Phase != PhaseVerified || v.Destination != DestinationStudentDashboard {
		t.Fatalf("expected verified on student dashboard, got %s %s", v.Phase, v.Destination)
	}
	if v.SubmitEnabled {
		t.Fatal("submit must be disabled once verified")
	}
	if got := noticeCodes(p.Notices()); len(got) != 1 || got[0] != NoticeOTPVerified {
		t.Fatalf("expected otp_verified notice, got %v", got)
	}
	if dests := nav.all(); len(dests) != 1 || dests[0] != DestinationStudentDashboard {
		t.Fatalf("expected one navigation to the student dashboard, got %v", dests)
	}
	if err := p.Submit(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition after verification, got %v", err)
	}
}

func TestPresenterAdminNavigatesToAdminDashboard(t *testing.T) {
	nav := &recordingNavigator{}
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nav, nil)
	p := openLogin(t, e, RoleAdmin)
	ctx := context.Background()

	if v := p.View(); v.ShowCrossLink {
		t.Fatal("admin form must not offer the registration link")
	}

	fillCredentials(t, p, fixtureEmail, fixturePassword)
	if err := p.Submit(ctx); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := p.EnterCode(fixtureCode); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if err := p.Submit(ctx); err != nil {
		t.Fatalf("Submit otp failed: %v", err)
	}
	if dests := nav.all(); len(dests) != 1 || dests[0] != DestinationAdminDashboard {
		t.Fatalf("expected admin dashboard, got %v", dests)
	}
}

func TestPresenterViewLabels(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nil, nil)
	ctx := context.Background()

	login := openLogin(t, e, RoleStudent)
	v := login.View()
	if v.SubmitLabel != "Sign in" || !v.ShowCrossLink || v.CrossLinkLabel != "Register" {
		t.Fatalf("unexpected login view: %+v", v)
	}
	if !v.ShowCredentials || !v.ShowRoleSelector || v.ShowOTP || v.Digits != nil {
		t.Fatalf("unexpected login visibility: %+v", v)
	}

	if err := login.SwitchMode(ctx, ModeRegister); err != nil {
		t.Fatalf("SwitchMode failed: %v", err)
	}
	v = login.View()
	if v.Mode != ModeRegister || v.SubmitLabel != "Register" || v.CrossLinkLabel != "Login" {
		t.Fatalf("unexpected registration view: %+v", v)
	}
}

func TestPresenterShowErrorsGating(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nil, nil)
	p := openLogin(t, e, RoleStudent)

	if err := p.EditEmail("bad"); err != nil {
		t.Fatalf("EditEmail failed: %v", err)
	}
	if v := p.View(); v.FieldErrors != nil || v.Flags.ShowErrors {
		t.Fatalf("expected no errors before the first submit, got %+v", v.FieldErrors)
	}

	err := p.Submit(context.Background())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	v := p.View()
	if !v.Flags.ShowErrors {
		t.Fatal("expected ShowErrors after submit")
	}
	if v.FieldErrors[FieldEmail] == "" || v.FieldErrors[FieldPassword] == "" {
		t.Fatalf("expected email and password errors, got %v", v.FieldErrors)
	}
	if len(p.Notices()) != 0 {
		t.Fatal("validation failures raise no notice")
	}
	if got := e.MetricsSnapshot().Counters[MetricCredentialsRejected]; got != 1 {
		t.Fatalf("expected one rejected submission, got %d", got)
	}
}

func TestPresenterWrongPasswordThenForgotPassword(t *testing.T) {
	svc := newFakeService()
	e := newTestEngine(t, DefaultConfig(), svc, nil, nil)
	p := openLogin(t, e, RoleStudent)
	ctx := context.Background()

	if err := p.ForgotPassword(ctx); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition before a wrong password, got %v", err)
	}

	fillCredentials(t, p, fixtureEmail, "wrong")
	if err := p.Submit(ctx); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
	v := p.View()
	if !v.ShowForgotPassword || v.Phase != PhaseCollectingCredentials {
		t.Fatalf("expected forgot password offered while collecting, got %+v", v)
	}
	if got := noticeCodes(p.Notices()); len(got) != 1 || got[0] != NoticeIncorrectPassword {
		t.Fatalf("expected incorrect_password notice, got %v", got)
	}

	if err := p.ForgotPassword(ctx); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if p.View().ShowForgotPassword {
		t.Fatal("expected forgot password hidden after the link is sent")
	}
	notices := p.Notices()
	if len(notices) != 1 || notices[0].Code != NoticeResetLinkSent || notices[0].Kind != NoticeSuccess {
		t.Fatalf("expected reset_link_sent success notice, got %v", notices)
	}
	if len(svc.resetEmails) != 1 || svc.resetEmails[0] != fixtureEmail {
		t.Fatalf("expected reset for %s, got %v", fixtureEmail, svc.resetEmails)
	}
}

func TestPresenterUnknownEmailNotice(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nil, nil)
	p := openLogin(t, e, RoleStudent)

	fillCredentials(t, p, "nobody@example.com", fixturePassword)
	if err := p.Submit(context.Background()); !errors.Is(err, ErrEmailNotFound) {
		t.Fatalf("expected ErrEmailNotFound, got %v", err)
	}
	v := p.View()
	if v.Email != "nobody@example.com" || v.PasswordEntered {
		t.Fatalf("expected email kept and password cleared, got %+v", v)
	}
	if v.ShowForgotPassword {
		t.Fatal("forgot password must not be offered for an unknown email")
	}
	notices := p.Notices()
	if len(notices) != 1 || notices[0].Code != NoticeEmailNotFound || notices[0].Kind != NoticeError {
		t.Fatalf("expected email_not_found error notice, got %v", notices)
	}
}

func TestPresenterWrongCodeStaysAwaiting(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nil, nil)
	p := openLogin(t, e, RoleStudent)
	ctx := context.Background()

	fillCredentials(t, p, fixtureEmail, fixturePassword)
	if err := p.Submit(ctx); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	_ = p.Notices()

	if err := p.EnterCode("999999"); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if err := p.Submit(ctx); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	v := p.View()
	if v.Phase != PhaseAwaitingOtp || !v.AttemptsInvalid {
		t.Fatalf("expected awaiting with AttemptsInvalid, got %+v", v)
	}
	for i, d := range v.Digits {
		if d != "" {
			t.Fatalf("slot %d not cleared: %q", i, d)
		}
	}
	if got := noticeCodes(p.Notices()); len(got) != 1 || got[0] != NoticeInvalidOTP {
		t.Fatalf("expected invalid_otp notice, got %v", got)
	}

	if err := p.EnterCode("12"); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if err := p.Submit(ctx); !errors.Is(err, ErrOTPIncomplete) {
		t.Fatalf("expected ErrOTPIncomplete, got %v", err)
	}
	if p.View().FieldErrors[FieldOTP] == "" {
		t.Fatal("expected otp field error in the view")
	}
}

func TestPresenterBlocksOverlappingCalls(t *testing.T) {
	svc := newFakeService()
	svc.blockAuthenticate()
	e := newTestEngine(t, DefaultConfig(), svc, nil, nil)
	p := openLogin(t, e, RoleStudent)
	ctx := context.Background()
	fillCredentials(t, p, fixtureEmail, fixturePassword)

	result := make(chan error, 1)
	go func() { result <- p.Submit(ctx) }()
	<-svc.entered

	if err := p.Submit(ctx); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	if err := p.EditEmail("other@example.com"); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected edits blocked while in flight, got %v", err)
	}
	v := p.View()
	if !v.InFlight || v.SubmitEnabled {
		t.Fatalf("expected in-flight view with submit disabled, got %+v", v)
	}

	close(svc.gate)
	if err := <-result; err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	if auth, issue, _ := svc.counts(); auth != 1 || issue != 1 {
		t.Fatalf("expected one authenticate and one issue, got %d and %d", auth, issue)
	}
	v = p.View()
	if v.Phase != PhaseAwaitingOtp || v.InFlight {
		t.Fatalf("expected awaiting code after the call settles, got %+v", v)
	}
	if got := e.MetricsSnapshot().Counters[MetricSubmissionBlocked]; got != 1 {
		t.Fatalf("expected one blocked submission, got %d", got)
	}
}

func TestPresenterRoleSwitchDiscardsPendingResult(t *testing.T) {
	svc := newFakeService()
	svc.blockAuthenticate()
	e := newTestEngine(t, DefaultConfig(), svc, nil, nil)
	p := openLogin(t, e, RoleStudent)
	ctx := context.Background()
	fillCredentials(t, p, fixtureEmail, fixturePassword)

	result := make(chan error, 1)
	go func() { result <- p.Submit(ctx) }()
	<-svc.entered

	if err := p.SelectRole(ctx, RoleAdmin); err != nil {
		t.Fatalf("SelectRole during a pending call failed: %v", err)
	}
	close(svc.gate)

	if err := <-result; !errors.Is(err, ErrFormReset) {
		t.Fatalf("expected ErrFormReset, got %v", err)
	}
	v := p.View()
	if v.Role != RoleAdmin || v.Phase != PhaseCollectingCredentials || v.Email != "" {
		t.Fatalf("expected a fresh admin form, got %+v", v)
	}
	if len(p.Notices()) != 0 {
		t.Fatal("a discarded result must not raise notices")
	}
}

func TestPresenterTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flow.CallTimeout = 20 * time.Millisecond
	svc := newFakeService()
	svc.blockAuthenticate()
	e := newTestEngine(t, cfg, svc, nil, nil)
	p := openLogin(t, e, RoleStudent)
	fillCredentials(t, p, fixtureEmail, fixturePassword)

	start := time.Now()
	err := p.Submit(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout took far longer than the call timeout")
	}

	v := p.View()
	if v.Phase != PhaseCollectingCredentials || v.InFlight || !v.SubmitEnabled {
		t.Fatalf("expected the form to be usable after a timeout, got %+v", v)
	}
	if got := noticeCodes(p.Notices()); len(got) != 1 || got[0] != NoticeTimeout {
		t.Fatalf("expected timeout notice, got %v", got)
	}
	if got := e.MetricsSnapshot().Counters[MetricServiceTimeout]; got != 1 {
		t.Fatalf("expected one timeout, got %d", got)
	}
}

func TestPresenterTimeoutBoundsStalledService(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flow.CallTimeout = 20 * time.Millisecond
	svc := newFakeService()
	svc.stallAuthenticate()
	e := newTestEngine(t, cfg, svc, nil, nil)
	p := openLogin(t, e, RoleStudent)
	fillCredentials(t, p, fixtureEmail, fixturePassword)

	start := time.Now()
	err := p.Submit(context.Background())
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("Submit waited %s on a stalled service", elapsed)
	}
	if got := noticeCodes(p.Notices()); len(got) != 1 || got[0] != NoticeTimeout {
		t.Fatalf("expected timeout notice, got %v", got)
	}

	// Let the stalled call finish; its accepted outcome must not land.
	close(svc.gate)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, issue, _ := svc.counts(); issue > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	v := p.View()
	if v.Phase != PhaseCollectingCredentials {
		t.Fatalf("late result was committed: phase %s", v.Phase)
	}
	if !v.PasswordEntered || v.Email != fixtureEmail {
		t.Fatalf("expected credentials kept, got %+v", v)
	}
	if v.Message != msgTimeout {
		t.Fatalf("expected timeout message, got %q", v.Message)
	}
}

func TestPresenterEnterCodeIsAllOrNothing(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nil, nil)
	p := openLogin(t, e, RoleStudent)
	fillCredentials(t, p, fixtureEmail, fixturePassword)
	if err := p.Submit(context.Background()); err != nil {
		t.Fatalf("Submit credentials failed: %v", err)
	}

	if err := p.EnterCode("12a456"); !errors.Is(err, ErrDigitInvalid) {
		t.Fatalf("expected ErrDigitInvalid, got %v", err)
	}
	v := p.View()
	for i, d := range v.Digits {
		if d != "" {
			t.Fatalf("slot %d written by a rejected code: %q", i, d)
		}
	}
	if v.Focus != (Focus{Field: FieldOTP, Slot: 0}) {
		t.Fatalf("expected focus kept on slot 0, got %+v", v.Focus)
	}

	if err := p.EnterCode(fixtureCode); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if got := strings.Join(p.View().Digits, ""); got != fixtureCode {
		t.Fatalf("expected %s in the slots, got %s", fixtureCode, got)
	}
}

func TestPresenterClose(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nil, nil)
	p, err := e.NewLogin(RoleStudent)
	if err != nil {
		t.Fatalf("NewLogin failed: %v", err)
	}
	if e.ActiveFlows() != 1 {
		t.Fatalf("expected 1 active flow, got %d", e.ActiveFlows())
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if e.ActiveFlows() != 0 {
		t.Fatalf("expected 0 active flows, got %d", e.ActiveFlows())
	}

	ctx := context.Background()
	if err := p.EditEmail(fixtureEmail); !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("expected ErrFlowClosed from edit, got %v", err)
	}
	if err := p.Submit(ctx); !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("expected ErrFlowClosed from submit, got %v", err)
	}
	if err := p.SelectRole(ctx, RoleAdmin); !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("expected ErrFlowClosed from role switch, got %v", err)
	}
	snap := e.MetricsSnapshot()
	if snap.Counters[MetricFlowOpened] != 1 || snap.Counters[MetricFlowClosed] != 1 {
		t.Fatalf("unexpected open/close counters: %v", snap.Counters)
	}
}

func TestPresenterRegistrationNotice(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), newFakeService(), nil, nil)
	p, err := e.NewRegistration(RoleStudent)
	if err != nil {
		t.Fatalf("NewRegistration failed: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	fillCredentials(t, p, "new@example.com", "longenough")
	if err := p.Submit(ctx); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := p.EnterCode(fixtureCode); err != nil {
		t.Fatalf("EnterCode failed: %v", err)
	}
	if err := p.Submit(ctx); err != nil {
		t.Fatalf("Submit otp failed: %v", err)
	}
	notices := p.Notices()
	last := notices[len(notices)-1]
	if last.Code != NoticeOTPVerified || last.Message != "Registration successful!" {
		t.Fatalf("expected registration success notice, got %+v", last)
	}
}

func TestPresenterNotifierReceivesNotices(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Notice
	)
	notifier := NotifierFunc(func(_ context.Context, n Notice) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	e, err := New().
		WithAuthService(newFakeService()).
		WithNotifier(notifier).
		WithLogger(quietLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	p := openLogin(t, e, RoleStudent)
	fillCredentials(t, p, fixtureEmail, "wrong")
	_ = p.Submit(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Code != NoticeIncorrectPassword || got[0].FlowID != p.ID() {
		t.Fatalf("expected incorrect_password notice for %s, got %+v", p.ID(), got)
	}
}

func TestPresenterAuditEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	sink := NewChannelSink(16)
	e := newTestEngine(t, cfg, newFakeService(), nil, sink)
	p := openLogin(t, e, RoleStudent)

	ctx := WithRequestID(WithClientIP(context.Background(), "203.0.113.7"), "req-1")
	fillCredentials(t, p, fixtureEmail, "hunter2-secret")
	if err := p.Submit(ctx); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}

	var ev AuditEvent
	select {
	case ev = <-sink.Events():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}

	if ev.EventType != auditPasswordIncorrect || ev.Success {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.FlowID != p.ID() || ev.Email != fixtureEmail || ev.Role != "student" {
		t.Fatalf("unexpected event identity: %+v", ev)
	}
	if ev.Metadata["ip"] != "203.0.113.7" || ev.Metadata["request_id"] != "req-1" {
		t.Fatalf("expected ip and request id metadata, got %v", ev.Metadata)
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(raw), "hunter2-secret") {
		t.Fatal("audit event leaked the password")
	}

	e.Close()
	if stats := e.AuditStats(); stats.Delivered != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected audit stats: %+v", stats)
	}
}
