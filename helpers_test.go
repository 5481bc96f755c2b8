package otpflow

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

const (
	fixtureEmail    = "test@example.com"
	fixturePassword = "00000000"
	fixtureCode     = "123456"
)

// fakeService knows one active account and accepts one code. When gate is
// set, Authenticate signals entered and waits for gate or ctx.
type fakeService struct {
	mu       sync.Mutex
	accounts map[string]string
	code     string

	authCalls   int
	issueCalls  int
	verifyCalls int
	resetCalls  int
	resetEmails []string

	authErr   error
	issueErr  error
	verifyErr error
	resetErr  error

	entered   chan struct{}
	gate      chan struct{}
	ignoreCtx bool
}

func newFakeService() *fakeService {
	return &fakeService{
		accounts: map[string]string{fixtureEmail: fixturePassword},
		code:     fixtureCode,
	}
}

func (s *fakeService) blockAuthenticate() {
	s.entered = make(chan struct{}, 1)
	s.gate = make(chan struct{})
}

// stallAuthenticate makes Authenticate wait for gate without watching ctx.
func (s *fakeService) stallAuthenticate() {
	s.blockAuthenticate()
	s.ignoreCtx = true
}

func (s *fakeService) Authenticate(ctx context.Context, email, password string, role Role) (AuthOutcome, error) {
	s.mu.Lock()
	s.authCalls++
	entered, gate, authErr, ignoreCtx := s.entered, s.gate, s.authErr, s.ignoreCtx
	stored, ok := s.accounts[email]
	s.mu.Unlock()

	if gate != nil && ignoreCtx {
		entered <- struct{}{}
		<-gate
	} else if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if authErr != nil {
		return 0, authErr
	}
	if !ok {
		return OutcomeUnknownEmail, nil
	}
	if stored != password {
		return OutcomeWrongPassword, nil
	}
	return OutcomeAccepted, nil
}

func (s *fakeService) Register(ctx context.Context, creds Credentials) (AuthOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[creds.Email]; ok {
		return OutcomeEmailTaken, nil
	}
	s.accounts[creds.Email] = creds.Password
	return OutcomeAccepted, nil
}

func (s *fakeService) IssueOtp(ctx context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueCalls++
	if s.issueErr != nil {
		return "", s.issueErr
	}
	return fmt.Sprintf("challenge-%d", s.issueCalls), nil
}

func (s *fakeService) VerifyOtp(ctx context.Context, challengeID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyCalls++
	if s.verifyErr != nil {
		return false, s.verifyErr
	}
	return code == s.code, nil
}

func (s *fakeService) RequestPasswordReset(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	s.resetEmails = append(s.resetEmails, email)
	return s.resetErr
}

func (s *fakeService) counts() (auth, issue, verify int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCalls, s.issueCalls, s.verifyCalls
}

type recordingNavigator struct {
	mu    sync.Mutex
	dests []Destination
}

func (n *recordingNavigator) Navigate(ctx context.Context, flowID string, dest Destination) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dests = append(n.dests, dest)
	return nil
}

func (n *recordingNavigator) all() []Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Destination(nil), n.dests...)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(t *testing.T, cfg Config, svc AuthService, nav Navigator, sink AuditSink) *Engine {
	t.Helper()
	b := New().WithConfig(cfg).WithAuthService(svc).WithLogger(quietLogger())
	if nav != nil {
		b = b.WithNavigator(nav)
	}
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func fillCredentials(t *testing.T, p *Presenter, email, password string) {
	t.Helper()
	if err := p.EditEmail(email); err != nil {
		t.Fatalf("EditEmail failed: %v", err)
	}
	if err := p.EditPassword(password); err != nil {
		t.Fatalf("EditPassword failed: %v", err)
	}
}
