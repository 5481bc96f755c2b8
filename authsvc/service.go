package authsvc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/internal"
	"github.com/MrEthical07/otpflow/internal/stores"
	"github.com/MrEthical07/otpflow/jwt"
	"github.com/MrEthical07/otpflow/password"
)

// Options wires a Service.
type Options struct {
	Config    otpflow.Config
	Redis     redis.UniversalClient
	Directory Directory
	Sender    Sender
	Logger    logrus.FieldLogger
	// Codes defaults to RandomCodes, with the fixture code pinned when the
	// fixture is enabled.
	Codes CodeSource
}

// Service implements otpflow.AuthService.
type Service struct {
	cfg        otpflow.Config
	directory  Directory
	challenges *stores.OTPChallengeStore
	tickets    *stores.ResetTicketStore
	hasher     *password.Hasher
	links      *jwt.Manager
	sender     Sender
	codes      CodeSource
	logger     logrus.FieldLogger
}

var _ otpflow.AuthService = (*Service)(nil)

// New validates opts.Config and returns a ready service.
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Redis == nil {
		return nil, errors.New("authsvc: redis client is required")
	}
	if opts.Directory == nil {
		return nil, errors.New("authsvc: directory is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sender := opts.Sender
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	codes := opts.Codes
	if codes == nil {
		codes = RandomCodes(cfg.Flow.OTPDigits)
		if cfg.Fixture.Enabled {
			codes = PinnedCode(cfg.Fixture.Email, cfg.Fixture.Code, codes)
		}
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		directory:  opts.Directory,
		challenges: stores.NewOTPChallengeStore(opts.Redis, cfg.OTP.RedisPrefix),
		tickets:    stores.NewResetTicketStore(opts.Redis, cfg.PasswordReset.RedisPrefix),
		hasher:     hasher,
		sender:     sender,
		codes:      codes,
		logger:     logger,
	}

	if cfg.PasswordReset.Enabled {
		key := []byte(cfg.PasswordReset.SigningKey)
		if len(key) == 0 {
			// Links signed with a per-process key die with the process.
			_, encoded, err := internal.NewResetSecret()
			if err != nil {
				return nil, err
			}
			key = []byte(encoded)
		}
		s.links, err = jwt.NewManager(jwt.Config{
			TTL:           cfg.PasswordReset.TicketTTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    key,
			Issuer:        cfg.PasswordReset.Issuer,
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Hasher exposes the password hasher used for stored accounts.
func (s *Service) Hasher() *password.Hasher {
	return s.hasher
}

// Authenticate checks email and password against an active account of role.
// An account registered under another role, or not yet verified, is reported
// as an unknown email. The seeded fixture account signs in under any role.
func (s *Service) Authenticate(ctx context.Context, email, pass string, role otpflow.Role) (otpflow.AuthOutcome, error) {
	acct, err := s.directory.Find(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return otpflow.OutcomeUnknownEmail, nil
		}
		return 0, err
	}
	if acct.Status != StatusActive || (acct.Role != role && !s.isFixture(acct.Email)) {
		return otpflow.OutcomeUnknownEmail, nil
	}

	ok, err := s.hasher.Verify(pass, acct.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return otpflow.OutcomeWrongPassword, nil
		}
		return 0, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return otpflow.OutcomeWrongPassword, nil
	}
	s.upgradeHash(ctx, acct, pass)
	return otpflow.OutcomeAccepted, nil
}

func (s *Service) isFixture(email string) bool {
	return s.cfg.Fixture.Enabled && NormalizeEmail(email) == NormalizeEmail(s.cfg.Fixture.Email)
}

// upgradeHash rewrites a hash stored under weaker costs. Failures are logged
// and never fail the sign-in.
func (s *Service) upgradeHash(ctx context.Context, acct *Account, pass string) {
	stale, err := s.hasher.Stale(acct.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := s.hasher.Hash(pass)
	if err == nil {
		updated := *acct
		updated.PasswordHash = hash
		err = s.directory.Update(ctx, &updated)
	}
	if err != nil {
		s.logger.WithError(err).WithField("email", acct.Email).Warn("password hash upgrade failed")
	}
}

// Register creates a pending account. Registering again over a pending
// account replaces its password and role; an active account is taken.
func (s *Service) Register(ctx context.Context, creds otpflow.Credentials) (otpflow.AuthOutcome, error) {
	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	acct := &Account{
		Email:        creds.Email,
		PasswordHash: hash,
		Role:         creds.Role,
		Status:       StatusPending,
	}

	err = s.directory.Create(ctx, acct)
	if err == nil {
		return otpflow.OutcomeAccepted, nil
	}
	if !errors.Is(err, ErrAccountExists) {
		return 0, err
	}

	existing, err := s.directory.Find(ctx, creds.Email)
	if err != nil {
		return 0, err
	}
	if existing.Status != StatusPending {
		return otpflow.OutcomeEmailTaken, nil
	}
	if err := s.directory.Update(ctx, acct); err != nil {
		return 0, err
	}
	return otpflow.OutcomeAccepted, nil
}

// IssueOtp stores a fresh challenge for email and sends its code.
func (s *Service) IssueOtp(ctx context.Context, email string) (string, error) {
	code, err := s.codes(email)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	challengeID := uuid.NewString()
	record := &stores.OTPChallenge{
		Email:     NormalizeEmail(email),
		CodeHash:  internal.HashCode(code),
		ExpiresAt: time.Now().Add(s.cfg.OTP.TTL).Unix(),
	}
	if err := s.challenges.Save(ctx, challengeID, record, s.cfg.OTP.TTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := s.sender.SendCode(ctx, email, code); err != nil {
		if _, delErr := s.challenges.Delete(ctx, challengeID); delErr != nil {
			s.logger.WithError(delErr).Warn("failed to drop undelivered challenge")
		}
		return "", err
	}

	s.logger.WithFields(logrus.Fields{"email": record.Email, "challenge_id": challengeID}).Debug("otp challenge issued")
	return challengeID, nil
}

// VerifyOtp checks code against the challenge. A match consumes the challenge
// and activates a pending account. A challenge that expired or ran out of
// attempts is reported as otpflow.ErrOTPExpired.
func (s *Service) VerifyOtp(ctx context.Context, challengeID, code string) (bool, error) {
	record, err := s.challenges.Verify(ctx, challengeID, internal.HashCode(code), s.cfg.OTP.MaxAttempts)
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrOTPChallengeMismatch):
		return false, nil
	case errors.Is(err, stores.ErrOTPChallengeNotFound), errors.Is(err, stores.ErrOTPChallengeExceeded):
		return false, fmt.Errorf("%w: %v", otpflow.ErrOTPExpired, err)
	default:
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := s.activate(ctx, record.Email); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) activate(ctx context.Context, email string) error {
	acct, err := s.directory.Find(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}
	if acct.Status == StatusActive {
		return nil
	}
	acct.Status = StatusActive
	if err := s.directory.Update(ctx, acct); err != nil {
		return err
	}
	s.logger.WithField("email", acct.Email).Info("account activated")
	return nil
}

// RequestPasswordReset sends a single-use reset link to email. Unknown
// emails succeed without sending anything.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.links == nil {
		return ErrResetDisabled
	}

	acct, err := s.directory.Find(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.logger.WithField("email", NormalizeEmail(email)).Debug("password reset for unknown email ignored")
			return nil
		}
		return err
	}

	secret, encoded, err := internal.NewResetSecret()
	if err != nil {
		return fmt.Errorf("generate reset secret: %w", err)
	}
	ticketID := uuid.NewString()
	ttl := s.cfg.PasswordReset.TicketTTL
	ticket := &stores.ResetTicket{
		Email:      acct.Email,
		SecretHash: internal.HashResetSecret(secret),
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
	if err := s.tickets.Save(ctx, ticketID, ticket, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	token, err := s.links.CreateReset(ticketID, encoded)
	if err != nil {
		return fmt.Errorf("sign reset link: %w", err)
	}

	return s.sender.SendResetLink(ctx, email, s.resetLink(token))
}

func (s *Service) resetLink(token string) string {
	u, err := url.Parse(s.cfg.PasswordReset.LinkBaseURL)
	if err != nil {
		return s.cfg.PasswordReset.LinkBaseURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConfirmPasswordReset redeems the token from a reset link and replaces the
// account password. The link is burned by any redemption attempt.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if s.links == nil {
		return ErrResetDisabled
	}
	if minLen := otpflow.RegistrationPolicy(s.cfg.Flow).MinPasswordLength; newPassword == "" || len(newPassword) < minLen {
		return fmt.Errorf("%w: %w", otpflow.ErrValidation, otpflow.ErrPasswordTooShort)
	}

	claims, err := s.links.ParseReset(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetLinkInvalid, err)
	}
	secret, err := internal.DecodeResetSecret(claims.Secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetLinkInvalid, err)
	}

	ticket, err := s.tickets.Consume(ctx, claims.TicketID, internal.HashResetSecret(secret))
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrResetTicketNotFound), errors.Is(err, stores.ErrResetTicketMismatch):
		return fmt.Errorf("%w: %v", ErrResetLinkInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	acct, err := s.directory.Find(ctx, ticket.Email)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	if err := s.directory.Update(ctx, acct); err != nil {
		return err
	}
	s.logger.WithField("email", acct.Email).Info("password reset completed")
	return nil
}
