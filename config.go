package otpflow

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every tunable of the flow, its service, and the ambient stack.
//
// Config values are built once at startup (see [DefaultConfig] and
// [LoadConfig]) and treated as immutable afterwards.
type Config struct {
	Flow          FlowConfig          `mapstructure:"flow"`
	OTP           OTPConfig           `mapstructure:"otp"`
	PasswordReset PasswordResetConfig `mapstructure:"password_reset"`
	Password      PasswordConfig      `mapstructure:"password"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Redis         RedisConfig         `mapstructure:"redis"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Directory     DirectoryConfig     `mapstructure:"directory"`
	Fixture       FixtureConfig       `mapstructure:"fixture"`
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig parameterizes the machine and presenter.
//
// Both variants only require a non-empty password by default: a short
// password on login is reported by the service as a wrong password. A
// positive minimum is enforced before any service call.
type FlowConfig struct {
	LoginMinPasswordLength    int           `mapstructure:"login_min_password_length"`
	RegisterMinPasswordLength int           `mapstructure:"register_min_password_length"`
	OTPDigits                 int           `mapstructure:"otp_digits"`
	CallTimeout               time.Duration `mapstructure:"call_timeout"`
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls challenge issuance in the Redis-backed service.
//
// MaxAttempts of zero leaves wrong codes unbounded.
type OTPConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
}

// PasswordResetConfig controls reset tickets and the signed reset link.
type PasswordResetConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	TicketTTL   time.Duration `mapstructure:"ticket_ttl"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	LinkBaseURL string        `mapstructure:"link_base_url"`
	SigningKey  string        `mapstructure:"signing_key"`
	Issuer      string        `mapstructure:"issuer"`
}

// PasswordConfig holds the Argon2id parameters used to store account passwords.
type PasswordConfig struct {
	Memory      uint32 `mapstructure:"memory"` // in KB
	Time        uint32 `mapstructure:"time"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" (default) or "text"
}

// RedisConfig points at the challenge store. An empty Addr lets the CLI start
// an in-process miniredis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig configures the gin adapter.
//
// A mounted flow untouched for FlowIdleTTL is closed. MaxFlows of zero leaves
// the number of mounted flows unbounded.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	FlowIdleTTL     time.Duration `mapstructure:"flow_idle_ttl"`
	MaxFlows        int           `mapstructure:"max_flows"`
}

// DeliveryConfig selects where issued codes and reset links are handed off.
// An empty NSQAddr logs them instead.
type DeliveryConfig struct {
	NSQAddr    string `mapstructure:"nsq_addr"`
	OTPTopic   string `mapstructure:"otp_topic"`
	ResetTopic string `mapstructure:"reset_topic"`
}

// DirectoryConfig selects the account directory. An empty Driver keeps
// accounts in memory.
type DirectoryConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// FixtureConfig seeds the known-good test account and pins its code.
type FixtureConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
	Code     string `mapstructure:"code"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Flow: FlowConfig{
			LoginMinPasswordLength:    0,
			RegisterMinPasswordLength: 0,
			OTPDigits:                 6,
			CallTimeout:               10 * time.Second,
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 0,
			RedisPrefix: "otc",
		},
		PasswordReset: PasswordResetConfig{
			Enabled:     true,
			TicketTTL:   15 * time.Minute,
			RedisPrefix: "opr",
			LinkBaseURL: "http://localhost:5173/reset-password",
			Issuer:      "otpflow",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
			FlowIdleTTL:     15 * time.Minute,
			MaxFlows:        10000,
		},
		Delivery: DeliveryConfig{
			OTPTopic:   "otp_delivery",
			ResetTopic: "password_reset_delivery",
		},
		Fixture: FixtureConfig{
			Enabled:  false,
			Email:    "test@example.com",
			Password: "00000000",
			Role:     string(RoleStudent),
			Code:     "123456",
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints and returns the first violation.
func (c *Config) Validate() error {
	// Flow
	if c.Flow.LoginMinPasswordLength < 0 || c.Flow.RegisterMinPasswordLength < 0 {
		return errors.New("Flow minimum password lengths must be >= 0")
	}
	if c.Flow.OTPDigits < 6 || c.Flow.OTPDigits > 10 {
		return errors.New("Flow OTPDigits must be between 6 and 10")
	}
	if c.Flow.CallTimeout <= 0 {
		return errors.New("Flow CallTimeout must be > 0")
	}

	// OTP
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts < 0 {
		return errors.New("OTP MaxAttempts must be >= 0")
	}
	if c.OTP.MaxAttempts > 65535 {
		return errors.New("OTP MaxAttempts is too large")
	}

	// Password Reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.TicketTTL <= 0 {
			return errors.New("PasswordReset TicketTTL must be > 0")
		}
		if c.PasswordReset.LinkBaseURL == "" {
			return errors.New("PasswordReset LinkBaseURL is required when enabled")
		}
		if c.PasswordReset.SigningKey != "" && len(c.PasswordReset.SigningKey) < 32 {
			return errors.New("PasswordReset SigningKey must be >= 32 bytes")
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Logging
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.New("Logging Level is invalid")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return errors.New("Logging Format must be 'json' or 'text'")
	}

	// HTTP
	if c.HTTP.FlowIdleTTL <= c.Flow.CallTimeout {
		return errors.New("HTTP FlowIdleTTL must exceed Flow CallTimeout")
	}
	if c.HTTP.MaxFlows < 0 {
		return errors.New("HTTP MaxFlows must be >= 0")
	}

	// Directory
	switch c.Directory.Driver {
	case "":
	case "postgres":
		if c.Directory.DSN == "" {
			return errors.New("Directory DSN is required for the postgres driver")
		}
	default:
		return errors.New("Directory Driver must be empty or 'postgres'")
	}

	// Fixture
	if c.Fixture.Enabled {
		if c.Fixture.Email == "" || c.Fixture.Password == "" {
			return errors.New("Fixture Email and Password are required when enabled")
		}
		if !Role(c.Fixture.Role).Valid() {
			return errors.New("Fixture Role must be 'student' or 'admin'")
		}
		if len(c.Fixture.Code) != c.Flow.OTPDigits {
			return errors.New("Fixture Code length must match Flow OTPDigits")
		}
		for i := 0; i < len(c.Fixture.Code); i++ {
			if c.Fixture.Code[i] < '0' || c.Fixture.Code[i] > '9' {
				return errors.New("Fixture Code must be numeric")
			}
		}
	}

	return nil
}
