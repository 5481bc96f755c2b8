package otpflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Flow.OTPDigits != 6 {
		t.Fatalf("expected 6 digits, got %d", cfg.Flow.OTPDigits)
	}
	if cfg.Flow.LoginMinPasswordLength != 0 || cfg.Flow.RegisterMinPasswordLength != 0 {
		t.Fatalf("unexpected password minimums: %+v", cfg.Flow)
	}
	if cfg.OTP.MaxAttempts != 0 {
		t.Fatal("wrong codes must be unbounded by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "eight digit codes",
			mutate:    func(c *Config) { c.Flow.OTPDigits = 8 },
			wantValid: true,
		},
		{
			name:      "five digit codes",
			mutate:    func(c *Config) { c.Flow.OTPDigits = 5 },
			wantValid: false,
		},
		{
			name:      "zero call timeout",
			mutate:    func(c *Config) { c.Flow.CallTimeout = 0 },
			wantValid: false,
		},
		{
			name:      "negative login minimum",
			mutate:    func(c *Config) { c.Flow.LoginMinPasswordLength = -1 },
			wantValid: false,
		},
		{
			name:      "zero otp ttl",
			mutate:    func(c *Config) { c.OTP.TTL = 0 },
			wantValid: false,
		},
		{
			name:      "negative max attempts",
			mutate:    func(c *Config) { c.OTP.MaxAttempts = -1 },
			wantValid: false,
		},
		{
			name:      "bounded attempts",
			mutate:    func(c *Config) { c.OTP.MaxAttempts = 5 },
			wantValid: true,
		},
		{
			name:      "short reset signing key",
			mutate:    func(c *Config) { c.PasswordReset.SigningKey = "short" },
			wantValid: false,
		},
		{
			name:      "reset without link base",
			mutate:    func(c *Config) { c.PasswordReset.LinkBaseURL = "" },
			wantValid: false,
		},
		{
			name: "reset disabled ignores link base",
			mutate: func(c *Config) {
				c.PasswordReset.Enabled = false
				c.PasswordReset.LinkBaseURL = ""
			},
			wantValid: true,
		},
		{
			name:      "weak argon memory",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name:      "short salt",
			mutate:    func(c *Config) { c.Password.SaltLength = 8 },
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name:      "flow idle ttl within call timeout",
			mutate:    func(c *Config) { c.HTTP.FlowIdleTTL = c.Flow.CallTimeout },
			wantValid: false,
		},
		{
			name:      "negative max flows",
			mutate:    func(c *Config) { c.HTTP.MaxFlows = -1 },
			wantValid: false,
		},
		{
			name:      "unbounded flows",
			mutate:    func(c *Config) { c.HTTP.MaxFlows = 0 },
			wantValid: true,
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Logging.Level = "chatty" },
			wantValid: false,
		},
		{
			name:      "text log format",
			mutate:    func(c *Config) { c.Logging.Format = "text" },
			wantValid: true,
		},
		{
			name:      "xml log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantValid: false,
		},
		{
			name:      "postgres without dsn",
			mutate:    func(c *Config) { c.Directory.Driver = "postgres" },
			wantValid: false,
		},
		{
			name: "mysql directory",
			mutate: func(c *Config) {
				c.Directory.Driver = "mysql"
				c.Directory.DSN = "x"
			},
			wantValid: false,
		},
		{
			name: "fixture code length mismatch",
			mutate: func(c *Config) {
				c.Fixture.Enabled = true
				c.Fixture.Code = "1234"
			},
			wantValid: false,
		},
		{
			name: "fixture code not numeric",
			mutate: func(c *Config) {
				c.Fixture.Enabled = true
				c.Fixture.Code = "12a456"
			},
			wantValid: false,
		},
		{
			name: "fixture unknown role",
			mutate: func(c *Config) {
				c.Fixture.Enabled = true
				c.Fixture.Role = "guest"
			},
			wantValid: false,
		},
		{
			name:      "fixture enabled",
			mutate:    func(c *Config) { c.Fixture.Enabled = true },
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "otpflow.yaml")
	body := []byte(`
flow:
  otp_digits: 8
  call_timeout: 3s
otp:
  ttl: 2m
  max_attempts: 5
logging:
  level: debug
  format: text
fixture:
  enabled: true
  code: "87654321"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	t.Setenv("OTPFLOW_HTTP_ADDR", ":9090")
	t.Setenv("OTPFLOW_OTP_MAX_ATTEMPTS", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Flow.OTPDigits != 8 || cfg.Flow.CallTimeout != 3*time.Second {
		t.Fatalf("flow section not applied: %+v", cfg.Flow)
	}
	if cfg.OTP.TTL != 2*time.Minute {
		t.Fatalf("expected ttl 2m, got %s", cfg.OTP.TTL)
	}
	if cfg.OTP.MaxAttempts != 7 {
		t.Fatalf("expected env to override max attempts, got %d", cfg.OTP.MaxAttempts)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected env http addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging section not applied: %+v", cfg.Logging)
	}
	if !cfg.Fixture.Enabled || cfg.Fixture.Code != "87654321" || cfg.Fixture.Email != "test@example.com" {
		t.Fatalf("fixture section not merged over defaults: %+v", cfg.Fixture)
	}
	if cfg.HTTP.ShutdownTimeout != 10*time.Second || cfg.PasswordReset.TicketTTL != 15*time.Minute {
		t.Fatal("unset keys must keep their defaults")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("flow:\n  otp_digits: 4\n"), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected a missing explicit file to fail")
	}
}
