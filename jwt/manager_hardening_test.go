package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testHMACKey = []byte("0123456789abcdef0123456789abcdef")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestCreateParseResetRoundTrip(t *testing.T) {
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testHMACKey, Issuer: "otpflow"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateReset("ticket-1", "secret-1")
	if err != nil {
		t.Fatalf("create reset: %v", err)
	}
	claims, err := m.ParseReset(token)
	if err != nil {
		t.Fatalf("parse reset: %v", err)
	}
	if claims.TicketID != "ticket-1" || claims.Secret != "secret-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCreateResetRequiresTicketAndSecret(t *testing.T) {
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testHMACKey})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.CreateReset("", "s"); err == nil {
		t.Fatal("expected empty ticket id to be rejected")
	}
	if _, err := m.CreateReset("t", ""); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}

func TestNewManagerRejectsShortHMACKey(t *testing.T) {
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short key to be rejected")
	}
}

func TestParseResetRejectsWrongAlgorithm(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := ResetClaims{TicketID: "t", Secret: "s", RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString(testHMACKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseReset(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseResetIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "otpflow",
		Audience:      "reset",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateReset("t", "s")
	if err != nil {
		t.Fatalf("create reset: %v", err)
	}
	if _, err := m.ParseReset(token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	other, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "someone-else",
		Audience:      "reset",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := other.ParseReset(token); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestParseResetRejectsUnknownKeyID(t *testing.T) {
	signer, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testHMACKey, KeyID: "k1"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	verifier, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testHMACKey, KeyID: "k2"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := signer.CreateReset("t", "s")
	if err != nil {
		t.Fatalf("create reset: %v", err)
	}
	if _, err := verifier.ParseReset(token); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestParseResetRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testHMACKey})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := ResetClaims{TicketID: "t", Secret: "s", RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testHMACKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseReset(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseResetRejectsMissingClaims(t *testing.T) {
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testHMACKey})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := ResetClaims{RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testHMACKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseReset(token); err == nil {
		t.Fatal("expected token without ticket claims to be rejected")
	}
}
