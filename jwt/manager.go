package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the link signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const maxLeeway = 2 * time.Minute

// Config controls link token signing.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte // HMAC secret, or raw/PEM ed25519 private key
	PublicKey     []byte // optional for ed25519; derived when empty
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// ResetClaims identify one reset ticket.
type ResetClaims struct {
	TicketID string `json:"rid"`
	Secret   string `json:"sec"`
	jwt.RegisteredClaims
}

// Manager signs and parses reset link tokens. Keys and the parser are
// resolved once by [NewManager]; a Manager is safe for concurrent use.
type Manager struct {
	ttl      time.Duration
	issuer   string
	audience string
	keyID    string

	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	parser    *jwt.Parser
}

// NewManager validates cfg and resolves its keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}

	m := &Manager{
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		keyID:    strings.TrimSpace(cfg.KeyID),
	}
	if err := m.resolveKeys(cfg); err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

func (m *Manager) resolveKeys(cfg Config) error {
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return errors.New("hs256 requires a key of at least 32 bytes")
		}
		secret := append([]byte(nil), cfg.PrivateKey...)
		m.method, m.signKey, m.verifyKey = jwt.SigningMethodHS256, secret, secret
		return nil

	case MethodEd25519:
		priv, err := edPrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}
		pub := priv.Public().(ed25519.PublicKey)
		if len(cfg.PublicKey) > 0 {
			if pub, err = edPublicKey(cfg.PublicKey); err != nil {
				return err
			}
		}
		m.method, m.signKey, m.verifyKey = jwt.SigningMethodEdDSA, priv, pub
		return nil
	}
	return fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
}

// CreateReset signs a link token for ticketID and its encoded secret.
func (m *Manager) CreateReset(ticketID, secret string) (string, error) {
	if ticketID == "" || secret == "" {
		return "", errors.New("ticket id and secret required")
	}

	now := time.Now()
	claims := ResetClaims{
		TicketID: ticketID,
		Secret:   secret,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.keyID != "" {
		token.Header["kid"] = m.keyID
	}
	return token.SignedString(m.signKey)
}

// ParseReset verifies tokenStr and returns its claims.
func (m *Manager) ParseReset(tokenStr string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.TicketID == "" || claims.Secret == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if m.keyID != "" {
		if kid, _ := t.Header["kid"].(string); kid != m.keyID {
			return nil, errors.New("unknown kid")
		}
	}
	return m.verifyKey, nil
}

func edPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return key, nil
}

func edPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return key, nil
}
