package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// FuzzJWTParseReset feeds arbitrary strings to the reset link parser.
// Invalid input must return an error, never panic.
func FuzzJWTParseReset(f *testing.F) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}

	validToken, err := mgr.CreateReset("ticket", "secret")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJyaWQiOiJ4In0.")
	f.Add(validToken[:len(validToken)/2])
	f.Add(validToken + "x")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := mgr.ParseReset(token)
		if err == nil && (claims == nil || claims.TicketID == "" || claims.Secret == "") {
			t.Fatal("accepted token without ticket claims")
		}
	})
}
