package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const resetSecretSize = 32

// NewOTP returns a uniformly random numeric code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashCode is the stored form of an issued code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// NewResetSecret returns a random secret and its base64url encoding for use
// in a reset link.
func NewResetSecret() ([resetSecretSize]byte, string, error) {
	var secret [resetSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return secret, "", err
	}
	return secret, base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// DecodeResetSecret parses the encoded secret from a reset link.
func DecodeResetSecret(encoded string) ([resetSecretSize]byte, error) {
	var secret [resetSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return secret, err
	}
	if len(raw) != resetSecretSize {
		return secret, errors.New("invalid reset secret size")
	}
	copy(secret[:], raw)
	return secret, nil
}

// HashResetSecret is the stored form of a reset secret.
func HashResetSecret(secret [resetSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}
