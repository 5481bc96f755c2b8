package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// DefaultMaxPasswordBytes bounds the input handed to Argon2 when
	// Params.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned when a stored hash is not an argon2id PHC
	// string this package can read.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Params are the Argon2id costs applied to newly stored passwords.
type Params struct {
	Memory           uint32 // KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// Validate rejects costs below the floor accepted for stored accounts.
func (p Params) Validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case p.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case p.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	}
	return nil
}

// Hasher stores and checks account passwords. It is safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates p and returns a hasher.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.MaxPasswordBytes <= 0 {
		p.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Hasher{params: p}, nil
}

// Params returns the costs used for new hashes.
func (h *Hasher) Params() Params {
	return h.params
}

// Hash derives a PHC string for password under a fresh salt. Length policy
// belongs to the flow; only empty and oversized input is refused here.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > h.params.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	d := digest{
		memory:      h.params.Memory,
		time:        h.params.Time,
		parallelism: h.params.Parallelism,
		salt:        salt,
	}
	d.key = d.derive(password, h.params.KeyLength)
	return d.String(), nil
}

// Verify reports whether password matches stored. The costs recorded in
// stored are used, so hashes written under older params keep verifying.
func (h *Hasher) Verify(password, stored string) (bool, error) {
	if len(password) > h.params.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	d, err := parseDigest(stored)
	if err != nil {
		return false, err
	}
	got := d.derive(password, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(got, d.key) == 1, nil
}

// Stale reports whether stored was written with weaker costs than the
// current params and should be replaced after the next successful login.
func (h *Hasher) Stale(stored string) (bool, error) {
	d, err := parseDigest(stored)
	if err != nil {
		return false, err
	}
	return d.memory < h.params.Memory ||
		d.time < h.params.Time ||
		d.parallelism < h.params.Parallelism ||
		uint32(len(d.key)) != h.params.KeyLength, nil
}

// digest is one decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type digest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (d digest) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, keyLen)
}

func (d digest) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		d.memory, d.time, d.parallelism,
		base64.RawStdEncoding.EncodeToString(d.salt),
		base64.RawStdEncoding.EncodeToString(d.key),
	)
}

func parseDigest(s string) (digest, error) {
	var d digest

	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return d, fmt.Errorf("%w: not an argon2id PHC string", ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return d, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	var parallelism uint32
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &d.memory, &d.time, &parallelism); err != nil || n != 3 {
		return d, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, fields[3])
	}
	if fields[3] != fmt.Sprintf("m=%d,t=%d,p=%d", d.memory, d.time, parallelism) {
		return d, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, fields[3])
	}
	if d.memory < minMemoryKB || d.time < minTimeCost || parallelism < uint32(minParallelism) || parallelism > 255 {
		return d, fmt.Errorf("%w: parameters below floor", ErrMalformedHash)
	}
	d.parallelism = uint8(parallelism)

	var err error
	if d.salt, err = decodeSegment(fields[4]); err != nil || len(d.salt) < int(minSaltLength) {
		return d, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if d.key, err = decodeSegment(fields[5]); err != nil || len(d.key) == 0 {
		return d, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return d, nil
}

// decodeSegment accepts both padded and unpadded base64.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
