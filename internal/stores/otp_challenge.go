package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpChallengeVersion1 = 1
)

var (
	ErrOTPChallengeNotFound = errors.New("otp challenge not found")
	ErrOTPChallengeMismatch = errors.New("otp code mismatch")
	ErrOTPChallengeExceeded = errors.New("otp challenge attempts exceeded")
	ErrOTPChallengeBackend  = errors.New("otp challenge backend unavailable")
)

// OTPChallenge is one issued code. Only the SHA-256 of the code is kept.
type OTPChallenge struct {
	Email     string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// OTPChallengeStore keeps challenges under "<prefix>:<challengeID>".
type OTPChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPChallengeStore(redisClient redis.UniversalClient, prefix string) *OTPChallengeStore {
	if prefix == "" {
		prefix = "otc"
	}
	return &OTPChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *OTPChallengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *OTPChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodeOTPChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
	}
	return nil
}

func (s *OTPChallengeStore) Get(ctx context.Context, challengeID string) (*OTPChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
	}

	record, err := decodeOTPChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrOTPChallengeNotFound
	}
	return record, nil
}

func (s *OTPChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
	}
	return n > 0, nil
}

// Verify compares providedHash with the stored hash. A match deletes the
// challenge and returns it. A mismatch records the attempt and returns
// ErrOTPChallengeMismatch, or ErrOTPChallengeExceeded once maxAttempts is
// reached (the challenge is then deleted). maxAttempts <= 0 never exhausts.
func (s *OTPChallengeStore) Verify(
	ctx context.Context,
	challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*OTPChallenge, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	del := func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		var matched *OTPChallenge

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPChallenge(data)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				if err := del(tx); err != nil {
					return err
				}
				return ErrOTPChallengeNotFound
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) == 1 {
				if err := del(tx); err != nil {
					return err
				}
				matched = record
				return nil
			}

			if record.Attempts < 65535 {
				record.Attempts++
			}
			if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
				if err := del(tx); err != nil {
					return err
				}
				return ErrOTPChallengeExceeded
			}

			updated, err := encodeOTPChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			return ErrOTPChallengeMismatch
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrOTPChallengeNotFound
			case errors.Is(err, ErrOTPChallengeNotFound), errors.Is(err, ErrOTPChallengeMismatch), errors.Is(err, ErrOTPChallengeExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrOTPChallengeBackend, err)
			}
		}
		return matched, nil
	}

	return nil, fmt.Errorf("%w: too much contention", ErrOTPChallengeBackend)
}

func encodeOTPChallenge(record *OTPChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(otpChallengeVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Email); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeOTPChallenge(data []byte) (*OTPChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpChallengeVersion1 {
		return nil, errors.New("invalid otp challenge version")
	}

	record := &OTPChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
