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
	resetTicketVersion1 = 1
)

var (
	ErrResetTicketNotFound = errors.New("reset ticket not found")
	ErrResetTicketMismatch = errors.New("reset ticket secret mismatch")
	ErrResetTicketBackend  = errors.New("reset ticket backend unavailable")
)

// ResetTicket backs one password reset link. The link carries the secret;
// only its hash is stored.
type ResetTicket struct {
	Email      string
	SecretHash [32]byte
	ExpiresAt  int64
}

// ResetTicketStore keeps tickets under "<prefix>:<ticketID>".
type ResetTicketStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewResetTicketStore(redisClient redis.UniversalClient, prefix string) *ResetTicketStore {
	if prefix == "" {
		prefix = "opr"
	}
	return &ResetTicketStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ResetTicketStore) key(ticketID string) string {
	return s.prefix + ":" + ticketID
}

func (s *ResetTicketStore) Save(ctx context.Context, ticketID string, record *ResetTicket, ttl time.Duration) error {
	encoded, err := encodeResetTicket(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(ticketID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetTicketBackend, err)
	}
	return nil
}

// Consume deletes the ticket and returns it when providedHash matches. Any
// mismatch also deletes the ticket: a reset link is good for one try.
func (s *ResetTicketStore) Consume(ctx context.Context, ticketID string, providedHash [32]byte) (*ResetTicket, error) {
	const maxRetries = 4
	key := s.key(ticketID)

	for i := 0; i < maxRetries; i++ {
		var matched *ResetTicket

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeResetTicket(data)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				return ErrResetTicketNotFound
			}
			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				return ErrResetTicketMismatch
			}
			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrResetTicketNotFound
			case errors.Is(err, ErrResetTicketNotFound), errors.Is(err, ErrResetTicketMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetTicketBackend, err)
			}
		}
		return matched, nil
	}

	return nil, fmt.Errorf("%w: too much contention", ErrResetTicketBackend)
}

func encodeResetTicket(record *ResetTicket) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(resetTicketVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Email); err != nil {
		return nil, err
	}
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeResetTicket(data []byte) (*ResetTicket, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetTicketVersion1 {
		return nil, errors.New("invalid reset ticket version")
	}

	record := &ResetTicket{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
