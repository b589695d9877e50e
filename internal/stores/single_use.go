package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/accounts/internal"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	singleUseRecordVersionV1 = 1
	maxTxRetries             = 4
)

var (
	ErrTokenNotFound         = errors.New("single-use token not found")
	ErrTokenContention       = errors.New("single-use token contention")
	ErrTokenRedisUnavailable = errors.New("single-use token redis unavailable")
)

// Kind separates verification tokens from reset tokens; a user holds at most
// one live token per kind.
type Kind uint8

const (
	KindUserVerification Kind = 1
	KindPasswordReset    Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindUserVerification:
		return "user_verification"
	case KindPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k == KindUserVerification || k == KindPasswordReset
}

// SingleUseToken is the stored record. Only the SHA-256 digest of the token
// value is kept.
type SingleUseToken struct {
	ID        string
	UserID    string
	Kind      Kind
	TokenHash [32]byte
	ExpiresAt int64 // unix millis
}

// Expired reports whether the token is past its expiry at now.
func (t *SingleUseToken) Expired(now time.Time) bool {
	return now.UnixMilli() >= t.ExpiresAt
}

// SingleUseStore keeps one record per (userID, kind) under an owner key and a
// lookup key per token digest.
type SingleUseStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSingleUseStore returns a store keeping its records under prefix
// ("ast" when empty). The client may be standalone, sentinel or cluster: each
// operation watches a single owner key.
func NewSingleUseStore(redisClient redis.UniversalClient, prefix string) *SingleUseStore {
	if prefix == "" {
		prefix = "ast"
	}
	return &SingleUseStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *SingleUseStore) ownerKey(kind Kind, userID string) string {
	return fmt.Sprintf("%s:%d:u:%s", s.prefix, kind, userID)
}

func (s *SingleUseStore) tokenKey(kind Kind, hash [32]byte) string {
	return fmt.Sprintf("%s:%d:t:%s", s.prefix, kind, hex.EncodeToString(hash[:]))
}

// Upsert stores token as the live token for (userID, kind). An existing
// record keeps its ID and has its value and expiry replaced; the previous
// value stops resolving in the same transaction. Concurrent upserts for the
// same owner serialize through WATCH; after maxTxRetries lost races it fails
// with ErrTokenContention.
func (s *SingleUseStore) Upsert(
	ctx context.Context,
	userID string,
	kind Kind,
	token string,
	expiresAt time.Time,
	ttl time.Duration,
) (*SingleUseToken, error) {
	if userID == "" || token == "" {
		return nil, errors.New("single-use token requires user id and value")
	}
	if !kind.valid() {
		return nil, fmt.Errorf("invalid single-use token kind %d", kind)
	}
	if ttl <= 0 {
		return nil, errors.New("single-use token ttl must be positive")
	}

	owner := s.ownerKey(kind, userID)

	for i := 0; i < maxTxRetries; i++ {
		var stored *SingleUseToken

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var prev *SingleUseToken
			data, err := tx.Get(ctx, owner).Bytes()
			switch {
			case err == nil:
				// An undecodable record is overwritten.
				prev, _ = decodeSingleUseToken(data)
			case errors.Is(err, redis.Nil):
			default:
				return err
			}

			rec := &SingleUseToken{
				ID:        uuid.NewString(),
				UserID:    userID,
				Kind:      kind,
				TokenHash: internal.HashToken(token),
				ExpiresAt: expiresAt.UnixMilli(),
			}
			if prev != nil {
				rec.ID = prev.ID
			}

			encoded, err := encodeSingleUseToken(rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if prev != nil {
					pipe.Del(ctx, s.tokenKey(kind, prev.TokenHash))
				}
				pipe.Set(ctx, owner, encoded, ttl)
				pipe.Set(ctx, s.tokenKey(kind, rec.TokenHash), userID, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			stored = rec
			return nil
		}, owner)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}
		return stored, nil
	}

	return nil, ErrTokenContention
}

// Find resolves a live token value of the given kind. It returns
// ErrTokenNotFound when the value is unknown, superseded or of another kind,
// and ErrTokenRedisUnavailable on transport failures. Expiry is not checked
// here; callers compare ExpiresAt against their own clock.
func (s *SingleUseStore) Find(ctx context.Context, kind Kind, token string) (*SingleUseToken, error) {
	if token == "" || !kind.valid() {
		return nil, ErrTokenNotFound
	}
	hash := internal.HashToken(token)

	userID, err := s.redis.Get(ctx, s.tokenKey(kind, hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	data, err := s.redis.Get(ctx, s.ownerKey(kind, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
	}

	rec, err := decodeSingleUseToken(data)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	if rec.Kind != kind || subtle.ConstantTimeCompare(rec.TokenHash[:], hash[:]) != 1 {
		return nil, ErrTokenNotFound
	}
	return rec, nil
}

// Consume removes rec if it is still the live token for its owner and
// reports whether it did. Of several concurrent callers holding the same
// record exactly one gets true; the rest see the owner key already gone or
// replaced and get false. A record superseded by a regenerated token is not
// consumed, but its stale lookup key is removed. Contended transactions are
// retried up to maxTxRetries times before ErrTokenContention.
func (s *SingleUseStore) Consume(ctx context.Context, rec *SingleUseToken) (bool, error) {
	if rec == nil {
		return false, nil
	}
	owner := s.ownerKey(rec.Kind, rec.UserID)
	lookup := s.tokenKey(rec.Kind, rec.TokenHash)

	for i := 0; i < maxTxRetries; i++ {
		current := false
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			current = false
			data, err := tx.Get(ctx, owner).Bytes()
			switch {
			case err == nil:
				if stored, decErr := decodeSingleUseToken(data); decErr == nil {
					current = subtle.ConstantTimeCompare(stored.TokenHash[:], rec.TokenHash[:]) == 1
				}
			case errors.Is(err, redis.Nil):
			default:
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if current {
					pipe.Del(ctx, owner)
				}
				pipe.Del(ctx, lookup)
				return nil
			})
			return err
		}, owner)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrTokenRedisUnavailable, err)
		}
		return current, nil
	}

	return false, ErrTokenContention
}

func encodeSingleUseToken(rec *SingleUseToken) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(singleUseRecordVersionV1)
	buf.WriteByte(byte(rec.Kind))

	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt); err != nil {
		return nil, err
	}

	if len(rec.ID) > 255 {
		return nil, errors.New("single-use token id too long")
	}
	buf.WriteByte(byte(len(rec.ID)))
	buf.WriteString(rec.ID)

	if len(rec.UserID) > 65535 {
		return nil, errors.New("single-use token user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.UserID)
	buf.Write(rec.TokenHash[:])

	return buf.Bytes(), nil
}

func decodeSingleUseToken(data []byte) (*SingleUseToken, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != singleUseRecordVersionV1 {
		return nil, errors.New("invalid single-use token record version")
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	rec := &SingleUseToken{Kind: Kind(kind)}

	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	rec.ID = string(id)

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	rec.UserID = string(userID)

	if _, err := io.ReadFull(reader, rec.TokenHash[:]); err != nil {
		return nil, err
	}

	return rec, nil
}
