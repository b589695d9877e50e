package session

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/accounts/internal"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")

	// ErrSessionNotFound is returned when no row matches the submitted pair.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned by ReplaceAccessToken when the row's refresh
	// lifetime passed; the script has already deleted it.
	ErrSessionExpired = errors.New("session expired")

	// ErrAccessMismatch is returned in strict mode when another writer replaced
	// the access token between read and update.
	ErrAccessMismatch = errors.New("session access token changed")

	// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
	ErrSessionCorrupt = errors.New("session corrupt")
)

const (
	replaceStatusNotFound    int64 = 0
	replaceStatusExpired     int64 = 1
	replaceStatusMismatch    int64 = 2
	replaceStatusReplaced    int64 = 3
	replaceStatusInvalidBlob int64 = 4
)

const luaSessionHelpers = `
local function read_be64(s, i)
  local b1, b2, b3, b4, b5, b6, b7, b8 = string.byte(s, i, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function to_hex(s)
  return (string.gsub(s, ".", function(c)
    return string.format("%02x", string.byte(c))
  end))
end

local function parse_session(data)
  local version = string.byte(data, 1)
  if version ~= 1 then
    return nil
  end
  local user_len = string.byte(data, 2)
  if not user_len or user_len == 0 then
    return nil
  end
  local access_offset = 3 + user_len
  if #data ~= access_offset + 32 + 32 + 16 - 1 then
    return nil
  end
  local expires_at = read_be64(data, access_offset + 64 + 8)
  if not expires_at then
    return nil
  end
  return {
    access_offset = access_offset,
    access_hash = string.sub(data, access_offset, access_offset + 31),
    expires_at = expires_at
  }
end
`

const replaceAccessScript = luaSessionHelpers + `
local session_key = KEYS[1]
local session_id = ARGV[1]
local expected_hash = ARGV[2]
local next_hash = ARGV[3]
local now_ms = tonumber(ARGV[4])
local strict = ARGV[5] == "1"
local index_prefix = ARGV[6]

local data = redis.call("GET", session_key)
if not data then
  return {0}
end

local parsed = parse_session(data)
if not parsed then
  return {4}
end

local current_index = index_prefix .. to_hex(parsed.access_hash)

if parsed.expires_at <= now_ms then
  redis.call("DEL", session_key)
  redis.call("DEL", current_index)
  return {1}
end

if strict and parsed.access_hash ~= expected_hash then
  return {2}
end

local updated = string.sub(data, 1, parsed.access_offset - 1) .. next_hash .. string.sub(data, parsed.access_offset + 32)
local ttl = redis.call("PTTL", session_key)

redis.call("DEL", current_index)
if ttl > 0 then
  redis.call("SET", session_key, updated, "PX", ttl)
  redis.call("SET", index_prefix .. to_hex(next_hash), session_id, "PX", ttl)
else
  redis.call("SET", session_key, updated)
  redis.call("SET", index_prefix .. to_hex(next_hash), session_id)
end

return {3, updated}
`

const deleteSessionScript = luaSessionHelpers + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local parsed = parse_session(data)
redis.call("DEL", KEYS[1])
if parsed then
  redis.call("DEL", ARGV[1] .. to_hex(parsed.access_hash))
end
return 1
`

var (
	replaceAccessLua = redis.NewScript(replaceAccessScript)
	deleteSessionLua = redis.NewScript(deleteSessionScript)
)

// Store is a Redis-backed session store. Each row is an encoded [Session]
// under <prefix>:<id>, with a secondary index <prefix>:at:<digest> from the
// access digest to the session ID. Store holds no local state, so one
// instance can be shared by any number of goroutines and processes.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] on rdb. prefix sets the Redis key
// namespace and must be shared by every process serving the same sessions.
// NewStore does not contact Redis.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{redis: rdb, prefix: prefix}
}

// Digest hashes a raw token value the way the store indexes it.
func Digest(token string) [32]byte {
	return internal.HashToken(token)
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) indexPrefix() string {
	return s.prefix + ":at:"
}

func (s *Store) accessKey(hash [32]byte) string {
	return s.indexPrefix() + hex.EncodeToString(hash[:])
}

// Save persists sess and its access index with the given TTL. The TTL should
// outlive RefreshExpiresAt so expired rows are still found and removed
// explicitly by the refresh path.
//
// Save rejects a session without an ID, returns the encoder's error for a
// session it cannot encode, and wraps [ErrRedisUnavailable] when the
// transaction fails. Both keys are
// written in one transaction, so concurrent readers never see a row without
// its index.
//
//	Performance: 1 MULTI/EXEC with 2 SETs.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id is required")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.Set(ctx, s.accessKey(sess.AccessHash), sess.ID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session by ID.
//
// Get returns [ErrSessionNotFound] for a missing row, an error wrapping
// [ErrSessionCorrupt] for a row that does not decode, and
// [ErrRedisUnavailable] for transport failures. It never modifies the row.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrSessionCorrupt, err)
	}
	sess.ID = sessionID
	return sess, nil
}

// FindByAccessToken resolves the session currently holding accessToken.
// It returns [ErrSessionNotFound] when the index is missing or points at a
// row whose access token has since been replaced, plus the errors of [Store.Get].
//
//	Performance: 2 Redis GETs.
func (s *Store) FindByAccessToken(ctx context.Context, accessToken string) (*Session, error) {
	hash := Digest(accessToken)
	sessionID, err := s.redis.Get(ctx, s.accessKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// The index may briefly point at a row whose access token moved on.
	if subtle.ConstantTimeCompare(sess.AccessHash[:], hash[:]) != 1 {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// FindByTokens resolves the session matching both accessToken and
// refreshToken exactly. A refresh mismatch is reported as
// [ErrSessionNotFound] so callers cannot tell which half was wrong.
//
//	Performance: 2 Redis GETs.
func (s *Store) FindByTokens(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	sess, err := s.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	refreshHash := Digest(refreshToken)
	if subtle.ConstantTimeCompare(sess.RefreshHash[:], refreshHash[:]) != 1 {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ReplaceAccessToken swaps sess's access token for nextAccessToken in place,
// keeping the row's remaining TTL. With strict set, the update only applies
// if the stored access digest still equals sess.AccessHash.
//
// ReplaceAccessToken returns [ErrSessionNotFound], [ErrSessionExpired] (the
// row is deleted), [ErrAccessMismatch] (strict only), [ErrSessionCorrupt] or
// an error wrapping [ErrRedisUnavailable]. The read, check and write run as
// one script, so of two strict callers racing on the same row only the first
// succeeds.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) ReplaceAccessToken(
	ctx context.Context,
	sess *Session,
	nextAccessToken string,
	now time.Time,
	strict bool,
) (*Session, error) {
	nextHash := Digest(nextAccessToken)
	strictFlag := "0"
	if strict {
		strictFlag = "1"
	}

	result, err := replaceAccessLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.ID)},
		sess.ID,
		sess.AccessHash[:],
		nextHash[:],
		now.UnixMilli(),
		strictFlag,
		s.indexPrefix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid replace script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid replace script status", ErrRedisUnavailable)
	}

	switch code {
	case replaceStatusNotFound:
		return nil, ErrSessionNotFound
	case replaceStatusExpired:
		return nil, ErrSessionExpired
	case replaceStatusMismatch:
		return nil, ErrAccessMismatch
	case replaceStatusInvalidBlob:
		return nil, ErrSessionCorrupt
	case replaceStatusReplaced:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated session payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid updated session payload", ErrRedisUnavailable)
		}
		updated, err := Decode(blob)
		if err != nil {
			return nil, errors.Join(ErrSessionCorrupt, err)
		}
		updated.ID = sess.ID
		return updated, nil
	default:
		return nil, fmt.Errorf("%w: unknown replace script status", ErrRedisUnavailable)
	}
}

// Delete removes the session row and its access index. It reports whether a
// row existed; deleting a missing row is not an error. Transport failures
// wrap [ErrRedisUnavailable]. Concurrent deletes of one row report true to
// exactly one caller.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, s.indexPrefix()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// DeleteByTokens removes the session holding accessToken. When refreshToken
// is non-empty it must match as well. An unknown pair is (false, nil); other
// lookup errors are returned as from [Store.FindByTokens].
func (s *Store) DeleteByTokens(ctx context.Context, accessToken, refreshToken string) (bool, error) {
	var (
		sess *Session
		err  error
	)
	if refreshToken == "" {
		sess, err = s.FindByAccessToken(ctx, accessToken)
	} else {
		sess, err = s.FindByTokens(ctx, accessToken, refreshToken)
	}
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.Delete(ctx, sess.ID)
}

// Ping checks Redis connectivity and reports the round trip. A failure wraps
// [ErrRedisUnavailable] and still reports the elapsed time.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
