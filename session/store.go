package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned for unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session passed its absolute expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRevoked is returned for a session revoked by logout or reuse detection.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrRefreshReuse is returned when a rotated secret is presented again.
	// The session is revoked as a side effect.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRevoked  int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusReused   int64 = 3
	rotateStatusRotated  int64 = 4
)

const rotateRefreshScript = `
local session_key = KEYS[1]
local user_key = KEYS[2]
local session_id = ARGV[1]
local provided_hash = ARGV[2]
local next_hash = ARGV[3]
local now_ms = tonumber(ARGV[4])

local data = redis.call("HMGET", session_key, "rh", "exp", "revoked")
if not data[1] then
  return {0}
end
if data[3] == "1" then
  return {1}
end
if tonumber(data[2]) <= now_ms then
  redis.call("DEL", session_key)
  redis.call("SREM", user_key, session_id)
  return {2}
end
if data[1] ~= provided_hash then
  redis.call("HSET", session_key, "revoked", "1")
  redis.call("SREM", user_key, session_id)
  return {3}
end

redis.call("HSET", session_key, "rh", next_hash)
return {4}
`

const revokeSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("SREM", KEYS[2], ARGV[1])
  return 0
end
local was = redis.call("HGET", KEYS[1], "revoked")
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("SREM", KEYS[2], ARGV[1])
if was == "1" then
  return 0
end
return 1
`

var (
	rotateRefreshLua = redis.NewScript(rotateRefreshScript)
	revokeSessionLua = redis.NewScript(revokeSessionScript)
)

// Store persists refresh sessions.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store]. An empty prefix defaults to "as".
func NewStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "as"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{redis: redisClient, prefix: prefix, now: now}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// Save writes sess and indexes it under its user. The Redis TTL matches
// ExpiresAt.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SessionID == "" || sess.UserID == "" {
		return errors.New("session requires id and user")
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}

	key := s.key(sess.SessionID)
	userKey := s.userKey(sess.UserID)
	revoked := "0"
	if sess.Revoked {
		revoked = "1"
	}
	mfa := "0"
	if sess.MFA {
		mfa = "1"
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"uid", sess.UserID,
			"roles", strings.Join(sess.Roles, ","),
			"fp", sess.Fingerprint,
			"mfa", mfa,
			"rh", hex.EncodeToString(sess.RefreshHash[:]),
			"revoked", revoked,
			"created", strconv.FormatInt(sess.CreatedAt.UnixMilli(), 10),
			"exp", strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.PExpire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the stored session, including revoked ones.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	vals, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) == 0 {
		return nil, ErrSessionNotFound
	}
	return decode(sessionID, vals)
}

// Validate returns the session when it exists, is not revoked and has not expired.
func (s *Store) Validate(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Revoked {
		return nil, ErrSessionRevoked
	}
	if sess.Expired(s.now()) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Rotate replaces the refresh hash when providedHash is current. See the
// package documentation for the failure cases.
func (s *Store) Rotate(ctx context.Context, sessionID string, providedHash, nextHash [32]byte) (*Session, error) {
	// The owner is needed for the index key; a missing session short-circuits.
	uid, err := s.redis.HGet(ctx, s.key(sessionID), "uid").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	res, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.userKey(uid)},
		sessionID,
		hex.EncodeToString(providedHash[:]),
		hex.EncodeToString(nextHash[:]),
		strconv.FormatInt(s.now().UnixMilli(), 10),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate reply", ErrRedisUnavailable)
	}

	switch res[0] {
	case rotateStatusRotated:
		return s.Get(ctx, sessionID)
	case rotateStatusNotFound:
		return nil, ErrSessionNotFound
	case rotateStatusRevoked:
		return nil, ErrSessionRevoked
	case rotateStatusExpired:
		return nil, ErrSessionExpired
	case rotateStatusReused:
		return nil, ErrRefreshReuse
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, res[0])
	}
}

// Revoke marks the session revoked. It reports whether this call changed it.
func (s *Store) Revoke(ctx context.Context, sessionID string) (bool, error) {
	uid, err := s.redis.HGet(ctx, s.key(sessionID), "uid").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	changed, err := revokeSessionLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.userKey(uid)}, sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return changed == 1, nil
}

// RevokeAll revokes every indexed session of userID and returns how many
// changed state. Sessions created concurrently with the call may survive.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, sid := range ids {
		changed, err := revokeSessionLua.Run(ctx, s.redis, []string{s.key(sid), userKey}, sid).Int64()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		revoked += int(changed)
	}
	return revoked, nil
}

// ActiveSessionIDs lists indexed sessions of userID.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

func decode(sessionID string, vals map[string]string) (*Session, error) {
	sess := &Session{
		SessionID:   sessionID,
		UserID:      vals["uid"],
		Fingerprint: vals["fp"],
		MFA:         vals["mfa"] == "1",
		Revoked:     vals["revoked"] == "1",
	}
	if roles := vals["roles"]; roles != "" {
		sess.Roles = strings.Split(roles, ",")
	}

	raw, err := hex.DecodeString(vals["rh"])
	if err != nil || len(raw) != len(sess.RefreshHash) {
		return nil, fmt.Errorf("session %s: corrupt refresh hash", sessionID)
	}
	copy(sess.RefreshHash[:], raw)

	created, err := strconv.ParseInt(vals["created"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session %s: corrupt created", sessionID)
	}
	exp, err := strconv.ParseInt(vals["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session %s: corrupt exp", sessionID)
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.ExpiresAt = time.UnixMilli(exp).UTC()
	return sess, nil
}
