package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// sessionTTL matches the original storefront's 30 day session lifetime.
const sessionTTL = 30 * 24 * time.Hour

// CustomerSession is the server-side state for one browser session.
// Verified=false means the identity was claimed to start a purchase but has
// not been payment-confirmed, and grants no content access.
type CustomerSession struct {
	Identity string `json:"identity"`
	Verified bool   `json:"verified"`
}

// SessionStore persists customer sessions keyed by an opaque session id. The
// zero-value session stands for an absent one.
type SessionStore interface {
	Get(ctx context.Context, sid string) (CustomerSession, error)
	Put(ctx context.Context, sid string, sess CustomerSession) error
	Clear(ctx context.Context, sid string) error
}

// RedisSessionStore keeps sessions in redis under a session: prefix.
type RedisSessionStore struct {
	rdb *redis.Client
}

// NewRedisSessionStore connects to redis and verifies the connection.
func NewRedisSessionStore(addr, password string, db int) (*RedisSessionStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisSessionStore{rdb: rdb}, nil
}

// Close closes the underlying redis connection.
func (s *RedisSessionStore) Close() error {
	return s.rdb.Close()
}

func sessionKey(sid string) string {
	return "session:" + sid
}

func (s *RedisSessionStore) Get(ctx context.Context, sid string) (CustomerSession, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return CustomerSession{}, nil
	}
	if err != nil {
		return CustomerSession{}, err
	}

	var sess CustomerSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return CustomerSession{}, err
	}
	return sess, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, sid string, sess CustomerSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(sid), raw, sessionTTL).Err()
}

func (s *RedisSessionStore) Clear(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, sessionKey(sid)).Err()
}

// SessionService implements the per-session state machine
// ANONYMOUS -> CLAIMED -> VERIFIED over a SessionStore.
type SessionService struct {
	store SessionStore
}

func NewSessionService(store SessionStore) *SessionService {
	return &SessionService{store: store}
}

// Current returns the session state for sid.
func (s *SessionService) Current(ctx context.Context, sid string) (CustomerSession, error) {
	return s.store.Get(ctx, sid)
}

// Claim records the identity starting a purchase. Switching to a different
// identity drops any verified flag the session held, so nothing leaks between
// identities sharing a browser.
func (s *SessionService) Claim(ctx context.Context, sid, identity string) error {
	if identity == "" {
		return &ValidationError{Field: "customer_identity", Reason: "must not be empty"}
	}

	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return err
	}
	if sess.Identity != identity {
		sess.Verified = false
	}
	sess.Identity = identity
	return s.store.Put(ctx, sid, sess)
}

// Verify promotes the session to VERIFIED, but only for the identity it
// currently claims.
func (s *SessionService) Verify(ctx context.Context, sid, identity string) error {
	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return err
	}
	if sess.Identity != identity {
		return &AuthorizationError{Reason: "session identity mismatch"}
	}
	sess.Verified = true
	return s.store.Put(ctx, sid, sess)
}

// CancelClaim disengages an unverified claim. A VERIFIED session is never
// downgraded, and the purchase attempt itself is untouched.
func (s *SessionService) CancelClaim(ctx context.Context, sid string) error {
	sess, err := s.store.Get(ctx, sid)
	if err != nil {
		return err
	}
	if sess.Verified {
		return nil
	}
	return s.store.Clear(ctx, sid)
}
