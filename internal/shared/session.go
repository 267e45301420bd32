package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "atlas_session"

var (
	// ErrNoSession occurs when a request carries no valid session.
	ErrNoSession = errors.New("shared: no session")
	// ErrSessionExpired occurs when the session key is gone from redis.
	ErrSessionExpired = errors.New("shared: session expired")
)

// SessionStore resolves acting users from signed session cookies backed by
// redis. Authentication itself happens elsewhere; the store only maps a
// previously issued token to the user who owns it.
type SessionStore struct {
	client *redis.Client
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, secret string, ttl time.Duration, secure bool) *SessionStore {
	return &SessionStore{client: client, secret: []byte(secret), ttl: ttl, secure: secure}
}

// Issue creates a session for the given user and sets the cookie.
func (s *SessionStore) Issue(ctx context.Context, w http.ResponseWriter, actorID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(token), strconv.FormatInt(actorID, 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("shared: store session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.sign(token),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})
	return token, nil
}

// Resolve returns the acting user for the request's session cookie.
func (s *SessionStore) Resolve(ctx context.Context, r *http.Request) (int64, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return 0, ErrNoSession
	}
	token, err := s.verify(cookie.Value)
	if err != nil {
		return 0, ErrNoSession
	}
	raw, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrSessionExpired
		}
		return 0, fmt.Errorf("shared: load session: %w", err)
	}
	actorID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrNoSession
	}
	// sliding expiry
	_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	return actorID, nil
}

// Revoke deletes the session behind the token.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *SessionStore) key(token string) string {
	return "session:" + token
}

func (s *SessionStore) sign(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return token + "." + hex.EncodeToString(mac.Sum(nil))
}

func (s *SessionStore) verify(value string) (string, error) {
	for i := len(value) - 1; i >= 0; i-- {
		if value[i] != '.' {
			continue
		}
		token, sig := value[:i], value[i+1:]
		mac := hmac.New(sha256.New, s.secret)
		mac.Write([]byte(token))
		if hmac.Equal([]byte(sig), []byte(hex.EncodeToString(mac.Sum(nil)))) {
			return token, nil
		}
		break
	}
	return "", ErrNoSession
}
