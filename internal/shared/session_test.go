package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, "test-secret", time.Hour, false), mr
}

func TestSessionIssueAndResolve(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	_, err := store.Issue(ctx, rec, 42)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookie, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])

	actorID, err := store.Resolve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(42), actorID)
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	_, err := store.Issue(ctx, rec, 42)
	require.NoError(t, err)

	cookie := rec.Result().Cookies()[0]
	cookie.Value = "forged." + cookie.Value

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	_, err = store.Resolve(ctx, req)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSessionExpired(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	token, err := store.Issue(ctx, rec, 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])

	_, err = store.Resolve(ctx, req)
	require.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, store.Revoke(ctx, token))
}

func TestNoCookie(t *testing.T) {
	store, _ := newTestStore(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := store.Resolve(context.Background(), req)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestActorContext(t *testing.T) {
	ctx := ContextWithActor(context.Background(), 99)
	require.Equal(t, int64(99), ActorFromContext(ctx))
	require.Zero(t, ActorFromContext(context.Background()))
}
