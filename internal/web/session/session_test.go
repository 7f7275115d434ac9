package session

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/showroom-auto/showroom/internal/web/auth"
	webcontext "github.com/showroom-auto/showroom/internal/web/context"
)

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	config := DefaultConfig()
	config.Secure = false
	return NewManager(config, store, nil)
}

// client replays cookies between requests like a browser
type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, h http.Handler) *client {
	return &client{t: t, handler: h, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func testPrincipal() webcontext.Principal {
	return webcontext.Principal{UserID: uuid.New(), Email: "pat@dealer.test", Admin: true}
}

func TestAnonymousSessionNotPersisted(t *testing.T) {
	store := NewMemoryStore(0)
	m := newTestManager(t, store)
	c := newClient(t, m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, FromContext(r.Context()))
		_, _ = w.Write([]byte("hello"))
	})))

	rec := c.get("/")
	assert.Equal(t, "hello", rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 0, store.Len())
}

func TestSignInAndRenew(t *testing.T) {
	store := NewMemoryStore(0)
	m := newTestManager(t, store)
	principal := testPrincipal()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CSRFToken(r.Context())))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, m.Renew(r.Context()))
		FromContext(r.Context()).SignIn(principal)
		Success(r.Context(), "Welcome back")
		http.Redirect(w, r, "/whoami", http.StatusSeeOther)
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.CurrentPrincipal(r.Context())
		if !ok {
			http.Error(w, "anonymous", http.StatusUnauthorized)
			return
		}
		flashes := Flashes(r.Context())
		msg := p.Email
		if len(flashes) > 0 {
			msg += " " + flashes[0].Message
		}
		_, _ = w.Write([]byte(msg))
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, m.Destroy(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	c := newClient(t, m.Middleware(mux))

	token := c.get("/token").Body.String()
	require.NotEmpty(t, token)
	before := c.cookies["showroom_session"]
	require.NotNil(t, before)
	assert.True(t, before.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, before.SameSite)

	c.get("/login")
	after := c.cookies["showroom_session"]
	require.NotNil(t, after)
	assert.NotEqual(t, before.Value, after.Value, "session id must change on sign in")

	_, err := store.Get(t.Context(), before.Value)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess, err := store.Get(t.Context(), after.Value)
	require.NoError(t, err)
	assert.NotEqual(t, token, sess.CSRFToken, "csrf token must change on sign in")

	assert.Equal(t, "pat@dealer.test Welcome back", c.get("/whoami").Body.String())
	assert.Equal(t, "pat@dealer.test", c.get("/whoami").Body.String(), "flashes are shown once")

	c.get("/logout")
	assert.Empty(t, c.cookies)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, http.StatusUnauthorized, c.get("/whoami").Code)
}

func TestCSRF(t *testing.T) {
	m := newTestManager(t, NewMemoryStore(0))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /form", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CSRFToken(r.Context())))
	})
	mux.HandleFunc("POST /form", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("accepted " + r.PostFormValue("name")))
	})
	c := newClient(t, m.Middleware(m.CSRF(CSRFConfig{})(mux)))

	token := c.get("/form").Body.String()

	rec := c.post("/form", url.Values{"name": {"Ada"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.post("/form", url.Values{"name": {"Ada"}, "csrf_token": {"forged"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.post("/form", url.Values{"name": {"Ada"}, "csrf_token": {token}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accepted Ada", rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.Header.Set("X-CSRF-Token", token)
	assert.Equal(t, http.StatusOK, c.do(req).Code)
}

func TestCSRFWithoutSessionCookie(t *testing.T) {
	m := newTestManager(t, NewMemoryStore(0))
	h := m.Middleware(m.CSRF(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader("csrf_token=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(0)
	sess, err := newSession(time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Set(t.Context(), sess, -time.Second))
	_, err = store.Get(t.Context(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Set(t.Context(), sess, -time.Second))
	store.sweep(time.Now())
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(0)
	sess, err := newSession(time.Hour)
	require.NoError(t, err)
	sess.AddFlash(FlashInfo, "saved")
	require.NoError(t, store.Set(t.Context(), sess, time.Hour))

	loaded, err := store.Get(t.Context(), sess.ID)
	require.NoError(t, err)
	loaded.PopFlashes()

	again, err := store.Get(t.Context(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, again.Flashes, 1)
}

func TestMemoryStoreClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisStore(rdb, "")
	sess, err := newSession(time.Hour)
	require.NoError(t, err)
	sess.SignIn(testPrincipal())
	sess.AddFlash(FlashSuccess, "Car saved")

	require.NoError(t, store.Set(t.Context(), sess, time.Hour))
	assert.True(t, mr.Exists(DefaultKeyPrefix+sess.ID))
	assert.Equal(t, time.Hour, mr.TTL(DefaultKeyPrefix+sess.ID))

	loaded, err := store.Get(t.Context(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, loaded.UserID)
	assert.True(t, loaded.Admin)
	assert.Equal(t, []Flash{{Kind: FlashSuccess, Message: "Car saved"}}, loaded.Flashes)

	require.NoError(t, store.Delete(t.Context(), sess.ID))
	_, err = store.Get(t.Context(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set(DefaultKeyPrefix+"bad", "{not json"))
	_, err := NewRedisStore(rdb, "").Get(t.Context(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
