package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/lawbot/internal/config"
)

var fastArgon2 = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 8, KeyLen: 16}

func TestHashAndVerifyPassword(t *testing.T) {
	enc, err := HashPassword("correct horse", fastArgon2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "argon2id$1$1024$1$"))
	assert.True(t, VerifyPassword("correct horse", enc))
	assert.False(t, VerifyPassword("wrong", enc))

	for _, bad := range []string{"", "bcrypt$x", "argon2id$a$b$c$d$e", "argon2id$1$1024$0$AAAA$AAAA", "argon2id$1$1024$1$!!$AAAA"} {
		assert.False(t, VerifyPassword("correct horse", bad), bad)
	}
}

func TestCheckCredentials(t *testing.T) {
	cfg := config.Config{AdminUsername: "admin", AdminPassword: "plain"}
	assert.True(t, checkCredentials(cfg, "admin", "plain"))
	assert.False(t, checkCredentials(cfg, "admin", "nope"))
	assert.False(t, checkCredentials(cfg, "root", "plain"))

	enc, err := HashPassword("hashed", fastArgon2)
	require.NoError(t, err)
	cfg.AdminPasswordHash = enc
	assert.True(t, checkCredentials(cfg, "admin", "hashed"))
	assert.False(t, checkCredentials(cfg, "admin", "plain"))

	assert.False(t, checkCredentials(config.Config{}, "", ""))
}

func TestSessionManager(t *testing.T) {
	sm := NewSessionManager(config.Config{AppEnv: "prod", AdminSessionSecret: "k1"})
	now := time.Unix(1_700_000_000, 0)
	sm.now = func() time.Time { return now }

	v := sm.CreateSession("ad|min")
	sess, err := sm.ValidateSession(v)
	require.NoError(t, err)
	assert.Equal(t, "ad|min", sess.Username)
	assert.Equal(t, now.Add(24*time.Hour).Unix(), sess.ExpiresAt.Unix())

	other := NewSessionManager(config.Config{AdminSessionSecret: "k2"})
	_, err = other.ValidateSession(v)
	assert.ErrorIs(t, err, errSessionInvalid)

	_, err = sm.ValidateSession(strings.Replace(v, ".", "x.", 1))
	assert.ErrorIs(t, err, errSessionInvalid)
	_, err = sm.ValidateSession("garbage")
	assert.ErrorIs(t, err, errSessionInvalid)

	sm.now = func() time.Time { return now.Add(25 * time.Hour) }
	_, err = sm.ValidateSession(v)
	assert.ErrorIs(t, err, errSessionExpired)

	rec := httptest.NewRecorder()
	sm.SetSessionCookie(rec, v)
	c := rec.Result().Cookies()[0]
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
}

func TestAuthRequired(t *testing.T) {
	sm := NewSessionManager(config.Config{AdminSessionSecret: "k"})
	var user string
	h := sm.AuthRequired(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		s, ok := SessionFrom(r.Context())
		require.True(t, ok)
		user = s.Username
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "forged.sig"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)

	req = httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sm.CreateSession("admin")})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", user)
}
