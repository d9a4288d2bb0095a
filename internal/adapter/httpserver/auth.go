package httpserver

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/fairyhunter13/lawbot/internal/config"
)

// Argon2Params defines parameters for Argon2id password hashing.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params are used by HashPassword when operators generate
// ADMIN_PASSWORD_HASH.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

const sessionCookie = "lawbot_admin"

var (
	errSessionInvalid = errors.New("invalid session")
	errSessionExpired = errors.New("session expired")
)

// HashPassword encodes password as argon2id$iterations$memory$parallelism$salt$hash.
func HashPassword(password string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("op=auth.HashPassword: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		params.Iterations,
		params.Memory,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks password against an encoded argon2id hash.
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := parseUint32(parts[1])
	mem, err2 := parseUint32(parts[2])
	par, err3 := parseUint32(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || par == 0 || par > math.MaxUint8 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	actual := argon2.IDKey([]byte(password), salt, iters, mem, uint8(par), uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

// checkCredentials compares against the configured admin account. The
// argon2 hash wins over the plain password when both are set.
func checkCredentials(cfg config.Config, username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.AdminUsername)) == 1
	var passOK bool
	if cfg.AdminPasswordHash != "" {
		passOK = VerifyPassword(password, cfg.AdminPasswordHash)
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(cfg.AdminPassword)) == 1
	}
	return userOK && passOK && cfg.AdminUsername != ""
}

// SessionData represents an authenticated admin session.
type SessionData struct {
	Username  string
	LoginTime time.Time
	ExpiresAt time.Time
}

// SessionManager issues HMAC-signed session cookies.
type SessionManager struct {
	secret []byte
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a session manager from the admin settings.
func NewSessionManager(cfg config.Config) *SessionManager {
	return &SessionManager{
		secret: []byte(cfg.AdminSessionSecret),
		secure: !cfg.IsDev() && !cfg.IsTest(),
		ttl:    24 * time.Hour,
		now:    time.Now,
	}
}

func (sm *SessionManager) sign(payload string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// CreateSession returns the cookie value for username.
func (sm *SessionManager) CreateSession(username string) string {
	now := sm.now()
	payload := fmt.Sprintf("%s|%d|%d", base64.RawURLEncoding.EncodeToString([]byte(username)), now.Unix(), now.Add(sm.ttl).Unix())
	return payload + "." + sm.sign(payload)
}

// ValidateSession verifies the signature and expiry of a cookie value.
func (sm *SessionManager) ValidateSession(value string) (*SessionData, error) {
	payload, sig, ok := strings.Cut(value, ".")
	if !ok || payload == "" {
		return nil, errSessionInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(sm.sign(payload))) {
		return nil, errSessionInvalid
	}
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return nil, errSessionInvalid
	}
	user, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errSessionInvalid
	}
	login, err1 := strconv.ParseInt(parts[1], 10, 64)
	exp, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, errSessionInvalid
	}
	expiresAt := time.Unix(exp, 0)
	if sm.now().After(expiresAt) {
		return nil, errSessionExpired
	}
	return &SessionData{Username: string(user), LoginTime: time.Unix(login, 0), ExpiresAt: expiresAt}, nil
}

// SetSessionCookie writes the session cookie.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/admin",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sm.ttl / time.Second),
	})
}

// ClearSessionCookie expires the session cookie.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/admin",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

type sessionKey struct{}

// SessionFrom returns the session attached by AuthRequired.
func SessionFrom(ctx context.Context) (*SessionData, bool) {
	s, ok := ctx.Value(sessionKey{}).(*SessionData)
	return s, ok
}

// AuthRequired redirects to the login page unless a valid session cookie is present.
func (sm *SessionManager) AuthRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}
		sess, err := sm.ValidateSession(c.Value)
		if err != nil {
			sm.ClearSessionCookie(w)
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func parseUint32(s string) (uint32, error) {
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return uint32(x), nil
}
