package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie.
const CookieName = "qid"

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager ties the session store to the session cookie. The cookie carries
// an HS256 token naming the session; the store stays authoritative.
type Manager struct {
	store  SessionStore
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewManager(store SessionStore, secret []byte, ttl time.Duration, secure bool) *Manager {
	return &Manager{store: store, secret: secret, ttl: ttl, secure: secure}
}

func (m *Manager) sign(sid string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	return token.SignedString(m.secret)
}

func (m *Manager) parse(raw string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if claims.SessionID == "" {
		return "", ErrNoSession
	}
	return claims.SessionID, nil
}

// Login opens a session for userID and sets the cookie.
func (m *Manager) Login(c *gin.Context, userID int) error {
	sid, err := m.store.Create(c.Request.Context(), userID)
	if err != nil {
		return err
	}
	token, err := m.sign(sid, time.Now())
	if err != nil {
		return fmt.Errorf("signing session cookie: %w", err)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(m.ttl.Seconds()), "/", "", m.secure, true)
	return nil
}

// Identify returns the user behind the request's session cookie, or
// ErrNoSession.
func (m *Manager) Identify(c *gin.Context) (int, error) {
	sid, err := m.sessionID(c)
	if err != nil {
		return 0, err
	}
	return m.store.UserID(c.Request.Context(), sid)
}

// Logout destroys the session and clears the cookie.
func (m *Manager) Logout(c *gin.Context) error {
	sid, err := m.sessionID(c)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", m.secure, true)
	if err != nil {
		return err
	}
	return m.store.Destroy(c.Request.Context(), sid)
}

func (m *Manager) sessionID(c *gin.Context) (string, error) {
	raw, err := c.Cookie(CookieName)
	if err != nil || raw == "" {
		return "", ErrNoSession
	}
	return m.parse(raw)
}
