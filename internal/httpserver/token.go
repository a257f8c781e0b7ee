// internal/httpserver/token.go
//
// Session tokens.
//
// A client is bound to one game session by an HS256 JWT whose subject is the
// session id. The token travels in the game-session cookie (set by
// POST /sessions and POST /attach-session) or as "Authorization: Bearer".

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieName = "game-session"

var errNoToken = errors.New("no session token")

type tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newTokens(secret string, ttl time.Duration) tokens {
	if secret == "" {
		secret = "dev_secret_change_me"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// sign issues a token for sessionID.
func (t tokens) sign(sessionID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	ss, err := tok.SignedString(t.secret)
	return ss, exp, err
}

// parse validates raw and returns the session id it carries.
func (t tokens) parse(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no session")
	}
	return claims.Subject, nil
}

// bearerOrCookie extracts a token from the Authorization header or the session cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// setSessionCookie writes the token cookie.
func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, exp time.Time) {
	secure := r.TLS != nil
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// ---------------------------- session middleware ----------------------------

type ctxSessionKey struct{}

// requireSession rejects requests without a valid token and stores the
// session id in the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerOrCookie(r)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: errNoToken.Error()})
			return
		}
		id, err := s.tokens.parse(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "invalid session token"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxSessionKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(ctxSessionKey{}).(string)
	return id
}

// issue signs a token for id, sets the cookie and returns the token.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, id string) (string, error) {
	tok, exp, err := s.tokens.sign(id)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	setSessionCookie(w, r, tok, exp)
	return tok, nil
}
