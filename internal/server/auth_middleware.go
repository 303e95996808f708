package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authenticator checks a shared bearer token. An empty token disables the check.
type Authenticator struct {
	token []byte
}

func NewAuthenticator(token string) *Authenticator {
	return &Authenticator{token: []byte(token)}
}

func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.token) > 0
}

// Authenticate returns ErrUnauthorized unless token matches.
func (a *Authenticator) Authenticate(token string) error {
	if !a.Enabled() {
		return nil
	}
	if subtle.ConstantTimeCompare(a.token, []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// tokenFromRequest reads "Authorization: Bearer <token>", falling back to the token
// query parameter for websocket clients that cannot set headers.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects requests without a valid token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authenticate(tokenFromRequest(r)); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
