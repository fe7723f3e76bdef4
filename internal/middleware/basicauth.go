package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuthMiddleware protects operational endpoints (metrics scrape,
// content ingest) with HTTP basic authentication.
type BasicAuthMiddleware struct {
	username string
	password string
	realm    string
	enabled  bool
}

// NewBasicAuthMiddleware creates a basic-auth middleware for the given
// realm. If both username and password are empty, authentication is
// disabled and requests pass through.
func NewBasicAuthMiddleware(username, password, realm string) *BasicAuthMiddleware {
	return &BasicAuthMiddleware{
		username: username,
		password: password,
		realm:    realm,
		enabled:  username != "" || password != "",
	}
}

// Handler returns middleware that requires basic authentication.
func (m *BasicAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			m.unauthorized(w)
			return
		}

		// Constant-time comparison to prevent timing attacks.
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1
		if !userMatch || !passMatch {
			m.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *BasicAuthMiddleware) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+m.realm+`"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
