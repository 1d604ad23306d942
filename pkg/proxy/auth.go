package proxy

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

func bearerToken(h http.Header) string {
	auth := h.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func keyAllowed(token string, keys []string) bool {
	if token == "" {
		return false
	}
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

// requestKey prefers the Authorization header and falls back to ?key= for
// browser websocket clients that cannot set headers.
func requestKey(r *http.Request) string {
	if tok := bearerToken(r.Header); tok != "" {
		return tok
	}
	return strings.TrimSpace(r.URL.Query().Get("key"))
}

// authAPIMiddleware is a no-op when no incoming keys are configured.
func (s *Server) authAPIMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys := s.cfg.IncomingAPIKeys
		if len(keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !keyAllowed(requestKey(r), keys) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
