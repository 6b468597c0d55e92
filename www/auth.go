package www

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"robofleet/apperr"
)

const apiKeyHeader = "X-API-Key"

func hashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(hash), err
}

func checkAPIKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// apiKeyFrom reads the key from X-API-Key or an "Api-Key" authorization.
func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get(apiKeyHeader); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Api-Key ") {
		return strings.TrimPrefix(auth, "Api-Key ")
	}
	return ""
}

// requireAPIKey guards mutating routes. With no hash configured every
// request passes.
func (h *Handlers) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := apiKeyFrom(r)
		if key == "" {
			h.fail(w, r, apperr.Unauthorized("Authentication credentials were not provided."))
			return
		}
		if !checkAPIKey(h.apiKeyHash, key) {
			h.fail(w, r, apperr.Unauthorized("Invalid API key."))
			return
		}
		next.ServeHTTP(w, r)
	})
}
