package shield

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// BasicAuth returns middleware enforcing HTTP basic auth against one user
// whose password is stored as a bcrypt hash. An empty user disables it.
func BasicAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if user == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="scraper"`)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
