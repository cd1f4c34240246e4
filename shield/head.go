package shield

import "net/http"

// HeadToGet lets monitoring probes send HEAD to routes registered with
// r.Get(). net/http drops the body of HEAD responses.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
