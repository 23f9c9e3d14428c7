package fleet

import (
	"net/http"
	"strings"
)

// RequireBearer wraps next with fleet bearer-token auth: requests
// without a valid "Authorization: Bearer <token>" header are rejected
// with 401 before next ever runs, so a rejected poll cannot have any
// side effect (§8 ADD 9).
func RequireBearer(verifier *Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := verifier.Verify(strings.TrimPrefix(header, prefix)); err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
