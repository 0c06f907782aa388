package auth

import "net/http"

// RequireManagerOrAdmin rejects requests whose caller is not a manager or
// admin. Used on queue-wide listing and manual assignment endpoints.
func RequireManagerOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if claims.Role != "admin" && claims.Role != "manager" {
			http.Error(w, "Forbidden: insufficient role", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAgent rejects callers below agent role. Viewers can read but never
// act on the queue.
func RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		switch claims.Role {
		case "admin", "manager", "agent":
			next.ServeHTTP(w, r)
		default:
			http.Error(w, "Forbidden: insufficient role", http.StatusForbidden)
		}
	})
}
