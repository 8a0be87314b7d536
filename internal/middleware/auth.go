package middleware

import (
	"net/http"

	"fridgeio/internal/auth"
	"fridgeio/internal/store"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "fridgeio_session"

// RequireAuth validates the session cookie and populates the request's
// AuthContext. API clients may send the token in the Authorization header
// instead of a cookie.
func RequireAuth(sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.Get(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				Identity:     sess.Identity,
				SessionToken: sess.Token,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const bearer = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(bearer) && h[:len(bearer)] == bearer {
		return h[len(bearer):]
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "authentication required"}`))
}
