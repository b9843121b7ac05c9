package auth

import (
	"net/http"
	"strings"
	"time"
)

const CookieName = "jwt"

// TokenFromRequest returns the session token from the jwt cookie, the token
// header, a bearer Authorization header or the token query parameter, in
// that order.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// SetSessionCookie stores the token of resp in an HttpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, resp LoginResponse, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    resp.Token,
		Path:     "/",
		Expires:  time.Unix(resp.TokenExpiry, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
