package httpapi

import (
	"net/http"
	"time"

	"github.com/chattrix/chattrix/internal/auth"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// setSessionCookies writes the token pair as httpOnly cookies. SameSite is
// Strict so the tokens never ride along on cross-site requests; Secure is
// flipped on in production only so local development over plain HTTP works.
func (s *Server) setSessionCookies(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    session.AccessToken,
		Path:     "/",
		MaxAge:   int(s.auth.AccessTTL() / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    session.RefreshToken,
		Path:     "/",
		MaxAge:   int(s.auth.RefreshTTL() / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// setAccessCookie refreshes only the access cookie, leaving the refresh
// cookie untouched.
func (s *Server) setAccessCookie(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(s.auth.AccessTTL() / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookies expires both cookies on the client.
func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
