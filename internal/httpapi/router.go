package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Router assembles the full HTTP surface: auth flows under /api/auth and the
// guarded user endpoints under /api/users.
func (s *Server) Router(accessLog io.Writer, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	authRoutes := r.PathPrefix("/api/auth").Subrouter()
	authRoutes.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	authRoutes.HandleFunc("/verify-otp", s.handleVerifyOTP).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	authRoutes.Handle("/logout", s.RequireAuth(http.HandlerFunc(s.handleLogout))).Methods(http.MethodGet)
	authRoutes.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	authRoutes.HandleFunc("/forgotpassword", s.handleForgotPassword).Methods(http.MethodPost)
	authRoutes.HandleFunc("/verify-forgotpassword-otp", s.handleResetPassword).Methods(http.MethodPost)

	userRoutes := r.PathPrefix("/api/users").Subrouter()
	userRoutes.Use(s.RequireAuth)
	userRoutes.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	userRoutes.HandleFunc("/me", s.handleUpdateMe).Methods(http.MethodPatch)
	userRoutes.HandleFunc("", s.handleListUsers).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions,
		}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowCredentials(),
	)

	return handlers.LoggingHandler(accessLog, cors(r))
}
