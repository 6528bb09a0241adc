// Package httpapi exposes the auth and user flows over HTTP. Tokens travel
// exclusively as httpOnly cookies; response bodies carry only public user
// projections and status messages.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/chattrix/chattrix/internal/auth"
	"github.com/chattrix/chattrix/internal/store"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30
	minPasswordLen = 8
)

// Server holds the handler dependencies.
type Server struct {
	auth          *auth.Service
	users         store.UserRepository
	logger        *slog.Logger
	secureCookies bool
}

// NewServer builds the HTTP surface over the auth service.
func NewServer(authSvc *auth.Service, users store.UserRepository, logger *slog.Logger, secureCookies bool) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{auth: authSvc, users: users, logger: logger, secureCookies: secureCookies}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"password"`
}

type updateProfileRequest struct {
	Avatar string `json:"avatar"`
	Bio    string `json:"bio"`
}

// handleRegister stages a registration and mails the OTP. No account exists
// until the OTP is verified.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if n := utf8.RuneCountInString(req.Username); n < minUsernameLen || n > maxUsernameLen {
		s.writeError(w, http.StatusBadRequest, "username must be 3-30 characters")
		return
	}
	if !validEmail(req.Email) {
		s.writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLen {
		s.writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := s.auth.StageRegistration(r.Context(), req.Username, req.Email, req.Password); err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "OTP sent to your email",
	})
}

// handleVerifyOTP finishes registration: the account becomes durable and the
// client is logged in immediately.
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.OTP == "" {
		s.writeError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	user, session, err := s.auth.VerifyRegistration(r.Context(), req.Email, req.OTP)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	s.setSessionCookies(w, session)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"message": "account created",
		"user":    user.Public(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	s.setSessionCookies(w, session)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "logged in",
		"user":    user.Public(),
	})
}

// handleLogout revokes the session record and clears cookies. It requires a
// valid access cookie; the guard has already attached the claims.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := s.auth.Logout(r.Context(), claims.UserID); err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	s.clearSessionCookies(w)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// handleRefresh exchanges a valid refresh cookie for a fresh access cookie.
// The refresh token itself is not rotated.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	access, err := s.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshReuse) || errors.Is(err, auth.ErrSessionExpired) {
			s.clearSessionCookies(w)
		}
		s.writeFlowError(w, r, err)
		return
	}

	s.setAccessCookie(w, access)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "token refreshed"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validEmail(req.Email) {
		s.writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	if err := s.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "reset OTP sent to your email",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.OTP == "" {
		s.writeError(w, http.StatusBadRequest, "email and otp are required")
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		s.writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := s.auth.ConfirmPasswordReset(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// handleMe returns the authenticated user's own profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := s.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.writeInternalError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, user.Public())
}

// handleUpdateMe updates the caller's avatar and bio. Empty fields are left
// unchanged.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Avatar == "" && req.Bio == "" {
		s.writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if err := s.users.UpdateProfile(r.Context(), claims.UserID, req.Avatar, req.Bio); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.writeInternalError(w, r, err)
		return
	}

	user, err := s.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user.Public())
}

// handleListUsers returns the public directory of accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}

	out := make([]any, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	s.writeJSON(w, http.StatusOK, out)
}

// writeFlowError maps the auth sentinel errors onto HTTP statuses. Unknown
// errors are logged and surfaced as an opaque 500.
func (s *Server) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrAccountExists):
		s.writeError(w, http.StatusConflict, "account with this username or email already exists")
	case errors.Is(err, auth.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "please wait before requesting another OTP")
	case errors.Is(err, auth.ErrOTPExpired):
		s.writeError(w, http.StatusBadRequest, "OTP expired, request a new one")
	case errors.Is(err, auth.ErrOTPInvalid):
		s.writeError(w, http.StatusBadRequest, "incorrect OTP")
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrAccountUnverified):
		s.writeError(w, http.StatusForbidden, "account is not verified")
	case errors.Is(err, auth.ErrUnauthorized):
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrSessionExpired):
		s.writeError(w, http.StatusUnauthorized, "session expired, log in again")
	case errors.Is(err, auth.ErrRefreshReuse):
		s.writeError(w, http.StatusForbidden, "session revoked")
	case errors.Is(err, auth.ErrUserNotFound):
		s.writeError(w, http.StatusNotFound, "no account with this email")
	default:
		s.writeInternalError(w, r, err)
	}
}

func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", slog.Any("error", err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func validEmail(address string) bool {
	if address == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}
