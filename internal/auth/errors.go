package auth

import "errors"

// Flow error taxonomy. The HTTP layer maps these to status codes; store and
// cache transport failures pass through wrapped and surface as generic
// internal errors instead.
var (
	// ErrAccountExists means the username or email is already taken by a
	// durable account.
	ErrAccountExists = errors.New("account already exists")
	// ErrRateLimited means the OTP cooldown window is still open.
	ErrRateLimited = errors.New("too many requests, try again later")
	// ErrOTPExpired means the staged payload or reset ticket elapsed or
	// never existed.
	ErrOTPExpired = errors.New("otp expired or not requested")
	// ErrOTPInvalid means the submitted code did not match; the ticket is
	// retained for retry until its TTL elapses.
	ErrOTPInvalid = errors.New("invalid otp")
	// ErrInvalidCredentials covers unknown email and password mismatch on
	// login, indistinguishably.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountUnverified means the account exists but never completed OTP
	// verification.
	ErrAccountUnverified = errors.New("account not verified")
	// ErrUnauthorized covers missing, malformed, or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionExpired means the token verified but no session record
	// exists; the user must fully re-authenticate.
	ErrSessionExpired = errors.New("session expired, log in again")
	// ErrRefreshReuse means a valid-signature refresh token no longer
	// matches the stored hash: an already-superseded token is being
	// replayed.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrUserNotFound means no account exists for the given address.
	ErrUserNotFound = errors.New("user not found")
)
