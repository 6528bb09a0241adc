// Package auth implements the account and session flows: OTP-gated
// registration staging, verification, login, logout, refresh, and OTP-gated
// password reset.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/chattrix/chattrix/internal/cache"
	"github.com/chattrix/chattrix/internal/mailer"
	"github.com/chattrix/chattrix/internal/models"
	"github.com/chattrix/chattrix/internal/otp"
	"github.com/chattrix/chattrix/internal/rate"
	"github.com/chattrix/chattrix/internal/store"
	"github.com/chattrix/chattrix/internal/token"
)

// MailQueue is the asynchronous email collaborator. Enqueue failures are
// logged, never surfaced to the caller as flow failures.
type MailQueue interface {
	Enqueue(ctx context.Context, msg mailer.Message) error
}

// Hasher is the password hashing collaborator.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Config carries the flow TTLs.
type Config struct {
	OTPTTL      time.Duration // staged registrations and reset tickets
	CooldownTTL time.Duration // rate-limit markers
}

// Session is an issued token pair. Raw tokens only ever travel to the client
// as cookies.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// Service coordinates the durable user store, the ephemeral cache, and the
// token manager. Safe for concurrent use; flows for the same email or
// account are not serialized (TTL expiry self-heals partial state).
type Service struct {
	cfg     Config
	users   store.UserRepository
	cache   *cache.Store
	limiter *rate.Limiter
	tokens  *token.Manager
	hasher  Hasher
	mail    MailQueue
	logger  *slog.Logger
}

// NewService wires the flow dependencies.
func NewService(
	cfg Config,
	users store.UserRepository,
	cacheStore *cache.Store,
	limiter *rate.Limiter,
	tokens *token.Manager,
	hasher Hasher,
	mail MailQueue,
	logger *slog.Logger,
) *Service {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.CooldownTTL <= 0 {
		cfg.CooldownTTL = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		users:   users,
		cache:   cacheStore,
		limiter: limiter,
		tokens:  tokens,
		hasher:  hasher,
		mail:    mail,
		logger:  logger,
	}
}

// StageRegistration caches a not-yet-durable account under register:<email>
// and mails an OTP. The raw password is staged unhashed; hashing happens
// only when verification succeeds, so an abandoned registration never
// persists a hash.
func (s *Service) StageRegistration(ctx context.Context, username, email, rawPassword string) error {
	email = normalizeEmail(email)

	taken, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return err
	}
	if taken {
		return ErrAccountExists
	}

	if err := s.limiter.Check(ctx, cache.RegistrationCooldownKey(email)); err != nil {
		if errors.Is(err, rate.ErrCooldown) {
			return ErrRateLimited
		}
		return err
	}

	code, err := otp.New()
	if err != nil {
		return err
	}

	staged := cache.StagedRegistration{
		Username: username,
		Email:    email,
		Password: rawPassword,
		OTP:      code,
	}
	if err := s.cache.SaveStagedRegistration(ctx, staged, s.cfg.OTPTTL); err != nil {
		return err
	}
	if err := s.limiter.Arm(ctx, cache.RegistrationCooldownKey(email), s.cfg.CooldownTTL); err != nil {
		return err
	}

	if err := s.mail.Enqueue(ctx, mailer.RegistrationOTP(email, username, code)); err != nil {
		s.logger.Warn("registration otp mail enqueue failed", "email", email, "err", err)
	}
	return nil
}

// VerifyRegistration consumes the staged payload, creates the durable
// account, and opens a session.
func (s *Service) VerifyRegistration(ctx context.Context, email, code string) (*models.User, *Session, error) {
	email = normalizeEmail(email)

	staged, err := s.cache.GetStagedRegistration(ctx, email)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, nil, ErrOTPExpired
		}
		return nil, nil, err
	}

	if staged.OTP != code {
		// Staged entry stays for retry until TTL expiry.
		return nil, nil, ErrOTPInvalid
	}

	// A second verification may race a first past the OTP compare; the
	// re-check plus the unique index close the account-creation side.
	taken, err := s.users.ExistsByUsernameOrEmail(ctx, staged.Username, email)
	if err != nil {
		return nil, nil, err
	}
	if taken {
		_ = s.cache.DeleteStagedRegistration(ctx, email)
		return nil, nil, ErrAccountExists
	}

	passwordHash, err := s.hasher.Hash(staged.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		Username:     staged.Username,
		Email:        email,
		PasswordHash: passwordHash,
		IsVerified:   true,
		Status:       models.StatusOnline,
		LastSeen:     time.Now(),
	}
	user, err = s.users.Insert(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			_ = s.cache.DeleteStagedRegistration(ctx, email)
			return nil, nil, ErrAccountExists
		}
		return nil, nil, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.cache.DeleteStagedRegistration(ctx, email); err != nil {
		s.logger.Warn("staged registration cleanup failed", "email", email, "err", err)
	}
	if err := s.limiter.Disarm(ctx, cache.RegistrationCooldownKey(email)); err != nil {
		s.logger.Warn("registration cooldown cleanup failed", "email", email, "err", err)
	}

	return user, session, nil
}

// Login authenticates by email and password and opens a session. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (*models.User, *Session, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.IsVerified {
		return nil, nil, ErrAccountUnverified
	}

	ok, err := s.hasher.Verify(rawPassword, user.PasswordHash)
	if err != nil || !ok {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	user.Status = models.StatusOnline
	user.LastSeen = time.Now()
	if err := s.users.UpdatePresence(ctx, user.ID.Hex(), user.Status, user.LastSeen); err != nil {
		s.logger.Warn("presence update failed on login", "user", user.ID.Hex(), "err", err)
	}

	return user, session, nil
}

// Logout marks the account offline and revokes its session record.
// Idempotent: a missing refresh record is not an error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.users.UpdatePresence(ctx, userID, models.StatusOffline, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.cache.DeleteRefreshHash(ctx, userID)
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; its stored hash must still match.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", ErrUnauthorized
	}

	stored, err := s.cache.GetRefreshHash(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return "", ErrSessionExpired
		}
		return "", err
	}

	presented := hashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) != 1 {
		// Valid signature but a superseded hash: an old token is being
		// replayed. Revoke the session so the replayed token's sibling
		// dies with it.
		if err := s.cache.DeleteRefreshHash(ctx, claims.UserID); err != nil {
			s.logger.Error("session revocation failed after reuse detection", "user", claims.UserID, "err", err)
		}
		s.logger.Warn("refresh token reuse detected", "user", claims.UserID)
		return "", ErrRefreshReuse
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrSessionExpired
		}
		return "", err
	}

	return s.tokens.IssueAccess(user.ID.Hex(), user.Email)
}

// RequestPasswordReset issues a reset OTP for an existing account. Unknown
// addresses surface ErrUserNotFound; revealing existence here is a
// deliberate usability trade-off.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	if _, err := s.users.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.limiter.Check(ctx, cache.ResetCooldownKey(email)); err != nil {
		if errors.Is(err, rate.ErrCooldown) {
			return ErrRateLimited
		}
		return err
	}

	code, err := otp.New()
	if err != nil {
		return err
	}

	if err := s.cache.SaveResetTicket(ctx, email, cache.ResetTicket{OTP: code}, s.cfg.OTPTTL); err != nil {
		return err
	}
	if err := s.limiter.Arm(ctx, cache.ResetCooldownKey(email), s.cfg.CooldownTTL); err != nil {
		return err
	}

	if err := s.mail.Enqueue(ctx, mailer.ResetOTP(email, code)); err != nil {
		s.logger.Warn("reset otp mail enqueue failed", "email", email, "err", err)
	}
	return nil
}

// ConfirmPasswordReset validates the reset OTP and replaces the stored
// password hash. No tokens are issued; the caller must log in again.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newRawPassword string) error {
	email = normalizeEmail(email)

	ticket, err := s.cache.GetResetTicket(ctx, email)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return ErrOTPExpired
		}
		return err
	}
	if ticket.OTP != code {
		// Ticket stays for retry until TTL expiry.
		return ErrOTPInvalid
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	passwordHash, err := s.hasher.Hash(newRawPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID.Hex(), passwordHash); err != nil {
		return err
	}

	if err := s.cache.DeleteResetTicket(ctx, email); err != nil {
		s.logger.Warn("reset ticket cleanup failed", "email", email, "err", err)
	}
	if err := s.limiter.Disarm(ctx, cache.ResetCooldownKey(email)); err != nil {
		s.logger.Warn("reset cooldown cleanup failed", "email", email, "err", err)
	}
	return nil
}

// AccessTTL exposes the access token lifetime for cookie max-age.
func (s *Service) AccessTTL() time.Duration { return s.tokens.AccessTTL() }

// RefreshTTL exposes the refresh token lifetime for cookie max-age.
func (s *Service) RefreshTTL() time.Duration { return s.tokens.RefreshTTL() }

// ParseAccess verifies an access token for the guard middleware.
func (s *Service) ParseAccess(tokenStr string) (*token.AccessClaims, error) {
	claims, err := s.tokens.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// issueSession signs the token pair and persists the refresh hash under
// refresh:<accountID>, replacing any prior hash. One session per account: a
// second login invalidates every earlier refresh token.
func (s *Service) issueSession(ctx context.Context, user *models.User) (*Session, error) {
	userID := user.ID.Hex()

	access, err := s.tokens.IssueAccess(userID, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SaveRefreshHash(ctx, userID, hashToken(refresh), s.tokens.RefreshTTL()); err != nil {
		return nil, err
	}

	return &Session{AccessToken: access, RefreshToken: refresh}, nil
}

func hashToken(tokenStr string) string {
	sum := sha256.Sum256([]byte(tokenStr))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
