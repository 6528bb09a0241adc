package auth

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chattrix/chattrix/internal/cache"
	"github.com/chattrix/chattrix/internal/mailer"
	"github.com/chattrix/chattrix/internal/models"
	"github.com/chattrix/chattrix/internal/password"
	"github.com/chattrix/chattrix/internal/rate"
	"github.com/chattrix/chattrix/internal/store"
	"github.com/chattrix/chattrix/internal/token"
)

// recordingMail captures enqueued messages instead of sending them.
type recordingMail struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (m *recordingMail) Enqueue(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *recordingMail) last() (mailer.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.msgs) == 0 {
		return mailer.Message{}, false
	}
	return m.msgs[len(m.msgs)-1], true
}

func (m *recordingMail) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

type testEnv struct {
	svc   *Service
	users *store.MemoryUsers
	cache *cache.Store
	mail  *recordingMail
	redis *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "chattrix",
	})
	require.NoError(t, err)

	hasher, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)

	users := store.NewMemoryUsers()
	cacheStore := cache.NewStore(rdb)
	mail := &recordingMail{}

	svc := NewService(
		Config{OTPTTL: 5 * time.Minute, CooldownTTL: time.Minute},
		users,
		cacheStore,
		rate.New(rdb),
		tokens,
		hasher,
		mail,
		slog.New(slog.DiscardHandler),
	)

	return &testEnv{svc: svc, users: users, cache: cacheStore, mail: mail, redis: mr}
}

func (e *testEnv) stagedOTP(t *testing.T, email string) string {
	t.Helper()
	staged, err := e.cache.GetStagedRegistration(context.Background(), email)
	require.NoError(t, err)
	return staged.OTP
}

func (e *testEnv) resetOTP(t *testing.T, email string) string {
	t.Helper()
	ticket, err := e.cache.GetResetTicket(context.Background(), email)
	require.NoError(t, err)
	return ticket.OTP
}

func TestStageRegistrationCachesPayloadAndMailsOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StageRegistration(ctx, "alice", "A@X.com", "Abc123!"))

	staged, err := env.cache.GetStagedRegistration(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", staged.Username)
	assert.Equal(t, "a@x.com", staged.Email, "email is lower-cased")
	assert.Equal(t, "Abc123!", staged.Password, "raw password staged, not hashed")
	assert.Len(t, staged.OTP, 6)

	msg, ok := env.mail.last()
	require.True(t, ok)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Contains(t, msg.Body, staged.OTP)

	assert.True(t, env.redis.Exists("register:ratelimit:a@x.com"))
}

func TestStageRegistrationConflictsWithExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.Insert(ctx, &models.User{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	err = env.svc.StageRegistration(ctx, "alice", "other@x.com", "pw")
	assert.ErrorIs(t, err, ErrAccountExists, "duplicate username")

	err = env.svc.StageRegistration(ctx, "bob", "a@x.com", "pw")
	assert.ErrorIs(t, err, ErrAccountExists, "duplicate email")
}

func TestStageRegistrationRateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StageRegistration(ctx, "alice", "a@x.com", "pw"))

	err := env.svc.StageRegistration(ctx, "alice", "a@x.com", "pw")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, env.mail.count(), "no second OTP mail inside the window")

	env.redis.FastForward(61 * time.Second)
	assert.NoError(t, env.svc.StageRegistration(ctx, "alice", "a@x.com", "pw"))
}

func TestVerifyRegistrationCreatesVerifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StageRegistration(ctx, "alice", "a@x.com", "Abc123!"))
	code := env.stagedOTP(t, "a@x.com")

	user, session, err := env.svc.VerifyRegistration(ctx, "a@x.com", code)
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.True(t, user.IsVerified)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "Abc123!", user.PasswordHash)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)

	// Staged entry consumed, session record present.
	_, err = env.cache.GetStagedRegistration(ctx, "a@x.com")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.True(t, env.redis.Exists("refresh:"+user.ID.Hex()))
	assert.False(t, env.redis.Exists("register:ratelimit:a@x.com"))
}

func TestVerifyRegistrationOTPIsConsumedExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StageRegistration(ctx, "alice", "a@x.com", "pw"))
	code := env.stagedOTP(t, "a@x.com")

	_, _, err := env.svc.VerifyRegistration(ctx, "a@x.com", code)
	require.NoError(t, err)

	_, _, err = env.svc.VerifyRegistration(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyRegistrationWrongOTPRetainsStagedEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StageRegistration(ctx, "alice", "a@x.com", "pw"))
	code := env.stagedOTP(t, "a@x.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, _, err := env.svc.VerifyRegistration(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, ErrOTPInvalid)

	// Retry with the correct code still succeeds.
	user, _, err := env.svc.VerifyRegistration(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
}

func TestVerifyRegistrationExpiredStagedEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StageRegistration(ctx, "alice", "a@x.com", "pw"))
	code := env.stagedOTP(t, "a@x.com")

	env.redis.FastForward(301 * time.Second)

	_, _, err := env.svc.VerifyRegistration(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyRegistrationConflictAfterRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StageRegistration(ctx, "alice", "a@x.com", "pw"))
	code := env.stagedOTP(t, "a@x.com")

	// Another request created the account between stage and verify.
	_, err := env.users.Insert(ctx, &models.User{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	_, _, err = env.svc.VerifyRegistration(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrAccountExists)

	// Staged entry deleted so the dead registration cannot be replayed.
	_, err = env.cache.GetStagedRegistration(ctx, "a@x.com")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func registerAndVerify(t *testing.T, env *testEnv, username, email, pw string) *models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.svc.StageRegistration(ctx, username, email, pw))
	user, _, err := env.svc.VerifyRegistration(ctx, email, env.stagedOTP(t, email))
	require.NoError(t, err)
	return user
}

func TestLoginSucceedsWithCorrectPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registerAndVerify(t, env, "alice", "a@x.com", "Abc123!")

	user, session, err := env.svc.Login(ctx, "a@x.com", "Abc123!")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, user.Status)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
}

func TestLoginRejectsWrongPasswordAndUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registerAndVerify(t, env, "alice", "a@x.com", "Abc123!")

	_, _, err := env.svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = env.svc.Login(ctx, "nobody@x.com", "Abc123!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.Insert(ctx, &models.User{
		Username: "ghost", Email: "g@x.com", PasswordHash: "$argon2id$...", IsVerified: false,
	})
	require.NoError(t, err)

	_, _, err = env.svc.Login(ctx, "g@x.com", "whatever")
	assert.ErrorIs(t, err, ErrAccountUnverified)
}

func TestLogoutRevokesSessionAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := registerAndVerify(t, env, "alice", "a@x.com", "pw")
	require.True(t, env.redis.Exists("refresh:"+user.ID.Hex()))

	require.NoError(t, env.svc.Logout(ctx, user.ID.Hex()))
	assert.False(t, env.redis.Exists("refresh:"+user.ID.Hex()))

	got, err := env.users.FindByID(ctx, user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, got.Status)

	// Second logout with no refresh record is not an error.
	assert.NoError(t, env.svc.Logout(ctx, user.ID.Hex()))
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registerAndVerify(t, env, "alice", "a@x.com", "pw")
	_, session, err := env.svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	access, err := env.svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)

	claims, err := env.svc.ParseAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)

	// No rotation: the same refresh token keeps working.
	_, err = env.svc.Refresh(ctx, session.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshAfterLogoutIsSessionExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := registerAndVerify(t, env, "alice", "a@x.com", "pw")
	_, session, err := env.svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, user.ID.Hex()))

	_, err = env.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRefreshReuseDetectionRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := registerAndVerify(t, env, "alice", "a@x.com", "pw")
	_, first, err := env.svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	// Second login replaces the stored hash; the first refresh token is
	// now superseded but still carries a valid signature.
	_, second, err := env.svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshReuse)

	// Reuse detection revokes the whole session: the legitimate token
	// dies too and the user must fully re-authenticate.
	assert.False(t, env.redis.Exists("refresh:"+user.ID.Hex()))
	_, err = env.svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.RequestPasswordReset(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRequestPasswordResetIssuesTicketAndMail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registerAndVerify(t, env, "alice", "a@x.com", "pw")
	mailsBefore := env.mail.count()

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "a@x.com"))

	assert.True(t, env.redis.Exists("reset:a@x.com"))
	assert.True(t, env.redis.Exists("reset:rateLimit:a@x.com"))

	msg, ok := env.mail.last()
	require.True(t, ok)
	assert.Equal(t, env.mail.count(), mailsBefore+1)
	assert.Contains(t, msg.Body, env.resetOTP(t, "a@x.com"))

	err := env.svc.RequestPasswordReset(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestConfirmPasswordResetRotatesHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registerAndVerify(t, env, "alice", "a@x.com", "OldPass1!")
	require.NoError(t, env.svc.RequestPasswordReset(ctx, "a@x.com"))
	code := env.resetOTP(t, "a@x.com")

	require.NoError(t, env.svc.ConfirmPasswordReset(ctx, "a@x.com", code, "NewPass1!"))

	// Ticket and cooldown consumed.
	assert.False(t, env.redis.Exists("reset:a@x.com"))
	assert.False(t, env.redis.Exists("reset:rateLimit:a@x.com"))

	// Old password no longer authenticates; new one does.
	_, _, err := env.svc.Login(ctx, "a@x.com", "OldPass1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.svc.Login(ctx, "a@x.com", "NewPass1!")
	assert.NoError(t, err)
}

func TestConfirmPasswordResetWrongOTPRetainsTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registerAndVerify(t, env, "alice", "a@x.com", "pw")
	require.NoError(t, env.svc.RequestPasswordReset(ctx, "a@x.com"))
	code := env.resetOTP(t, "a@x.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	err := env.svc.ConfirmPasswordReset(ctx, "a@x.com", wrong, "NewPass1!")
	assert.ErrorIs(t, err, ErrOTPInvalid)

	// Correct code still works before TTL.
	assert.NoError(t, env.svc.ConfirmPasswordReset(ctx, "a@x.com", code, "NewPass1!"))
}

func TestConfirmPasswordResetExpiredTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registerAndVerify(t, env, "alice", "a@x.com", "pw")
	require.NoError(t, env.svc.RequestPasswordReset(ctx, "a@x.com"))
	code := env.resetOTP(t, "a@x.com")

	env.redis.FastForward(301 * time.Second)

	err := env.svc.ConfirmPasswordReset(ctx, "a@x.com", code, "NewPass1!")
	assert.ErrorIs(t, err, ErrOTPExpired)
}
