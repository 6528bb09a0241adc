package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "chattrix",
	})
	require.NoError(t, err)
	return m
}

func TestAccessRoundTrip(t *testing.T) {
	m := testManager(t)

	tok, err := m.IssueAccess("user-1", "a@x.com")
	require.NoError(t, err)

	claims, err := m.ParseAccess(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "chattrix", claims.Issuer)
}

func TestRefreshRoundTrip(t *testing.T) {
	m := testManager(t)

	tok, err := m.IssueRefresh("user-1")
	require.NoError(t, err)

	claims, err := m.ParseRefresh(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestSecretsAreNotInterchangeable(t *testing.T) {
	m := testManager(t)

	access, err := m.IssueAccess("user-1", "a@x.com")
	require.NoError(t, err)
	refresh, err := m.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = m.ParseRefresh(access)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = m.ParseAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Millisecond,
		RefreshTTL:    time.Millisecond,
	})
	require.NoError(t, err)

	tok, err := m.IssueAccess("user-1", "a@x.com")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = m.ParseAccess(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	m := testManager(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "chattrix",
		},
	})
	signed, err := forged.SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	_, err = m.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsAlgNone(t *testing.T) {
	m := testManager(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "chattrix",
		},
	})
	signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseRejectsMissingUserID(t *testing.T) {
	m := testManager(t)

	anon := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    "chattrix",
	})
	signed, err := anon.SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = m.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Minute})
	assert.Error(t, err)

	_, err = NewManager(Config{
		AccessSecret:  []byte("a"),
		RefreshSecret: []byte("b"),
		AccessTTL:     -time.Minute,
		RefreshTTL:    time.Minute,
	})
	assert.Error(t, err)
}
