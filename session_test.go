package main

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestIsHost(t *testing.T) {
	for _, name := range []string{"Facu Silva", "facu silva", "FACU SILVA", "fAcU sIlVa"} {
		assert.True(t, IsHost(Session{CurrentUser: name}), name)
		assert.True(t, Session{CurrentUser: name}.IsHost(), name)
	}

	for _, name := range []string{"", "Facu", "Facu  Silva", " facu silva", "Ana"} {
		assert.False(t, IsHost(Session{CurrentUser: name}), name)
	}
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Login(ctx, "Facu Silva")
	require.NoError(t, err)
	assert.Equal(t, "Facu Silva", session.CurrentUser)
	assert.True(t, session.IsHost())

	_, err = env.svc.Login(ctx, "Facu Silva")
	require.NoError(t, err)

	users, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []User{{Name: "Facu Silva"}}, users)

	session = Logout(session)
	assert.Equal(t, Session{}, session)
	assert.False(t, session.IsHost())

	_, err = env.svc.Login(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSessionToken(t *testing.T) {
	token, err := NewSessionToken(Session{CurrentUser: "Ana"}, testSecret)
	require.NoError(t, err)

	session, ok := VerifySessionToken(token.Access, testSecret)
	assert.True(t, ok)
	assert.Equal(t, Session{CurrentUser: "Ana"}, session)

	_, ok = VerifySessionToken(token.Access, []byte("other-secret"))
	assert.False(t, ok)

	_, ok = VerifySessionToken("invalid-token", testSecret)
	assert.False(t, ok)

	_, err = NewSessionToken(Session{}, testSecret)
	assert.Error(t, err)
}

func TestSessionTokenExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	claims := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer:    SessionIssuer,
		Subject:   "Ana",
		ExpiresAt: jwt.NewNumericDate(past),
		IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
	})
	token, err := claims.SignedString(testSecret)
	require.NoError(t, err)

	_, ok := VerifySessionToken(token, testSecret)
	assert.False(t, ok)
}

func TestTokenDenylist(t *testing.T) {
	now := time.Now()
	d := NewTokenDenylist()
	d.now = func() time.Time { return now }

	d.Revoke("a", now.Add(time.Hour))
	d.Revoke("b", now.Add(time.Minute))
	d.Revoke("", now.Add(time.Hour))

	assert.True(t, d.IsRevoked("a"))
	assert.True(t, d.IsRevoked("b"))
	assert.False(t, d.IsRevoked("c"))
	assert.False(t, d.IsRevoked(""))

	now = now.Add(2 * time.Minute)
	assert.False(t, d.IsRevoked("b"), "expired tokens fail verification on their own")

	d.Revoke("c", now.Add(time.Hour))
	assert.NotContains(t, d.revoked, "b")
	assert.Len(t, d.revoked, 2)
}
