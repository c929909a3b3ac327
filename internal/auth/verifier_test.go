package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func baseClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ceros",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:   "u1",
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []string{"member"},
	}
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, "ceros")
	token := signToken(t, testSecret, baseClaims())

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, []string{"member"}, identity.Roles)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewJWTVerifier(testSecret, "ceros")
	token := signToken(t, "other-secret", baseClaims())

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, "ceros")
	claims := baseClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := signToken(t, testSecret, claims)

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	v := NewJWTVerifier(testSecret, "ceros")
	claims := baseClaims()
	claims.Issuer = "someone-else"
	token := signToken(t, testSecret, claims)

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	v := NewJWTVerifier(testSecret, "ceros")
	claims := baseClaims()
	claims.UserID = ""
	claims.Subject = "subject-id"
	token := signToken(t, testSecret, claims)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "subject-id", identity.UserID)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	v := NewJWTVerifier(testSecret, "ceros")
	claims := baseClaims()
	claims.UserID = ""
	token := signToken(t, testSecret, claims)

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewJWTVerifier(testSecret, "ceros")

	_, err := v.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
