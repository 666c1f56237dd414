package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret")
	token, err := v.Issue("stu_1", "student", time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "stu_1", claims.StudentID)
	assert.Equal(t, "student", claims.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenVerifier("other").Issue("stu_1", "student", time.Minute)
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"student_id": "stu_1",
		"exp":        time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret").Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyFallsBackToNumericUserID(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": float64(42)})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := NewTokenVerifier("secret").Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.StudentID)
}

func TestVerifyRequiresSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "student"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret").Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
