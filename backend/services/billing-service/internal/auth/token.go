package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every token that cannot be trusted.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims represents the student identity carried by platform JWTs.
type Claims struct {
	StudentID string
	Role      string
}

// TokenVerifier validates HS256 tokens issued by the platform.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier returns verifier for the shared signing secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates tokenString.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	studentID, err := extractStudentID(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	role, _ := claims["role"].(string)
	return &Claims{StudentID: studentID, Role: role}, nil
}

func extractStudentID(claims jwt.MapClaims) (string, error) {
	for _, key := range []string{"student_id", "user_id", "sub"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return "", errors.New("student id not present")
}

// Issue signs a token for studentID. Used by tests and local tooling.
func (v *TokenVerifier) Issue(studentID, role string, ttl time.Duration) (string, error) {
	if studentID == "" {
		return "", errors.New("auth: student id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"student_id": studentID,
		"role":       role,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}
