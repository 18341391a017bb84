package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var _ TokenHandler = (*JWTHandler)(nil) // ensure JWTHandler implements TokenHandler.

// TokenHandler issues and verifies the api access tokens.
type TokenHandler interface {
	Issue(username string, role Role) (string, error)
	Verify(token string) (*TokenClaims, error)
}

// TokenClaims are the claims carried by access tokens. The
// subject holds the username and `rol` the user role.
type TokenClaims struct {
	Role Role `json:"rol"`
	jwt.RegisteredClaims
}

// JWTHandler implements TokenHandler with HS256 signed tokens.
type JWTHandler struct {
	secret []byte
	ttl    time.Duration
	clock  Clocker
}

// NewJWTHandler returns a ready to use JWTHandler.
func NewJWTHandler(secret string, ttl time.Duration, clock Clocker) *JWTHandler {
	return &JWTHandler{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue signs a token for the given user valid for the configured duration.
func (jh *JWTHandler) Issue(username string, role Role) (string, error) {
	now := jh.clock.Now()
	claims := TokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jh.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jh.secret)
}

// Verify checks the token signature and expiry then returns its claims.
func (jh *JWTHandler) Verify(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return jh.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(jh.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token: missing subject")
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPasswordHash compares a bcrypt hash with its possible plaintext equivalent.
func CheckPasswordHash(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
