package service

import (
	"errors"
	"fmt"
	"go-auth-service/logger"
	"go-auth-service/model"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Clock returns the current time. Tests freeze it.
type Clock func() time.Time

// TokenCodec mints and verifies access tokens with the algorithm pinned by
// its KeyProvider.
type TokenCodec struct {
	keys    *KeyProvider
	now     Clock
	strict  *jwt.Parser
	lenient *jwt.Parser
}

// NewTokenCodec creates a codec. A nil clock means time.Now.
func NewTokenCodec(keys *KeyProvider, clock Clock) *TokenCodec {
	if clock == nil {
		clock = time.Now
	}
	c := &TokenCodec{keys: keys, now: clock}
	methods := jwt.WithValidMethods([]string{keys.AlgorithmName()})
	c.strict = jwt.NewParser(methods, jwt.WithTimeFunc(clock), jwt.WithExpirationRequired())
	c.lenient = jwt.NewParser(methods, jwt.WithoutClaimsValidation())
	return c
}

// Mint signs a token for subject valid for ttl. The clock is read once so
// iat and exp are consistent.
func (c *TokenCodec) Mint(subject uuid.UUID, ttl time.Duration) (string, error) {
	if ttl < time.Second {
		return "", fmt.Errorf("access token ttl must be at least one second, got %s", ttl)
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(c.keys.Method(), claims)
	signed, err := token.SignedString(c.keys.SigningKey())
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"subject":   subject,
			"algorithm": c.keys.AlgorithmName(),
		}).Error("Failed to sign access token")
		return "", fmt.Errorf("failed to sign token string: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of tokenString. Expired tokens
// with a valid signature return ErrTokenExpired; everything else that fails
// returns ErrInvalidAccessToken.
func (c *TokenCodec) Decode(tokenString string) (*model.AccessTokenPayload, error) {
	return c.decode(c.strict, tokenString)
}

// DecodeIgnoringExpiry verifies only the signature. It is meant for checking
// who an expired access token belonged to, never for authorizing a request.
func (c *TokenCodec) DecodeIgnoringExpiry(tokenString string) (*model.AccessTokenPayload, error) {
	return c.decode(c.lenient, tokenString)
}

func (c *TokenCodec) decode(parser *jwt.Parser, tokenString string) (*model.AccessTokenPayload, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.keys.VerificationKey(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		logger.Log.WithError(err).Debug("Access token rejected")
		return nil, ErrInvalidAccessToken
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidAccessToken
	}
	return &model.AccessTokenPayload{
		Subject:   subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
