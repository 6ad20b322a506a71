// file: model/token.go

package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenTypeBearer is the only token type this service issues.
const TokenTypeBearer = "Bearer"

// AccessTokenPayload is the decoded, verified content of an access token.
type AccessTokenPayload struct {
	Subject   uuid.UUID `json:"sub"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Tokens is the access/refresh pair returned to clients.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// NewTokens builds a Bearer token pair.
func NewTokens(accessToken string, refreshToken uuid.UUID) *Tokens {
	return &Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.String(),
		TokenType:    TokenTypeBearer,
	}
}
