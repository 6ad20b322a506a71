package service

import "errors"

// Errors returned by the token and session flows. Handlers branch on these
// with errors.Is; anything else reaching a caller is a bug.
var (
	ErrInvalidCredentials  = errors.New("invalid login or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrTokenLimitExceeded  = errors.New("too many active sessions")
	ErrRefreshNotExist     = errors.New("refresh session does not exist")
	ErrUnexpected          = errors.New("unexpected error")

	ErrInvalidKeyFormat = errors.New("invalid key format")
)
