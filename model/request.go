// file: model/request.go

package model

// LoginRequest defines the payload for user authentication.
type LoginRequest struct {
	Login    string `json:"login" validate:"required,max=32"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token to rotate. AccessToken is optional;
// when present its subject must own the refresh session.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	AccessToken  string `json:"access_token,omitempty"`
}

// LogoutRequest identifies the single session to end.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutAllResponse reports how many sessions were revoked.
type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}
