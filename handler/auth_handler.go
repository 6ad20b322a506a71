package handler

import (
	"go-auth-service/common"
	"go-auth-service/model"
	"go-auth-service/service"
	"net/http"
)

type AuthHandler struct {
	Service service.IAuthService
}

func NewAuthHandler(svc service.IAuthService) *AuthHandler {
	return &AuthHandler{Service: svc}
}

// Login godoc
// @Summary      Log in
// @Description  Checks the credentials and opens a new session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials  body      model.LoginRequest  true  "Login credentials"
// @Success      200          {object}  model.Tokens
// @Failure      400          {object}  common.AppError
// @Failure      401          {object}  common.AppError
// @Failure      409          {object}  common.AppError  "Too many active sessions"
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.LoginRequest
	if appErr := common.ValidateAndDecode(w, r, &req); appErr != nil {
		return appErr
	}

	tokens, err := h.Service.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		return ServiceError(err)
	}
	common.WriteJSON(w, http.StatusOK, tokens)
	return nil
}

// Refresh godoc
// @Summary      Refresh tokens
// @Description  Rotates the refresh token and issues a new pair. The old refresh token stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      model.RefreshRequest  true  "Refresh token, optionally with the last access token"
// @Success      200      {object}  model.Tokens
// @Failure      400      {object}  common.AppError
// @Failure      401      {object}  common.AppError
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.RefreshRequest
	if appErr := common.ValidateAndDecode(w, r, &req); appErr != nil {
		return appErr
	}

	tokens, err := h.Service.Refresh(r.Context(), req.RefreshToken, req.AccessToken)
	if err != nil {
		return ServiceError(err)
	}
	common.WriteJSON(w, http.StatusOK, tokens)
	return nil
}

// Logout godoc
// @Summary      Log out
// @Description  Ends the session of one refresh token
// @Tags         auth
// @Accept       json
// @Param        request  body  model.LogoutRequest  true  "Refresh token"
// @Success      204
// @Failure      400  {object}  common.AppError
// @Failure      404  {object}  common.AppError
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.LogoutRequest
	if appErr := common.ValidateAndDecode(w, r, &req); appErr != nil {
		return appErr
	}

	if err := h.Service.Logout(r.Context(), req.RefreshToken); err != nil {
		return ServiceError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// LogoutAll godoc
// @Summary      Log out everywhere
// @Description  Ends every session of the access token's owner
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.LogoutAllResponse
// @Failure      401  {object}  common.AppError
// @Router       /api/auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) *common.AppError {
	token, appErr := bearerToken(r)
	if appErr != nil {
		return appErr
	}

	n, err := h.Service.LogoutAll(r.Context(), token)
	if err != nil {
		return ServiceError(err)
	}
	common.WriteJSON(w, http.StatusOK, model.LogoutAllResponse{Revoked: n})
	return nil
}

// Me godoc
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.User
// @Failure      401  {object}  common.AppError
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) *common.AppError {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, "Authentication required", nil)
	}

	user, err := h.Service.CurrentUser(r.Context(), userID)
	if err != nil {
		return ServiceError(err)
	}
	common.WriteJSON(w, http.StatusOK, user)
	return nil
}

// Sessions godoc
// @Summary      Active sessions
// @Description  Lists the refresh sessions of the current user, oldest first
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   model.RefreshSession
// @Failure      401  {object}  common.AppError
// @Router       /api/auth/sessions [get]
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) *common.AppError {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, "Authentication required", nil)
	}

	sessions, err := h.Service.ListSessions(r.Context(), userID)
	if err != nil {
		return ServiceError(err)
	}
	if sessions == nil {
		sessions = []*model.RefreshSession{}
	}
	common.WriteJSON(w, http.StatusOK, sessions)
	return nil
}

// AdminPing godoc
// @Summary      Admin check
// @Description  Answers only for users with the admin role
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  common.AppError
// @Failure      403  {object}  common.AppError
// @Router       /api/admin/ping [get]
func (h *AuthHandler) AdminPing(w http.ResponseWriter, r *http.Request) *common.AppError {
	user, _ := r.Context().Value(UserKey).(*model.User)
	body := map[string]string{"status": "pong"}
	if user != nil {
		body["login"] = user.Login
	}
	common.WriteJSON(w, http.StatusOK, body)
	return nil
}
