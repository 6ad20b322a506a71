package handler

import (
	"errors"
	"go-auth-service/common"
	"go-auth-service/service"
	"net/http"
)

func ErrorHandlingMiddleware(next func(http.ResponseWriter, *http.Request) *common.AppError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			err.Send(w)
		}
	}
}

// ServiceError maps token lifecycle errors to HTTP responses. Unknown errors
// become a bare 500.
func ServiceError(err error) *common.AppError {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrInvalidAccessToken):
		return common.NewAppError(http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, service.ErrTokenLimitExceeded):
		return common.NewAppError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrRefreshNotExist):
		return common.NewAppError(http.StatusNotFound, err.Error(), nil)
	default:
		return common.NewAppError(http.StatusInternalServerError, "Internal server error", err)
	}
}
