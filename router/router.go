package router

import (
	_ "go-auth-service/docs"
	"go-auth-service/handler"
	"go-auth-service/model"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// Options tune cross-cutting behaviour of the router.
type Options struct {
	LoginRatePerMinute int
}

func NewRouter(authHandler *handler.AuthHandler, opts Options) http.Handler {
	mux := http.NewServeMux()

	auth := handler.AuthMiddleware(authHandler.Service)
	adminOnly := handler.RequireRole(authHandler.Service, model.RoleAdmin)
	loginLimiter := handler.NewRateLimiter(opts.LoginRatePerMinute)

	mux.HandleFunc("GET /health", handler.HealthCheck)

	mux.Handle("POST /api/auth/login", loginLimiter.Limit(handler.ErrorHandlingMiddleware(authHandler.Login)))
	mux.Handle("POST /api/auth/refresh", handler.ErrorHandlingMiddleware(authHandler.Refresh))
	mux.Handle("POST /api/auth/logout", handler.ErrorHandlingMiddleware(authHandler.Logout))
	mux.Handle("POST /api/auth/logout-all", handler.ErrorHandlingMiddleware(authHandler.LogoutAll))

	mux.Handle("GET /api/auth/me", auth(handler.ErrorHandlingMiddleware(authHandler.Me)))
	mux.Handle("GET /api/auth/sessions", auth(handler.ErrorHandlingMiddleware(authHandler.Sessions)))

	mux.Handle("GET /api/admin/ping", auth(adminOnly(handler.ErrorHandlingMiddleware(authHandler.AdminPing))))

	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	return handler.RequestLogger(handler.SecurityHeaders(mux))
}
