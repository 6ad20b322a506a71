// File: app/app.go
package app

import (
	"context"
	"errors"
	"go-auth-service/config"
	"go-auth-service/db"
	"go-auth-service/handler"
	"go-auth-service/logger"
	"go-auth-service/repository"
	"go-auth-service/router"
	"go-auth-service/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// App is the wired service: token core plus HTTP router.
type App struct {
	Config  *config.Config
	Service *service.AuthService
	Router  http.Handler
}

// NewApp builds the token core and the router on top of the given stores.
func NewApp(cfg *config.Config, users repository.IUserRepository, sessions repository.SessionStore) (*App, error) {
	keys, err := service.LoadKeyProvider(cfg.Token)
	if err != nil {
		return nil, err
	}
	codec := service.NewTokenCodec(keys, nil)
	authService := service.NewAuthService(users, sessions, service.BcryptVerifier{}, codec, service.SettingsFromConfig(cfg.Token))

	r := router.NewRouter(handler.NewAuthHandler(authService), router.Options{
		LoginRatePerMinute: cfg.Server.LoginRatePerMinute,
	})
	return &App{Config: cfg, Service: authService, Router: r}, nil
}

func Run() {
	logger.Init()
	config.LoadConfig(".")
	cfg := &config.AppConfig
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		logger.Log.Fatalf("Invalid log configuration: %v", err)
	}
	logger.Log.Info("Configuration loaded successfully")

	database, err := db.Connect()
	if err != nil {
		logger.Log.Fatalf("Error connecting to the database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.Server.MigrationsPath); err != nil {
		logger.Log.Fatalf("Error running migrations: %v", err)
	}

	users := repository.NewUserRepository(database)

	var sessions repository.SessionStore
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := db.ConnectRedis(ctx)
		cancel()
		if err != nil {
			logger.Log.Fatalf("Error connecting to redis: %v", err)
		}
		defer client.Close()
		sessions = repository.NewRedisSessionRepository(client, cfg.Redis.Prefix, cfg.Token.MaxTokenCount)
	default:
		sessions = repository.NewPostgresSessionStore(database, cfg.Token.MaxTokenCount)
	}
	logger.Log.WithField("backend", cfg.Session.Backend).Info("Session store ready")

	application, err := NewApp(cfg, users, sessions)
	if err != nil {
		logger.Log.Fatalf("Error building application: %v", err)
	}

	// --- Start the Server with Graceful Shutdown ---
	port := cfg.Server.Port
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           application.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Warn("Shutdown signal received. Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Log.Info("Server exited properly")
}
