package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/verigate/identity-core/internal/config"
	httpserver "github.com/verigate/identity-core/internal/http"
	"github.com/verigate/identity-core/internal/notification"
	"github.com/verigate/identity-core/pkg/auth"
	"github.com/verigate/identity-core/pkg/cache"
	"github.com/verigate/identity-core/pkg/ratelimit"
	"github.com/verigate/identity-core/pkg/repository"
	"github.com/verigate/identity-core/pkg/session"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	// Ephemeral cache and rate limiter: Redis when configured (shared
	// across replicas), in-process otherwise.
	var secretCache cache.Cache
	var limiter ratelimit.Limiter
	if cfg.HasRedis() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		secretCache = cache.NewRedisCache(redisClient, "authcache")
		limiter = ratelimit.NewRedisLimiter(redisClient, "ratelimit", logger)
		logger.Info("redis cache and rate limiter enabled", "addr", cfg.RedisAddr)
	} else {
		secretCache = cache.NewMemoryCache()
		limiter = ratelimit.NewMemoryLimiter()
		logger.Info("in-memory cache and rate limiter enabled")
	}

	usersRepo := repository.NewUsersRepository(db)
	tokensRepo := repository.NewAuthTokensRepository(db)

	var mailer auth.Mailer
	if cfg.HasSMTP() {
		mailer = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			BaseURL:  cfg.AppBaseURL,
		})
		logger.Info("smtp email delivery enabled")
	} else {
		mailer = notification.NewLogMailer(logger)
		logger.Warn("smtp not configured, email delivery is log-only")
	}
	smsSender := notification.NewLogSMSSender(logger)

	tokenService := auth.NewTokenService(auth.TokenConfig{
		EmailVerificationTTL: cfg.EmailVerificationTTL,
		PasswordResetTTL:     cfg.PasswordResetTTL,
	}, tokensRepo)

	mfaService := auth.NewMFAService(auth.MFAConfig{
		Issuer:         cfg.MFAIssuer,
		SendCodePolicy: cfg.RateLimits.MFASend,
	}, usersRepo, secretCache, limiter, mailer, smsSender)

	authService := auth.NewAuthService(auth.AuthConfig{
		Policies: auth.RatePolicies{
			Login:         cfg.RateLimits.Login,
			Register:      cfg.RateLimits.Register,
			PasswordReset: cfg.RateLimits.PasswordReset,
		},
	}, usersRepo, tokenService, limiter, mailer, &cfg.PasswordPolicy)

	sessions := session.NewManager(session.Config{
		Secret: []byte(cfg.SessionSecret),
		Issuer: cfg.SessionIssuer,
		TTL:    cfg.SessionTTL,
	})

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:                  logger,
		AuthService:             authService,
		MFAService:              mfaService,
		Users:                   usersRepo,
		Sessions:                sessions,
		GlobalRequestsPerMinute: cfg.GlobalRequestsPerMinute,
		MaxRequestBodySize:      cfg.MaxRequestBodySize,
		CookieSecure:            strings.HasPrefix(cfg.AppBaseURL, "https://"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
