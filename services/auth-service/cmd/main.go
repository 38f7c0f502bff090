package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/account"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/handler"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/tokenstore"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/secure-auth-api/shared/auth"
	"github.com/vasapolrittideah/secure-auth-api/shared/discovery"
	"github.com/vasapolrittideah/secure-auth-api/shared/mailer"
	"github.com/vasapolrittideah/secure-auth-api/shared/ratelimit"
	"github.com/vasapolrittideah/secure-auth-api/shared/security"
	"github.com/vasapolrittideah/secure-auth-api/shared/utilities"
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := newLogger()
	cfg := config.NewAuthServiceConfig(&logger)

	if !cfg.IsProduction() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := newStore(ctx, cfg, &logger)
	defer closeStore()

	sessions, err := auth.NewJWTAuthenticator(cfg.Token.Secret, cfg.Token.Audience, cfg.Token.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JWT authenticator")
	}

	hasher := security.NewPasswordHasher(cfg.Argon2, &logger)
	emailSender := mailer.NewMailer(&logger)
	accounts := account.New()
	verificationTokens := tokenstore.New(model.TokenKindVerification, cfg.Token.VerificationTokenExpiresIn)
	resetTokens := tokenstore.New(model.TokenKindPasswordReset, cfg.Token.PasswordResetTokenExpiresIn)

	limiter, closeLimiter := newLimiter(ctx, cfg, &logger)
	defer closeLimiter()

	clientIP, err := utilities.NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse TRUSTED_PROXIES")
	}

	router := handler.NewRouter(handler.RouterParams{
		AuthUsecase: usecase.NewAuthUsecase(
			store, accounts, verificationTokens, hasher, sessions, emailSender, cfg, &logger),
		VerificationUsecase: usecase.NewVerificationUsecase(store, accounts, verificationTokens),
		PasswordResetUsecase: usecase.NewPasswordResetUsecase(
			store, accounts, resetTokens, hasher, emailSender, cfg, &logger),
		Sessions:      sessions,
		Limiter:       limiter,
		ClientIP:      clientIP,
		WebRoot:       cfg.WebRoot,
		SecureCookies: cfg.IsProduction(),
		Logger:        &logger,
	})

	cleanup := usecase.NewTokenCleanup(store, &logger, verificationTokens, resetTokens)
	go cleanup.Run(ctx, cfg.Token.CleanupInterval)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("auth service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to serve HTTP")
		}
	}()

	deregister := registerService(cfg, &logger)
	defer deregister()

	<-ctx.Done()
	logger.Info().Msg("shutting down auth service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shut down HTTP server")
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "auth-service").Logger()
}

// newStore connects the configured backend and returns it with a function
// releasing its connections.
func newStore(ctx context.Context, cfg *config.AuthServiceConfig, logger *zerolog.Logger) (repository.Store, func()) {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Store.MongoURI))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		if err := client.Ping(startCtx, nil); err != nil {
			logger.Fatal().Err(err).Msg("failed to ping MongoDB")
		}

		store := repository.NewMongoStore(startCtx, logger, client.Database(cfg.Store.MongoDatabase))
		return store, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error().Err(err).Msg("failed to disconnect from MongoDB")
			}
		}

	default:
		db, err := repository.OpenPostgres(startCtx, cfg.Store.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
		}
		if err := repository.RunMigrations(startCtx, db); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}

		return repository.NewPostgresStore(db), func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close PostgreSQL connection")
			}
		}
	}
}

// newLimiter returns nil when no Redis address is configured. An unreachable
// Redis only produces a warning since the limiter fails open.
func newLimiter(ctx context.Context, cfg *config.AuthServiceConfig, logger *zerolog.Logger) (*ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("REDIS_ADDR not set, request rate limiting disabled")
		return nil, func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, rate limiter will allow requests until it recovers")
	}

	return ratelimit.NewLimiter(client, "auth", cfg.RateLimit), func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close redis client")
		}
	}
}

// registerService announces the service to Consul when CONSUL_ADDR is set and
// returns the matching deregistration.
func registerService(cfg *config.AuthServiceConfig, logger *zerolog.Logger) func() {
	if cfg.ConsulAddr == "" {
		return func() {}
	}

	_, portStr, err := net.SplitHostPort(cfg.HTTPAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse HTTP_ADDR")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse HTTP_ADDR port")
	}

	registry, err := discovery.NewConsulRegistry(cfg.ConsulAddr, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create consul registry")
	}

	reg := discovery.Registration{
		ServiceName: cfg.ServiceName,
		Host:        cfg.ServiceHost,
		Port:        port,
		HealthPath:  "/healthz",
		Tags:        []string{"auth", "http"},
	}
	if err := registry.Register(reg); err != nil {
		logger.Error().Err(err).Msg("failed to register with consul")
		return func() {}
	}

	return func() {
		if err := registry.Deregister(reg); err != nil {
			logger.Error().Err(err).Msg("failed to deregister from consul")
		}
	}
}
