package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/chainsona/cpop-sub000/adapters/cache"
	"github.com/chainsona/cpop-sub000/adapters/events"
	"github.com/chainsona/cpop-sub000/adapters/store"
	"github.com/chainsona/cpop-sub000/adapters/tokenizer"
	"github.com/chainsona/cpop-sub000/config"
	"github.com/chainsona/cpop-sub000/ports"
	"github.com/chainsona/cpop-sub000/service"
	httptransport "github.com/chainsona/cpop-sub000/transport/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("domain", cfg.Auth.Domain),
		zap.Bool("compatibility_mode", cfg.Auth.CompatibilityMode),
	)
	if cfg.Auth.CompatibilityMode {
		logger.Warn("signature compatibility mode is enabled, well-formed signatures may be accepted without a cryptographic match")
	}

	signKey, err := loadSessionKey(cfg.Auth.SessionKeyFile, logger)
	if err != nil {
		logger.Fatal("failed to load session key", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = initRedis(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	publisher, err := initPublisher(redisClient)
	if err != nil {
		logger.Fatal("failed to create event publisher", zap.Error(err))
	}
	defer publisher.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var (
		verdictCache ports.VerdictCache
		revoked      ports.Store
	)
	if redisClient != nil {
		revoked = store.NewRedisStore(redisClient)
	} else {
		revoked = store.NewMemoryStore(time.Now)
	}
	switch cfg.Auth.CacheBackend {
	case config.CacheBackendRedis:
		verdictCache = cache.NewRedisCache(redisClient, cfg.Auth.CacheTTL)
	default:
		memCache := cache.NewMemoryCache(cfg.Auth.CacheTTL, cfg.Auth.CacheMaxEntries, time.Now, logger)
		go memCache.Run(ctx, cfg.Auth.CacheSweepInterval)
		verdictCache = memCache
	}

	expectedDomain := ""
	if cfg.Auth.EnforceDomain {
		expectedDomain = cfg.Auth.Domain
	}

	eventPub := events.NewWatermillPublisher(publisher)
	validator := service.NewTokenValidator(verdictCache, time.Now, logger)
	verifier := service.NewSignatureVerifier(service.VerifierConfig{
		CompatibilityMode: cfg.Auth.CompatibilityMode,
		ExpectedDomain:    expectedDomain,
	}, time.Now, logger)
	reconciler := service.NewReconciler(validator, verifier, revoked, eventPub, time.Now, logger)

	authService := service.NewAuthService(service.AuthConfig{
		Domain:       cfg.Auth.Domain,
		ChallengeTTL: cfg.Auth.ChallengeTTL,
		SessionTTL:   cfg.Auth.SessionTTL,
	}, tokenizer.NewJWTTokenizer(signKey, time.Now), revoked, eventPub, reconciler, time.Now, logger)

	router := httptransport.SetupRouter(authService, httptransport.RouterConfig{
		Cookies: httptransport.CookieConfig{
			Secure: cfg.Auth.SecureCookies,
			Domain: cfg.Auth.CookieDomain,
		},
		Production: cfg.Server.Production(),
		Redis:      redisClient,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("addr", cfg.Server.Addr()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func initLogger() (*zap.Logger, error) {
	if os.Getenv("ENVIRONMENT") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func initRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// initPublisher publishes over redis streams when redis is configured and
// in-process otherwise
func initPublisher(redisClient *redis.Client) (message.Publisher, error) {
	wmLogger := watermill.NewStdLogger(false, false)
	if redisClient == nil {
		return gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
	}
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}
	return publisher, nil
}

// loadSessionKey reads the ES256 session signing key. Without a key file an
// ephemeral key is generated and sessions do not survive restarts.
func loadSessionKey(path string, logger *zap.Logger) (*ecdsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("AUTH_SESSION_KEY_FILE not set, generating ephemeral session key")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session key: %w", err)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session key: %w", err)
	}
	return key, nil
}
