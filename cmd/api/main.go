package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange-core/config"
	httpHandler "exchange-core/internal/adapter/http/handler"
	"exchange-core/internal/adapter/storage/memory"
	pgStorage "exchange-core/internal/adapter/storage/postgres"
	redisStorage "exchange-core/internal/adapter/storage/redis"
	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/internal/service"
	"exchange-core/pkg/apperror"
	"exchange-core/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// storage bundles the repositories chosen by storage.driver.
type storage struct {
	identities ports.IdentityRepository
	ledger     ports.BalanceLedger
	health     ports.HealthChecker
	close      func()
}

func main() {
	cfg, err := config.Load(os.Getenv("EXC_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("starting exchange core")

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.close()

	healthCheckers := []ports.HealthChecker{store.health}

	var (
		revocations    ports.RevocationStore
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()

		revocations = redisStorage.NewRevocationStore(rdb, cfg.JWT.Expiry)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("redis disabled: tokens stay valid until expiry and rate limiting is off")
	}

	currencies, err := domain.NewCurrencySet(cfg.Ledger.Currencies...)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid currency set")
	}

	hasher, err := service.NewArgon2Hasher(service.Argon2Params{
		Time:    cfg.Hash.Time,
		Memory:  cfg.Hash.Memory,
		Threads: cfg.Hash.Threads,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize password hasher")
	}

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = "insecure-debug-secret"
		log.Warn().Msg("jwt.secret is empty, using an insecure debug secret")
	}

	clock := service.SystemClock{}
	tokens := service.NewJWTTokenIssuer(secret, cfg.JWT.Issuer, clock)

	accounts := service.NewAccountService(
		store.identities,
		hasher,
		tokens,
		revocations,
		clock,
		cfg.JWT.Expiry,
		logger.Component(log, "accounts"),
	)
	ledger := service.NewLedgerService(store.identities, store.ledger, currencies, logger.Component(log, "ledger"))

	if err := seedAdmin(ctx, accounts, cfg.Admin, log); err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin account")
	}

	gin.SetMode(ginMode(cfg.Server.Mode))

	deps := httpHandler.RouterDeps{
		Accounts:       accounts,
		Ledger:         ledger,
		HealthCheckers: healthCheckers,
		Logger:         log,
	}
	if rateLimitStore != nil {
		deps.RateLimitStore = rateLimitStore
	}
	router := httpHandler.SetupRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn().Msg("memory storage: all data is lost on restart")
		store := memory.NewStore(nil)
		return &storage{
			identities: store.Identities(),
			ledger:     store.Balances(),
			health:     store,
			close:      func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.AutoMigrate {
		if err := pgStorage.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &storage{
		identities: pgStorage.NewIdentityRepo(pool),
		ledger:     pgStorage.NewBalanceLedger(pool, nil),
		health:     pgStorage.NewHealthCheck(pool),
		close:      pool.Close,
	}, nil
}

// seedAdmin registers the configured administrator unless it already exists.
func seedAdmin(ctx context.Context, accounts ports.AccountService, admin config.AdminConfig, log zerolog.Logger) error {
	if admin.Identifier == "" {
		return nil
	}

	_, err := accounts.Register(ctx, ports.RegisterRequest{
		Identifier: admin.Identifier,
		Password:   admin.Password,
		Role:       domain.RoleAdmin,
	})
	switch {
	case err == nil:
		log.Info().Str("identifier", admin.Identifier).Msg("admin account created")
		return nil
	case apperror.CodeOf(err) == apperror.CodeConflict:
		return nil
	default:
		return err
	}
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
