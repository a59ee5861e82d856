package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/analysis"
	"github.com/iliyamo/items-api/internal/auth"
	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/database"
	"github.com/iliyamo/items-api/internal/handler"
	"github.com/iliyamo/items-api/internal/logger"
	"github.com/iliyamo/items-api/internal/metrics"
	"github.com/iliyamo/items-api/internal/middleware"
	"github.com/iliyamo/items-api/internal/queue"
	"github.com/iliyamo/items-api/internal/repository"
	"github.com/iliyamo/items-api/internal/router"
	"github.com/iliyamo/items-api/internal/service"
	"github.com/iliyamo/items-api/internal/utils"
)

// userStore is what both the auth core and registration need from storage.
type userStore interface {
	auth.CredentialStore
	handler.UserCreator
}

func main() {
	// best-effort: a missing .env just means the real environment is used
	_ = godotenv.Load()

	lg, err := logger.Init(logger.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()
	sugar := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, items, closeStore, err := openStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("store: %v", err)
	}
	defer closeStore()

	// auth core: built once, shared by every request
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	codec, err := auth.NewCodec(cfg.Auth.SecretKey, cfg.Auth.Algorithm, nil)
	if err != nil {
		sugar.Fatalf("token codec: %v", err)
	}
	authn, err := auth.NewAuthenticator(users, hasher, codec, cfg.Auth.AccessTTL)
	if err != nil {
		sugar.Fatalf("authenticator: %v", err)
	}
	resolver := auth.NewResolver(codec, users)

	m := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var cache *middleware.ResponseCache
	if cfg.Cache.Enabled {
		rdb := config.NewRedisClient(cfg.Redis)
		if rdb == nil {
			sugar.Warnf("redis unavailable at %s; item cache disabled", cfg.Redis.Addr)
		} else {
			defer func() { _ = rdb.Close() }()
			cache = middleware.NewRedisCache(cfg.Cache, rdb, "items", sugar)
		}
	}

	an := analysis.New(cfg.Analysis, sugar)

	var events handler.EventPublisher
	if cfg.Queue.Enabled {
		events = service.NewPublisher(cfg.Queue.URL, utils.NewIDGenerator(cfg.SnowflakeNode), sugar)
		audit, err := logger.NewAudit(cfg.Queue.LogDir)
		if err != nil {
			sugar.Fatalf("audit log: %v", err)
		}
		defer func() { _ = audit.Sync() }()
		consumer := queue.NewConsumer(cfg.Queue.URL, sugar, audit, an)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorf("item consumer stopped: %v", err)
			}
		}()
	}

	e := router.New(router.Deps{
		Log:      sugar,
		Metrics:  m,
		Gatherer: reg,
		Resolver: resolver,
		Auth:     handler.NewAuthHandler(users, hasher, authn, m),
		Items:    handler.NewItemHandler(items, events, an, sugar),
		Cache:    cache,
	})

	addr := ":" + cfg.Port
	go func() {
		sugar.Infof("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.Store)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

// openStore returns the user and item stores selected by STORE, plus a
// close func for the underlying connection.
func openStore(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (userStore, handler.ItemStore, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on exit")
		s := repository.NewMemoryStore()
		return s.Users(), s.Items(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
	}
	return repository.NewUserRepo(db), repository.NewItemRepo(db), func() { _ = db.Close() }, nil
}
