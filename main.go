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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/qmdoc/doccontrol/handlers"
	"github.com/qmdoc/doccontrol/internal/bootstrap"
	"github.com/qmdoc/doccontrol/internal/config"
	"github.com/qmdoc/doccontrol/internal/database"
	"github.com/qmdoc/doccontrol/internal/directory"
	"github.com/qmdoc/doccontrol/internal/document/handler"
	"github.com/qmdoc/doccontrol/internal/identity"
	"github.com/qmdoc/doccontrol/internal/lifecycle"
	"github.com/qmdoc/doccontrol/internal/lock"
	"github.com/qmdoc/doccontrol/internal/storage"
	"github.com/qmdoc/doccontrol/pkg/logger"
	"github.com/qmdoc/doccontrol/pkg/metrics"
	"github.com/qmdoc/doccontrol/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: storage=%s mongo=%v redis=%v minio=%v", cfg.Storage.Root, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.Open(cfg)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer func() { _ = core.Close() }()

	checks := map[string]handlers.Check{"storage": core.Store.Ping}
	var opts []lifecycle.Option

	// Redis: transition lock and rate limiting
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v; using in-process locks", addr, err)
			_ = rdb.Close()
			rdb = nil
		} else {
			defer func() { _ = rdb.Close() }()
			opts = append(opts, lifecycle.WithLocker(lock.NewRedisLocker(rdb, "qmdoc:lock:")))
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			logger.Infof("connected to Redis at %s", addr)
		}
	}

	// MongoDB: actor directory
	var dirRepo directory.Repository = directory.NewMemoryRepository()
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("%v; using in-memory directory", err)
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			dirRepo = directory.NewMongoRepository(client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection))
			checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		}
	}
	dir := directory.NewService(dirRepo)
	opts = append(opts, lifecycle.WithDirectory(dir))

	// MinIO: replication of released versions
	if cfg.MinIO.Enabled() {
		st, err := storage.NewMinIOStorage(ctx, storage.FromConfig(cfg.MinIO))
		if err != nil {
			logger.Warnf("MinIO unavailable, replication disabled: %v", err)
		} else {
			opts = append(opts, lifecycle.WithReplicator(storage.NewReplicator(st)))
			checks["minio"] = st.Ping
		}
	}

	svc := core.Service(opts...)

	verifier, err := buildVerifier(ctx, cfg.Identity)
	if err != nil {
		logger.Fatalf("identity: %v", err)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	handlers.RegisterHealth(r, startTime, checks)
	handlers.RegisterSwagger(r)
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", middleware.AuthMiddleware(verifier, func(ctx context.Context, claims map[string]interface{}) {
		if _, err := dir.UpsertFromClaims(ctx, claims); err != nil {
			logger.Warnf("directory: upsert from claims: %v", err)
		}
	}))
	handlers.RegisterMe(api, dir)
	handler.New(svc, "").Register(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition", "X-Copy-Number", "X-Watermark"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      c.Handler(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("document control listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// buildVerifier prefers OIDC, then the shared-secret gateway tokens, then the
// insecure decoder when explicitly allowed.
func buildVerifier(ctx context.Context, cfg config.IdentityConfig) (middleware.Verifier, error) {
	if cfg.OIDCIssuer != "" && cfg.OIDCClientID != "" {
		v, err := identity.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err == nil {
			logger.Infof("identity: OIDC issuer %s", cfg.OIDCIssuer)
			return v, nil
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.JWTSecret != "" {
		logger.Infof("identity: HS256 gateway tokens")
		return identity.NewHS256Verifier(cfg.JWTSecret)
	}
	if cfg.AllowInsecure {
		logger.Warnf("enabling insecure token verifier (integration mode)")
		return identity.NewInsecureVerifier(), nil
	}
	return nil, errors.New("no token verifier configured (set OIDC_ISSUER, JWT_SECRET or ALLOW_INSECURE_TOKEN)")
}
