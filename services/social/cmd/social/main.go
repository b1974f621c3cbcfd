package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/memfeed"
	"github.com/example/video-platform/internal/feed/pgfeed"
	"github.com/example/video-platform/internal/platform/analytics"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/internal/platform/config"
	"github.com/example/video-platform/internal/platform/db"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/logging"
	"github.com/example/video-platform/internal/platform/metrics"
	"github.com/example/video-platform/internal/platform/natsconn"
	"github.com/example/video-platform/internal/platform/ratelimit"
	"github.com/example/video-platform/internal/platform/run"
	"github.com/example/video-platform/services/social/internal/grpcapi"
	"github.com/example/video-platform/services/social/internal/handlers"
	"github.com/example/video-platform/services/social/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	base, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		panic(err)
	}
	log := logging.ForService(base, cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()

	m := metrics.New(cfg.ServiceName)

	pool := initPool(cfg, log)
	if pool != nil {
		defer pool.Close()
	}
	comments, backend := initComments(pool, log)
	engine := feed.New(backend, store.CommentResource(), feed.WithObserver(m))

	rdb := initRedis(cfg, log)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	limiter := ratelimit.New(ratelimit.Options{
		Prefix: cfg.ServiceName,
		Limit:  cfg.RateLimit.Limit,
		Window: cfg.RateLimit.Window,
		Redis:  rdb,
		Logger: log,
	})

	var publisher *analytics.Publisher
	if nc, js := initJetStream(cfg, log); nc != nil {
		defer nc.Close()
		publisher = analytics.New(js, log)
	}

	h := handlers.Comments{Store: comments, Feed: engine, Analytics: publisher, Log: log}
	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{Metrics: m, ReadyFunc: readyFunc(pool)})

	// Comment routes (public read, auth required for write)
	r.With(auth.OptionalUser(verifier)).Get("/v1/videos/{video_id}/comments", h.List())
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(ratelimit.Middleware(limiter, m))
		r.Post("/v1/videos/{video_id}/comments", h.Create)
		r.Delete("/v1/comments/{comment_id}", h.Delete)
		r.Post("/v1/comments/{comment_id}/like", h.React(store.ReactionLike))
		r.Post("/v1/comments/{comment_id}/dislike", h.React(store.ReactionDislike))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Router: r})

	// gRPC server
	grpcAddr := cfg.GRPC.Addr
	if grpcAddr == "" {
		grpcAddr = ":9090"
	}
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	grpcapi.RegisterFeedServer(grpcSrv, &grpcapi.FeedService{Comments: engine, Verifier: verifier, Log: log})
	hs := health.NewServer()
	hs.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", grpcAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		return srv.Start(log)
	})

	hs.Shutdown()
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(runner.ShutdownTimeout):
		grpcSrv.Stop()
	}
	runner.Graceful(srv.Shutdown)

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initPool connects to Postgres. Outside production a missing or broken
// database falls back to in-memory stores.
func initPool(cfg config.AppConfig, log *zap.Logger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory comment store (development only)")
		return nil
	}
	pool, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory comment store", zap.Error(err))
		return nil
	}
	return pool
}

// initComments selects the CommentStore and the feed backend listing it.
func initComments(pool *pgxpool.Pool, log *zap.Logger) (store.CommentStore, feed.Backend) {
	if pool == nil {
		cs := store.NewInMemoryCommentStore()
		b := memfeed.New()
		cs.Register(b)
		return cs, b
	}
	log.Info("comments store: postgres")
	return store.NewPostgresCommentStore(pool), pgfeed.New(pool, store.Schema)
}

func initRedis(cfg config.AppConfig, log *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, rate limiting is per process")
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL, rate limiting is per process", zap.Error(err))
		return nil
	}
	return redis.NewClient(opt)
}

// initJetStream connects to NATS for analytics; failures are non-fatal.
func initJetStream(cfg config.AppConfig, log *zap.Logger) (*nats.Conn, nats.JetStreamContext) {
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
	if err != nil {
		log.Warn("nats unavailable, analytics disabled", zap.Error(err))
		return nil, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Warn("jetstream unavailable, analytics disabled", zap.Error(err))
		nc.Close()
		return nil, nil
	}
	if err := natsconn.EnsureStream(js, natsconn.StreamSpec{Name: "ANALYTICS", Subjects: []string{"analytics.>"}}); err != nil {
		log.Warn("analytics stream setup failed", zap.Error(err))
	}
	return nc, js
}

func readyFunc(pool *pgxpool.Pool) func() error {
	if pool == nil {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
}
