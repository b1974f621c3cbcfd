package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/memfeed"
	"github.com/example/video-platform/internal/feed/pgfeed"
	"github.com/example/video-platform/internal/platform/analytics"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/internal/platform/config"
	"github.com/example/video-platform/internal/platform/db"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/idempotency"
	"github.com/example/video-platform/internal/platform/logging"
	"github.com/example/video-platform/internal/platform/metrics"
	"github.com/example/video-platform/internal/platform/natsconn"
	"github.com/example/video-platform/internal/platform/ratelimit"
	"github.com/example/video-platform/internal/platform/run"
	catalogconfig "github.com/example/video-platform/services/catalog/internal/config"
	"github.com/example/video-platform/services/catalog/internal/handlers"
	"github.com/example/video-platform/services/catalog/internal/outbox"
	"github.com/example/video-platform/services/catalog/internal/store"
	"github.com/example/video-platform/services/catalog/internal/worker"
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
	workers := catalogconfig.LoadWorkers()

	pool := initPool(cfg, log)
	if pool != nil {
		defer pool.Close()
	}
	catalog, backend := initCatalog(pool, log)
	observe := feed.WithObserver(m)

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

	var (
		publisher *analytics.Publisher
		views     handlers.ViewRecorder = worker.Direct{Store: catalog}
		js        nats.JetStreamContext
	)
	if nc, j := initJetStream(cfg, log); nc != nil {
		defer nc.Close()
		js = j
		publisher = analytics.New(js, log)
		views = worker.Publisher{JS: js}
	}

	videos := handlers.Videos{
		Store:       catalog,
		Feed:        feed.New(backend, store.VideoResource(), observe),
		Search:      feed.New(backend, store.SearchResource(), observe),
		Suggestions: feed.New(backend, store.SuggestionResource(), observe),
		Views:       views,
		Analytics:   publisher,
		Log:         log,
	}
	subscriptions := handlers.Subscriptions{
		Store:     catalog,
		Feed:      feed.New(backend, store.SubscriptionResource(), observe),
		Analytics: publisher,
		Log:       log,
	}
	playlists := handlers.Playlists{
		Store:     catalog,
		Feed:      feed.New(backend, store.PlaylistResource(), observe),
		Items:     feed.New(backend, store.PlaylistVideoResource(), observe),
		History:   feed.New(backend, store.HistoryResource(), observe),
		Liked:     feed.New(backend, store.LikedResource(), observe),
		Analytics: publisher,
		Log:       log,
	}
	categories := handlers.Categories{Store: catalog, Log: log}
	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{Metrics: m, ReadyFunc: readyFunc(pool)})

	// Public reads; a valid token adds the viewer
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		r.Get("/v1/videos", videos.List())
		r.Get("/v1/videos/{id}", videos.Get)
		r.Get("/v1/videos/{id}/suggestions", videos.SuggestionList)
		r.Get("/v1/search", videos.SearchList())
		r.Get("/v1/categories", categories.List)
	})

	// Viewer-owned reads
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/subscriptions", subscriptions.List())
		r.Get("/v1/playlists", playlists.List())
		r.Get("/v1/playlists/history", playlists.HistoryList())
		r.Get("/v1/playlists/liked", playlists.LikedList())
		r.Get("/v1/playlists/{id}", playlists.Get)
		r.Get("/v1/playlists/{id}/videos", playlists.Videos())
	})

	// Mutations
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(ratelimit.Middleware(limiter, m))
		r.Post("/v1/videos", videos.Create)
		r.Patch("/v1/videos/{id}", videos.Update)
		r.Post("/v1/videos/{id}/like", videos.React(store.ReactionLike))
		r.Post("/v1/videos/{id}/dislike", videos.React(store.ReactionDislike))
		r.Post("/v1/videos/{id}/views", videos.RecordView)
		r.Post("/v1/subscriptions/{creator_id}", subscriptions.Subscribe)
		r.Delete("/v1/subscriptions/{creator_id}", subscriptions.Unsubscribe)
		r.Post("/v1/playlists", playlists.Create)
		r.Delete("/v1/playlists/{id}", playlists.Delete)
		r.Post("/v1/playlists/{id}/videos/{video_id}", playlists.AddVideo)
		r.Delete("/v1/playlists/{id}/videos/{video_id}", playlists.RemoveVideo)
		r.With(auth.RequireAdmin).Post("/v1/categories", categories.Create)
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Router: r})

	var consumer *worker.Consumer
	if js != nil {
		idem, err := idempotency.NewStore(idempotency.Options{
			Namespace: cfg.ServiceName,
			Redis:     rdb,
			Pool:      pool,
			TTL:       cfg.IdempotencyTTL,
			IsProd:    cfg.IsProduction(),
		})
		if err != nil {
			log.Error("idempotency store", zap.Error(err))
			run.Exit(1)
		}
		consumer = &worker.Consumer{
			JS:        js,
			Store:     catalog,
			Idem:      idem,
			Metrics:   m,
			Log:       logging.Component(log, "views-consumer"),
			BatchSize: workers.ViewsBatchSize,
			MaxWait:   workers.ViewsMaxWait,
		}
	}

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if consumer != nil {
			runner.Go(ctx, "views-consumer", consumer.Run)
		}
		if js != nil && pool != nil {
			ob := &outbox.Publisher{
				Log:          logging.Component(log, "outbox-publisher"),
				DB:           pool,
				JS:           js,
				BatchSize:    workers.OutboxBatchSize,
				PollInterval: workers.OutboxPollInterval,
			}
			runner.Go(ctx, "outbox-publisher", ob.Run)
		}
		return srv.Start(log)
	})
	runner.Graceful(srv.Shutdown)

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initPool connects to Postgres. Outside production a missing or broken
// database falls back to in-memory stores.
func initPool(cfg config.AppConfig, log *zap.Logger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			log.Error("DATABASE_URL is required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("DATABASE_URL not set, using in-memory catalog store (development only)")
		return nil
	}
	pool, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory catalog store", zap.Error(err))
		return nil
	}
	return pool
}

// initCatalog selects the CatalogStore and the feed backend listing it.
func initCatalog(pool *pgxpool.Pool, log *zap.Logger) (store.CatalogStore, feed.Backend) {
	if pool == nil {
		cs := store.NewInMemoryCatalogStore()
		b := memfeed.New()
		cs.Register(b)
		return cs, b
	}
	log.Info("catalog store: postgres")
	return store.NewPostgresCatalogStore(pool), pgfeed.New(pool, store.Schema)
}

func initRedis(cfg config.AppConfig, log *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, rate limiting and de-duplication are per process")
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL, rate limiting and de-duplication are per process", zap.Error(err))
		return nil
	}
	return redis.NewClient(opt)
}

// initJetStream connects to NATS and provisions the analytics and catalog
// streams. Without NATS views are written directly and the outbox stays
// unpublished until a later run.
func initJetStream(cfg config.AppConfig, log *zap.Logger) (*nats.Conn, nats.JetStreamContext) {
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
	if err != nil {
		log.Warn("nats unavailable, recording views synchronously", zap.Error(err))
		return nil, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Warn("jetstream unavailable, recording views synchronously", zap.Error(err))
		nc.Close()
		return nil, nil
	}
	if err := natsconn.EnsureStream(js, natsconn.StreamSpec{Name: "ANALYTICS", Subjects: []string{"analytics.>"}}); err != nil {
		log.Warn("analytics stream setup failed", zap.Error(err))
	}
	if err := natsconn.EnsureStream(js, outbox.Stream); err != nil {
		log.Warn("catalog stream setup failed, recording views synchronously", zap.Error(err))
		nc.Close()
		return nil, nil
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
