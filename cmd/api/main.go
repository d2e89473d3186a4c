package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	_ "jobhub/docs" // Swagger docs
	"jobhub/internal/api"
	"jobhub/internal/config"
	"jobhub/internal/jobs"
	"jobhub/internal/lifecycle"
	"jobhub/internal/listing"
	"jobhub/internal/logger"
	"jobhub/internal/media"
	"jobhub/internal/notify"
	"jobhub/internal/presence"
	"jobhub/internal/resume"
	"jobhub/internal/storage"
)

// @title JobHub Recruiting API
// @version 1.0
// @description Job listings, applications, status transitions and notifications

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /api

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Logger.Fatalw("Invalid configuration", logger.FieldError, err)
	}

	log, err := logger.Initialize(cfg.LogJSON, cfg.LogLevel)
	if err != nil {
		logger.Logger.Fatalw("Failed to initialize logger", logger.FieldError, err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("Connecting to database...")
	db, err := storage.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("Database connection failed", logger.FieldError, err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, log); err != nil {
		log.Fatalw("Migration failed", logger.FieldError, err)
	}

	cache := newListingCache(ctx, cfg, log)

	hub := presence.NewHub(log, cfg.AllowedOrigins)
	go hub.Run(ctx)

	var publisher notify.Publisher = hub
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalw("RabbitMQ connection failed", logger.FieldError, err)
		}
		defer conn.Close()

		pub, err := presence.NewAMQPPublisher(conn, presence.DefaultExchange)
		if err != nil {
			log.Fatalw("Presence publisher setup failed", logger.FieldError, err)
		}
		defer pub.Close()

		relay, err := presence.NewRelay(conn, presence.DefaultExchange, hub, log)
		if err != nil {
			log.Fatalw("Presence relay setup failed", logger.FieldError, err)
		}
		go func() {
			if err := relay.Start(ctx); err != nil {
				log.Errorw("Presence relay stopped", logger.FieldError, err)
			}
		}()
		publisher = pub
		log.Infow("Presence relayed through RabbitMQ", "exchange", presence.DefaultExchange)
	}

	dispatcher := notify.NewDispatcher(db, publisher, notify.Options{
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
		Timeout:   cfg.NotifyTimeout,
	}, log)

	resolver := newResolver(cfg.Media, log)

	apiSrv := api.NewAPI(api.Deps{
		Store:      db,
		Engine:     lifecycle.NewEngine(db, dispatcher, cache, log),
		Reader:     lifecycle.NewReader(db, resolver, log),
		Jobs:       jobs.NewService(db, cache, log),
		Hub:        hub,
		Parser:     resume.NewParser(cfg.UploadsDir),
		Dispatcher: dispatcher,
		ApplyRate:  api.PerMinute(cfg.ApplyRatePerMinute),
		ApplyBurst: cfg.ApplyRateBurst,
		Logger:     log,
	})
	go apiSrv.RunLimiterJanitor(ctx, time.Minute)
	router := api.NewRouter(apiSrv, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // CV uploads
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Server shutdown", logger.FieldError, err)
		}
		// pending notifications are written before the database closes
		dispatcher.Close()
		close(idleConnsClosed)
	}()

	log.Infow("API server listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorw("Server failed", logger.FieldError, err)
		stop()
	}

	<-idleConnsClosed
	log.Infow("Server stopped", "notify", dispatcher.Stats())
}

func newListingCache(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) listing.Cache {
	if cfg.RedisAddr != "" {
		client, err := listing.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.Fatalw("Redis connection failed", logger.FieldError, err)
		}
		log.Infow("Listing cache backed by Redis", "addr", cfg.RedisAddr)
		return listing.NewRedisCache(client, cfg.ListingCacheTTL)
	}

	mc := listing.NewMemoryCache(cfg.ListingCacheTTL)
	go mc.RunJanitor(ctx, time.Minute)
	log.Infow("Listing cache in process")
	return mc
}

func newResolver(m config.MediaConfig, log *zap.SugaredLogger) media.Resolver {
	if !m.PresignEnabled() {
		return media.Static{BaseURL: m.PublicBaseURL}
	}
	p, err := media.NewPresigner(media.PresignerConfig{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		Region:    m.Region,
		UseSSL:    m.UseSSL,
		Expiry:    m.PresignExpiry,
	})
	if err != nil {
		log.Warnw("Media presigning disabled", logger.FieldError, err)
		return media.Static{BaseURL: m.PublicBaseURL}
	}
	log.Infow("Media URLs presigned", "bucket", m.Bucket)
	return p
}
