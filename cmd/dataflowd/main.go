package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duragraph/dataflow/cmd/dataflowd/config"
	"github.com/duragraph/dataflow/internal/application/runmanager"
	"github.com/duragraph/dataflow/internal/infrastructure/auth"
	"github.com/duragraph/dataflow/internal/infrastructure/http/handlers"
	"github.com/duragraph/dataflow/internal/infrastructure/http/middleware"
	"github.com/duragraph/dataflow/internal/infrastructure/isolation"
	"github.com/duragraph/dataflow/internal/infrastructure/messaging/nats"
	"github.com/duragraph/dataflow/internal/infrastructure/monitoring"
	"github.com/duragraph/dataflow/internal/infrastructure/pipelinestore"
	"github.com/duragraph/dataflow/internal/infrastructure/pipelinestore/cache"
	"github.com/duragraph/dataflow/internal/infrastructure/pipelinestore/postgres"
	"github.com/duragraph/dataflow/internal/infrastructure/streaming"
	"github.com/duragraph/dataflow/internal/pkg/eventbus"

	// Registers the built-in element kinds (cron_source, ...) with the
	// pipeline registry as a side effect of import.
	_ "github.com/duragraph/dataflow/internal/infrastructure/cronsource"
)

func main() {
	// Re-exec entrypoint: if this process was launched as a hosted worker,
	// RunWorker runs the worker routine to completion and exits here,
	// never reaching the server below.
	if isolation.RunWorker() {
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	fmt.Println("dataflowd starting")
	fmt.Printf("server: %s\n", cfg.ServerAddr())
	fmt.Printf("database: %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	fmt.Printf("nats: %s\n", cfg.NATS.URL)

	ctx := context.Background()

	dbConfig := postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}

	if err := postgres.Migrate(dbConfig); err != nil {
		log.Fatalf("failed to apply database migrations: %v", err)
	}
	fmt.Println("database migrations applied")

	pool, err := postgres.NewPool(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer postgres.Close(pool)
	fmt.Println("database connected")

	eventStore := postgres.NewEventStore(pool)
	pgRepo := postgres.NewRepository(pool, eventStore)

	redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	var repo pipelinestore.Repository = pgRepo
	if err != nil {
		log.Printf("redis unavailable, running without pipeline definition cache: %v", err)
	} else {
		repo = cache.NewCached(pgRepo, redisCache, 5*time.Minute)
		fmt.Println("redis cache connected")
	}

	logger := watermill.NewStdLogger(false, false)
	publisher, err := nats.NewPublisher(cfg.NATS.URL, logger)
	if err != nil {
		log.Fatalf("failed to create NATS publisher: %v", err)
	}
	defer publisher.Close()
	fmt.Println("nats publisher connected")

	eventBus := eventbus.New()
	bridge := streaming.NewBridge(eventBus, publisher)
	bridge.Start()

	metrics := monitoring.NewMetrics("dataflow")
	runManager := runmanager.New(eventBus, metrics)

	oauthManager := auth.NewOAuthManager(auth.OAuthConfig{
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		RedirectURL:        os.Getenv("OAUTH_REDIRECT_URL"),
		JWTSecret:          cfg.Auth.JWTSecret,
		Sessions:           newOAuthSessionStore(cfg.Auth.SessionSecret),
	})

	pipelineHandler := handlers.NewPipelineHandler(repo)
	runHandler := handlers.NewRunHandler(repo, runManager)
	systemHandler := handlers.NewSystemHandler(GetVersion().ShortVersion())

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler()

	e.Use(middleware.Logger())
	e.Use(middleware.Metrics(metrics))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/ok", systemHandler.Ok)
	e.GET("/info", systemHandler.Info)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/auth/login/:provider", func(c echo.Context) error {
		switch auth.Provider(c.Param("provider")) {
		case auth.ProviderGoogle:
			return oauthManager.LoginHandler(auth.ProviderGoogle)(c)
		case auth.ProviderGitHub:
			return oauthManager.LoginHandler(auth.ProviderGitHub)(c)
		default:
			return echo.NewHTTPError(400, "unknown provider")
		}
	})
	e.GET("/auth/callback/:provider", func(c echo.Context) error {
		switch auth.Provider(c.Param("provider")) {
		case auth.ProviderGoogle:
			return oauthManager.CallbackHandler(auth.ProviderGoogle)(c)
		case auth.ProviderGitHub:
			return oauthManager.CallbackHandler(auth.ProviderGitHub)(c)
		default:
			return echo.NewHTTPError(400, "unknown provider")
		}
	})

	api := e.Group("/api/v1")
	// Mutating endpoints additionally require the operator role; read
	// endpoints only need authentication (any authenticated viewer).
	var operatorOnly echo.MiddlewareFunc = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if cfg.Auth.Enabled {
		api.Use(middleware.RequireAuth(cfg.Auth.JWTSecret))
		operatorOnly = middleware.RequireOperator(cfg.Auth.JWTSecret)
		fmt.Println("auth enabled on /api/v1")
	}

	api.POST("/pipelines", pipelineHandler.Register, operatorOnly)
	api.GET("/pipelines/:id", pipelineHandler.Get)
	api.POST("/pipelines/:id/runs", runHandler.Start, operatorOnly)
	api.GET("/runs/:id", runHandler.Get)

	go func() {
		fmt.Printf("listening on %s\n", cfg.ServerAddr())
		if err := e.Start(cfg.ServerAddr()); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	fmt.Println("shutdown complete")
}
