package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/auth"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/config"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/database"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/drafting"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/events"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/generation"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/health"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/manuscripts"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/templates"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if cfg.EncryptionKey != "" {
		if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
			log.Fatalf("Failed to initialize token encryption: %v", err)
		}
	}

	if cfg.Env == "development" {
		if err := database.SeedDevData(db); err != nil {
			log.Printf("Warning: seed data failed: %v", err)
		}
	}

	registry, err := templates.InitTemplates(db, cfg.TemplateDir)
	if err != nil {
		log.Fatalf("Failed to load section templates: %v", err)
	}
	logger.Info("section templates loaded", "count", registry.Count())

	auth.InitProviders(cfg)

	draftClient := drafting.NewClient(cfg.DraftGatewayURL, cfg.DraftAPIKey, cfg.DraftModel, registry, cfg.DraftTimeout, cfg.DraftStubMode)

	var publisher *events.Publisher
	if cfg.RedisURL != "" {
		publisher, err = events.NewPublisher(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: job event publisher disabled: %v", err)
		} else {
			defer publisher.Close()
		}
	}

	enqueuer, err := worker.NewEnqueuer(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create task enqueuer: %v", err)
	}
	defer enqueuer.Close()

	store := generation.NewGormStore(db)
	gate := generation.NewBudgetGate(store)
	service := generation.NewService(store, gate, enqueuer, logger)
	service.DefaultPerJobCapUSD = cfg.DefaultPerJobCapUSD
	service.DefaultDailyBudgetUSD = cfg.DefaultDailyBudgetUSD
	service.DefaultModel = cfg.DraftModel

	orchestrator := generation.NewOrchestrator(store, draftClient, publisher, logger)

	stopWorker, err := worker.Start(cfg, db, orchestrator)
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	defer stopWorker()

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer stopScheduler()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
	})
	router.Use(sessions.Sessions("researchos_session", sessionStore))

	router.GET("/health", gin.WrapF(health.Handler))

	router.GET("/auth/:provider", auth.HandleLogin)
	router.GET("/auth/:provider/callback", auth.HandleCallback(db))
	router.GET("/logout", auth.HandleLogout)

	api := router.Group("/api")
	api.Use(auth.RequireAuth())
	{
		api.POST("/projects", manuscripts.CreateProjectHandler(db))
		api.GET("/projects", manuscripts.ListProjectsHandler(db))
		api.POST("/projects/:projectID/manuscripts", manuscripts.CreateManuscriptHandler(db))
		api.GET("/manuscripts/:manuscriptID", manuscripts.GetManuscriptHandler(db))
		api.GET("/manuscripts/:manuscriptID/export.md", manuscripts.ExportMarkdownHandler(db, registry))

		api.POST("/projects/:projectID/manuscripts/:manuscriptID/generation-jobs", generation.EnqueueHandler(service))
		api.GET("/generation-jobs/:id", generation.GetJobHandler(service))
		api.GET("/manuscripts/:manuscriptID/generation-jobs", generation.ListJobsHandler(service))
		api.POST("/generation-jobs/:id/cancel", generation.CancelJobHandler(service))
		api.POST("/generation-jobs/:id/retry", generation.RetryJobHandler(service))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
