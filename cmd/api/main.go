package main

import (
	"context"
	"log"

	"grant-review-api/config"
	"grant-review-api/controllers"
	"grant-review-api/middleware"
	"grant-review-api/routes"
	"grant-review-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET is required")
	}

	logCloser, logWriter := config.InitLogging(cfg.Log)
	defer logCloser.Close()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	var cache services.StatsCache
	rdb, err := config.NewRedis(context.Background(), cfg.Redis)
	switch {
	case err != nil:
		log.Printf("Warning: %v; falling back to in-memory dashboard cache", err)
	case rdb != nil:
		defer rdb.Close()
		cache = services.NewRedisStatsCache(rdb)
		log.Printf("📦 Dashboard cache backed by redis at %s", cfg.Redis.Addr)
	}

	opts := services.DispatcherOptions{BaseURL: cfg.AppBaseURL}
	if mailer := config.NewMailer(cfg.SMTP); mailer != nil {
		opts.Mailer = mailer
	} else {
		log.Println("SMTP not configured, notifications are in-app only")
	}
	dispatcher := services.NewNotificationDispatcher(db, opts)

	bus := services.NewEventBus()
	bus.Subscribe(dispatcher)

	assignments := services.NewAssignmentService(db)
	h := &controllers.Handlers{
		DB:            db,
		JWTSecret:     []byte(cfg.JWTSecret),
		TokenTTL:      cfg.JWTExpire,
		Grants:        services.NewGrantService(db, bus, nil),
		Proposals:     services.NewProposalService(db, nil),
		Workflow:      services.NewWorkflowEngine(db, bus, assignments, nil),
		Assignments:   assignments,
		Notifications: services.NewNotificationService(db),
		Templates:     services.NewTemplateService(db, nil),
		Queries:       services.NewQueryService(db, cache, cfg.StatsTTL, nil),
	}

	if cfg.GinMode == gin.ReleaseMode || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logWriter

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	routes.SetupRoutes(router, h)

	log.Printf("🚀 Server starting on port %s", cfg.ServerPort)
	if cfg.IsProduction() {
		log.Printf("🏭 Running in production mode")
	} else {
		log.Printf("🔧 Running in development mode")
	}

	if err := router.Run(":" + cfg.ServerPort); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
}
