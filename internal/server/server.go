package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marcho78/prompt2json/internal/config"
	"github.com/marcho78/prompt2json/internal/handler"
	"github.com/marcho78/prompt2json/internal/middleware"
	"github.com/marcho78/prompt2json/internal/quota"
	"github.com/marcho78/prompt2json/internal/repository"
	"github.com/marcho78/prompt2json/internal/service"
	"github.com/marcho78/prompt2json/internal/storage"
)

type Server struct {
	router      *gin.Engine
	config      *config.Config
	redis       *storage.RedisClient
	postgres    *storage.Postgres
	ledger      *quota.Ledger
	authService *service.AuthService
	httpServer  *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Counter store backing the quota ledger. Redis in deployment; the
	// in-process store keeps single-node setups and local development
	// running without one.
	var store quota.Store
	if cfg.RateLimit.Store == "memory" || redis == nil {
		store = quota.NewMemoryStore()
		log.Println("Using in-memory counter store")
	} else {
		store = quota.NewRedisStore(redis)
	}

	ledger := quota.NewLedger(store, cfg.RateLimit.Quota)

	userRepo := repository.NewUserRepository(postgres)
	promptRepo := repository.NewPromptRepository(postgres)
	logRepo := repository.NewRequestLogRepository(postgres)

	authService := service.NewAuthService(userRepo, redis, cfg.Auth.JWTSecret, cfg.Auth.ExpiryHours)
	generator := service.NewPromptGenerator()
	analyticsService := service.NewAnalyticsService(postgres, logRepo)

	s := &Server{
		router:      router,
		config:      cfg,
		redis:       redis,
		postgres:    postgres,
		ledger:      ledger,
		authService: authService,
	}

	authHandler := handler.NewAuthHandler(authService)
	promptHandler := handler.NewPromptHandler(generator, ledger, promptRepo, cfg.RateLimit.Quota)
	usageHandler := handler.NewUsageHandler(ledger)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	healthHandler := handler.NewHealthHandler(store, postgres)

	s.setupMiddleware()
	s.setupRoutes(authHandler, promptHandler, usageHandler, analyticsHandler, healthHandler)

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogger())
}

func (s *Server) setupRoutes(
	auth *handler.AuthHandler,
	prompt *handler.PromptHandler,
	usage *handler.UsageHandler,
	analytics *handler.AnalyticsHandler,
	health *handler.HealthHandler,
) {
	s.router.GET("/health", health.Check)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/register", auth.Register)
		v1.POST("/auth/login", auth.Login)

		// Prompt operations serve anonymous and registered callers alike;
		// a valid token only switches the quota tier.
		open := v1.Group("")
		open.Use(middleware.OptionalAuth(s.authService))
		{
			open.POST("/generate-prompt", prompt.Generate)
			open.POST("/batch-generate", prompt.BatchGenerate)
			open.POST("/optimize-prompt", prompt.Optimize)
			open.POST("/convert-prompt", prompt.Convert)
			open.POST("/merge-prompts", prompt.Merge)
			open.POST("/test-prompt", prompt.Test)
			open.POST("/analyze-prompt", prompt.Analyze)
			open.GET("/usage", usage.Get)
			open.GET("/usage/simple", usage.GetSimple)
			open.GET("/templates", prompt.Templates)
		}

		authed := v1.Group("")
		authed.Use(middleware.RequireAuth(s.authService))
		{
			authed.GET("/auth/me", auth.Me)
			authed.GET("/prompts", prompt.List)
			authed.GET("/prompts/:id", prompt.Get)
			authed.DELETE("/prompts/:id", prompt.Delete)
		}
	}

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService))
	{
		admin.GET("/users", auth.ListUsers)
		admin.GET("/analytics", analytics.GetSummary)
		admin.GET("/analytics/timeseries", analytics.GetTimeSeries)
		admin.GET("/analytics/users/:id", analytics.GetUserStats)
		admin.GET("/logs", analytics.GetLogs)
	}
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting prompt2json API on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
