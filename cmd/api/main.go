package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/identity-api/internal/config"
	"github.com/yourusername/identity-api/internal/handler"
	"github.com/yourusername/identity-api/internal/middleware"
	pgRepo "github.com/yourusername/identity-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/identity-api/internal/repository/redis"
	"github.com/yourusername/identity-api/internal/service"
	"github.com/yourusername/identity-api/internal/session"
	"github.com/yourusername/identity-api/pkg/database"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Loading configuration from %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Repositories
	userRepo := pgRepo.NewUserRepo(db)
	linkRepo := pgRepo.NewLinkRepo(db)
	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	sessionStore, err := session.NewRedisStore(redisClient, time.Duration(cfg.Session.TTLHours)*time.Hour)
	if err != nil {
		log.Printf("Failed to initialize session store: %v", err)
		os.Exit(1)
	}

	// Identity providers
	var providers []service.Provider
	if cfg.Providers.Google.ClientID != "" {
		google, err := service.NewGoogleOIDCProvider(cfg.Providers.Google)
		if err != nil {
			log.Printf("Failed to initialize Google provider: %v", err)
			os.Exit(1)
		}
		providers = append(providers, google)
	}
	if cfg.Providers.Facebook.AppID != "" {
		facebook, err := service.NewFacebookGraphProvider(cfg.Providers.Facebook)
		if err != nil {
			log.Printf("Failed to initialize Facebook provider: %v", err)
			os.Exit(1)
		}
		providers = append(providers, facebook)
	}
	if len(providers) == 0 {
		log.Printf("No identity providers configured (set GOOGLE_CLIENT_ID and/or FACEBOOK_APP_ID)")
		os.Exit(1)
	}
	registry := service.NewProviderRegistry(providers...)
	log.Printf("Configured identity providers: %v", registry.Tags())

	// Email
	var emailService service.EmailService = &service.NoopEmailService{}
	if cfg.Email.Enabled && cfg.Email.ResendAPIKey != "" {
		resendService, err := service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			log.Printf("Failed to initialize email service: %v", err)
			os.Exit(1)
		}
		emailService = resendService
	}

	// Services
	linkService, err := service.NewLinkService(userRepo, linkRepo, registry)
	if err != nil {
		log.Printf("Failed to initialize LinkService: %v", err)
		os.Exit(1)
	}
	resolver, err := service.NewAuthResolver(userRepo, linkRepo, linkService, registry, cfg.Auth)
	if err != nil {
		log.Printf("Failed to initialize AuthResolver: %v", err)
		os.Exit(1)
	}
	registration, err := service.NewRegistrationService(userRepo, linkService, registry, cacheRepo, emailService, cfg.Auth)
	if err != nil {
		log.Printf("Failed to initialize RegistrationService: %v", err)
		os.Exit(1)
	}
	accounts, err := service.NewAccountService(userRepo, linkService)
	if err != nil {
		log.Printf("Failed to initialize AccountService: %v", err)
		os.Exit(1)
	}
	reports, err := service.NewReportService(linkRepo, userRepo)
	if err != nil {
		log.Printf("Failed to initialize ReportService: %v", err)
		os.Exit(1)
	}
	throttle := service.NewLoginThrottle(cfg.Auth.MaxLoginErrors)

	// HTTP layer
	isProduction := gin.Mode() == gin.ReleaseMode
	sessionMW := middleware.NewSessionMiddleware(sessionStore, isProduction)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	authHandler := handler.NewAuthHandler(resolver, registration, throttle, registry, accounts)
	linkHandler := handler.NewLinkHandler(linkService, registry, authHandler)
	adminHandler := handler.NewAdminHandler(reports, linkService)

	router := gin.Default()

	// Trusted proxy setup keeps c.ClientIP() honest for the rate limiter.
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.SessionHeader, middleware.AdminHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	api.Use(sessionMW.Attach())
	{
		authGroup := api.Group("/auth")
		{
			strict := rateLimiter.Limit(middleware.StrictAuthRateLimitConfig())
			authGroup.POST("/:provider/login", strict, authHandler.Login)
			authGroup.POST("/:provider/register", strict, authHandler.Register)
			authGroup.POST("/activate", rateLimiter.Limit(middleware.DefaultAuthRateLimitConfig()), authHandler.Activate)
			authGroup.GET("/:provider/login-errors", authHandler.LoginErrors)
			authGroup.POST("/logout", authHandler.Logout)
		}

		me := api.Group("/me")
		me.Use(sessionMW.RequireAuth())
		{
			me.GET("", authHandler.GetMe)
			me.DELETE("", authHandler.DeleteMe)
			me.GET("/connections", linkHandler.List)
			me.POST("/connections/:provider", linkHandler.Connect)
			me.DELETE("/connections/:provider", linkHandler.Disconnect)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AdminOnly(cfg.Server.AdminAPIToken))
		{
			admin.GET("/links/export", adminHandler.ExportLinksXLSX)
			admin.GET("/accounts/:id/links", adminHandler.AccountLinks)
			admin.POST("/accounts/:id/disconnect", adminHandler.DisconnectAccount)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
