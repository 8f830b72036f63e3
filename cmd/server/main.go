package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unitedwerise/backend/internal/ai"
	"github.com/unitedwerise/backend/internal/auth"
	"github.com/unitedwerise/backend/internal/cache"
	"github.com/unitedwerise/backend/internal/civic"
	"github.com/unitedwerise/backend/internal/config"
	"github.com/unitedwerise/backend/internal/database"
	"github.com/unitedwerise/backend/internal/email"
	"github.com/unitedwerise/backend/internal/feed"
	"github.com/unitedwerise/backend/internal/handlers"
	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/middleware"
	"github.com/unitedwerise/backend/internal/models"
	"github.com/unitedwerise/backend/internal/moderation"
	"github.com/unitedwerise/backend/internal/news"
	"github.com/unitedwerise/backend/internal/quests"
	"github.com/unitedwerise/backend/internal/reputation"
	"github.com/unitedwerise/backend/internal/security"
	"github.com/unitedwerise/backend/internal/storage"
	"github.com/unitedwerise/backend/internal/telemetry"
	"github.com/unitedwerise/backend/internal/topics"
	"github.com/unitedwerise/backend/internal/vector"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== UnitedWeRise backend starting ===")

	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Redis backs rate limiting and the topic/feed/civic caches. The server
	// runs without it, with those layers degrading to direct computation.
	if _, err := cache.NewRedisClient(
		os.Getenv("REDIS_HOST"),
		os.Getenv("REDIS_PORT"),
		os.Getenv("REDIS_PASSWORD"),
	); err != nil {
		logger.Log.Warn("Redis unavailable, caching and rate limiting degraded", zap.Error(err))
	}

	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "unitedwerise-backend",
		Environment:  os.Getenv("ENVIRONMENT"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		Enabled:      os.Getenv("OTLP_ENDPOINT") != "",
		SamplingRate: 1.0,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}

	oauthCfg, err := config.LoadOAuthConfig()
	if err != nil {
		logger.Log.Warn("Google OAuth not configured", zap.Error(err))
		oauthCfg = &config.OAuthConfig{}
	}
	authService := auth.NewService(jwtSecret, oauthCfg.GoogleConfig)

	aiClient, err := ai.NewClientFromEnv()
	if err != nil {
		logger.Log.Warn("Azure OpenAI not configured, moderation and topics degraded", zap.Error(err))
	}

	var vectors *vector.Index
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		dims, _ := strconv.ParseUint(os.Getenv("QDRANT_DIMS"), 10, 64)
		if dims == 0 {
			dims = 1536
		}
		vectors, err = vector.NewIndex(vector.Config{
			URL:        qdrantURL,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			Collection: "posts",
			Dims:       dims,
		})
		if err != nil {
			logger.Log.Warn("Qdrant unavailable, semantic features degraded", zap.Error(err))
		} else {
			defer vectors.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := vectors.EnsureCollection(ctx); err != nil {
				logger.Log.Warn("Qdrant collection setup failed", zap.Error(err))
			}
			cancel()
		}
	}

	var uploader *storage.S3Uploader
	if os.Getenv("AWS_BUCKET") != "" {
		uploader, err = storage.NewS3Uploader(
			os.Getenv("AWS_REGION"),
			os.Getenv("AWS_BUCKET"),
			os.Getenv("CDN_BASE_URL"),
		)
		if err != nil {
			logger.Log.Warn("S3 unavailable, photo uploads disabled", zap.Error(err))
		}
	}

	var emailService *email.EmailService
	if os.Getenv("SES_FROM_EMAIL") != "" {
		emailService, err = email.NewEmailService(
			os.Getenv("AWS_REGION"),
			os.Getenv("SES_FROM_EMAIL"),
			"UnitedWeRise",
			os.Getenv("FRONTEND_BASE_URL"),
		)
		if err != nil {
			logger.Log.Warn("SES unavailable, transactional email disabled", zap.Error(err))
		}
	}

	var newsProviders []news.Provider
	if key := os.Getenv("NEWSAPI_KEY"); key != "" {
		newsProviders = append(newsProviders, news.NewNewsAPIClient(key, ""))
	}
	if token := os.Getenv("THENEWSAPI_TOKEN"); token != "" {
		newsProviders = append(newsProviders, news.NewTheNewsAPIClient(token, ""))
	}

	var geocoder civic.Geocoder
	if key := os.Getenv("GEOCODIO_API_KEY"); key != "" {
		geocoder = civic.NewClient(key, "")
	}

	reputationService := reputation.NewService(database.DB)
	moderationService := moderation.NewService(database.DB, aiClient, reputationService)
	topicsService := topics.NewService(database.DB, aiClient)
	feedService := feed.NewService(database.DB, aiClient, vectors)
	securityService := security.NewService(database.DB)
	newsService := news.NewService(database.DB, newsProviders...)
	civicService := civic.NewService(database.DB, geocoder)
	questsService := quests.NewService(database.DB, reputationService)

	h := handlers.New(handlers.Config{
		Auth:       authService,
		Reputation: reputationService,
		Moderation: moderationService,
		Topics:     topicsService,
		Feed:       feedService,
		Security:   securityService,
		News:       newsService,
		Civic:      civicService,
		Quests:     questsService,
		AIClient:   aiClient,
		Vectors:    vectors,
		Uploader:   uploader,
		Email:      emailService,
	})

	stopBackground := startBackgroundJobs(newsService, questsService)
	defer stopBackground()

	r := buildRouter(h, authService, securityService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

// startBackgroundJobs runs the news refresh/prune cycle and seeds each
// day's quest templates. Returns a stop function.
func startBackgroundJobs(newsService *news.Service, questsService *quests.Service) func() {
	done := make(chan struct{})

	go func() {
		// Make today's quests available immediately on boot
		if err := questsService.EnsureDailyQuests(time.Now()); err != nil {
			logger.Log.Warn("Daily quest setup failed", zap.Error(err))
		}

		newsTicker := time.NewTicker(30 * time.Minute)
		dailyTicker := time.NewTicker(1 * time.Hour)
		defer newsTicker.Stop()
		defer dailyTicker.Stop()

		for {
			select {
			case <-newsTicker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if stored, err := newsService.Refresh(ctx, nil); err != nil {
					logger.Log.Warn("News refresh failed", zap.Error(err))
				} else {
					logger.Log.Info("News refreshed", zap.Int("stored", stored))
				}
				cancel()
			case <-dailyTicker.C:
				if err := questsService.EnsureDailyQuests(time.Now()); err != nil {
					logger.Log.Warn("Daily quest setup failed", zap.Error(err))
				}
				if pruned, err := newsService.Prune(); err != nil {
					logger.Log.Warn("News prune failed", zap.Error(err))
				} else if pruned > 0 {
					logger.Log.Info("Old news pruned", zap.Int64("removed", pruned))
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}

func buildRouter(h *handlers.Handlers, authService *auth.Service, securityService *security.Service) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.TracingMiddleware("unitedwerise-backend"))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.IPBlockMiddleware(securityService))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	rateLimited := middleware.RedisRateLimitMiddleware(300, time.Minute, func(c *gin.Context) {
		_, _ = securityService.RecordEvent(security.Event{
			Type:      models.SecurityRateLimited,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Severity:  "warning",
		})
	})
	r.Use(rateLimited)

	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := database.Health(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "unitedwerise-backend",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
			authGroup.GET("/google", h.GoogleLogin)
			authGroup.GET("/google/callback", h.GoogleCallback)
			authGroup.POST("/reset-password", h.RequestPasswordReset)
			authGroup.POST("/reset-password/confirm", h.ConfirmPasswordReset)
			authGroup.POST("/verify-email", h.VerifyEmail)

			authGroup.GET("/me", middleware.AuthMiddleware(authService), h.Me)
			authGroup.POST("/verify-email/resend", middleware.AuthMiddleware(authService), h.ResendVerification)

			totp := authGroup.Group("/totp")
			{
				totp.Use(middleware.AuthMiddleware(authService))
				totp.POST("/enroll", h.EnrollTOTP)
				totp.POST("/confirm", h.ConfirmTOTP)
				totp.POST("/verify", h.VerifyTOTP)
				totp.POST("/disable", h.DisableTOTP)
			}
		}

		users := api.Group("/users")
		{
			users.Use(middleware.AuthMiddleware(authService))
			users.GET("/:id", h.GetProfile)
			users.PUT("/me", h.UpdateProfile)
			users.GET("/me/district", h.GetDistrict)
			users.GET("/:id/posts", h.ListUserPosts)
			users.GET("/:id/reputation", h.GetReputation)
			users.POST("/:id/follow", h.FollowUser)
			users.DELETE("/:id/follow", h.UnfollowUser)
			users.GET("/:id/followers", h.ListFollowers)
			users.GET("/:id/following", h.ListFollowing)
			users.POST("/:id/block", h.BlockUser)
			users.DELETE("/:id/block", h.UnblockUser)
		}

		posts := api.Group("/posts")
		{
			posts.Use(middleware.AuthMiddleware(authService))
			posts.POST("", h.CreatePost)
			posts.GET("", h.ListPosts)
			posts.GET("/:id", h.GetPost)
			posts.DELETE("/:id", h.DeletePost)
			posts.POST("/:id/like", h.LikePost)
			posts.DELETE("/:id/like", h.UnlikePost)
			posts.POST("/:id/report", h.ReportPost)
			posts.POST("/:id/comments", h.CreateComment)
			posts.GET("/:id/comments", h.ListComments)
		}

		comments := api.Group("/comments")
		{
			comments.Use(middleware.AuthMiddleware(authService))
			comments.PUT("/:id", h.UpdateComment)
			comments.DELETE("/:id", h.DeleteComment)
		}

		api.POST("/photos", middleware.AuthMiddleware(authService), h.UploadPhoto)

		api.GET("/feed", middleware.AuthMiddleware(authService), h.GetFeed)

		api.GET("/topics/trending", middleware.OptionalAuthMiddleware(authService), h.TrendingTopics)
		api.GET("/news", middleware.OptionalAuthMiddleware(authService), h.ListNews)

		questsGroup := api.Group("/quests")
		{
			questsGroup.Use(middleware.AuthMiddleware(authService))
			questsGroup.GET("/today", h.TodayQuests)
			questsGroup.GET("/streak", h.GetStreak)
		}

		admin := api.Group("/admin")
		{
			admin.Use(middleware.AuthMiddleware(authService), middleware.RequireAdmin())
			admin.GET("/dashboard", h.AdminDashboard)
			admin.GET("/moderation/queue", h.ModerationQueue)
			admin.POST("/moderation/posts/:id/resolve", h.ResolveReview)
			admin.POST("/reports/:id/resolve", h.ResolveReport)
			admin.POST("/users/:id/reputation", h.AdjustReputation)
			admin.GET("/users/:id/reputation", h.ReputationHistory)
			admin.GET("/users/:id/risk", h.UserRiskScore)
			admin.POST("/reputation/events/:id/restore", h.RestoreReputationAppeal)
			admin.GET("/security/events", h.SecurityEvents)
			admin.GET("/security/blocks", h.ListIPBlocks)
			admin.POST("/security/blocks", h.CreateIPBlock)
			admin.DELETE("/security/blocks/:id", h.DeleteIPBlock)
			admin.POST("/topics/refresh", h.RefreshTopics)
			admin.POST("/news/refresh", h.RefreshNews)
		}
	}

	return r
}
