package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"cloudrent/api/internal/api/handlers"
	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/cache"
	"cloudrent/api/internal/config"
	"cloudrent/api/internal/crypto"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient) *gin.Engine {
	// Services needed by the API handlers.
	userService := services.NewUserService(db)
	computerCache := cache.NewComputerCache(rdb, cfg.GetCacheTTL)
	computerService := services.NewComputerService(db, cfg, computerCache)
	conversationService := services.NewConversationService(db, cfg)

	fieldCipher, err := crypto.NewFieldCipher(cfg.AccessCryptKey)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize access credential cipher: %v", err)
	}
	rentalService := services.NewRentalService(db, cfg, fieldCipher)

	storageService, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
	}

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(rateLimiter.Limit())

	userHandler := handlers.NewUserHandler(cfg, userService)
	computerHandler := handlers.NewComputerHandler(cfg, computerService, storageService, taskClient)
	rentalHandler := handlers.NewRentalHandler(rentalService)
	conversationHandler := handlers.NewConversationHandler(conversationService, taskClient)

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		// Public routes. Browsing the marketplace requires no account.
		apiGroup.POST("/users/register", userHandler.Register)
		apiGroup.POST("/users/login", userHandler.Login)
		apiGroup.GET("/computers", computerHandler.List)
		apiGroup.GET("/computers/:id", computerHandler.Get)

		authRequired := apiGroup.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/users/me", userHandler.Me)

			authRequired.POST("/computers", computerHandler.Create)
			authRequired.PUT("/computers/:id", computerHandler.Update)
			authRequired.DELETE("/computers/:id", computerHandler.Delete)
			authRequired.POST("/computers/:id/reviews", computerHandler.AddReview)
			authRequired.POST("/computers/:id/photos", computerHandler.UploadPhoto)
			authRequired.PUT("/computers/:id/maintenance", computerHandler.SetMaintenance)

			authRequired.POST("/rentals", rentalHandler.Create)
			authRequired.GET("/rentals", rentalHandler.List)
			authRequired.GET("/rentals/:id", rentalHandler.Get)
			authRequired.PUT("/rentals/:id", rentalHandler.UpdateStatus)
			authRequired.PUT("/rentals/:id/access", rentalHandler.SetAccessDetails)

			authRequired.GET("/conversations", conversationHandler.List)
			authRequired.POST("/conversations", conversationHandler.GetOrCreate)
			authRequired.GET("/conversations/unread", conversationHandler.Unread)
			authRequired.GET("/conversations/:id", conversationHandler.Get)
			authRequired.GET("/conversations/:id/messages", conversationHandler.GetMessages)
			authRequired.POST("/conversations/:id/messages", conversationHandler.SendMessage)
			authRequired.PUT("/conversations/:id/read", conversationHandler.MarkRead)
		}
	}

	return r
}
