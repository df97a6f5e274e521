package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/courseloom/api/config"
	"github.com/courseloom/api/database"
	"github.com/courseloom/api/handlers"
	auth_handlers "github.com/courseloom/api/handlers/auth"
	cart_handlers "github.com/courseloom/api/handlers/cart"
	course_handlers "github.com/courseloom/api/handlers/course"
	enroll_handlers "github.com/courseloom/api/handlers/enroll"
	feedback_handlers "github.com/courseloom/api/handlers/feedback"
	notification_handlers "github.com/courseloom/api/handlers/notification"
	"github.com/courseloom/api/services"
	enroll_service "github.com/courseloom/api/services/enroll"
	"github.com/courseloom/api/services/events"
	"github.com/courseloom/api/services/gateway"
	"github.com/courseloom/api/services/storage"
	"github.com/courseloom/api/utils/auth"
	"github.com/courseloom/api/utils/cache"
	"github.com/courseloom/api/utils/middleware"
)

// Token lifetimes
const (
	accessTokenExpiry  = 24 * time.Hour
	refreshTokenExpiry = 7 * 24 * time.Hour
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	getEnv, err := config.Get()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	if getEnv.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := getEnv.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "courseloom-api"
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret:        getEnv.JWT_SECRET,
		Expiry:        accessTokenExpiry,
		RefreshExpiry: refreshTokenExpiry,
		Issuer:        jwtIssuer,
	})

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Redis cache for brute force protection
	redisURL := getEnv.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection will be disabled.", err)
	}

	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Payment gateway
	paymentGateway := gateway.NewRazorpayGateway(gateway.Config{
		KeyID:         getEnv.RAZORPAY_KEY_ID,
		KeySecret:     getEnv.RAZORPAY_KEY_SECRET,
		WebhookSecret: getEnv.RAZORPAY_WEBHOOK_SECRET,
	})

	// Event publisher: AMQP when configured, log fallback otherwise
	var publisher events.Publisher
	if getEnv.AMQP_URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(getEnv.AMQP_URL)
		if err != nil {
			log.Printf("Warning: Failed to connect to RabbitMQ: %v. Falling back to log publisher.", err)
			publisher = events.NewLogPublisher()
		} else {
			publisher = amqpPublisher
		}
	} else {
		publisher = events.NewLogPublisher()
	}

	// Object storage for course media (optional)
	var storageClient *storage.Client
	if getEnv.STORAGE_ACCESS_KEY != "" && getEnv.STORAGE_BUCKET != "" {
		storageClient, err = storage.NewClient(storage.Config{
			AccessKey: getEnv.STORAGE_ACCESS_KEY,
			SecretKey: getEnv.STORAGE_SECRET_KEY,
			Bucket:    getEnv.STORAGE_BUCKET,
			Region:    getEnv.STORAGE_REGION,
			Endpoint:  getEnv.STORAGE_ENDPOINT,
			CDNURL:    getEnv.STORAGE_CDN_URL,
		})
		if err != nil {
			log.Printf("Warning: Failed to initialize object storage: %v. Uploads will be disabled.", err)
		}
	}

	// Services
	notificationService := services.NewNotificationService(db)
	cartService := services.NewCartService(db)
	enrollmentStore := database.NewEnrollmentStore(db)
	enrollService := enroll_service.NewService(enrollmentStore, paymentGateway, notificationService, publisher)

	// Handlers
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, bruteForceProtection, accessTokenExpiry)
	courseHandler := course_handlers.NewCourseHandler(db, storageClient)
	enrollHandler := enroll_handlers.NewEnrollHandler(enrollService)
	cartHandler := cart_handlers.NewCartHandler(cartService)
	feedbackHandler := feedback_handlers.NewFeedbackHandler(db)
	notificationHandler := notification_handlers.NewNotificationHandler(notificationService)

	// Security middleware. The rate limiter skips the webhook path so the
	// gateway's retries are never throttled.
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}
	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", handlers.HandleCheckHealth)

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.Refresh)

	// Protected auth routes
	authGroup.Get("/me", authMiddleware.Required(), authHandler.Me)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)

	// Course catalog routes
	courses := api.Group("/courses")
	courses.Get("/", courseHandler.ListCourses)    // Public: list published courses
	courses.Get("/:id", courseHandler.GetCourse)   // Public: course details
	courses.Post("/", authMiddleware.Required(), authMiddleware.RequireRole("instructor", "admin"), courseHandler.CreateCourse)
	courses.Put("/:id", authMiddleware.Required(), courseHandler.UpdateCourse)
	courses.Post("/:id/publish", authMiddleware.Required(), courseHandler.PublishCourse)
	courses.Delete("/:id", authMiddleware.Required(), courseHandler.DeleteCourse)
	courses.Post("/:id/thumbnail", authMiddleware.Required(), courseHandler.UploadThumbnail)
	courses.Post("/:id/syllabus", authMiddleware.Required(), courseHandler.UploadSyllabus)

	// Course feedback routes
	courses.Get("/:id/feedback", feedbackHandler.ListFeedback)
	courses.Post("/:id/feedback", authMiddleware.Required(), feedbackHandler.SubmitFeedback)
	courses.Delete("/:id/feedback", authMiddleware.Required(), feedbackHandler.DeleteFeedback)

	// Enrollment & payment routes
	enrollGroup := api.Group("/enroll")
	enrollGroup.Post("/create-order", authMiddleware.Required(), enrollHandler.CreateOrder)
	enrollGroup.Post("/verify", authMiddleware.Required(), enrollHandler.VerifyPayment)
	enrollGroup.Post("/webhook", enrollHandler.Webhook) // Public: signature-authenticated
	enrollGroup.Get("/check/:courseId", authMiddleware.Required(), enrollHandler.CheckEnrollment)
	enrollGroup.Get("/my-courses", authMiddleware.Required(), enrollHandler.MyCourses)

	// Cart routes (protected)
	cartGroup := api.Group("/cart", authMiddleware.Required())
	cartGroup.Get("/", cartHandler.GetCart)
	cartGroup.Post("/", cartHandler.AddToCart)
	cartGroup.Delete("/:courseId", cartHandler.RemoveFromCart)

	// Wishlist routes (protected)
	wishlistGroup := api.Group("/wishlist", authMiddleware.Required())
	wishlistGroup.Get("/", cartHandler.GetWishlist)
	wishlistGroup.Post("/", cartHandler.AddToWishlist)
	wishlistGroup.Delete("/:courseId", cartHandler.RemoveFromWishlist)

	// Notification routes (protected)
	notificationGroup := api.Group("/notifications", authMiddleware.Required())
	notificationGroup.Get("/", notificationHandler.ListNotifications)
	notificationGroup.Put("/read-all", notificationHandler.MarkAllAsRead)
	notificationGroup.Put("/:id/read", notificationHandler.MarkAsRead)
}
