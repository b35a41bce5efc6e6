package router

import (
	"net/http"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/config"
	"github.com/cryptexam/cryptexam-backend/internal/handler"
	"github.com/cryptexam/cryptexam-backend/internal/middleware"
	"github.com/cryptexam/cryptexam-backend/internal/response"
	"github.com/cryptexam/cryptexam-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Admin   *handler.AdminHandler
	Attempt *handler.AttemptHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated profile routes. Any valid token type may introspect
		// itself or log out.
		auth.GET("/me", middleware.RequireAnyJWT(authService), handlers.Auth.Me)
		auth.POST("/logout", middleware.RequireAnyJWT(authService), handlers.Auth.Logout)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/exams", handlers.Attempt.ListAvailableExams)
		studentAPI.POST("/exams/:exam_id/attempt", handlers.Attempt.StartAttempt)
		studentAPI.POST("/attempts/:session_id/submit", handlers.Attempt.SubmitAttempt)
		studentAPI.GET("/results", handlers.Attempt.ListMyResults)
		studentAPI.GET("/results/:session_id", handlers.Attempt.GetMyResult)
	}

	// ─── 3. Institute Group (JWT + Single Device) ──────────────────────
	instituteAPI := router.Group("/api/v1/institute")
	instituteAPI.Use(
		middleware.RequireInstituteJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		instituteAPI.POST("/exams", handlers.Exam.SubmitExam)
		instituteAPI.GET("/exams", handlers.Exam.ListMyExams)
		instituteAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		instituteAPI.GET("/exams/:exam_id/results", handlers.Exam.ListExamResults)
		instituteAPI.POST("/exams/:exam_id/release", handlers.Exam.ReleaseResults)
	}

	// ─── 4. WebSocket Group (Institute WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireInstituteWSAuth(authService))
	{
		ws.GET("/institute/exams/:exam_id/monitor", handlers.Monitor.StreamExamMonitor)
	}

	// ─── 5. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/exams/pending", handlers.Admin.ListPendingExams)
		adminAPI.POST("/exams/:exam_id/review", handlers.Admin.ReviewExam)
		adminAPI.POST("/exams/:exam_id/publish", handlers.Admin.PublishExam)
		adminAPI.GET("/dashboard", handlers.Admin.Dashboard)
		adminAPI.POST("/users", handlers.Admin.CreateUser)
		adminAPI.POST("/users/:user_id/reset-session", handlers.Admin.ResetUserSession)
	}

	return router
}
