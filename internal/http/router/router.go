package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/artcommission-backend/internal/config"
	"github.com/ignatzorin/artcommission-backend/internal/http/handlers"
	"github.com/ignatzorin/artcommission-backend/internal/http/middleware"
	"github.com/ignatzorin/artcommission-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	commissionHandler *handlers.CommissionHandler,
	milestoneHandler *handlers.MilestoneHandler,
	paymentHandler *handlers.PaymentHandler,
	artistHandler *handlers.ArtistHandler,
	chatHandler *handlers.ChatHandler,
	reviewHandler *handlers.ReviewHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Вебхуки провайдеров без авторизации: подлинность проверяет подпись.
	api.POST("/webhooks/:provider", paymentHandler.Webhook)

	// Публичные маршруты.
	api.GET("/artists/:id/admission", artistHandler.CheckAdmission)
	api.GET("/users/:id/reviews", reviewHandler.ListUserReviews)

	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/commissions", commissionHandler.CreateCommission)
		protected.GET("/commissions", commissionHandler.ListCommissions)
		protected.GET("/commissions/:id", commissionHandler.GetCommission)
		protected.POST("/commissions/:id/accept", commissionHandler.AcceptCommission)
		protected.POST("/commissions/:id/decline", commissionHandler.DeclineCommission)
		protected.POST("/commissions/:id/cancel", commissionHandler.CancelCommission)
		protected.POST("/commissions/:id/complete", commissionHandler.CompleteCommission)

		protected.POST("/commissions/:id/milestones/generate", milestoneHandler.GeneratePlan)
		protected.POST("/commissions/:id/milestones", milestoneHandler.CreateCustomPlan)
		protected.GET("/commissions/:id/milestones", milestoneHandler.ListMilestones)
		protected.POST("/commissions/:id/milestones/confirm", milestoneHandler.ConfirmPlan)
		protected.PATCH("/milestones/:id", milestoneHandler.EditMilestone)
		protected.POST("/milestones/:id/start", milestoneHandler.StartMilestone)
		protected.POST("/milestones/:id/complete", milestoneHandler.CompleteMilestone)
		protected.POST("/progress/:id/approve", milestoneHandler.ApproveProgress)
		protected.POST("/progress/:id/reject", milestoneHandler.RejectProgress)

		protected.GET("/commissions/:id/transactions", paymentHandler.ListCommissionTransactions)
		protected.POST("/commissions/:id/escrow/release", paymentHandler.ReleaseEscrow)
		protected.GET("/payments/history", paymentHandler.ListUserTransactions)

		protected.GET("/artist/settings", artistHandler.GetSettings)
		protected.PUT("/artist/settings", artistHandler.UpdateSettings)

		protected.POST("/commissions/:id/messages", chatHandler.SendMessage)
		protected.GET("/commissions/:id/messages", chatHandler.ListMessages)

		protected.POST("/commissions/:id/reviews", reviewHandler.SubmitReview)
		protected.GET("/commissions/:id/reviews", reviewHandler.ListCommissionReviews)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/unread-count", notificationHandler.CountUnread)
	}

	// Открытие заказов и capture дёргают внешних провайдеров — отдельный лимит.
	payments := api.Group("/payments")
	payments.Use(middleware.AuthMiddleware(tokenManager))
	payments.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		payments.POST("/open", paymentHandler.OpenPayment)
		payments.POST("/capture/:provider", paymentHandler.Capture)
	}

	return r
}
