package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artcommission-backend/internal/config"
	"github.com/ignatzorin/artcommission-backend/internal/db"
	httpHandlers "github.com/ignatzorin/artcommission-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/artcommission-backend/internal/http/router"
	"github.com/ignatzorin/artcommission-backend/internal/logger"
	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/payment"
	"github.com/ignatzorin/artcommission-backend/internal/repository"
	"github.com/ignatzorin/artcommission-backend/internal/service"
	"github.com/ignatzorin/artcommission-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	// Платёжные провайдеры.
	providers := map[string]payment.Provider{
		models.ProviderStripe: payment.NewStripeClient(cfg.StripeAPIURL, cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.ProviderTimeout),
		models.ProviderPayPal: payment.NewPayPalClient(cfg.PayPalAPIURL, cfg.PayPalClientID, cfg.PayPalSecret, cfg.PayPalWebhookID, cfg.ProviderTimeout),
	}

	// Репозитории.
	commissionRepo := repository.NewCommissionRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	settingsRepo := repository.NewArtistSettingsRepository(dbConn)
	conversationRepo := repository.NewConversationRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	notificationService := service.NewNotificationService(notificationRepo, hub)
	admissionService := service.NewAdmissionService(settingsRepo, commissionRepo)
	commissionService := service.NewCommissionService(commissionRepo, admissionService, reviewRepo, notificationService)
	milestoneService := service.NewMilestoneService(milestoneRepo, commissionRepo, notificationService)
	paymentService := service.NewPaymentService(paymentRepo, commissionRepo, milestoneRepo, providers, notificationService, cfg.PlatformFeeRate, cfg.PaymentCurrency)
	chatService := service.NewChatService(conversationRepo, commissionRepo, notificationService)
	reviewService := service.NewReviewService(reviewRepo)

	// HTTP хэндлеры.
	commissionHandler := httpHandlers.NewCommissionHandler(commissionService)
	milestoneHandler := httpHandlers.NewMilestoneHandler(milestoneService)
	paymentHandler := httpHandlers.NewPaymentHandler(paymentService)
	artistHandler := httpHandlers.NewArtistHandler(admissionService)
	chatHandler := httpHandlers.NewChatHandler(chatService)
	reviewHandler := httpHandlers.NewReviewHandler(reviewService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(
		cfg,
		commissionHandler,
		milestoneHandler,
		paymentHandler,
		artistHandler,
		chatHandler,
		reviewHandler,
		notificationHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	logger.Log.Infof("сервер запущен на порту %s", cfg.HTTPPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: ошибка http сервера: %v", err)
	}
}

func safeClose(dbConn *sqlx.DB) {
	if err := dbConn.Close(); err != nil {
		log.Printf("main: ошибка закрытия соединения с базой: %v", err)
	}
}
