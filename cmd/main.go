package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/questarena/tournament-finance/config"
	"github.com/questarena/tournament-finance/db"
	"github.com/questarena/tournament-finance/handlers"
	"github.com/questarena/tournament-finance/middleware"
	"github.com/questarena/tournament-finance/notify"
	"github.com/questarena/tournament-finance/repositories"
	api "github.com/questarena/tournament-finance/routes"
	"github.com/questarena/tournament-finance/services"
)

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация hub'а событий
	hub := notify.NewHub(logger)
	go hub.Run()
	logger.Info("notification hub started")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	transactionRepo := repositories.NewPostgresTransactionRepository(dbConn)
	txRunner := repositories.NewTxRunner(dbConn)
	logger.Info("repositories initialized")

	// Инициализация сервисов
	walletService := services.NewWalletService(txRunner, userRepo, transactionRepo, hub, logger, cfg.UnitTimeout)
	tournamentService := services.NewTournamentService(txRunner, tournamentRepo, walletService, logger, cfg.UnitTimeout)
	identityChecker := services.NewRepoIdentityChecker(userRepo)
	settlementService := services.NewSettlementService(
		txRunner,
		tournamentRepo,
		transactionRepo,
		walletService,
		identityChecker,
		hub,
		logger,
		cfg.UnitTimeout,
	)
	logger.Info("services initialized")

	// Планировщик автоматических переходов статусов
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	scheduler := services.NewStatusScheduler(tournamentRepo, logger, cfg.SchedulerInterval)
	go func() {
		if err := scheduler.Run(schedulerCtx); err != nil {
			logger.Error("scheduler stopped with error", slog.Any("error", err))
		}
	}()

	// Инициализация обработчиков HTTP
	auth := middleware.NewAuthenticator(cfg.JWTSecretKey)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, settlementService)
	walletHandler := handlers.NewWalletHandler(walletService)
	paymentHandler := handlers.NewPaymentHandler(walletService)
	adminHandler := handlers.NewAdminHandler(settlementService, walletService)
	webSocketHandler := handlers.NewWebSocketHandler(hub)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		auth,
		tournamentHandler,
		walletHandler,
		paymentHandler,
		adminHandler,
		webSocketHandler,
		cfg.AllowedOrigins,
	)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopScheduler()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
