package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/questarena/tournament-finance/handlers"
	"github.com/questarena/tournament-finance/middleware"
	"github.com/questarena/tournament-finance/models"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	tournamentHandler *handlers.TournamentHandler,
	walletHandler *handlers.WalletHandler,
	paymentHandler *handlers.PaymentHandler,
	adminHandler *handlers.AdminHandler,
	webSocketHandler *handlers.WebSocketHandler,
	allowedOrigins []string,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/tournaments", func(r chi.Router) {
		// Публичные маршруты для просмотра турниров
		r.Get("/", tournamentHandler.ListHandler)
		r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)

		// Создание и управление — организаторы и админы
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(string(models.RoleOrganizer), string(models.RoleAdmin)))

			r.Post("/", tournamentHandler.CreateHandler)
			r.Post("/{tournamentID}/fund", tournamentHandler.FundHandler)
			r.Post("/{tournamentID}/payout", tournamentHandler.PayoutHandler)
			r.Post("/{tournamentID}/cancel", tournamentHandler.CancelHandler)
			r.Put("/{tournamentID}/status", tournamentHandler.UpdateStatusHandler)
			r.Put("/{tournamentID}/override", tournamentHandler.ManualOverrideHandler)
		})

		// Регистрация — любой аутентифицированный пользователь
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/{tournamentID}/register", tournamentHandler.RegisterHandler)
		})
	})

	router.Route("/wallet", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Get("/balance", walletHandler.BalanceHandler)
		r.Get("/transactions", walletHandler.TransactionsHandler)
		r.Post("/withdrawals", walletHandler.WithdrawHandler)
	})

	// Callbacks платёжного шлюза: аутентифицируются сервисным токеном
	// с ролью admin, который выдаётся шлюзу при интеграции.
	router.Route("/payments", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(middleware.Authorize(string(models.RoleAdmin)))
		r.Post("/deposits/confirmed", paymentHandler.DepositConfirmedHandler)
		r.Put("/withdrawals/{transactionID}/status", paymentHandler.WithdrawalStatusHandler)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(middleware.Authorize(string(models.RoleAdmin)))
		r.Post("/refunds", adminHandler.RefundHandler)
		r.Post("/refunds/bulk", adminHandler.BulkRefundHandler)
		r.Post("/clawbacks", adminHandler.ClawbackHandler)
		r.Post("/clawbacks/bulk", adminHandler.BulkClawbackHandler)
		r.Get("/transactions", adminHandler.TransactionsHandler)
		r.Get("/users/{userID}/ledger-check", adminHandler.LedgerCheckHandler)
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Get("/ws/events", webSocketHandler.ServeWs)
	})
}
