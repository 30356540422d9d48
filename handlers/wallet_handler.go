package handlers

import (
	"net/http"

	"github.com/questarena/tournament-finance/middleware"
	"github.com/questarena/tournament-finance/services"
)

type WalletHandler struct {
	wallet *services.WalletService
}

func NewWalletHandler(wallet *services.WalletService) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

// BalanceHandler обрабатывает GET /wallet/balance
func (h *WalletHandler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	balance, err := h.wallet.GetBalance(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"balance": balance}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// TransactionsHandler обрабатывает GET /wallet/transactions
func (h *WalletHandler) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	limit := readQueryInt(r, "limit", 20)
	offset := readQueryInt(r, "offset", 0)

	transactions, err := h.wallet.ListUserTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"transactions": transactions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type withdrawInput struct {
	Amount int64 `json:"amount"`
}

// WithdrawHandler обрабатывает POST /wallet/withdrawals
func (h *WalletHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input withdrawInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tx, err := h.wallet.RequestWithdrawal(r.Context(), userID, input.Amount)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"transaction": tx}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
