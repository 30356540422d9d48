package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/repositories"
	"github.com/questarena/tournament-finance/services"
)

// AdminHandler — корректирующие операции и отчётность. Маршруты закрыты
// middleware.Authorize("admin").
type AdminHandler struct {
	settlement *services.SettlementService
	wallet     *services.WalletService
}

func NewAdminHandler(settlement *services.SettlementService, wallet *services.WalletService) *AdminHandler {
	return &AdminHandler{
		settlement: settlement,
		wallet:     wallet,
	}
}

type refundInput struct {
	TransactionID int    `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	ToWallet      bool   `json:"to_wallet"`
}

// RefundHandler обрабатывает POST /admin/refunds
func (h *AdminHandler) RefundHandler(w http.ResponseWriter, r *http.Request) {
	var input refundInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tx, err := h.settlement.Refund(r.Context(), input.TransactionID, input.Amount, input.Reason, input.ToWallet)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{"refunded": true}
	if tx != nil {
		resp["transaction"] = tx
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type bulkRefundInput struct {
	Items []services.RefundItem `json:"items"`
}

// BulkRefundHandler обрабатывает POST /admin/refunds/bulk
func (h *AdminHandler) BulkRefundHandler(w http.ResponseWriter, r *http.Request) {
	var input bulkRefundInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Items) == 0 {
		badRequestResponse(w, r, errors.New("items must not be empty"))
		return
	}

	results := h.settlement.BulkRefund(r.Context(), input.Items)
	if err := writeJSON(w, http.StatusOK, jsonResponse{"results": results}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type clawbackInput struct {
	UserID int    `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
	All    bool   `json:"all"`
}

// ClawbackHandler обрабатывает POST /admin/clawbacks
func (h *AdminHandler) ClawbackHandler(w http.ResponseWriter, r *http.Request) {
	var input clawbackInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var (
		tx  *models.Transaction
		err error
	)
	if input.All {
		tx, err = h.settlement.ClawbackAll(r.Context(), input.UserID, input.Reason)
	} else {
		tx, err = h.settlement.Clawback(r.Context(), input.UserID, input.Amount, input.Reason)
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"transaction": tx}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type bulkClawbackInput struct {
	Items []services.ClawbackItem `json:"items"`
}

// BulkClawbackHandler обрабатывает POST /admin/clawbacks/bulk
func (h *AdminHandler) BulkClawbackHandler(w http.ResponseWriter, r *http.Request) {
	var input bulkClawbackInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Items) == 0 {
		badRequestResponse(w, r, errors.New("items must not be empty"))
		return
	}

	results := h.settlement.BulkClawback(r.Context(), input.Items)
	if err := writeJSON(w, http.StatusOK, jsonResponse{"results": results}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// TransactionsHandler обрабатывает GET /admin/transactions
func (h *AdminHandler) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	var filter repositories.ListTransactionsFilter
	query := r.URL.Query()

	if userIDStr := query.Get("user_id"); userIDStr != "" {
		if id, err := strconv.Atoi(userIDStr); err == nil && id > 0 {
			filter.UserID = &id
		} else {
			badRequestResponse(w, r, errors.New("invalid user_id query parameter"))
			return
		}
	}
	if tournamentIDStr := query.Get("tournament_id"); tournamentIDStr != "" {
		if id, err := strconv.Atoi(tournamentIDStr); err == nil && id > 0 {
			filter.TournamentID = &id
		} else {
			badRequestResponse(w, r, errors.New("invalid tournament_id query parameter"))
			return
		}
	}
	if typeStr := query.Get("type"); typeStr != "" {
		txType := models.TransactionType(typeStr)
		filter.Type = &txType
	}
	if statusStr := query.Get("status"); statusStr != "" {
		status := models.TransactionStatus(statusStr)
		filter.Status = &status
	}
	filter.Limit = readQueryInt(r, "limit", 50)
	filter.Offset = readQueryInt(r, "offset", 0)

	transactions, err := h.settlement.ListTransactions(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"transactions": transactions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// LedgerCheckHandler обрабатывает GET /admin/users/{userID}/ledger-check
func (h *AdminHandler) LedgerCheckHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := readIDParam(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	consistent, err := h.wallet.CheckLedgerInvariant(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user_id": userID, "consistent": consistent}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
