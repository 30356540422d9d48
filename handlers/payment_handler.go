package handlers

import (
	"net/http"

	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/services"
)

// PaymentHandler — callbacks платёжного шлюза (Payments-коллаборатор).
// Шлюз ретраит доставку, поэтому оба эндпойнта идемпотентны по reference
// и по переходу статуса.
type PaymentHandler struct {
	wallet *services.WalletService
}

func NewPaymentHandler(wallet *services.WalletService) *PaymentHandler {
	return &PaymentHandler{wallet: wallet}
}

type depositConfirmedInput struct {
	UserID    int    `json:"user_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// DepositConfirmedHandler обрабатывает POST /payments/deposits/confirmed
func (h *PaymentHandler) DepositConfirmedHandler(w http.ResponseWriter, r *http.Request) {
	var input depositConfirmedInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tx, err := h.wallet.ConfirmDeposit(r.Context(), input.UserID, input.Amount, input.Reference)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"transaction": tx}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type withdrawalStatusInput struct {
	Status models.TransactionStatus `json:"status"`
}

// WithdrawalStatusHandler обрабатывает PUT /payments/withdrawals/{transactionID}/status
func (h *PaymentHandler) WithdrawalStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r, "transactionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input withdrawalStatusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tx, err := h.wallet.SetWithdrawalStatus(r.Context(), id, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"transaction": tx}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
