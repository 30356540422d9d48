package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrNotFound            = errors.New("requested resource not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed        = errors.New("validation failed")
	ErrEntryFeeExceedsPool     = errors.New("entry fee exceeds the total prize pool")
	ErrRegistrationClosed      = errors.New("tournament registration is closed")
	ErrTournamentNotCompleted  = errors.New("tournament is not completed")
	ErrResultNotParticipant    = errors.New("ranked result references a non-participant")
	ErrRefundExceedsOriginal   = errors.New("refund amount exceeds the original transaction amount")
	ErrRefundNotCompleted      = errors.New("only completed transactions can be refunded")
	ErrNothingToClawback       = errors.New("wallet balance is already zero")
	ErrInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrInvalidWithdrawalMove   = errors.New("invalid withdrawal status transition")
	ErrNotWithdrawal           = errors.New("transaction is not a withdrawal")

	// Денежные ошибки
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Ошибки повторного применения
	ErrAlreadyRegistered  = errors.New("user is already registered for this tournament")
	ErrAlreadyProcessed   = errors.New("operation has already been processed")
	ErrAlreadyCancelled   = errors.New("tournament is already cancelled")
	ErrDuplicateReference = errors.New("idempotency reference already used by another operation")

	// Коллабораторы
	ErrIdentityNotLinked = errors.New("user has no linked external identity")

	// Авторизация
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")

	// Конкурентный доступ: optimistic guard проиграл гонку
	ErrConcurrencyConflict = errors.New("concurrent modification detected, please retry")
)
