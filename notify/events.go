package notify

// EventType — доменные события, потребляемые Notification-коллаборатором.
type EventType string

const (
	EventRegistrationConfirmed EventType = "registration_confirmed"
	EventPrizeAwarded          EventType = "prize_awarded"
	EventTournamentCancelled   EventType = "tournament_cancelled"
	EventWithdrawalSettled     EventType = "withdrawal_settled"
)

// Event публикуется только после успешного коммита финансовой операции.
// Доставка fire-and-forget: сбой логируется и никогда не откатывает
// закоммиченный эффект.
type Event struct {
	Type          EventType `json:"type"`
	UserID        int       `json:"user_id"`
	TournamentID  *int      `json:"tournament_id,omitempty"`
	TransactionID *int      `json:"transaction_id,omitempty"`
	Amount        int64     `json:"amount"`
	Position      string    `json:"position,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}
