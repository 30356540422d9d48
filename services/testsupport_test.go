package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/notify"
	"github.com/questarena/tournament-finance/repositories"
)

// fakeTxRunner исполняет функцию без реальной транзакции. Атомарность в
// тестах не проверяется построчно: проверяется, что сервис возвращает
// ошибку до каких-либо мутаций либо доводит единицу работы до конца.
type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) RunInTx(ctx context.Context, timeout time.Duration, fn func(tx *sql.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type capturedEvent = notify.Event

// recordingNotifier копит опубликованные события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (n *recordingNotifier) Publish(event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []capturedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]capturedEvent, len(n.events))
	copy(out, n.events)
	return out
}

// memStore — in-memory реализация всех трёх репозиториев с той же
// семантикой guard'ов, что и у postgres-реализаций.
type memStore struct {
	mu           sync.Mutex
	users        map[int]*models.User
	tournaments  map[int]*models.Tournament
	participants map[int]map[int]bool
	transactions []*models.Transaction
	nextTxID     int
	nextTournID  int
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int]*models.User),
		tournaments:  make(map[int]*models.Tournament),
		participants: make(map[int]map[int]bool),
		nextTxID:     1,
		nextTournID:  1,
	}
}

func (m *memStore) addUser(id int, balance int64, externalID *string) {
	m.users[id] = &models.User{
		ID:            id,
		Email:         "user@example.com",
		Role:          models.RoleUser,
		WalletBalance: balance,
		ExternalID:    externalID,
	}
}

func (m *memStore) addTournament(t *models.Tournament) *models.Tournament {
	if t.ID == 0 {
		t.ID = m.nextTournID
		m.nextTournID++
	} else if t.ID >= m.nextTournID {
		m.nextTournID = t.ID + 1
	}
	m.tournaments[t.ID] = t
	return t
}

// --- UserRepository ---

func (m *memStore) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) LockForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.User, error) {
	return m.GetByID(ctx, exec, id)
}

func (m *memStore) AdjustWalletBalance(ctx context.Context, exec repositories.SQLExecutor, id int, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.WalletBalance+delta < 0 {
		return 0, repositories.ErrBalanceWouldGoNegative
	}
	u.WalletBalance += delta
	return u.WalletBalance, nil
}

// --- TransactionRepository ---

type memTransactionRepo struct{ *memStore }

func (m *memStore) txRepo() repositories.TransactionRepository { return memTransactionRepo{m} }

func (m memTransactionRepo) Insert(ctx context.Context, exec repositories.SQLExecutor, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.transactions {
		if existing.Reference == t.Reference {
			return repositories.ErrDuplicateReference
		}
	}
	t.ID = m.nextTxID
	m.nextTxID++
	t.CreatedAt = time.Now()
	copied := *t
	m.transactions = append(m.transactions, &copied)
	return nil
}

func (m memTransactionRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.ID == id {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (m memTransactionRepo) FindByReference(ctx context.Context, exec repositories.SQLExecutor, reference string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.Reference == reference {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m memTransactionRepo) UpdateStatusIf(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.ID == id && t.Status == from {
			t.Status = to
			return nil
		}
	}
	return repositories.ErrTransactionStatusConflict
}

func (m memTransactionRepo) List(ctx context.Context, filter repositories.ListTransactionsFilter) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Transaction, 0)
	for _, t := range m.transactions {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if filter.TournamentID != nil && (t.TournamentID == nil || *t.TournamentID != *filter.TournamentID) {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m memTransactionRepo) ListByTournamentAndType(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, txType models.TransactionType, status models.TransactionStatus) ([]models.Transaction, error) {
	return m.List(ctx, repositories.ListTransactionsFilter{
		TournamentID: &tournamentID,
		Type:         &txType,
		Status:       &status,
	})
}

func (m memTransactionRepo) SumCompletedByUser(ctx context.Context, userID int) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var credits, debits int64
	for _, t := range m.transactions {
		settled := t.Status == models.TxStatusCompleted ||
			(t.Type == models.TxWithdrawal && t.Status == models.TxStatusPending)
		if t.UserID != userID || !settled {
			continue
		}
		if t.Type.IsCredit() {
			credits += t.Amount
		} else {
			debits += t.Amount
		}
	}
	return credits, debits, nil
}

// --- TournamentRepository ---

type memTournamentRepo struct{ *memStore }

func (m *memStore) tournamentRepo() repositories.TournamentRepository { return memTournamentRepo{m} }

func (m memTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	m.addTournament(t)
	stored := *t
	m.tournaments[t.ID] = &stored
	return nil
}

func (m memTournamentRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	return &copied, nil
}

func (m memTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Tournament, 0)
	for _, t := range m.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.OrganizerID != nil && t.OrganizerID != *filter.OrganizerID {
			continue
		}
		if filter.Category != nil && t.Category != *filter.Category {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memTournamentRepo) UpdateStatusIf(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = to
	return nil
}

func (m memTournamentRepo) ActivateIf(ctx context.Context, exec repositories.SQLExecutor, id int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok || t.Status != models.StatusUpcoming || t.ManualOverride {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = models.StatusActive
	if t.ActualStart == nil {
		t.ActualStart = &at
	}
	return nil
}

func (m memTournamentRepo) CompleteIf(ctx context.Context, exec repositories.SQLExecutor, id int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok || t.Status != models.StatusActive || t.ManualOverride {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = models.StatusCompleted
	if t.ActualEnd == nil {
		t.ActualEnd = &at
	}
	return nil
}

func (m memTournamentRepo) ApplyTransition(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = to
	if to == models.StatusActive && t.ActualStart == nil {
		t.ActualStart = &at
	}
	if to == models.StatusCompleted && t.ActualEnd == nil {
		t.ActualEnd = &at
	}
	return nil
}

func (m memTournamentRepo) SetPrizesDistributedIf(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok || t.PrizesDistributed {
		return repositories.ErrTournamentStatusConflict
	}
	t.PrizesDistributed = true
	return nil
}

func (m memTournamentRepo) SetManualOverride(ctx context.Context, exec repositories.SQLExecutor, id int, frozen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.ManualOverride = frozen
	return nil
}

func (m memTournamentRepo) ListDue(ctx context.Context, exec repositories.SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Tournament, 0)
	for _, t := range m.tournaments {
		if t.ManualOverride {
			continue
		}
		due := (t.Status == models.StatusUpcoming && !t.StartAt.After(now)) ||
			(t.Status == models.StatusActive && !t.EndAt().After(now))
		if due {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memTournamentRepo) AddParticipant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participants[tournamentID] == nil {
		m.participants[tournamentID] = make(map[int]bool)
	}
	if m.participants[tournamentID][userID] {
		return repositories.ErrParticipantExists
	}
	m.participants[tournamentID][userID] = true
	return nil
}

func (m memTournamentRepo) RemoveParticipant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.participants[tournamentID][userID] {
		return repositories.ErrParticipantNotFound
	}
	delete(m.participants[tournamentID], userID)
	return nil
}

func (m memTournamentRepo) IsParticipant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants[tournamentID][userID], nil
}

func (m memTournamentRepo) ListParticipants(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0)
	for id := range m.participants[tournamentID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWallet(store *memStore, notifier Notifier) *WalletService {
	return NewWalletService(fakeTxRunner{}, store, store.txRepo(), notifier, testLogger(), time.Second)
}

func newTestSettlement(store *memStore, notifier Notifier) *SettlementService {
	wallet := newTestWallet(store, notifier)
	return NewSettlementService(
		fakeTxRunner{},
		store.tournamentRepo(),
		store.txRepo(),
		wallet,
		NewRepoIdentityChecker(store),
		notifier,
		testLogger(),
		time.Second,
	)
}
