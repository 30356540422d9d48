package services

import (
	"context"
	"testing"
	"time"

	"github.com/questarena/tournament-finance/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTournaments(store *memStore) *TournamentService {
	wallet := newTestWallet(store, nil)
	s := NewTournamentService(fakeTxRunner{}, store.tournamentRepo(), wallet, testLogger(), time.Second)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func createPayload() models.CreateTournamentPayload {
	return models.CreateTournamentPayload{
		Title:         "Summer Masters",
		Category:      "chess",
		PrizeType:     "fixed",
		PrizeConfig:   models.PrizeConfig{Fixed: &models.FixedPrizeConfig{Positions: []int64{10_000, 5_000}}},
		EntryFee:      1_000,
		FundingMethod: "direct",
		StartDate:     "2026-07-10",
		StartTime:     "19:00",
		Timezone:      "Europe/Berlin",
		DurationHours: 3,
	}
}

func TestCreateTournament(t *testing.T) {
	store := newMemStore()
	store.addUser(9, 0, linkedID("org"))
	service := newTestTournaments(store)

	tournament, fundingRequired, err := service.CreateTournament(context.Background(), Actor{ID: 9, Role: models.RoleOrganizer}, createPayload())
	require.NoError(t, err)
	assert.False(t, fundingRequired)
	assert.NotZero(t, tournament.ID)
	assert.Equal(t, 9, tournament.OrganizerID)
	assert.Equal(t, models.StatusUpcoming, tournament.Status)
}

func TestCreateTournamentWalletFunding(t *testing.T) {
	store := newMemStore()
	store.addUser(9, 20_000, linkedID("org"))
	service := newTestTournaments(store)
	ctx := context.Background()

	p := createPayload()
	p.FundingMethod = "wallet"
	_, fundingRequired, err := service.CreateTournament(ctx, Actor{ID: 9, Role: models.RoleOrganizer}, p)
	require.NoError(t, err)
	assert.False(t, fundingRequired)

	// Призовой фонд (15 000) списан с организатора вместе с созданием.
	balance, _ := service.wallet.GetBalance(ctx, 9)
	assert.Equal(t, int64(5_000), balance)
}

func TestCreateTournamentWalletFundingInsufficient(t *testing.T) {
	store := newMemStore()
	store.addUser(9, 100, linkedID("org"))
	service := newTestTournaments(store)

	p := createPayload()
	p.FundingMethod = "wallet"
	_, _, err := service.CreateTournament(context.Background(), Actor{ID: 9, Role: models.RoleOrganizer}, p)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCreateTournamentTopupSignalsFunding(t *testing.T) {
	store := newMemStore()
	store.addUser(9, 0, linkedID("org"))
	service := newTestTournaments(store)

	p := createPayload()
	p.FundingMethod = "topup"
	_, fundingRequired, err := service.CreateTournament(context.Background(), Actor{ID: 9, Role: models.RoleOrganizer}, p)
	require.NoError(t, err)
	assert.True(t, fundingRequired)
}

func TestCreateTournamentEntryFeeExceedsPool(t *testing.T) {
	store := newMemStore()
	store.addUser(9, 0, linkedID("org"))
	service := newTestTournaments(store)

	p := createPayload()
	p.EntryFee = 100_000
	_, _, err := service.CreateTournament(context.Background(), Actor{ID: 9, Role: models.RoleOrganizer}, p)
	assert.ErrorIs(t, err, ErrEntryFeeExceedsPool)
}

func TestCreateTournamentValidation(t *testing.T) {
	store := newMemStore()
	store.addUser(9, 0, linkedID("org"))
	service := newTestTournaments(store)

	p := createPayload()
	p.Title = ""
	_, _, err := service.CreateTournament(context.Background(), Actor{ID: 9, Role: models.RoleOrganizer}, p)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestSetStatusManualTransition(t *testing.T) {
	store := newMemStore()
	tournament := store.addTournament(fixedPrizeTournament(9, 0, 10_000))
	service := newTestTournaments(store)
	ctx := context.Background()
	organizer := Actor{ID: 9, Role: models.RoleOrganizer}

	updated, err := service.SetStatus(ctx, organizer, tournament.ID, models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)
	assert.NotNil(t, updated.ActualStart)

	// Досрочное завершение.
	updated, err = service.SetStatus(ctx, organizer, tournament.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.NotNil(t, updated.ActualEnd)
}

func TestSetStatusGuards(t *testing.T) {
	store := newMemStore()
	tournament := store.addTournament(fixedPrizeTournament(9, 0, 10_000))
	service := newTestTournaments(store)
	ctx := context.Background()
	organizer := Actor{ID: 9, Role: models.RoleOrganizer}

	_, err := service.SetStatus(ctx, Actor{ID: 5, Role: models.RoleOrganizer}, tournament.ID, models.StatusActive)
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	// Админ может менять чужой турнир.
	_, err = service.SetStatus(ctx, Actor{ID: 5, Role: models.RoleAdmin}, tournament.ID, models.StatusActive)
	require.NoError(t, err)

	// Обратный переход active -> upcoming не заявлен.
	_, err = service.SetStatus(ctx, organizer, tournament.ID, models.StatusUpcoming)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	// Отмена идёт только через settlement-операцию.
	_, err = service.SetStatus(ctx, organizer, tournament.ID, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestSetStatusIgnoresManualOverride(t *testing.T) {
	store := newMemStore()
	frozen := fixedPrizeTournament(9, 0, 10_000)
	frozen.ManualOverride = true
	store.addTournament(frozen)
	service := newTestTournaments(store)

	// Ручной переход работает даже при замороженных автоматических.
	updated, err := service.SetStatus(context.Background(), Actor{ID: 9, Role: models.RoleOrganizer}, frozen.ID, models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)
}

func TestSetManualOverride(t *testing.T) {
	store := newMemStore()
	tournament := store.addTournament(fixedPrizeTournament(9, 0, 10_000))
	service := newTestTournaments(store)
	ctx := context.Background()

	err := service.SetManualOverride(ctx, Actor{ID: 5, Role: models.RoleUser}, tournament.ID, true)
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	require.NoError(t, service.SetManualOverride(ctx, Actor{ID: 9, Role: models.RoleOrganizer}, tournament.ID, true))
	fresh, _ := store.tournamentRepo().GetByID(ctx, nil, tournament.ID)
	assert.True(t, fresh.ManualOverride)
}
