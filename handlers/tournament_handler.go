package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/questarena/tournament-finance/middleware"
	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/repositories"
	"github.com/questarena/tournament-finance/services"
)

type TournamentHandler struct {
	tournaments *services.TournamentService
	settlement  *services.SettlementService
}

func NewTournamentHandler(tournaments *services.TournamentService, settlement *services.SettlementService) *TournamentHandler {
	return &TournamentHandler{
		tournaments: tournaments,
		settlement:  settlement,
	}
}

// CreateHandler обрабатывает POST /tournaments
func (h *TournamentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create tournament")
		return
	}

	var payload models.CreateTournamentPayload
	if err := readJSON(w, r, &payload); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, fundingRequired, err := h.tournaments.CreateTournament(r.Context(), actor, payload)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{"tournament": tournament}
	if fundingRequired {
		resp["funding_required"] = true
	}
	if err := writeJSON(w, http.StatusCreated, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler обрабатывает GET /tournaments/{tournamentID}
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournaments.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /tournaments
func (h *TournamentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	var filter repositories.ListTournamentsFilter
	query := r.URL.Query()

	if organizerIDStr := query.Get("organizer_id"); organizerIDStr != "" {
		if id, err := strconv.Atoi(organizerIDStr); err == nil && id > 0 {
			filter.OrganizerID = &id
		} else {
			badRequestResponse(w, r, errors.New("invalid organizer_id query parameter"))
			return
		}
	}
	if statusStr := query.Get("status"); statusStr != "" {
		status := models.TournamentStatus(statusStr)
		filter.Status = &status
	}
	if category := query.Get("category"); category != "" {
		filter.Category = &category
	}
	filter.Limit = readQueryInt(r, "limit", 20)
	filter.Offset = readQueryInt(r, "offset", 0)

	tournaments, err := h.tournaments.ListTournaments(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RegisterHandler обрабатывает POST /tournaments/{tournamentID}/register
func (h *TournamentHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to register")
		return
	}
	id, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entryTx, err := h.settlement.Register(r.Context(), id, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{"registered": true}
	if entryTx != nil {
		resp["transaction"] = entryTx
	}
	if err := writeJSON(w, http.StatusCreated, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type fundInput struct {
	TotalPool int64                `json:"total_pool"`
	Method    models.FundingMethod `json:"method"`
}

// FundHandler обрабатывает POST /tournaments/{tournamentID}/fund
func (h *TournamentHandler) FundHandler(w http.ResponseWriter, r *http.Request) {
	organizerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to fund tournament")
		return
	}
	id, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input fundInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	fundingTx, fundingRequired, err := h.settlement.Fund(r.Context(), id, organizerID, input.TotalPool, input.Method)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{"funding_required": fundingRequired}
	if fundingTx != nil {
		resp["transaction"] = fundingTx
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type payoutInput struct {
	Results []models.RankedResult `json:"results"`
}

// PayoutHandler обрабатывает POST /tournaments/{tournamentID}/payout
func (h *TournamentHandler) PayoutHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		unauthorizedResponse(w, r, "authentication required for payout")
		return
	}
	id, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input payoutInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	awards, err := h.settlement.Payout(r.Context(), actor, id, input.Results)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"awards": awards}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type cancelInput struct {
	Reason string `json:"reason"`
}

// CancelHandler обрабатывает POST /tournaments/{tournamentID}/cancel
func (h *TournamentHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to cancel tournament")
		return
	}
	id, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournaments.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if !actor.IsAdmin() && actor.ID != tournament.OrganizerID {
		forbiddenResponse(w, r, "only the organizer or an admin can cancel a tournament")
		return
	}

	var input cancelInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.settlement.CancelAndRefund(r.Context(), id, input.Reason); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"cancelled": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type statusInput struct {
	Status models.TournamentStatus `json:"status"`
}

// UpdateStatusHandler обрабатывает PUT /tournaments/{tournamentID}/status
func (h *TournamentHandler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to change status")
		return
	}
	id, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input statusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournaments.SetStatus(r.Context(), actor, id, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type overrideInput struct {
	Frozen bool `json:"frozen"`
}

// ManualOverrideHandler обрабатывает PUT /tournaments/{tournamentID}/override
func (h *TournamentHandler) ManualOverrideHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to change override")
		return
	}
	id, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input overrideInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.tournaments.SetManualOverride(r.Context(), actor, id, input.Frozen); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"manual_override": input.Frozen}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
