package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"plankSquatAPI/internal/types/team"
	"plankSquatAPI/services"
)

type TeamHandler struct {
	teamService *services.TeamService
}

func NewTeamHandler(teamService *services.TeamService) *TeamHandler {
	return &TeamHandler{teamService: teamService}
}

func (h *TeamHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	teams, err := h.teamService.ListTeams(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list teams")
		return
	}

	respondWithJSON(w, http.StatusOK, teams)
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid team id")
		return
	}

	t, err := h.teamService.GetTeam(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrTeamNotFound) {
			respondWithError(w, http.StatusNotFound, "Team not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get team")
		return
	}

	respondWithJSON(w, http.StatusOK, t)
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req team.CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "Team name is required")
		return
	}

	t, err := h.teamService.CreateTeam(ctx, &req)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create team")
		return
	}

	respondWithJSON(w, http.StatusCreated, t)
}

func (h *TeamHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid team id")
		return
	}

	var req team.UpdateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := h.teamService.UpdateTeam(ctx, id, &req)
	if err != nil {
		if errors.Is(err, services.ErrTeamNotFound) {
			respondWithError(w, http.StatusNotFound, "Team not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to update team")
		return
	}

	respondWithJSON(w, http.StatusOK, t)
}

func (h *TeamHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid team id")
		return
	}

	if err := h.teamService.DeleteTeam(ctx, id); err != nil {
		if errors.Is(err, services.ErrTeamNotFound) {
			respondWithError(w, http.StatusNotFound, "Team not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to delete team")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Team deleted"})
}
