package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"plankSquatAPI/middleware"
	"plankSquatAPI/services"
)

type LeaderboardHandler struct {
	leaderboardService *services.LeaderboardService
	challengeService   *services.ChallengeService
	statsService       *services.StatsService
	userService        *services.UserService
}

func NewLeaderboardHandler(leaderboardService *services.LeaderboardService, challengeService *services.ChallengeService, statsService *services.StatsService, userService *services.UserService) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
		challengeService:   challengeService,
		statsService:       statsService,
		userService:        userService,
	}
}

// GetLeaderboard returns the challenge standings, served from a short-lived
// cache. Pass ?teams=true to include per-team standings on team challenges.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	challengeID, err := uuid.Parse(mux.Vars(r)["challengeId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	includeTeams := r.URL.Query().Get("teams") == "true"

	board, err := h.leaderboardService.GetLeaderboard(ctx, challengeID, includeTeams)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

// GetMyStanding returns the authenticated user's stats row for a challenge.
func (h *LeaderboardHandler) GetMyStanding(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID, err := uuid.Parse(mux.Vars(r)["challengeId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	userID, err := h.userService.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	stats, err := h.statsService.GetChallengeUserStats(ctx, userID, challengeID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get standing")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
