package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"plankSquatAPI/internal/types/attempt"
	"plankSquatAPI/internal/types/challenge"
	"plankSquatAPI/middleware"
	"plankSquatAPI/services"
	"plankSquatAPI/utils"
)

type AttemptHandler struct {
	challengeService *services.ChallengeService
	attemptService   *services.AttemptService
	userService      *services.UserService
}

func NewAttemptHandler(challengeService *services.ChallengeService, attemptService *services.AttemptService, userService *services.UserService) *AttemptHandler {
	return &AttemptHandler{
		challengeService: challengeService,
		attemptService:   attemptService,
		userService:      userService,
	}
}

// LogSquats records a squat day in one shot. Squats are self-reported reps,
// no live session needed.
func (h *AttemptHandler) LogSquats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req attempt.LogSquatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Count < 0 {
		respondWithError(w, http.StatusBadRequest, "Count must not be negative")
		return
	}

	userID, err := h.userService.UserIDByClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	uc, err := h.challengeService.GetSyncedEnrollment(ctx, userID, req.ChallengeID)
	if err != nil {
		if errors.Is(err, services.ErrEnrollmentNotFound) {
			respondWithError(w, http.StatusNotFound, "Not enrolled in this challenge")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load enrollment")
		return
	}

	if err := h.challengeService.CheckCanStartDay(uc); err != nil {
		if errors.Is(err, services.ErrDayAlreadyLogged) {
			respondWithError(w, http.StatusConflict, "Today's challenge is already logged")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Challenge day cannot be logged")
		return
	}

	displayName, err := h.userService.DisplayNameForClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve display name")
		return
	}

	a, err := h.attemptService.LogSquats(ctx, uc, displayName, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateAttempt):
			respondWithError(w, http.StatusConflict, "Attempt for this day already exists")
		case errors.Is(err, services.ErrWrongMovementType):
			respondWithError(w, http.StatusBadRequest, "This challenge is not a squat challenge")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to log squats")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, a)
}

// ListAttempts returns the user's attempt history for one challenge.
func (h *AttemptHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
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

	attempts, err := h.attemptService.ListAttempts(ctx, userID, challengeID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list attempts")
		return
	}

	respondWithJSON(w, http.StatusOK, attempts)
}

// GetTodayStatus tells the client whether today's day can still be started.
func (h *AttemptHandler) GetTodayStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
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

	uc, err := h.challengeService.GetSyncedEnrollment(ctx, userID, challengeID)
	if err != nil {
		if errors.Is(err, services.ErrEnrollmentNotFound) {
			respondWithError(w, http.StatusNotFound, "Not enrolled in this challenge")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load enrollment")
		return
	}

	canStart := true
	reason := ""
	if err := h.challengeService.CheckCanStartDay(uc); err != nil {
		canStart = false
		reason = err.Error()
	}

	target := uc.ChallengeDetails.TargetValue(uc.CurrentDay)
	resp := map[string]any{
		"enrollment":   uc,
		"can_start":    canStart,
		"reason":       reason,
		"target_value": target,
		"progress":     utils.ProgressPercent(uc.LastCompletedDay, uc.ChallengeDetails.NumberOfDays),
	}
	if uc.ChallengeDetails.Type == challenge.MovementPlank {
		resp["target_display"] = utils.FormatSeconds(target)
	}
	respondWithJSON(w, http.StatusOK, resp)
}
