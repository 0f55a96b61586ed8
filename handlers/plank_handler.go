package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"plankSquatAPI/internal/types/challenge"
	"plankSquatAPI/middleware"
	"plankSquatAPI/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	plankWriteWait  = 10 * time.Second
	plankPongWait   = 60 * time.Second
	plankPingPeriod = (plankPongWait * 9) / 10
	plankTick       = 100 * time.Millisecond
)

type PlankHandler struct {
	challengeService *services.ChallengeService
	userService      *services.UserService
	sessionManager   *services.PlankSessionManager
}

func NewPlankHandler(challengeService *services.ChallengeService, userService *services.UserService, sessionManager *services.PlankSessionManager) *PlankHandler {
	return &PlankHandler{
		challengeService: challengeService,
		userService:      userService,
		sessionManager:   sessionManager,
	}
}

type plankAction struct {
	Action string `json:"action"`
}

type plankFrame struct {
	Type  string                     `json:"type"`
	State *services.PlankSessionState `json:"state,omitempty"`
	Error string                     `json:"error,omitempty"`
}

// StartSession upgrades to a WebSocket and runs today's plank attempt over
// it. The server owns the clock: it ticks the session forward and streams a
// state frame to the client on every change, while the client sends actions
// (pause, resume, done, still_going, keep, redo, cancel).
func (h *PlankHandler) StartSession(w http.ResponseWriter, r *http.Request) {
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

	if uc.ChallengeDetails.Type != challenge.MovementPlank {
		respondWithError(w, http.StatusBadRequest, "This challenge is not a plank challenge")
		return
	}

	if err := h.challengeService.CheckCanStartDay(uc); err != nil {
		if errors.Is(err, services.ErrDayAlreadyLogged) {
			respondWithError(w, http.StatusConflict, "Today's challenge is already logged")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Challenge day cannot be started")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Could not upgrade connection: %v", err)
		return
	}

	session := h.sessionManager.StartSession(services.PlankSessionConfig{
		UserID:        userID,
		ChallengeID:   challengeID,
		EnrollmentID:  uc.ID,
		DisplayName:   uc.DisplayName,
		TeamID:        uc.TeamID,
		Day:           uc.CurrentDay,
		TargetSeconds: uc.ChallengeDetails.TargetValue(uc.CurrentDay),
		NumberOfDays:  uc.ChallengeDetails.NumberOfDays,
	})

	h.runSession(conn, session)
}

// runSession owns the connection until the session ends or the client goes
// away. Dropping the socket does not cancel the attempt; the session stays in
// the manager and a reconnect picks it up where it left off.
func (h *PlankHandler) runSession(conn *websocket.Conn, session *services.PlankSession) {
	defer conn.Close()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(plankPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(plankPongWait))
		return nil
	})

	actions := make(chan plankAction, 8)
	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		for {
			var action plankAction
			if err := conn.ReadJSON(&action); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("Plank session read error: %v", err)
				}
				return
			}
			select {
			case actions <- action:
			default:
				// Client is flooding; drop the action.
			}
		}
	}()

	ticker := time.NewTicker(plankTick)
	defer ticker.Stop()
	pinger := time.NewTicker(plankPingPeriod)
	defer pinger.Stop()

	ctx := context.Background()
	last := session.Snapshot()
	h.sendFrame(conn, plankFrame{Type: "state", State: &last})

	for {
		select {
		case <-readDone:
			return

		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(plankWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case action := <-actions:
			if err := h.applyAction(ctx, session, action.Action); err != nil {
				h.sendFrame(conn, plankFrame{Type: "error", Error: err.Error()})
				continue
			}
			state := session.Snapshot()
			last = state
			h.sendFrame(conn, plankFrame{Type: "state", State: &state})
			if action.Action == "cancel" || session.Finished() {
				return
			}

		case <-ticker.C:
			if err := session.Advance(ctx); err != nil {
				// Persistence failed; report and keep the session alive so
				// the client can retry its choice.
				h.sendFrame(conn, plankFrame{Type: "error", Error: err.Error()})
			}
			state := session.Snapshot()
			if state != last {
				last = state
				h.sendFrame(conn, plankFrame{Type: "state", State: &state})
			}
			if session.Finished() {
				return
			}
		}
	}
}

func (h *PlankHandler) applyAction(ctx context.Context, session *services.PlankSession, action string) error {
	switch action {
	case "pause":
		return session.Pause()
	case "resume":
		return session.Resume(ctx)
	case "done":
		return session.Done()
	case "still_going":
		return session.ConfirmStillGoing()
	case "keep":
		return session.Keep(ctx)
	case "redo":
		return session.Redo(ctx)
	case "cancel":
		return session.Cancel()
	default:
		return errors.New("unknown action: " + action)
	}
}

func (h *PlankHandler) sendFrame(conn *websocket.Conn, frame plankFrame) {
	conn.SetWriteDeadline(time.Now().Add(plankWriteWait))
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("Plank session write error: %v", err)
	}
}
