package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"plankSquatAPI/internal/types/attempt"
)

// PlankStage is the session's position in the timed-attempt flow.
type PlankStage string

const (
	StageCountdown    PlankStage = "countdown"
	StageActive       PlankStage = "active"
	StagePaused       PlankStage = "paused"
	StageAutoStopping PlankStage = "autoStopping"
	StageStillGoing   PlankStage = "stillGoingPrompt"
	StageKeepOrRedo   PlankStage = "keepOrRedo"
	StageComplete     PlankStage = "complete"
	StageFailed       PlankStage = "failed"
)

const (
	countdownSteps   = 3
	countdownStep    = time.Second
	recoveryLimit    = 60 * time.Second
	stillGoingWindow = 20 * time.Second
	keepOrRedoWindow = 20 * time.Second
	autoStopFlash    = 500 * time.Millisecond
	firstIdleCheck   = 5 * time.Minute
	idleCheckEvery   = 2 * time.Minute
	maxAttempts      = 3
)

var (
	ErrInvalidSessionAction = errors.New("action not valid in current stage")
	ErrSessionFinished      = errors.New("session already reached a terminal stage")
)

var recoveryTips = []string{
	"Take some deep breaths",
	"Stretch those muscles",
	"Shake it out and reset",
	"Stay strong, you've got this",
}

var highCelebrations = []string{
	"Crushing it!",
	"You're on fire!",
	"Beast mode!",
	"Unstoppable!",
	"Next level!",
}

var standardCelebrations = []string{
	"Goal achieved! Well done!",
	"Target reached! Nice job!",
	"You did it! Goal accomplished!",
	"Success! You met today's goal!",
}

// plankRecorder persists a terminal outcome. Split from the session so the
// state machine is testable without a database.
type plankRecorder interface {
	CreateAttempt(ctx context.Context, a *attempt.Attempt) error
	UpsertPlankStats(ctx context.Context, userID, challengeID uuid.UUID, displayName string, teamID *uuid.UUID, seconds int) error
	RollForward(ctx context.Context, enrollmentID uuid.UUID, day, numberOfDays int) error
}

// PlankRecorder is the production plankRecorder, delegating to the attempt
// and stats services.
type PlankRecorder struct {
	attempts *AttemptService
	stats    *StatsService
}

func NewPlankRecorder(attempts *AttemptService, stats *StatsService) *PlankRecorder {
	return &PlankRecorder{attempts: attempts, stats: stats}
}

func (r *PlankRecorder) CreateAttempt(ctx context.Context, a *attempt.Attempt) error {
	return r.attempts.CreateAttempt(ctx, a)
}

func (r *PlankRecorder) UpsertPlankStats(ctx context.Context, userID, challengeID uuid.UUID, displayName string, teamID *uuid.UUID, seconds int) error {
	return r.stats.UpsertPlankStats(ctx, userID, challengeID, displayName, teamID, seconds)
}

func (r *PlankRecorder) RollForward(ctx context.Context, enrollmentID uuid.UUID, day, numberOfDays int) error {
	return r.attempts.RollForward(ctx, enrollmentID, day, numberOfDays)
}

type PlankSessionConfig struct {
	UserID        uuid.UUID
	ChallengeID   uuid.UUID
	EnrollmentID  uuid.UUID
	DisplayName   string
	TeamID        *uuid.UUID
	Day           int
	TargetSeconds int
	NumberOfDays  int
}

// PlankSession drives one user through one day's timed plank attempt. It is
// purely in-memory until a terminal transition, which writes exactly one
// attempt record and rolls the enrollment forward exactly once. Cancelling
// before that writes nothing.
type PlankSession struct {
	mu       sync.Mutex
	cfg      PlankSessionConfig
	recorder plankRecorder
	now      func() time.Time
	// onTerminal tells the owner (the manager) the session is done; it must
	// not call back into the session.
	onTerminal func()

	stage         PlankStage
	attemptNumber int

	countdownLeft int
	countdownMark time.Time

	origin        time.Time // elapsed = now - origin while active
	pausedElapsed time.Duration
	hasPaused     bool
	recoveryUsed  time.Duration
	pauseStart    time.Time
	recoveryTip   string

	frozen        time.Duration
	nextIdleCheck time.Duration
	promptStart   time.Time
	keepRedoStart time.Time
	autoStopUntil time.Time

	// Persistence progress for the terminal transition: a failed write leaves
	// the session non-terminal and a retry resumes at the failed step instead
	// of double-writing.
	attemptWritten bool
	statsWritten   bool
	finalized      bool
	celebration    string
}

func NewPlankSession(cfg PlankSessionConfig, recorder plankRecorder, now func() time.Time) *PlankSession {
	if now == nil {
		now = time.Now
	}
	s := &PlankSession{
		cfg:      cfg,
		recorder: recorder,
		now:      now,
	}
	s.resetLocked(now(), 1)
	return s
}

func (s *PlankSession) resetLocked(now time.Time, attemptNumber int) {
	s.stage = StageCountdown
	s.attemptNumber = attemptNumber
	s.countdownLeft = countdownSteps
	s.countdownMark = now
	s.origin = time.Time{}
	s.pausedElapsed = 0
	s.hasPaused = false
	s.recoveryUsed = 0
	s.pauseStart = time.Time{}
	s.frozen = 0
	s.nextIdleCheck = firstIdleCheck
	s.promptStart = time.Time{}
	s.keepRedoStart = time.Time{}
	s.autoStopUntil = time.Time{}
	s.attemptWritten = false
	s.statsWritten = false
}

func (s *PlankSession) target() time.Duration {
	return time.Duration(s.cfg.TargetSeconds) * time.Second
}

// Advance processes every time-driven transition due at the current instant.
// The hosting layer calls it on a short tick; because elapsed time is
// recomputed from the origin instant rather than counted, a late tick (tab
// suspension, scheduler hiccough) does not lose time.
func (s *PlankSession) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return nil
	}

	now := s.now()

	switch s.stage {
	case StageCountdown:
		for s.countdownLeft > 0 && now.Sub(s.countdownMark) >= countdownStep {
			s.countdownLeft--
			s.countdownMark = s.countdownMark.Add(countdownStep)
		}
		if s.countdownLeft == 0 {
			s.stage = StageActive
			// Resuming from a pause keeps the clock where it stopped.
			s.origin = now.Add(-s.pausedElapsed)
		}

	case StageActive:
		elapsed := now.Sub(s.origin)
		if elapsed >= s.nextIdleCheck {
			s.frozen = elapsed.Truncate(time.Second)
			s.nextIdleCheck += idleCheckEvery
			s.promptStart = now
			s.stage = StageStillGoing
			return nil
		}
		if s.hasPaused && elapsed >= s.target() {
			s.stage = StageAutoStopping
			s.autoStopUntil = now.Add(autoStopFlash)
		}

	case StageStillGoing:
		if now.Sub(s.promptStart) >= stillGoingWindow {
			// Unacknowledged: keep the frozen value, the prompt time is lost.
			s.enterKeepOrRedoLocked(now)
		}

	case StageAutoStopping:
		if !now.Before(s.autoStopUntil) {
			s.frozen = s.target()
			s.enterKeepOrRedoLocked(now)
		}

	case StagePaused:
		if s.recoveryUsed+now.Sub(s.pauseStart) >= recoveryLimit {
			s.recoveryUsed = recoveryLimit
			return s.finalizeFailedLocked(ctx, int(s.pausedElapsed/time.Second))
		}

	case StageKeepOrRedo:
		if now.Sub(s.keepRedoStart) >= keepOrRedoWindow {
			// No choice made counts as a do-over request.
			return s.redoLocked(ctx, now)
		}
	}

	return nil
}

func (s *PlankSession) enterKeepOrRedoLocked(now time.Time) {
	s.stage = StageKeepOrRedo
	s.keepRedoStart = now
}

// Pause suspends active timing. Only reachable from active.
func (s *PlankSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageActive {
		return ErrInvalidSessionAction
	}

	now := s.now()
	s.hasPaused = true
	s.pausedElapsed = now.Sub(s.origin)
	s.pauseStart = now
	s.recoveryTip = recoveryTips[rand.Intn(len(recoveryTips))]
	s.stage = StagePaused
	return nil
}

// Resume charges the pause against the recovery budget and re-enters the
// ready/set/go countdown with elapsed time preserved. Exhausting the budget
// here fails the session.
func (s *PlankSession) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StagePaused {
		return ErrInvalidSessionAction
	}

	now := s.now()
	pauseDuration := now.Sub(s.pauseStart)
	if s.recoveryUsed+pauseDuration >= recoveryLimit {
		s.recoveryUsed = recoveryLimit
		return s.finalizeFailedLocked(ctx, int(s.pausedElapsed/time.Second))
	}

	s.recoveryUsed += pauseDuration
	s.pauseStart = time.Time{}
	s.countdownLeft = countdownSteps
	s.countdownMark = now
	s.stage = StageCountdown
	return nil
}

// Done is the manual stop for a session that never paused and is past its
// goal, banking extra time for the over-goal bonus.
func (s *PlankSession) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageActive {
		return ErrInvalidSessionAction
	}
	elapsed := s.now().Sub(s.origin)
	if s.hasPaused || elapsed < s.target() {
		return ErrInvalidSessionAction
	}

	s.frozen = elapsed.Truncate(time.Second)
	s.enterKeepOrRedoLocked(s.now())
	return nil
}

// ConfirmStillGoing acknowledges the anti-idle prompt. The time spent
// answering counts as exercise time, so the clock jumps forward by the
// response time rather than discarding it.
func (s *PlankSession) ConfirmStillGoing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageStillGoing {
		return ErrInvalidSessionAction
	}

	now := s.now()
	responseTime := now.Sub(s.promptStart)
	s.stage = StageActive
	s.origin = now.Add(-(s.frozen + responseTime))
	return nil
}

// Keep finalizes the day with the frozen time: success when the goal was
// met, a non-missed failure otherwise. Either way the day is spent.
func (s *PlankSession) Keep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageKeepOrRedo {
		return ErrInvalidSessionAction
	}

	seconds := int(s.frozen / time.Second)
	if s.frozen >= s.target() {
		return s.finalizeCompleteLocked(ctx, seconds)
	}
	return s.finalizeFailedLocked(ctx, seconds)
}

// Redo restarts the whole attempt from the countdown. At the attempt cap the
// request finalizes the day as failed instead.
func (s *PlankSession) Redo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageKeepOrRedo {
		return ErrInvalidSessionAction
	}
	return s.redoLocked(ctx, s.now())
}

func (s *PlankSession) redoLocked(ctx context.Context, now time.Time) error {
	if s.attemptNumber >= maxAttempts {
		return s.finalizeFailedLocked(ctx, int(s.frozen/time.Second))
	}
	s.resetLocked(now, s.attemptNumber+1)
	return nil
}

// Cancel discards the session before a terminal stage. No writes, and the
// cancelled attempt does not consume a do-over.
func (s *PlankSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return ErrSessionFinished
	}
	s.finalized = true
	if s.onTerminal != nil {
		s.onTerminal()
	}
	return nil
}

func (s *PlankSession) finalizeCompleteLocked(ctx context.Context, seconds int) error {
	if err := s.persistTerminalLocked(ctx, seconds, true); err != nil {
		return err
	}
	s.celebration = celebrationMessage(seconds, s.cfg.TargetSeconds)
	s.stage = StageComplete
	s.finalized = true
	if s.onTerminal != nil {
		s.onTerminal()
	}
	return nil
}

func (s *PlankSession) finalizeFailedLocked(ctx context.Context, seconds int) error {
	if err := s.persistTerminalLocked(ctx, seconds, false); err != nil {
		return err
	}
	s.stage = StageFailed
	s.finalized = true
	if s.onTerminal != nil {
		s.onTerminal()
	}
	return nil
}

// persistTerminalLocked runs the terminal write sequence: attempt record,
// stats fold-in (success only), enrollment roll-forward. Order is load
// bearing: if enrollment shows day N+1, an attempt for day N must exist.
func (s *PlankSession) persistTerminalLocked(ctx context.Context, seconds int, success bool) error {
	target := s.cfg.TargetSeconds

	if !s.attemptWritten {
		a := &attempt.Attempt{
			ID:           uuid.New(),
			UserID:       s.cfg.UserID,
			ChallengeID:  s.cfg.ChallengeID,
			EnrollmentID: s.cfg.EnrollmentID,
			Day:          s.cfg.Day,
			TargetValue:  &target,
			ActualValue:  seconds,
			Success:      success,
			Missed:       false,
			Timestamp:    s.now(),
		}
		if err := s.recorder.CreateAttempt(ctx, a); err != nil {
			log.Printf("PlankSession %s day %d: attempt write failed: %v", s.cfg.EnrollmentID, s.cfg.Day, err)
			return fmt.Errorf("failed to log attempt: %w", err)
		}
		s.attemptWritten = true
	}

	if success && !s.statsWritten {
		err := s.recorder.UpsertPlankStats(ctx, s.cfg.UserID, s.cfg.ChallengeID, s.cfg.DisplayName, s.cfg.TeamID, seconds)
		if err != nil {
			log.Printf("PlankSession %s day %d: stats update failed: %v", s.cfg.EnrollmentID, s.cfg.Day, err)
			return fmt.Errorf("failed to update stats: %w", err)
		}
		s.statsWritten = true
	}

	if err := s.recorder.RollForward(ctx, s.cfg.EnrollmentID, s.cfg.Day, s.cfg.NumberOfDays); err != nil {
		log.Printf("PlankSession %s day %d: roll-forward failed: %v", s.cfg.EnrollmentID, s.cfg.Day, err)
		return fmt.Errorf("failed to advance enrollment: %w", err)
	}

	return nil
}

func celebrationMessage(seconds, target int) string {
	over := seconds - target
	if over >= 15 {
		return fmt.Sprintf("+%d seconds over goal! %s", over, highCelebrations[rand.Intn(len(highCelebrations))])
	}
	return standardCelebrations[rand.Intn(len(standardCelebrations))]
}

// PlankSessionState is one frame of session state for the client.
type PlankSessionState struct {
	Stage                PlankStage `json:"stage"`
	Day                  int        `json:"day"`
	TargetSeconds        int        `json:"target_seconds"`
	ElapsedSeconds       int        `json:"elapsed_seconds"`
	Countdown            int        `json:"countdown,omitempty"`
	AttemptNumber        int        `json:"attempt_number"`
	RedosLeft            int        `json:"redos_left"`
	HasPaused            bool       `json:"has_paused"`
	RecoveryTip          string     `json:"recovery_tip,omitempty"`
	RecoveryRemaining    int        `json:"recovery_remaining_seconds,omitempty"`
	StillGoingRemaining  int        `json:"still_going_remaining_seconds,omitempty"`
	KeepOrRedoRemaining  int        `json:"keep_or_redo_remaining_seconds,omitempty"`
	Celebration          string     `json:"celebration,omitempty"`
}

// Snapshot renders the current state for the client.
func (s *PlankSession) Snapshot() PlankSessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state := PlankSessionState{
		Stage:         s.stage,
		Day:           s.cfg.Day,
		TargetSeconds: s.cfg.TargetSeconds,
		AttemptNumber: s.attemptNumber,
		RedosLeft:     maxAttempts - s.attemptNumber,
		HasPaused:     s.hasPaused,
		Celebration:   s.celebration,
	}

	switch s.stage {
	case StageCountdown:
		state.Countdown = s.countdownLeft
		state.ElapsedSeconds = int(s.pausedElapsed / time.Second)
	case StageActive:
		state.ElapsedSeconds = int(now.Sub(s.origin) / time.Second)
	case StagePaused:
		state.ElapsedSeconds = int(s.pausedElapsed / time.Second)
		state.RecoveryTip = s.recoveryTip
		remaining := recoveryLimit - s.recoveryUsed - now.Sub(s.pauseStart)
		if remaining < 0 {
			remaining = 0
		}
		state.RecoveryRemaining = int(remaining / time.Second)
	case StageStillGoing:
		state.ElapsedSeconds = int(s.frozen / time.Second)
		remaining := stillGoingWindow - now.Sub(s.promptStart)
		if remaining < 0 {
			remaining = 0
		}
		state.StillGoingRemaining = int(remaining / time.Second)
	case StageAutoStopping, StageKeepOrRedo, StageComplete, StageFailed:
		state.ElapsedSeconds = int(s.frozen / time.Second)
		if s.stage == StageKeepOrRedo {
			remaining := keepOrRedoWindow - now.Sub(s.keepRedoStart)
			if remaining < 0 {
				remaining = 0
			}
			state.KeepOrRedoRemaining = int(remaining / time.Second)
		}
	}

	return state
}

// Stage returns the current stage.
func (s *PlankSession) Stage() PlankStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Finished reports whether the session reached a terminal stage or was
// cancelled.
func (s *PlankSession) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}
