package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plankSquatAPI/internal/types/attempt"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.January, 3, 7, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeRecorder struct {
	attempts     []*attempt.Attempt
	statsValues  []int
	rollForwards []int

	failAttempt     bool
	failStats       bool
	failRollForward bool
}

func (r *fakeRecorder) CreateAttempt(_ context.Context, a *attempt.Attempt) error {
	if r.failAttempt {
		return errors.New("attempt insert failed")
	}
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *fakeRecorder) UpsertPlankStats(_ context.Context, _, _ uuid.UUID, _ string, _ *uuid.UUID, seconds int) error {
	if r.failStats {
		return errors.New("stats upsert failed")
	}
	r.statsValues = append(r.statsValues, seconds)
	return nil
}

func (r *fakeRecorder) RollForward(_ context.Context, _ uuid.UUID, day, _ int) error {
	if r.failRollForward {
		return errors.New("roll forward failed")
	}
	r.rollForwards = append(r.rollForwards, day)
	return nil
}

func sessionFixture(targetSeconds int) (*PlankSession, *fakeRecorder, *fakeClock) {
	clock := newFakeClock()
	rec := &fakeRecorder{}
	s := NewPlankSession(PlankSessionConfig{
		UserID:        uuid.New(),
		ChallengeID:   uuid.New(),
		EnrollmentID:  uuid.New(),
		DisplayName:   "tester",
		Day:           3,
		TargetSeconds: targetSeconds,
		NumberOfDays:  30,
	}, rec, clock.now)
	return s, rec, clock
}

// runCountdown walks the ready/set/go countdown and lands the session in
// active.
func runCountdown(t *testing.T, s *PlankSession, clock *fakeClock) {
	t.Helper()
	clock.advance(3 * time.Second)
	require.NoError(t, s.Advance(context.Background()))
	require.Equal(t, StageActive, s.Stage())
}

func TestCountdownToActive(t *testing.T) {
	s, _, clock := sessionFixture(30)
	ctx := context.Background()

	require.Equal(t, StageCountdown, s.Stage())
	assert.Equal(t, 3, s.Snapshot().Countdown)

	clock.advance(time.Second)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, StageCountdown, s.Stage())
	assert.Equal(t, 2, s.Snapshot().Countdown)

	clock.advance(2 * time.Second)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, StageActive, s.Stage())
	assert.Equal(t, 0, s.Snapshot().ElapsedSeconds)
}

// Elapsed time is recomputed from the start instant, so a long gap between
// ticks loses nothing.
func TestElapsedSurvivesMissedTicks(t *testing.T) {
	s, _, clock := sessionFixture(120)
	runCountdown(t, s, clock)

	clock.advance(47 * time.Second)
	require.NoError(t, s.Advance(context.Background()))
	assert.Equal(t, 47, s.Snapshot().ElapsedSeconds)
}

func TestKeepSuccessPersistsExactlyOnce(t *testing.T) {
	s, rec, clock := sessionFixture(30)
	ctx := context.Background()
	runCountdown(t, s, clock)

	// Never paused: the timer runs past the goal for bonus time.
	clock.advance(45 * time.Second)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, StageActive, s.Stage())

	require.NoError(t, s.Done())
	require.Equal(t, StageKeepOrRedo, s.Stage())
	assert.Equal(t, 45, s.Snapshot().ElapsedSeconds)

	require.NoError(t, s.Keep(ctx))
	assert.Equal(t, StageComplete, s.Stage())

	require.Len(t, rec.attempts, 1)
	a := rec.attempts[0]
	assert.Equal(t, 3, a.Day)
	assert.Equal(t, 45, a.ActualValue)
	assert.True(t, a.Success)
	assert.False(t, a.Missed)
	require.NotNil(t, a.TargetValue)
	assert.Equal(t, 30, *a.TargetValue)

	assert.Equal(t, []int{45}, rec.statsValues)
	assert.Equal(t, []int{3}, rec.rollForwards)

	// Terminal is terminal: no further writes possible.
	assert.ErrorIs(t, s.Keep(ctx), ErrInvalidSessionAction)
	require.NoError(t, s.Advance(ctx))
	assert.Len(t, rec.attempts, 1)
}

func TestDoneRequiresGoalMet(t *testing.T) {
	s, _, clock := sessionFixture(30)
	runCountdown(t, s, clock)

	clock.advance(20 * time.Second)
	assert.ErrorIs(t, s.Done(), ErrInvalidSessionAction)
	assert.Equal(t, StageActive, s.Stage())
}

// Auto-stop at the goal happens only for sessions that paused. A clean run
// keeps going so the user can bank extra seconds.
func TestAutoStopOnlyAfterPause(t *testing.T) {
	s, _, clock := sessionFixture(30)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(31 * time.Second)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, StageActive, s.Stage(), "never-paused session runs past the goal")

	require.NoError(t, s.Pause())
	clock.advance(5 * time.Second)
	require.NoError(t, s.Resume(ctx))
	runCountdown(t, s, clock)

	// Already past the goal with hasPaused set: next tick auto-stops.
	clock.advance(time.Second)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, StageAutoStopping, s.Stage())

	clock.advance(autoStopFlash)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, StageKeepOrRedo, s.Stage())
	assert.Equal(t, 30, s.Snapshot().ElapsedSeconds, "auto-stop pins the clock at the goal")
}

func TestPauseFreezesElapsed(t *testing.T) {
	s, _, clock := sessionFixture(60)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(10 * time.Second)
	require.NoError(t, s.Pause())
	assert.Equal(t, StagePaused, s.Stage())
	assert.Equal(t, 10, s.Snapshot().ElapsedSeconds)

	clock.advance(20 * time.Second)
	assert.Equal(t, 10, s.Snapshot().ElapsedSeconds, "elapsed does not move while paused")

	require.NoError(t, s.Resume(ctx))
	require.Equal(t, StageCountdown, s.Stage())
	runCountdown(t, s, clock)
	assert.Equal(t, 10, s.Snapshot().ElapsedSeconds, "resume picks up where the pause left off")
}

// The 60 second recovery budget spans all pauses in the attempt, not each
// pause separately.
func TestRecoveryBudgetSpansPauses(t *testing.T) {
	s, rec, clock := sessionFixture(120)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(10 * time.Second)
	require.NoError(t, s.Pause())
	clock.advance(30 * time.Second)
	require.NoError(t, s.Resume(ctx))
	runCountdown(t, s, clock)

	clock.advance(5 * time.Second)
	require.NoError(t, s.Pause())

	// 30s used. 29 more keeps the session alive.
	clock.advance(29 * time.Second)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, StagePaused, s.Stage())
	assert.Equal(t, 1, s.Snapshot().RecoveryRemaining)

	// Crossing 60s total fails the attempt with the frozen time.
	clock.advance(time.Second)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, StageFailed, s.Stage())

	require.Len(t, rec.attempts, 1)
	assert.False(t, rec.attempts[0].Success)
	assert.False(t, rec.attempts[0].Missed)
	assert.Equal(t, 15, rec.attempts[0].ActualValue)
	assert.Empty(t, rec.statsValues, "failed attempts never touch stats")
	assert.Equal(t, []int{3}, rec.rollForwards, "the day is spent either way")
}

func TestResumeAfterBudgetExhaustedFails(t *testing.T) {
	s, rec, clock := sessionFixture(120)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(10 * time.Second)
	require.NoError(t, s.Pause())
	clock.advance(60 * time.Second)

	require.NoError(t, s.Resume(ctx), "resume at the limit finalizes instead of resuming")
	assert.Equal(t, StageFailed, s.Stage())
	require.Len(t, rec.attempts, 1)
	assert.Equal(t, 10, rec.attempts[0].ActualValue)
}

func TestStillGoingPromptAndAcknowledge(t *testing.T) {
	s, _, clock := sessionFixture(600)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(5 * time.Minute)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, StageStillGoing, s.Stage())
	assert.Equal(t, 300, s.Snapshot().ElapsedSeconds, "display freezes at the interrupt")

	// Answering 7 seconds later credits those 7 seconds as exercise time.
	clock.advance(7 * time.Second)
	require.NoError(t, s.ConfirmStillGoing())
	require.Equal(t, StageActive, s.Stage())
	assert.Equal(t, 307, s.Snapshot().ElapsedSeconds)

	// Next check comes 2 minutes after the first, at 420s of elapsed time.
	clock.advance(113 * time.Second)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, StageStillGoing, s.Stage())
	assert.Equal(t, 420, s.Snapshot().ElapsedSeconds)
}

func TestStillGoingExpiryFreezesTime(t *testing.T) {
	s, rec, clock := sessionFixture(600)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(5 * time.Minute)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, StageStillGoing, s.Stage())

	// No answer for 20 seconds: the frozen 300s stands and the session moves
	// to keep-or-redo.
	clock.advance(stillGoingWindow)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, StageKeepOrRedo, s.Stage())
	assert.Equal(t, 300, s.Snapshot().ElapsedSeconds)

	// 300 < 600: keeping it records a failed day.
	require.NoError(t, s.Keep(ctx))
	assert.Equal(t, StageFailed, s.Stage())
	require.Len(t, rec.attempts, 1)
	assert.Equal(t, 300, rec.attempts[0].ActualValue)
	assert.False(t, rec.attempts[0].Success)
}

func TestRedoResetsAndCapsAtThree(t *testing.T) {
	s, rec, clock := sessionFixture(30)
	ctx := context.Background()

	reachKeepOrRedo := func() {
		runCountdown(t, s, clock)
		clock.advance(35 * time.Second)
		require.NoError(t, s.Advance(ctx))
		require.NoError(t, s.Done())
		require.Equal(t, StageKeepOrRedo, s.Stage())
	}

	reachKeepOrRedo()
	assert.Equal(t, 1, s.Snapshot().AttemptNumber)
	assert.Equal(t, 2, s.Snapshot().RedosLeft)

	require.NoError(t, s.Redo(ctx))
	require.Equal(t, StageCountdown, s.Stage())
	assert.Equal(t, 2, s.Snapshot().AttemptNumber)
	assert.Equal(t, 0, s.Snapshot().ElapsedSeconds, "redo starts the attempt over")

	reachKeepOrRedo()
	require.NoError(t, s.Redo(ctx))
	assert.Equal(t, 3, s.Snapshot().AttemptNumber)

	reachKeepOrRedo()
	// Third attempt used up: asking again finalizes as failed with the
	// frozen time.
	require.NoError(t, s.Redo(ctx))
	assert.Equal(t, StageFailed, s.Stage())
	require.Len(t, rec.attempts, 1, "only the terminal transition writes")
	assert.Equal(t, 35, rec.attempts[0].ActualValue)
	assert.Equal(t, []int{3}, rec.rollForwards)
}

// Letting the keep-or-redo window lapse counts as a redo request.
func TestKeepOrRedoTimeoutActsAsRedo(t *testing.T) {
	s, rec, clock := sessionFixture(30)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(35 * time.Second)
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.Done())

	clock.advance(keepOrRedoWindow)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, StageCountdown, s.Stage())
	assert.Equal(t, 2, s.Snapshot().AttemptNumber)
	assert.Empty(t, rec.attempts)
}

func TestCancelWritesNothing(t *testing.T) {
	s, rec, clock := sessionFixture(30)
	runCountdown(t, s, clock)

	clock.advance(12 * time.Second)
	require.NoError(t, s.Cancel())
	assert.True(t, s.Finished())

	assert.Empty(t, rec.attempts)
	assert.Empty(t, rec.statsValues)
	assert.Empty(t, rec.rollForwards)

	assert.ErrorIs(t, s.Cancel(), ErrSessionFinished)
}

// A terminal write that fails partway leaves the session non-terminal and a
// retry resumes at the failed step without double-writing.
func TestTerminalWriteRetryResumesAtFailedStep(t *testing.T) {
	s, rec, clock := sessionFixture(30)
	ctx := context.Background()
	runCountdown(t, s, clock)

	clock.advance(40 * time.Second)
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.Done())

	rec.failStats = true
	require.Error(t, s.Keep(ctx))
	assert.Equal(t, StageKeepOrRedo, s.Stage(), "failed persistence keeps the choice open")
	require.Len(t, rec.attempts, 1, "attempt landed before stats failed")

	rec.failStats = false
	require.NoError(t, s.Keep(ctx))
	assert.Equal(t, StageComplete, s.Stage())
	assert.Len(t, rec.attempts, 1, "retry does not rewrite the attempt")
	assert.Equal(t, []int{40}, rec.statsValues)
	assert.Equal(t, []int{3}, rec.rollForwards)
}

func TestManagerOneSessionPerUserChallenge(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewPlankSessionManager(rec)

	cfg := PlankSessionConfig{
		UserID:        uuid.New(),
		ChallengeID:   uuid.New(),
		EnrollmentID:  uuid.New(),
		Day:           1,
		TargetSeconds: 30,
		NumberOfDays:  30,
	}

	first := m.StartSession(cfg)
	second := m.StartSession(cfg)
	assert.Same(t, first, second, "reconnect rejoins the live session")
	assert.Equal(t, 1, m.ActiveSessions())

	require.NoError(t, first.Cancel())
	require.Eventually(t, func() bool { return m.ActiveSessions() == 0 },
		time.Second, 10*time.Millisecond, "cancelled session leaves the manager")

	third := m.StartSession(cfg)
	assert.NotSame(t, first, third)
	assert.Equal(t, 1, third.Snapshot().AttemptNumber, "a fresh start resets attempt accounting")
}

// A restart racing the deferred eviction of a finished session must not lose
// the fresh session: the eviction only removes the session that finished.
func TestManagerRestartSurvivesDeferredEviction(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewPlankSessionManager(rec)

	cfg := PlankSessionConfig{
		UserID:        uuid.New(),
		ChallengeID:   uuid.New(),
		EnrollmentID:  uuid.New(),
		Day:           1,
		TargetSeconds: 30,
		NumberOfDays:  30,
	}

	first := m.StartSession(cfg)
	require.NoError(t, first.Cancel())

	// Start again before the eviction goroutine has necessarily run.
	fresh := m.StartSession(cfg)
	assert.NotSame(t, first, fresh)

	// Give the eviction time to land; the fresh session must still be there.
	time.Sleep(50 * time.Millisecond)
	got, ok := m.GetSession(cfg.UserID, cfg.ChallengeID)
	require.True(t, ok, "the fresh session stays registered")
	assert.Same(t, fresh, got)
	assert.Equal(t, 1, m.ActiveSessions())
}
