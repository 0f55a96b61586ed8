package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plankSquatAPI/internal/types/challenge"
	"plankSquatAPI/internal/types/enrollment"
)

func phoenixDate(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, Location())
}

func testChallenge(start time.Time, days int) *challenge.Challenge {
	return &challenge.Challenge{
		Name:            "Test Plank Challenge",
		Type:            challenge.MovementPlank,
		StartDate:       start,
		NumberOfDays:    days,
		StartingValue:   30,
		IncrementPerDay: 5,
		IsActive:        true,
	}
}

func TestGlobalDayNumber(t *testing.T) {
	start := phoenixDate(2024, time.January, 1, 0)

	tests := []struct {
		name  string
		today time.Time
		want  int
	}{
		{"day before start", phoenixDate(2023, time.December, 31, 23), 0},
		{"start day morning", phoenixDate(2024, time.January, 1, 6), 1},
		{"start day last minute", phoenixDate(2024, time.January, 1, 23), 1},
		{"second day", phoenixDate(2024, time.January, 2, 0), 2},
		{"last day", phoenixDate(2024, time.January, 5, 12), 5},
		{"day after window", phoenixDate(2024, time.January, 6, 8), 6},
		{"week after window", phoenixDate(2024, time.January, 12, 8), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GlobalDayNumber(start, 5, tt.today))
		})
	}
}

func TestGlobalDayNumberUnconfigured(t *testing.T) {
	today := phoenixDate(2024, time.January, 3, 12)
	assert.Equal(t, 0, GlobalDayNumber(time.Time{}, 5, today))
	assert.Equal(t, 0, GlobalDayNumber(phoenixDate(2024, time.January, 1, 0), 0, today))
}

// A UTC instant late in the evening can still be the previous civil day in
// Phoenix. Day numbering must follow Phoenix, not the instant's own zone.
func TestGlobalDayNumberCrossZone(t *testing.T) {
	start := phoenixDate(2024, time.January, 1, 0)

	// 06:59 UTC on Jan 2 is 23:59 on Jan 1 in Phoenix (UTC-7).
	lateNight := time.Date(2024, time.January, 2, 6, 59, 0, 0, time.UTC)
	assert.Equal(t, 1, GlobalDayNumber(start, 5, lateNight))

	// One minute later it is midnight in Phoenix: day 2.
	midnight := time.Date(2024, time.January, 2, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, GlobalDayNumber(start, 5, midnight))
}

func TestSameCivilDay(t *testing.T) {
	a := time.Date(2024, time.March, 10, 6, 30, 0, 0, time.UTC) // Mar 9, 23:30 Phoenix
	b := phoenixDate(2024, time.March, 9, 8)
	assert.True(t, SameCivilDay(a, b))

	c := phoenixDate(2024, time.March, 10, 8)
	assert.False(t, SameCivilDay(a, c))
}

func TestPlanProgressFreshEnrollment(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 5)
	uc := &enrollment.Enrollment{CurrentDay: 1, Status: enrollment.StatusActive}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 1, 10))

	assert.Equal(t, 1, plan.GlobalDay)
	assert.Equal(t, 1, plan.CurrentDay)
	assert.Equal(t, enrollment.StatusActive, plan.Status)
	assert.Empty(t, plan.SkippedDays)
	assert.False(t, plan.Dirty)
}

func TestPlanProgressBeforeStart(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.February, 1, 0), 5)
	uc := &enrollment.Enrollment{CurrentDay: 1, Status: enrollment.StatusActive}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 20, 10))

	assert.Equal(t, 0, plan.GlobalDay)
	assert.False(t, plan.Dirty)
}

func TestPlanProgressUnconfigured(t *testing.T) {
	ch := &challenge.Challenge{Name: "placeholder"}
	uc := &enrollment.Enrollment{CurrentDay: 3, Status: enrollment.StatusActive}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 3, 10))

	assert.Equal(t, 0, plan.GlobalDay)
	assert.Equal(t, 3, plan.CurrentDay)
	assert.False(t, plan.Dirty)
}

func TestPlanProgressSkippedDays(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 10)
	// Completed days 1 and 2, then disappeared. Returns on day 6.
	uc := &enrollment.Enrollment{
		CurrentDay:       3,
		LastCompletedDay: 2,
		Status:           enrollment.StatusActive,
	}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 6, 9))

	assert.Equal(t, 6, plan.GlobalDay)
	assert.Equal(t, 6, plan.CurrentDay)
	assert.Equal(t, enrollment.StatusActive, plan.Status)
	assert.Equal(t, []int{3, 4, 5}, plan.SkippedDays)
	assert.True(t, plan.Dirty)
}

// Today's day is never marked skipped; only the days strictly before it.
func TestPlanProgressTodayNotSkipped(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 10)
	uc := &enrollment.Enrollment{
		CurrentDay:       2,
		LastCompletedDay: 1,
		Status:           enrollment.StatusActive,
	}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 3, 9))

	assert.Equal(t, []int{2}, plan.SkippedDays)
	assert.Equal(t, 3, plan.CurrentDay)
}

func TestPlanProgressCompletionBoundary(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 5)
	// Completed days 1-2, never came back. Returns after the window.
	uc := &enrollment.Enrollment{
		CurrentDay:       3,
		LastCompletedDay: 2,
		Status:           enrollment.StatusActive,
	}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 9, 11))

	assert.Equal(t, 9, plan.GlobalDay)
	assert.Equal(t, enrollment.StatusCompleted, plan.Status)
	assert.Equal(t, 6, plan.CurrentDay, "currentDay pins at numberOfDays+1")
	assert.Equal(t, []int{3, 4, 5}, plan.SkippedDays)
	assert.True(t, plan.Dirty)
}

func TestPlanProgressFinishedEveryDay(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 5)
	uc := &enrollment.Enrollment{
		CurrentDay:       6,
		LastCompletedDay: 5,
		Status:           enrollment.StatusCompleted,
	}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 20, 11))

	assert.Empty(t, plan.SkippedDays)
	assert.Equal(t, enrollment.StatusCompleted, plan.Status)
	assert.Equal(t, 6, plan.CurrentDay)
	assert.False(t, plan.Dirty, "an already-completed enrollment never changes again")
}

// An enrollment completed with missed days along the way also stays frozen:
// those days were recorded at completion and must not be re-listed.
func TestPlanProgressCompletedWithMissesStaysFrozen(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 5)
	uc := &enrollment.Enrollment{
		CurrentDay:       6,
		LastCompletedDay: 2,
		Status:           enrollment.StatusCompleted,
	}

	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 20, 11))

	assert.Empty(t, plan.SkippedDays)
	assert.Equal(t, enrollment.StatusCompleted, plan.Status)
	assert.Equal(t, 6, plan.CurrentDay)
	assert.False(t, plan.Dirty)
}

// Running the plan twice from the resulting state yields no further changes.
func TestPlanProgressIdempotent(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 10)
	uc := &enrollment.Enrollment{
		CurrentDay:       3,
		LastCompletedDay: 2,
		Status:           enrollment.StatusActive,
	}
	today := phoenixDate(2024, time.January, 6, 9)

	first := PlanProgress(uc, ch, today)
	require.True(t, first.Dirty)

	// Apply the plan the way the sync service would.
	uc.CurrentDay = first.CurrentDay
	uc.Status = first.Status
	uc.LastCompletedDay = 2 // missed days never advance lastCompletedDay

	second := PlanProgress(uc, ch, today)
	assert.Equal(t, first.CurrentDay, second.CurrentDay)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.SkippedDays, second.SkippedDays,
		"skipped days recompute identically; the write side deduplicates")
}

// The five-day scenario from the mobile app: join day 1, complete days 1-2,
// vanish, come back after the window.
func TestPlanProgressFiveDayScenario(t *testing.T) {
	start := phoenixDate(2024, time.January, 1, 0)
	ch := testChallenge(start, 5)

	uc := &enrollment.Enrollment{CurrentDay: 1, Status: enrollment.StatusActive}

	// Day 1: nothing to reconcile.
	plan := PlanProgress(uc, ch, phoenixDate(2024, time.January, 1, 18))
	require.False(t, plan.Dirty)

	// Days 1 and 2 completed.
	uc.CurrentDay = 3
	uc.LastCompletedDay = 2

	// Day 4: day 3 was skipped.
	plan = PlanProgress(uc, ch, phoenixDate(2024, time.January, 4, 7))
	assert.Equal(t, []int{3}, plan.SkippedDays)
	assert.Equal(t, 4, plan.CurrentDay)
	assert.Equal(t, enrollment.StatusActive, plan.Status)

	// Back on Jan 10, well past the window: 3, 4, 5 all missed, done.
	plan = PlanProgress(uc, ch, phoenixDate(2024, time.January, 10, 7))
	assert.Equal(t, []int{3, 4, 5}, plan.SkippedDays)
	assert.Equal(t, 6, plan.CurrentDay)
	assert.Equal(t, enrollment.StatusCompleted, plan.Status)
}

func TestTargetValueProgression(t *testing.T) {
	ch := testChallenge(phoenixDate(2024, time.January, 1, 0), 5)

	assert.Equal(t, 30, ch.TargetValue(1))
	assert.Equal(t, 35, ch.TargetValue(2))
	assert.Equal(t, 50, ch.TargetValue(5))
}
