package calendar

import (
	"time"

	"plankSquatAPI/internal/types/challenge"
	"plankSquatAPI/internal/types/enrollment"
)

// All day math runs on Phoenix time (MST, UTC-7, no DST). Every component
// that asks "what day is it" must go through this package, otherwise the
// enrollment bookkeeping and the attempt timestamps drift apart.
var phoenix *time.Location

func init() {
	loc, err := time.LoadLocation("America/Phoenix")
	if err != nil {
		// No tzdata available; MST never observes DST so a fixed offset is equivalent.
		loc = time.FixedZone("MST", -7*60*60)
	}
	phoenix = loc
}

// Location returns the fixed reference zone.
func Location() *time.Location {
	return phoenix
}

// Now returns the current instant in the reference zone.
func Now() time.Time {
	return time.Now().In(phoenix)
}

// CivilDate strips the time of day, normalizing t to midnight in the
// reference zone.
func CivilDate(t time.Time) time.Time {
	t = t.In(phoenix)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, phoenix)
}

// SameCivilDay reports whether a and b fall on the same Phoenix calendar day.
func SameCivilDay(a, b time.Time) bool {
	return CivilDate(a).Equal(CivilDate(b))
}

// GlobalDayNumber computes the 1-based challenge day for a given instant.
//
// Returns:
//   - 0 if today is before the challenge start date (or the challenge is
//     not configured)
//   - 1..numberOfDays while the challenge is running
//   - numberOfDays + k once the challenge window has passed
func GlobalDayNumber(startDate time.Time, numberOfDays int, today time.Time) int {
	if startDate.IsZero() || numberOfDays <= 0 {
		return 0
	}

	start := CivilDate(startDate)
	now := CivilDate(today)

	// Both are midnights in a no-DST zone, so the difference is an exact
	// multiple of 24h.
	dayDiff := int(now.Sub(start).Hours() / 24)
	if dayDiff < 0 {
		return 0
	}

	return dayDiff + 1
}

// ProgressPlan is the pure outcome of reconciling an enrollment against the
// calendar: which days were skipped and where the enrollment should land.
// Applying the plan (writing missed attempts, updating the enrollment row)
// is the sync service's job.
type ProgressPlan struct {
	GlobalDay   int
	CurrentDay  int
	Status      enrollment.Status
	SkippedDays []int
	// Dirty is true when CurrentDay, Status or the skipped-day set differ
	// from what the enrollment currently holds.
	Dirty bool
}

// PlanProgress derives the authoritative current day for uc from the
// challenge calendar and detects every day in (lastCompletedDay, today) the
// user never acted on. It performs no I/O and is deterministic for a given
// today.
func PlanProgress(uc *enrollment.Enrollment, ch *challenge.Challenge, today time.Time) ProgressPlan {
	plan := ProgressPlan{
		CurrentDay: uc.CurrentDay,
		Status:     uc.Status,
	}
	if plan.CurrentDay < 1 {
		plan.CurrentDay = 1
	}
	if plan.Status == "" {
		plan.Status = enrollment.StatusActive
	}

	if !ch.Configured() {
		return plan
	}

	rawGlobalDay := GlobalDayNumber(ch.StartDate, ch.NumberOfDays, today)
	plan.GlobalDay = rawGlobalDay
	if rawGlobalDay == 0 {
		// Not started yet; nothing to reconcile.
		return plan
	}

	// A completed enrollment never changes again; any missed days were
	// recorded when it completed.
	if plan.Status == enrollment.StatusCompleted {
		return plan
	}

	targetDay := rawGlobalDay
	if targetDay > ch.NumberOfDays {
		targetDay = ch.NumberOfDays
	}

	prevCompleted := uc.LastCompletedDay
	for d := prevCompleted + 1; d < targetDay; d++ {
		if d >= 1 && d <= ch.NumberOfDays {
			plan.SkippedDays = append(plan.SkippedDays, d)
		}
	}

	if rawGlobalDay > ch.NumberOfDays {
		// The window has passed: everything still unrecorded up to the last
		// day counts as skipped, and the enrollment rolls to completed.
		from := targetDay
		if prevCompleted+1 > from {
			from = prevCompleted + 1
		}
		for d := from; d <= ch.NumberOfDays; d++ {
			if !containsDay(plan.SkippedDays, d) {
				plan.SkippedDays = append(plan.SkippedDays, d)
			}
		}
		plan.Status = enrollment.StatusCompleted
		plan.CurrentDay = ch.NumberOfDays + 1
	} else {
		plan.CurrentDay = targetDay
	}

	plan.Dirty = len(plan.SkippedDays) > 0 ||
		plan.CurrentDay != uc.CurrentDay ||
		plan.Status != uc.Status

	return plan
}

func containsDay(days []int, d int) bool {
	for _, v := range days {
		if v == d {
			return true
		}
	}
	return false
}
