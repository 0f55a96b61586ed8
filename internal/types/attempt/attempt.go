package attempt

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is append-only: one record per user/challenge/day. Missed records
// are generated by calendar sync for no-show days; everything else comes from
// a terminal plank session or a squat log.
type Attempt struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	ChallengeID  uuid.UUID `json:"challenge_id" db:"challenge_id"`
	EnrollmentID uuid.UUID `json:"enrollment_id" db:"enrollment_id"`
	Day          int       `json:"day" db:"day"`
	TargetValue  *int      `json:"target_value,omitempty" db:"target_value"`
	ActualValue  int       `json:"actual_value" db:"actual_value"`
	Success      bool      `json:"success" db:"success"`
	Missed       bool      `json:"missed" db:"missed"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

type LogSquatsRequest struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	Count       int       `json:"count"`
}
