package enrollment

import (
	"time"

	"github.com/google/uuid"

	"plankSquatAPI/internal/types/challenge"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Enrollment ties one user to one challenge. CurrentDay is the next day the
// user should attempt; LastCompletedDay is the highest day with a terminal
// attempt record.
type Enrollment struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	ChallengeID       uuid.UUID  `json:"challenge_id" db:"challenge_id"`
	TeamID            *uuid.UUID `json:"team_id,omitempty" db:"team_id"`
	DisplayName       string     `json:"display_name" db:"display_name"`
	CurrentDay        int        `json:"current_day" db:"current_day"`
	LastCompletedDay  int        `json:"last_completed_day" db:"last_completed_day"`
	LastCompletedDate *time.Time `json:"last_completed_date,omitempty" db:"last_completed_date"`
	Status            Status     `json:"status" db:"status"`
	MissedDaysCount   int        `json:"missed_days_count" db:"missed_days_count"`
	JoinedAt          time.Time  `json:"joined_at" db:"joined_at"`
}

// WithChallenge is the enrollment as handed to the client: the reconciled
// enrollment plus a snapshot of its challenge for display.
type WithChallenge struct {
	Enrollment
	ChallengeDetails *challenge.Challenge `json:"challenge_details"`
}
