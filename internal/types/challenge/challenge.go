package challenge

import (
	"time"

	"github.com/google/uuid"
)

type MovementType string

const (
	MovementPlank MovementType = "plank"
	MovementSquat MovementType = "squat"
)

type Challenge struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	Name            string       `json:"name" db:"name"`
	Description     string       `json:"description" db:"description"`
	Type            MovementType `json:"type" db:"type"`
	StartDate       time.Time    `json:"start_date" db:"start_date"`
	NumberOfDays    int          `json:"number_of_days" db:"number_of_days"`
	StartingValue   int          `json:"starting_value" db:"starting_value"`
	IncrementPerDay int          `json:"increment_per_day" db:"increment_per_day"`
	IsActive        bool         `json:"is_active" db:"is_active"`
	IsTeamChallenge bool         `json:"is_team_challenge" db:"is_team_challenge"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// TargetValue is the per-day goal: seconds for planks, reps for squats.
func (c *Challenge) TargetValue(day int) int {
	return c.StartingValue + (day-1)*c.IncrementPerDay
}

// Configured reports whether the challenge has the fields day math needs.
func (c *Challenge) Configured() bool {
	return !c.StartDate.IsZero() && c.NumberOfDays > 0
}

type CreateChallengeRequest struct {
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Type            MovementType `json:"type"`
	StartDate       time.Time    `json:"start_date"`
	NumberOfDays    int          `json:"number_of_days"`
	StartingValue   int          `json:"starting_value"`
	IncrementPerDay int          `json:"increment_per_day"`
	IsTeamChallenge bool         `json:"is_team_challenge"`
}

type UpdateChallengeRequest struct {
	Name            *string    `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	NumberOfDays    *int       `json:"number_of_days,omitempty"`
	StartingValue   *int       `json:"starting_value,omitempty"`
	IncrementPerDay *int       `json:"increment_per_day,omitempty"`
	IsActive        *bool      `json:"is_active,omitempty"`
}

type JoinChallengeRequest struct {
	ChallengeID uuid.UUID  `json:"challenge_id"`
	TeamID      *uuid.UUID `json:"team_id,omitempty"`
}
