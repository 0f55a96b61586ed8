package stats

import (
	"time"

	"github.com/google/uuid"
)

// UserStats is the all-time aggregate per user, across every challenge.
type UserStats struct {
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	DisplayName       string    `json:"display_name" db:"display_name"`
	TotalPlankSeconds int       `json:"total_plank_seconds" db:"total_plank_seconds"`
	TotalSquats       int       `json:"total_squats" db:"total_squats"`
	BestPlankSeconds  int       `json:"best_plank_seconds" db:"best_plank_seconds"`
	BestSquats        int       `json:"best_squats" db:"best_squats"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// ChallengeUserStats is the per-(challenge, user) running aggregate the
// leaderboard reads. FirstAchievedAt marks when the current best was first
// set; ties never move it, so earlier achievement wins the tie-break.
type ChallengeUserStats struct {
	ChallengeID     uuid.UUID  `json:"challenge_id" db:"challenge_id"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	DisplayName     string     `json:"display_name" db:"display_name"`
	MovementType    string     `json:"movement_type" db:"movement_type"`
	TeamID          *uuid.UUID `json:"team_id,omitempty" db:"team_id"`
	TotalValue      int        `json:"total_value" db:"total_value"`
	BestValue       int        `json:"best_value" db:"best_value"`
	FirstAchievedAt *time.Time `json:"first_achieved_at,omitempty" db:"first_achieved_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
