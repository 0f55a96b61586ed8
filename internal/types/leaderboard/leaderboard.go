package leaderboard

import (
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	DisplayName string     `json:"display_name" db:"display_name"`
	TeamID      *uuid.UUID `json:"team_id,omitempty" db:"team_id"`
	TotalValue  int        `json:"total_value" db:"total_value"`
	BestValue   int        `json:"best_value" db:"best_value"`
	Rank        int        `json:"rank"`
}

type TeamStanding struct {
	TeamID       uuid.UUID `json:"team_id" db:"team_id"`
	Name         string    `json:"name" db:"name"`
	Color        string    `json:"color" db:"color"`
	MemberCount  int       `json:"member_count" db:"member_count"`
	TotalValue   int       `json:"total_value" db:"total_value"`
	AverageValue float64   `json:"average_value" db:"average_value"`
	Rank         int       `json:"rank"`
}

type Leaderboard struct {
	ChallengeID   uuid.UUID       `json:"challenge_id"`
	Entries       []*Entry        `json:"entries"`
	TeamStandings []*TeamStanding `json:"team_standings,omitempty"`
	TotalUsers    int             `json:"total_users"`
	FetchedAt     time.Time       `json:"fetched_at"`
}
