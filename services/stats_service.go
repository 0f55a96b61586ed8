package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plankSquatAPI/internal/types/stats"
)

// StatsService maintains the running aggregates behind profiles and
// leaderboards. Updates are additive: calling it twice for one attempt
// double-counts, so callers own the at-most-once guarantee.
type StatsService struct {
	db          *pgxpool.Pool
	invalidator BoardInvalidator
}

// BoardInvalidator lets the stats writer drop stale leaderboard cache
// entries without a hard dependency on the leaderboard service.
type BoardInvalidator interface {
	Invalidate(challengeID uuid.UUID)
}

func NewStatsService(db *pgxpool.Pool) *StatsService {
	return &StatsService{db: db}
}

// SetBoardInvalidator injects the leaderboard cache. Wired in main.go.
func (s *StatsService) SetBoardInvalidator(inv BoardInvalidator) {
	s.invalidator = inv
}

// UpsertPlankStats folds a successful plank day into the user's all-time
// totals and the per-challenge aggregate. first_achieved_at only moves when
// a strictly new best is set; ties keep the earlier marker, which the
// leaderboard uses as its tie-break.
func (s *StatsService) UpsertPlankStats(ctx context.Context, userID, challengeID uuid.UUID, displayName string, teamID *uuid.UUID, seconds int) error {
	if err := s.upsertUserStats(ctx, userID, displayName, seconds, 0); err != nil {
		return err
	}
	if err := s.upsertChallengeStats(ctx, userID, challengeID, displayName, "plank", teamID, seconds); err != nil {
		return err
	}
	s.invalidate(challengeID)
	return nil
}

// UpsertSquatStats is the squat twin of UpsertPlankStats.
func (s *StatsService) UpsertSquatStats(ctx context.Context, userID, challengeID uuid.UUID, displayName string, teamID *uuid.UUID, reps int) error {
	if err := s.upsertUserStats(ctx, userID, displayName, 0, reps); err != nil {
		return err
	}
	if err := s.upsertChallengeStats(ctx, userID, challengeID, displayName, "squat", teamID, reps); err != nil {
		return err
	}
	s.invalidate(challengeID)
	return nil
}

func (s *StatsService) invalidate(challengeID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(challengeID)
	}
}

func (s *StatsService) upsertUserStats(ctx context.Context, userID uuid.UUID, displayName string, plankSeconds, squatReps int) error {
	query := `
	INSERT INTO user_stats (user_id, display_name, total_plank_seconds, total_squats, best_plank_seconds, best_squats, updated_at)
	VALUES ($1, $2, $3, $4, $3, $4, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		total_plank_seconds = user_stats.total_plank_seconds + EXCLUDED.total_plank_seconds,
		total_squats = user_stats.total_squats + EXCLUDED.total_squats,
		best_plank_seconds = GREATEST(user_stats.best_plank_seconds, EXCLUDED.best_plank_seconds),
		best_squats = GREATEST(user_stats.best_squats, EXCLUDED.best_squats),
		display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), user_stats.display_name),
		updated_at = NOW()
	`
	_, err := s.db.Exec(ctx, query, userID, displayName, plankSeconds, squatReps)
	if err != nil {
		return fmt.Errorf("failed to upsert user stats: %w", err)
	}
	return nil
}

func (s *StatsService) upsertChallengeStats(ctx context.Context, userID, challengeID uuid.UUID, displayName, movementType string, teamID *uuid.UUID, value int) error {
	// All SET expressions see the pre-update row, so first_achieved_at can
	// compare against the old best while best_value is replaced.
	query := `
	INSERT INTO challenge_user_stats (challenge_id, user_id, display_name, movement_type, team_id, total_value, best_value, first_achieved_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6, NOW(), NOW())
	ON CONFLICT (challenge_id, user_id) DO UPDATE SET
		total_value = challenge_user_stats.total_value + EXCLUDED.total_value,
		best_value = GREATEST(challenge_user_stats.best_value, EXCLUDED.best_value),
		first_achieved_at = CASE
			WHEN EXCLUDED.best_value > challenge_user_stats.best_value THEN NOW()
			ELSE challenge_user_stats.first_achieved_at
		END,
		display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), challenge_user_stats.display_name),
		team_id = COALESCE(EXCLUDED.team_id, challenge_user_stats.team_id),
		updated_at = NOW()
	`
	_, err := s.db.Exec(ctx, query, challengeID, userID, displayName, movementType, teamID, value)
	if err != nil {
		return fmt.Errorf("failed to upsert challenge stats: %w", err)
	}
	return nil
}

// GetUserStats returns the all-time aggregate for a user, zeroed when the
// user has no successful days yet.
func (s *StatsService) GetUserStats(ctx context.Context, userID uuid.UUID) (*stats.UserStats, error) {
	query := `
	SELECT user_id, display_name, total_plank_seconds, total_squats, best_plank_seconds, best_squats, updated_at
	FROM user_stats
	WHERE user_id = $1
	`
	us := &stats.UserStats{}
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&us.UserID, &us.DisplayName,
		&us.TotalPlankSeconds, &us.TotalSquats,
		&us.BestPlankSeconds, &us.BestSquats,
		&us.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &stats.UserStats{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return us, nil
}

// GetChallengeUserStats returns the per-challenge aggregate row, if any.
func (s *StatsService) GetChallengeUserStats(ctx context.Context, userID, challengeID uuid.UUID) (*stats.ChallengeUserStats, error) {
	query := `
	SELECT challenge_id, user_id, display_name, movement_type, team_id, total_value, best_value, first_achieved_at, updated_at
	FROM challenge_user_stats
	WHERE user_id = $1 AND challenge_id = $2
	`
	cs := &stats.ChallengeUserStats{}
	err := s.db.QueryRow(ctx, query, userID, challengeID).Scan(
		&cs.ChallengeID, &cs.UserID, &cs.DisplayName, &cs.MovementType,
		&cs.TeamID, &cs.TotalValue, &cs.BestValue, &cs.FirstAchievedAt, &cs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get challenge stats: %w", err)
	}
	log.Printf("Loaded challenge stats for user %s in challenge %s", userID, challengeID)
	return cs, nil
}
