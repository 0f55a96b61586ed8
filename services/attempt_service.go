package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plankSquatAPI/internal/calendar"
	"plankSquatAPI/internal/types/attempt"
	"plankSquatAPI/internal/types/challenge"
	"plankSquatAPI/internal/types/enrollment"
)

// ErrDuplicateAttempt means a terminal record for that day already exists,
// e.g. a second device finished the same day concurrently.
var (
	ErrDuplicateAttempt  = errors.New("attempt already recorded for this day")
	ErrWrongMovementType = errors.New("challenge movement type does not match")
)

type AttemptService struct {
	db           *pgxpool.Pool
	statsService *StatsService
}

func NewAttemptService(db *pgxpool.Pool, statsService *StatsService) *AttemptService {
	return &AttemptService{db: db, statsService: statsService}
}

// CreateAttempt writes a terminal (non-missed) attempt. The partial unique
// index on (user_id, challenge_id, day) WHERE NOT missed turns a concurrent
// double-write into a conflict instead of a duplicate row.
func (s *AttemptService) CreateAttempt(ctx context.Context, a *attempt.Attempt) error {
	query := `
	INSERT INTO attempts (id, user_id, challenge_id, enrollment_id, day, target_value, actual_value, success, missed, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (user_id, challenge_id, day) WHERE NOT missed DO NOTHING
	`
	result, err := s.db.Exec(ctx, query,
		a.ID, a.UserID, a.ChallengeID, a.EnrollmentID, a.Day,
		a.TargetValue, a.ActualValue, a.Success, a.Missed, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDuplicateAttempt
	}
	return nil
}

// RollForward advances the enrollment after a terminal attempt for day. The
// day counts as used regardless of outcome; only calendar sync marks true
// no-shows.
func (s *AttemptService) RollForward(ctx context.Context, enrollmentID uuid.UUID, day, numberOfDays int) error {
	nextDay := day + 1
	status := enrollment.StatusActive
	if nextDay > numberOfDays {
		status = enrollment.StatusCompleted
	}

	query := `
	UPDATE enrollments
	SET current_day = $2, last_completed_day = $3, last_completed_date = $4, status = $5
	WHERE id = $1
	`
	result, err := s.db.Exec(ctx, query, enrollmentID, nextDay, day, calendar.Now(), status)
	if err != nil {
		return fmt.Errorf("failed to roll enrollment forward: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEnrollmentNotFound
	}
	return nil
}

// LogSquats records a single-shot squat day: one attempt, stats on success,
// then the enrollment roll-forward, in that order so a failure partway is
// detectable rather than silent.
func (s *AttemptService) LogSquats(ctx context.Context, uc *enrollment.WithChallenge, displayName string, count int) (*attempt.Attempt, error) {
	ch := uc.ChallengeDetails
	if ch.Type != challenge.MovementSquat {
		return nil, fmt.Errorf("challenge %s: %w", ch.ID, ErrWrongMovementType)
	}
	if count < 0 {
		return nil, fmt.Errorf("squat count must not be negative")
	}

	day := uc.CurrentDay
	target := ch.TargetValue(day)
	success := count >= target

	a := &attempt.Attempt{
		ID:           uuid.New(),
		UserID:       uc.UserID,
		ChallengeID:  uc.ChallengeID,
		EnrollmentID: uc.ID,
		Day:          day,
		TargetValue:  &target,
		ActualValue:  count,
		Success:      success,
		Missed:       false,
		Timestamp:    calendar.Now(),
	}

	if err := s.CreateAttempt(ctx, a); err != nil {
		return nil, err
	}

	if success {
		err := s.statsService.UpsertSquatStats(ctx, uc.UserID, uc.ChallengeID, displayName, uc.TeamID, count)
		if err != nil {
			log.Printf("LogSquats: attempt %s recorded but stats update failed: %v", a.ID, err)
			return nil, err
		}
	}

	if err := s.RollForward(ctx, uc.ID, day, ch.NumberOfDays); err != nil {
		log.Printf("LogSquats: attempt %s recorded but roll-forward failed: %v", a.ID, err)
		return nil, err
	}

	return a, nil
}

// ListAttempts returns the user's attempt log for a challenge, newest day first.
func (s *AttemptService) ListAttempts(ctx context.Context, userID, challengeID uuid.UUID) ([]*attempt.Attempt, error) {
	query := `
	SELECT id, user_id, challenge_id, enrollment_id, day, target_value, actual_value, success, missed, timestamp
	FROM attempts
	WHERE user_id = $1 AND challenge_id = $2
	ORDER BY day DESC
	`
	rows, err := s.db.Query(ctx, query, userID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]*attempt.Attempt, 0)
	for rows.Next() {
		a := &attempt.Attempt{}
		err := rows.Scan(
			&a.ID, &a.UserID, &a.ChallengeID, &a.EnrollmentID, &a.Day,
			&a.TargetValue, &a.ActualValue, &a.Success, &a.Missed, &a.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetAttempt fetches the terminal record for a specific day, if any.
func (s *AttemptService) GetAttempt(ctx context.Context, userID, challengeID uuid.UUID, day int) (*attempt.Attempt, error) {
	query := `
	SELECT id, user_id, challenge_id, enrollment_id, day, target_value, actual_value, success, missed, timestamp
	FROM attempts
	WHERE user_id = $1 AND challenge_id = $2 AND day = $3 AND missed = false
	`
	a := &attempt.Attempt{}
	err := s.db.QueryRow(ctx, query, userID, challengeID, day).Scan(
		&a.ID, &a.UserID, &a.ChallengeID, &a.EnrollmentID, &a.Day,
		&a.TargetValue, &a.ActualValue, &a.Success, &a.Missed, &a.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}
