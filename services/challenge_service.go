package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plankSquatAPI/internal/calendar"
	"plankSquatAPI/internal/types/challenge"
	"plankSquatAPI/internal/types/enrollment"
)

var (
	ErrChallengeNotFound      = errors.New("challenge not found")
	ErrChallengeNotConfigured = errors.New("challenge is missing a start date or day count")
	ErrChallengeNotStarted    = errors.New("challenge has not started yet")
	ErrChallengeEnded         = errors.New("challenge has already ended")
	ErrAlreadyJoined          = errors.New("already joined this challenge")
	ErrEnrollmentNotFound     = errors.New("enrollment not found")
	ErrDayAlreadyLogged       = errors.New("today's challenge is already logged")
)

type ChallengeService struct {
	db          *pgxpool.Pool
	syncService *SyncService
}

func NewChallengeService(db *pgxpool.Pool, syncService *SyncService) *ChallengeService {
	return &ChallengeService{db: db, syncService: syncService}
}

const challengeColumns = `id, name, description, type, start_date, number_of_days, starting_value, increment_per_day, is_active, is_team_challenge, created_at`

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	ch := &challenge.Challenge{}
	err := row.Scan(
		&ch.ID,
		&ch.Name,
		&ch.Description,
		&ch.Type,
		&ch.StartDate,
		&ch.NumberOfDays,
		&ch.StartingValue,
		&ch.IncrementPerDay,
		&ch.IsActive,
		&ch.IsTeamChallenge,
		&ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	ch, err := scanChallenge(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return ch, nil
}

// ListAvailable returns active challenges that have not fully finished yet.
// A challenge past its last day is hidden from the catalog but kept in the
// store so history and leaderboards survive.
func (s *ChallengeService) ListAvailable(ctx context.Context) ([]*challenge.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE is_active = true ORDER BY start_date ASC`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	today := calendar.Now()
	challenges := make([]*challenge.Challenge, 0)
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		if !ch.Configured() {
			continue
		}
		globalDay := calendar.GlobalDayNumber(ch.StartDate, ch.NumberOfDays, today)
		if globalDay > ch.NumberOfDays {
			continue
		}
		challenges = append(challenges, ch)
	}
	return challenges, rows.Err()
}

// JoinChallenge creates an enrollment starting at the current global day.
// Joins are refused outside the challenge window.
func (s *ChallengeService) JoinChallenge(ctx context.Context, userID uuid.UUID, displayName string, challengeID uuid.UUID, teamID *uuid.UUID) (*enrollment.Enrollment, error) {
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	if !ch.Configured() {
		return nil, ErrChallengeNotConfigured
	}

	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM enrollments WHERE user_id = $1 AND challenge_id = $2)`,
		userID, challengeID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if exists {
		return nil, ErrAlreadyJoined
	}

	globalDay := calendar.GlobalDayNumber(ch.StartDate, ch.NumberOfDays, calendar.Now())
	if globalDay == 0 {
		return nil, ErrChallengeNotStarted
	}
	if globalDay > ch.NumberOfDays {
		return nil, ErrChallengeEnded
	}

	uc := &enrollment.Enrollment{
		ID:               uuid.New(),
		UserID:           userID,
		ChallengeID:      challengeID,
		TeamID:           teamID,
		DisplayName:      displayName,
		CurrentDay:       globalDay,
		LastCompletedDay: 0,
		Status:           enrollment.StatusActive,
		MissedDaysCount:  0,
		JoinedAt:         time.Now(),
	}

	query := `
	INSERT INTO enrollments (id, user_id, challenge_id, team_id, display_name, current_day, last_completed_day, last_completed_date, status, missed_days_count, joined_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.Exec(ctx, query,
		uc.ID, uc.UserID, uc.ChallengeID, uc.TeamID, uc.DisplayName,
		uc.CurrentDay, uc.LastCompletedDay, uc.LastCompletedDate,
		uc.Status, uc.MissedDaysCount, uc.JoinedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to join challenge: %w", err)
	}

	log.Printf("User %s joined challenge %s on day %d", userID, challengeID, globalDay)
	return uc, nil
}

const enrollmentColumns = `id, user_id, challenge_id, team_id, display_name, current_day, last_completed_day, last_completed_date, status, missed_days_count, joined_at`

func scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	uc := &enrollment.Enrollment{}
	err := row.Scan(
		&uc.ID,
		&uc.UserID,
		&uc.ChallengeID,
		&uc.TeamID,
		&uc.DisplayName,
		&uc.CurrentDay,
		&uc.LastCompletedDay,
		&uc.LastCompletedDate,
		&uc.Status,
		&uc.MissedDaysCount,
		&uc.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return uc, nil
}

func (s *ChallengeService) GetEnrollment(ctx context.Context, userID, challengeID uuid.UUID) (*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND challenge_id = $2`
	uc, err := scanEnrollment(s.db.QueryRow(ctx, query, userID, challengeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return uc, nil
}

// GetUserChallenges loads the user's enrollments and reconciles each one
// against the calendar before returning it. This runs on every view refresh,
// so a sync failure on one enrollment skips it rather than failing the list.
func (s *ChallengeService) GetUserChallenges(ctx context.Context, userID uuid.UUID) ([]*enrollment.WithChallenge, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY joined_at DESC`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	enrollments := make([]*enrollment.Enrollment, 0)
	for rows.Next() {
		uc, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]*enrollment.WithChallenge, 0, len(enrollments))
	for _, uc := range enrollments {
		ch, err := s.GetChallenge(ctx, uc.ChallengeID)
		if err != nil {
			log.Printf("GetUserChallenges: challenge %s missing for enrollment %s: %v", uc.ChallengeID, uc.ID, err)
			continue
		}

		synced, err := s.syncService.SyncEnrollment(ctx, uc, ch)
		if err != nil {
			log.Printf("GetUserChallenges: sync failed for enrollment %s: %v", uc.ID, err)
			continue
		}
		results = append(results, synced)
	}

	return results, nil
}

// GetSyncedEnrollment loads one enrollment and reconciles it against the
// calendar before returning it.
func (s *ChallengeService) GetSyncedEnrollment(ctx context.Context, userID, challengeID uuid.UUID) (*enrollment.WithChallenge, error) {
	uc, err := s.GetEnrollment(ctx, userID, challengeID)
	if err != nil {
		return nil, err
	}

	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	return s.syncService.SyncEnrollment(ctx, uc, ch)
}

// CheckCanStartDay refuses starting a day whose terminal record was already
// written today.
func (s *ChallengeService) CheckCanStartDay(uc *enrollment.WithChallenge) error {
	if uc.LastCompletedDate != nil && calendar.SameCivilDay(*uc.LastCompletedDate, calendar.Now()) {
		return ErrDayAlreadyLogged
	}
	if uc.Status == enrollment.StatusCompleted {
		return ErrChallengeEnded
	}
	return nil
}

// ----- admin CRUD -----

func (s *ChallengeService) CreateChallenge(ctx context.Context, req *challenge.CreateChallengeRequest) (*challenge.Challenge, error) {
	if req.StartDate.IsZero() || req.NumberOfDays <= 0 {
		return nil, ErrChallengeNotConfigured
	}
	if req.Type != challenge.MovementPlank && req.Type != challenge.MovementSquat {
		return nil, fmt.Errorf("unknown challenge type %q", req.Type)
	}

	ch := &challenge.Challenge{
		ID:              uuid.New(),
		Name:            req.Name,
		Description:     req.Description,
		Type:            req.Type,
		StartDate:       calendar.CivilDate(req.StartDate),
		NumberOfDays:    req.NumberOfDays,
		StartingValue:   req.StartingValue,
		IncrementPerDay: req.IncrementPerDay,
		IsActive:        true,
		IsTeamChallenge: req.IsTeamChallenge,
		CreatedAt:       time.Now(),
	}

	query := `
	INSERT INTO challenges (id, name, description, type, start_date, number_of_days, starting_value, increment_per_day, is_active, is_team_challenge, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.Exec(ctx, query,
		ch.ID, ch.Name, ch.Description, ch.Type, ch.StartDate,
		ch.NumberOfDays, ch.StartingValue, ch.IncrementPerDay,
		ch.IsActive, ch.IsTeamChallenge, ch.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	return ch, nil
}

// UpdateChallenge mutates challenge fields in place. Targets for future days
// change retroactively since they are computed from the current fields;
// already-written attempts keep their snapshotted target_value.
func (s *ChallengeService) UpdateChallenge(ctx context.Context, id uuid.UUID, req *challenge.UpdateChallengeRequest) (*challenge.Challenge, error) {
	query := `
	UPDATE challenges
	SET name = COALESCE($2, name),
	    description = COALESCE($3, description),
	    start_date = COALESCE($4, start_date),
	    number_of_days = COALESCE($5, number_of_days),
	    starting_value = COALESCE($6, starting_value),
	    increment_per_day = COALESCE($7, increment_per_day),
	    is_active = COALESCE($8, is_active)
	WHERE id = $1
	`
	result, err := s.db.Exec(ctx, query, id,
		req.Name, req.Description, req.StartDate, req.NumberOfDays,
		req.StartingValue, req.IncrementPerDay, req.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrChallengeNotFound
	}
	return s.GetChallenge(ctx, id)
}

// DeactivateChallenge hides a challenge without deleting its records.
func (s *ChallengeService) DeactivateChallenge(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `UPDATE challenges SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

// DeleteChallenge removes the challenge and everything hanging off it.
func (s *ChallengeService) DeleteChallenge(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM attempts WHERE challenge_id = $1`,
		`DELETE FROM challenge_user_stats WHERE challenge_id = $1`,
		`DELETE FROM enrollments WHERE challenge_id = $1`,
		`DELETE FROM challenges WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to cascade challenge delete: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit challenge delete: %w", err)
	}

	log.Printf("Deleted challenge %s and all dependent records", id)
	return nil
}
