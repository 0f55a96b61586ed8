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
	"plankSquatAPI/internal/types/attempt"
	"plankSquatAPI/internal/types/challenge"
	"plankSquatAPI/internal/types/enrollment"
	"plankSquatAPI/internal/types/notification"
)

// syncStore is the slice of persistence the calendar sync needs. Narrow on
// purpose so unit tests can swap in an in-memory fake.
type syncStore interface {
	HasMissedAttempt(ctx context.Context, userID, challengeID uuid.UUID, day int) (bool, error)
	CountMissedAttempts(ctx context.Context, userID, challengeID uuid.UUID) (int, error)
	CreateMissedAttempt(ctx context.Context, a *attempt.Attempt) error
	UpdateEnrollmentProgress(ctx context.Context, enrollmentID uuid.UUID, currentDay int, status enrollment.Status, missedDaysCount int) error
}

// SyncService brings enrollments into agreement with the challenge calendar:
// it derives the authoritative current day and backfills a missed attempt
// record, exactly once, for every day the user skipped.
type SyncService struct {
	store        syncStore
	now          func() time.Time
	notifService *NotificationService
}

func NewSyncService(db *pgxpool.Pool, notifService *NotificationService) *SyncService {
	return &SyncService{
		store:        &pgSyncStore{db: db},
		now:          calendar.Now,
		notifService: notifService,
	}
}

// SyncEnrollment reconciles one enrollment against today's calendar and
// returns it with the challenge snapshot attached.
//
// Write order matters: every missed attempt is durable before the enrollment
// roll-forward commits. A crash in between leaves the enrollment behind the
// calendar, which the next sync detects and repairs; the reverse would
// advance current_day past ungenerated missed-day records.
func (s *SyncService) SyncEnrollment(ctx context.Context, uc *enrollment.Enrollment, ch *challenge.Challenge) (*enrollment.WithChallenge, error) {
	result := &enrollment.WithChallenge{Enrollment: *uc, ChallengeDetails: ch}

	plan := calendar.PlanProgress(uc, ch, s.now())
	if plan.GlobalDay == 0 || !plan.Dirty {
		// Not started, not configured, or already in agreement.
		result.CurrentDay = plan.CurrentDay
		result.Status = plan.Status
		return result, nil
	}

	newlyMissed := 0

	for _, d := range plan.SkippedDays {
		exists, err := s.store.HasMissedAttempt(ctx, uc.UserID, uc.ChallengeID, d)
		if err != nil {
			return nil, fmt.Errorf("failed to check missed attempt for day %d: %w", d, err)
		}
		if exists {
			// Already backfilled by an earlier or concurrent sync.
			continue
		}

		a := &attempt.Attempt{
			ID:           uuid.New(),
			UserID:       uc.UserID,
			ChallengeID:  uc.ChallengeID,
			EnrollmentID: uc.ID,
			Day:          d,
			TargetValue:  nil,
			ActualValue:  0,
			Success:      false,
			Missed:       true,
			Timestamp:    s.now(),
		}
		if err := s.store.CreateMissedAttempt(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to record missed day %d: %w", d, err)
		}
		newlyMissed++
	}

	// Derive the counter from the attempts that actually exist, so a sync
	// that died between the backfill and the enrollment write converges on
	// retry instead of drifting.
	missedDaysCount, err := s.store.CountMissedAttempts(ctx, uc.UserID, uc.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to count missed attempts: %w", err)
	}

	if newlyMissed > 0 || plan.CurrentDay != uc.CurrentDay || plan.Status != uc.Status || missedDaysCount != uc.MissedDaysCount {
		err := s.store.UpdateEnrollmentProgress(ctx, uc.ID, plan.CurrentDay, plan.Status, missedDaysCount)
		if err != nil {
			return nil, fmt.Errorf("failed to update enrollment progress: %w", err)
		}
	}

	result.CurrentDay = plan.CurrentDay
	result.Status = plan.Status
	result.MissedDaysCount = missedDaysCount

	if newlyMissed > 0 && s.notifService != nil {
		kind := notification.NotificationMissedDay
		title := "Missed a day"
		msg := fmt.Sprintf("You missed %d day(s) of %s. Day %d is waiting for you!", newlyMissed, ch.Name, plan.CurrentDay)
		if plan.Status == enrollment.StatusCompleted {
			kind = notification.NotificationChallengeComplete
			title = "Challenge over"
			msg = fmt.Sprintf("%s has ended. Check the leaderboard to see where you landed!", ch.Name)
		}
		if err := s.notifService.Notify(ctx, uc.UserID, kind, title, msg, map[string]any{
			"challenge_id": uc.ChallengeID.String(),
			"missed_days":  newlyMissed,
		}); err != nil {
			// Notifications are best effort; the sync itself succeeded.
			log.Printf("SyncEnrollment: failed to notify user %s: %v", uc.UserID, err)
		}
	}

	return result, nil
}

// pgSyncStore is the production syncStore backed by Postgres.
type pgSyncStore struct {
	db *pgxpool.Pool
}

func (p *pgSyncStore) HasMissedAttempt(ctx context.Context, userID, challengeID uuid.UUID, day int) (bool, error) {
	var id uuid.UUID
	query := `
	SELECT id FROM attempts
	WHERE user_id = $1 AND challenge_id = $2 AND day = $3 AND missed = true
	LIMIT 1
	`
	err := p.db.QueryRow(ctx, query, userID, challengeID, day).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *pgSyncStore) CountMissedAttempts(ctx context.Context, userID, challengeID uuid.UUID) (int, error) {
	var count int
	query := `
	SELECT COUNT(*) FROM attempts
	WHERE user_id = $1 AND challenge_id = $2 AND missed = true
	`
	if err := p.db.QueryRow(ctx, query, userID, challengeID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *pgSyncStore) CreateMissedAttempt(ctx context.Context, a *attempt.Attempt) error {
	query := `
	INSERT INTO attempts (id, user_id, challenge_id, enrollment_id, day, target_value, actual_value, success, missed, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.db.Exec(ctx, query,
		a.ID, a.UserID, a.ChallengeID, a.EnrollmentID, a.Day,
		a.TargetValue, a.ActualValue, a.Success, a.Missed, a.Timestamp,
	)
	return err
}

func (p *pgSyncStore) UpdateEnrollmentProgress(ctx context.Context, enrollmentID uuid.UUID, currentDay int, status enrollment.Status, missedDaysCount int) error {
	query := `
	UPDATE enrollments
	SET current_day = $2, status = $3, missed_days_count = $4
	WHERE id = $1
	`
	_, err := p.db.Exec(ctx, query, enrollmentID, currentDay, status, missedDaysCount)
	return err
}
