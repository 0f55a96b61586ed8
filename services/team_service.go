package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"plankSquatAPI/internal/types/team"
)

var ErrTeamNotFound = errors.New("team not found")

type TeamService struct {
	db *pgxpool.Pool
}

func NewTeamService(db *pgxpool.Pool) *TeamService {
	return &TeamService{db: db}
}

func (s *TeamService) ListTeams(ctx context.Context) ([]*team.Team, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, color, created_at FROM teams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]*team.Team, 0)
	for rows.Next() {
		t := &team.Team{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *TeamService) GetTeam(ctx context.Context, id uuid.UUID) (*team.Team, error) {
	t := &team.Team{}
	err := s.db.QueryRow(ctx, `SELECT id, name, color, created_at FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return t, nil
}

func (s *TeamService) CreateTeam(ctx context.Context, req *team.CreateTeamRequest) (*team.Team, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	color := req.Color
	if color == "" {
		color = "#4CAF50"
	}

	t := &team.Team{
		ID:        uuid.New(),
		Name:      req.Name,
		Color:     color,
		CreatedAt: time.Now(),
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO teams (id, name, color, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, t.Color, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	return t, nil
}

func (s *TeamService) UpdateTeam(ctx context.Context, id uuid.UUID, req *team.UpdateTeamRequest) (*team.Team, error) {
	result, err := s.db.Exec(ctx,
		`UPDATE teams SET name = COALESCE($2, name), color = COALESCE($3, color) WHERE id = $1`,
		id, req.Name, req.Color,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update team: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrTeamNotFound
	}
	return s.GetTeam(ctx, id)
}

// DeleteTeam removes the team; enrollments and stats rows keep a dangling
// team_id cleared here so standings stay consistent.
func (s *TeamService) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE enrollments SET team_id = NULL WHERE team_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach enrollments: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE challenge_user_stats SET team_id = NULL WHERE team_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach stats: %w", err)
	}
	result, err := tx.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTeamNotFound
	}

	return tx.Commit(ctx)
}
