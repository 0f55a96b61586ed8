package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"plankSquatAPI/internal/types/leaderboard"
)

const boardCacheTTL = 5 * time.Minute

// boardCache is an explicit TTL cache keyed by the query parameters: the
// challenge and whether team standings were included. Stats writes
// invalidate per challenge, so a freshly logged day shows up without
// waiting out the TTL.
type boardCache struct {
	mu      sync.Mutex
	entries map[boardCacheKey]*boardCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type boardCacheKey struct {
	challengeID  uuid.UUID
	includeTeams bool
}

type boardCacheEntry struct {
	board     *leaderboard.Leaderboard
	fetchedAt time.Time
}

func newBoardCache(ttl time.Duration) *boardCache {
	return &boardCache{
		entries: make(map[boardCacheKey]*boardCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *boardCache) get(key boardCacheKey) (*leaderboard.Leaderboard, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.board, true
}

func (c *boardCache) put(key boardCacheKey, board *leaderboard.Leaderboard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &boardCacheEntry{board: board, fetchedAt: c.now()}
}

// invalidate drops every cached variant for the challenge.
func (c *boardCache) invalidate(challengeID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, boardCacheKey{challengeID: challengeID})
	delete(c.entries, boardCacheKey{challengeID: challengeID, includeTeams: true})
}

type LeaderboardService struct {
	db    *pgxpool.Pool
	cache *boardCache
}

func NewLeaderboardService(db *pgxpool.Pool) *LeaderboardService {
	return &LeaderboardService{
		db:    db,
		cache: newBoardCache(boardCacheTTL),
	}
}

// Invalidate drops the cached board for a challenge. Satisfies
// StatsService's BoardInvalidator.
func (s *LeaderboardService) Invalidate(challengeID uuid.UUID) {
	s.cache.invalidate(challengeID)
}

// GetLeaderboard returns the ranked board for a challenge, cached for five
// minutes. Ties on total and best break toward whoever reached the best
// first.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, challengeID uuid.UUID, includeTeams bool) (*leaderboard.Leaderboard, error) {
	key := boardCacheKey{challengeID: challengeID, includeTeams: includeTeams}
	if board, ok := s.cache.get(key); ok {
		return board, nil
	}

	entries, err := s.loadEntries(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	board := &leaderboard.Leaderboard{
		ChallengeID: challengeID,
		Entries:     entries,
		TotalUsers:  len(entries),
		FetchedAt:   time.Now(),
	}

	if includeTeams {
		standings, err := s.loadTeamStandings(ctx, challengeID)
		if err != nil {
			return nil, err
		}
		board.TeamStandings = standings
	}

	s.cache.put(key, board)
	log.Printf("Leaderboard for challenge %s rebuilt with %d entries", challengeID, len(entries))
	return board, nil
}

func (s *LeaderboardService) loadEntries(ctx context.Context, challengeID uuid.UUID) ([]*leaderboard.Entry, error) {
	query := `
	SELECT user_id, display_name, team_id, total_value, best_value
	FROM challenge_user_stats
	WHERE challenge_id = $1
	ORDER BY total_value DESC, best_value DESC, first_achieved_at ASC NULLS LAST
	`
	rows, err := s.db.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]*leaderboard.Entry, 0)
	rank := 0
	for rows.Next() {
		entry := &leaderboard.Entry{}
		err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.TeamID, &entry.TotalValue, &entry.BestValue)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		rank++
		entry.Rank = rank
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *LeaderboardService) loadTeamStandings(ctx context.Context, challengeID uuid.UUID) ([]*leaderboard.TeamStanding, error) {
	query := `
	SELECT t.id, t.name, t.color, COUNT(cus.user_id) AS member_count,
	       COALESCE(SUM(cus.total_value), 0) AS total_value,
	       COALESCE(AVG(cus.total_value), 0) AS average_value
	FROM teams t
	JOIN challenge_user_stats cus ON cus.team_id = t.id AND cus.challenge_id = $1
	GROUP BY t.id, t.name, t.color
	ORDER BY average_value DESC, total_value DESC
	`
	rows, err := s.db.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team standings: %w", err)
	}
	defer rows.Close()

	standings := make([]*leaderboard.TeamStanding, 0)
	rank := 0
	for rows.Next() {
		st := &leaderboard.TeamStanding{}
		err := rows.Scan(&st.TeamID, &st.Name, &st.Color, &st.MemberCount, &st.TotalValue, &st.AverageValue)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team standing: %w", err)
		}
		rank++
		st.Rank = rank
		standings = append(standings, st)
	}
	return standings, rows.Err()
}
