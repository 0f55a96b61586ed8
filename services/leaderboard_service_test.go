package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plankSquatAPI/internal/types/leaderboard"
)

func TestBoardCacheServesWithinTTL(t *testing.T) {
	clock := newFakeClock()
	cache := newBoardCache(5 * time.Minute)
	cache.now = clock.now

	challengeID := uuid.New()
	key := boardCacheKey{challengeID: challengeID}
	board := &leaderboard.Leaderboard{ChallengeID: challengeID}

	_, ok := cache.get(key)
	require.False(t, ok)

	cache.put(key, board)

	clock.advance(4 * time.Minute)
	got, ok := cache.get(key)
	require.True(t, ok)
	assert.Same(t, board, got)
}

func TestBoardCacheExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	cache := newBoardCache(5 * time.Minute)
	cache.now = clock.now

	challengeID := uuid.New()
	key := boardCacheKey{challengeID: challengeID}
	cache.put(key, &leaderboard.Leaderboard{ChallengeID: challengeID})

	clock.advance(5 * time.Minute)
	_, ok := cache.get(key)
	assert.False(t, ok, "entries at the TTL boundary are stale")
}

// A board cached without team standings must not answer a request that asked
// for them; the two variants are separate cache entries.
func TestBoardCacheKeyedByTeamVariant(t *testing.T) {
	clock := newFakeClock()
	cache := newBoardCache(5 * time.Minute)
	cache.now = clock.now

	challengeID := uuid.New()
	solo := boardCacheKey{challengeID: challengeID}
	withTeams := boardCacheKey{challengeID: challengeID, includeTeams: true}

	cache.put(solo, &leaderboard.Leaderboard{ChallengeID: challengeID})

	_, ok := cache.get(withTeams)
	assert.False(t, ok, "the team variant is a cache miss")

	teamBoard := &leaderboard.Leaderboard{
		ChallengeID:   challengeID,
		TeamStandings: []*leaderboard.TeamStanding{{Name: "Core"}},
	}
	cache.put(withTeams, teamBoard)

	got, ok := cache.get(withTeams)
	require.True(t, ok)
	assert.Same(t, teamBoard, got)

	got, ok = cache.get(solo)
	require.True(t, ok)
	assert.Nil(t, got.TeamStandings)
}

func TestBoardCacheInvalidateDropsBothVariants(t *testing.T) {
	clock := newFakeClock()
	cache := newBoardCache(5 * time.Minute)
	cache.now = clock.now

	a := uuid.New()
	b := uuid.New()
	cache.put(boardCacheKey{challengeID: a}, &leaderboard.Leaderboard{ChallengeID: a})
	cache.put(boardCacheKey{challengeID: a, includeTeams: true}, &leaderboard.Leaderboard{ChallengeID: a})
	cache.put(boardCacheKey{challengeID: b}, &leaderboard.Leaderboard{ChallengeID: b})

	cache.invalidate(a)

	_, ok := cache.get(boardCacheKey{challengeID: a})
	assert.False(t, ok)
	_, ok = cache.get(boardCacheKey{challengeID: a, includeTeams: true})
	assert.False(t, ok)
	_, ok = cache.get(boardCacheKey{challengeID: b})
	assert.True(t, ok, "other challenges keep their cached board")
}
