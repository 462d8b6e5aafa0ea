package engine_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
)

func recordsWithScores(scores ...float64) []model.TestAttemptRecord {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	recs := make([]model.TestAttemptRecord, len(scores))
	for i, s := range scores {
		recs[i] = model.TestAttemptRecord{
			AttemptID:        uuid.New(),
			Score:            s,
			TimeSpentSeconds: 600,
			FinishedAt:       base.Add(time.Duration(i) * time.Minute),
		}
	}
	return recs
}

func TestRankAmong_CompetitionRanking(t *testing.T) {
	pop := recordsWithScores(90, 80, 80, 70)

	// Ties share a rank: both 80s rank 2, the 70 ranks 4.
	assert.Equal(t, 1, engine.RankAmong(90, pop).Rank)
	assert.Equal(t, 2, engine.RankAmong(80, pop).Rank)
	assert.Equal(t, 4, engine.RankAmong(70, pop).Rank)
}

func TestRankAmong_Percentile(t *testing.T) {
	pop := recordsWithScores(90, 80, 80, 70)

	assert.Equal(t, 100.0, engine.RankAmong(90, pop).Percentile)
	assert.Equal(t, 75.0, engine.RankAmong(80, pop).Percentile)
	assert.Equal(t, 25.0, engine.RankAmong(70, pop).Percentile)
	assert.Equal(t, 4, engine.RankAmong(70, pop).TotalAttempts)
}

func TestRankAmong_SingleAttempt(t *testing.T) {
	pop := recordsWithScores(42)
	snap := engine.RankAmong(42, pop)
	assert.Equal(t, 1, snap.Rank)
	assert.Equal(t, 100.0, snap.Percentile)
}

func TestRankAmong_EmptyPopulation(t *testing.T) {
	snap := engine.RankAmong(50, nil)
	assert.Equal(t, model.RankingSnapshot{}, snap)
}

func TestLeaderboard_OrderAndSharedRanks(t *testing.T) {
	pop := recordsWithScores(70, 90, 80, 80)

	board := engine.Leaderboard(pop)
	require.Len(t, board, 4)

	assert.Equal(t, 90.0, board[0].Score)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 80.0, board[1].Score)
	assert.Equal(t, 2, board[1].Rank)
	assert.Equal(t, 80.0, board[2].Score)
	assert.Equal(t, 2, board[2].Rank)
	assert.Equal(t, 70.0, board[3].Score)
	assert.Equal(t, 4, board[3].Rank)
}

func TestLeaderboard_TieBreakByTimeSpent(t *testing.T) {
	fast := model.TestAttemptRecord{AttemptID: uuid.New(), Score: 80, TimeSpentSeconds: 300}
	slow := model.TestAttemptRecord{AttemptID: uuid.New(), Score: 80, TimeSpentSeconds: 500}

	board := engine.Leaderboard([]model.TestAttemptRecord{slow, fast})
	assert.Equal(t, fast.AttemptID, board[0].AttemptID)
	// Display order differs but the rank is shared.
	assert.Equal(t, board[0].Rank, board[1].Rank)
}

func TestLeaderboard_DoesNotMutateInput(t *testing.T) {
	pop := recordsWithScores(10, 30, 20)
	engine.Leaderboard(pop)
	assert.Equal(t, 10.0, pop[0].Score)
	assert.Equal(t, 30.0, pop[1].Score)
}
