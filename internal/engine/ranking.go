package engine

import (
	"math"
	"sort"

	"github.com/openprep/testprep-backend/internal/model"
)

// RankAmong computes the competition rank and percentile of one score within
// the full population of completed attempts for a test (the population
// includes the attempt itself). Ties share a rank: for scores [90,80,80,70]
// both 80s rank 2 and the 70 ranks 4. Recomputed fresh on every call so the
// result is always consistent with the current population.
func RankAmong(score float64, population []model.TestAttemptRecord) model.RankingSnapshot {
	total := len(population)
	if total == 0 {
		return model.RankingSnapshot{}
	}

	greater, atOrBelow := 0, 0
	for _, rec := range population {
		if rec.Score > score {
			greater++
		}
		if rec.Score <= score {
			atOrBelow++
		}
	}

	return model.RankingSnapshot{
		Rank:          1 + greater,
		Percentile:    math.Round(float64(atOrBelow)/float64(total)*1000) / 10,
		TotalAttempts: total,
	}
}

// RankedAttempt is one leaderboard row.
type RankedAttempt struct {
	model.TestAttemptRecord
	Rank int `json:"rank"`
}

// Leaderboard orders attempts by score descending with competition ranks.
// Equal scores share a rank; time spent then finish time break display order
// deterministically without affecting rank.
func Leaderboard(records []model.TestAttemptRecord) []RankedAttempt {
	sorted := make([]model.TestAttemptRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if sorted[i].TimeSpentSeconds != sorted[j].TimeSpentSeconds {
			return sorted[i].TimeSpentSeconds < sorted[j].TimeSpentSeconds
		}
		return sorted[i].FinishedAt.Before(sorted[j].FinishedAt)
	})

	out := make([]RankedAttempt, len(sorted))
	for i, rec := range sorted {
		rank := i + 1
		if i > 0 && rec.Score == sorted[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = RankedAttempt{TestAttemptRecord: rec, Rank: rank}
	}
	return out
}
