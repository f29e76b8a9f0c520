package services

import (
	"math"
	"sort"
	"time"

	"game-session-engine/models"
)

// PlayerResult is one line of the final standings.
type PlayerResult struct {
	UserID string `json:"user_id"`
	Rank   int    `json:"rank"`
	Score  int64  `json:"score"`
	Index  int    `json:"index"`
}

// assignElimination stamps a dying slot with its placement: the count
// of players still alive at the moment of death, the dying player
// included. First death among N alive gets rank N, the last survivor
// implicitly ranks 1.
func assignElimination(slot *models.PlayerSlot, aliveBefore int, now time.Time) {
	rank := aliveBefore
	slot.EliminationRank = &rank
	slot.EliminatedAt = &now
	slot.IsAlive = false
}

// countAlive returns how many slots are still alive.
func countAlive(slots []models.PlayerSlot) int {
	alive := 0
	for i := range slots {
		if slots[i].IsAlive {
			alive++
		}
	}
	return alive
}

// FinalResults computes the final report: ascending stored elimination
// rank (unset sorts after every assigned rank), ties broken by
// descending score, then slot index for determinism. Ranks are
// renumbered 1..K contiguously even when stored ranks have gaps or
// ties — the stored value is a hint, not the report.
func FinalResults(slots []models.PlayerSlot) []PlayerResult {
	ordered := make([]models.PlayerSlot, len(slots))
	copy(ordered, slots)

	storedRank := func(p *models.PlayerSlot) int {
		if p.EliminationRank == nil {
			return math.MaxInt
		}
		return *p.EliminationRank
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := storedRank(&ordered[i]), storedRank(&ordered[j])
		if ri != rj {
			return ri < rj
		}
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Index < ordered[j].Index
	})

	results := make([]PlayerResult, len(ordered))
	for i := range ordered {
		results[i] = PlayerResult{
			UserID: ordered[i].UserID,
			Rank:   i + 1,
			Score:  ordered[i].Score,
			Index:  ordered[i].Index,
		}
	}
	return results
}
