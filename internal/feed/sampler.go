package feed

import (
	"math/rand"
)

// SampleWithoutReplacement draws up to limit candidates with probability
// proportional to score. Each draw removes the winner from the pool, so the
// result has no duplicates. Scores at or below zero are treated as ScoreFloor.
func SampleWithoutReplacement(candidates []Candidate, limit int) []Candidate {
	return sampleWithRand(candidates, limit, rand.Float64)
}

// sampleWithRand is the deterministic core, parameterized on the random
// source for tests. randFloat must return values in [0, 1).
func sampleWithRand(candidates []Candidate, limit int, randFloat func() float64) []Candidate {
	if limit > len(candidates) {
		limit = len(candidates)
	}
	if limit <= 0 {
		return []Candidate{}
	}

	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	for i := range pool {
		if pool[i].Score <= 0 {
			pool[i].Score = ScoreFloor
		}
	}

	result := make([]Candidate, 0, limit)
	total := 0.0
	for _, c := range pool {
		total += c.Score
	}

	for len(result) < limit {
		target := randFloat() * total
		idx := len(pool) - 1
		acc := 0.0
		for i, c := range pool {
			acc += c.Score
			if target < acc {
				idx = i
				break
			}
		}

		winner := pool[idx]
		result = append(result, winner)
		total -= winner.Score
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}

	return result
}
