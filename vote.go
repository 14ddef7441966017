package kbner

import "fmt"

// Voter merges per-token predictions across ensemble heads by majority
// vote. Ties are broken by the designated head's own vote, so the merged
// output is always defined and independent of head evaluation order.
type Voter struct {
	headCount    int
	tieBreakHead int
}

// NewVoter validates the tie-break head index against the ensemble size.
func NewVoter(headCount, tieBreakHead int) (*Voter, error) {
	if headCount <= 0 {
		return nil, fmt.Errorf("a voter needs at least one head, got %d", headCount)
	}
	if tieBreakHead < 0 || tieBreakHead >= headCount {
		return nil, fmt.Errorf("tie-break head %d outside the ensemble of %d heads", tieBreakHead, headCount)
	}
	return &Voter{headCount: headCount, tieBreakHead: tieBreakHead}, nil
}

// Merge tallies one vote per head per token. predictions holds one
// token-flattened sequence per head, all of equal length. A strict majority
// wins outright; any tie at the maximum falls back to the tie-break head.
func (v *Voter) Merge(predictions [][]int) ([]int, error) {
	if len(predictions) != v.headCount {
		return nil, fmt.Errorf("voter configured for %d heads received %d prediction sequences", v.headCount, len(predictions))
	}
	length := len(predictions[0])
	for i, p := range predictions {
		if len(p) != length {
			return nil, fmt.Errorf("head %d predicted %d tokens, head 0 predicted %d", i, len(p), length)
		}
	}

	merged := make([]int, length)
	tally := map[int]int{}
	for t := 0; t < length; t++ {
		clear(tally)
		for _, p := range predictions {
			tally[p[t]]++
		}

		best, bestCount, tied := 0, 0, false
		for tag, count := range tally {
			switch {
			case count > bestCount:
				best, bestCount, tied = tag, count, false
			case count == bestCount:
				tied = true
			}
		}
		if tied {
			best = predictions[v.tieBreakHead][t]
		}
		merged[t] = best
	}
	return merged, nil
}
