package heads

import (
	"fmt"
	"math"

	"github.com/knights-analytics/kbner/backends"
	"github.com/knights-analytics/kbner/util/vectorutil"
)

// crf is a linear-chain conditional random field over tag emissions.
// transitions[i][j] scores moving from tag i to tag j.
type crf struct {
	labelCount  int
	start       []float32
	end         []float32
	transitions [][]float32
}

func newCRF(labelCount int, checkpoint *backends.Checkpoint) (*crf, error) {
	transitions, err := checkpoint.Matrix("crf.transitions", labelCount, labelCount)
	if err != nil {
		return nil, err
	}
	start, err := checkpoint.Vector("crf.start_transitions", labelCount)
	if err != nil {
		return nil, err
	}
	end, err := checkpoint.Vector("crf.end_transitions", labelCount)
	if err != nil {
		return nil, err
	}
	return &crf{
		labelCount:  labelCount,
		start:       start,
		end:         end,
		transitions: transitions,
	}, nil
}

// NegLogLikelihood scores the gold tag path against the partition function
// computed over the first length positions. length <= 0 scores the full
// emission width. An all-padding instance contributes nothing.
func (c *crf) NegLogLikelihood(emissions [][]float32, tags []int, length int) (float64, error) {
	width := len(emissions)
	if length < 0 || length > width {
		length = width
	}
	if length == 0 {
		return 0, nil
	}
	if len(tags) < length {
		return 0, fmt.Errorf("crf likelihood needs %d tags, got %d", length, len(tags))
	}
	for t := 0; t < length; t++ {
		if tags[t] < 0 || tags[t] >= c.labelCount {
			return 0, fmt.Errorf("tag %d at position %d outside the %d-label space", tags[t], t, c.labelCount)
		}
	}

	pathScore := float64(c.start[tags[0]]) + float64(emissions[0][tags[0]])
	for t := 1; t < length; t++ {
		pathScore += float64(c.transitions[tags[t-1]][tags[t]]) + float64(emissions[t][tags[t]])
	}
	pathScore += float64(c.end[tags[length-1]])

	// Forward algorithm in log space.
	alpha := make([]float64, c.labelCount)
	for j := 0; j < c.labelCount; j++ {
		alpha[j] = float64(c.start[j]) + float64(emissions[0][j])
	}
	scores := make([]float64, c.labelCount)
	for t := 1; t < length; t++ {
		next := make([]float64, c.labelCount)
		for j := 0; j < c.labelCount; j++ {
			for i := 0; i < c.labelCount; i++ {
				scores[i] = alpha[i] + float64(c.transitions[i][j])
			}
			next[j] = vectorutil.LogSumExp(scores) + float64(emissions[t][j])
		}
		alpha = next
	}
	for j := 0; j < c.labelCount; j++ {
		alpha[j] += float64(c.end[j])
	}
	logPartition := vectorutil.LogSumExp(alpha)

	return logPartition - pathScore, nil
}

// Decode runs Viterbi over the full emission width and returns the best tag
// path. Padding positions are decoded like any other; callers replace them
// afterwards using the gold padding tags.
func (c *crf) Decode(emissions [][]float32) []int {
	width := len(emissions)
	if width == 0 {
		return nil
	}

	score := make([]float64, c.labelCount)
	for j := 0; j < c.labelCount; j++ {
		score[j] = float64(c.start[j]) + float64(emissions[0][j])
	}
	backpointers := make([][]int, width)
	for t := 1; t < width; t++ {
		next := make([]float64, c.labelCount)
		pointers := make([]int, c.labelCount)
		for j := 0; j < c.labelCount; j++ {
			best := math.Inf(-1)
			bestFrom := 0
			for i := 0; i < c.labelCount; i++ {
				candidate := score[i] + float64(c.transitions[i][j])
				if candidate > best {
					best = candidate
					bestFrom = i
				}
			}
			next[j] = best + float64(emissions[t][j])
			pointers[j] = bestFrom
		}
		score = next
		backpointers[t] = pointers
	}

	bestLast := 0
	bestScore := math.Inf(-1)
	for j := 0; j < c.labelCount; j++ {
		final := score[j] + float64(c.end[j])
		if final > bestScore {
			bestScore = final
			bestLast = j
		}
	}

	path := make([]int, width)
	path[width-1] = bestLast
	for t := width - 1; t > 0; t-- {
		path[t-1] = backpointers[t][path[t]]
	}
	return path
}
