package heads

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCRF() *crf {
	return &crf{
		labelCount: 3,
		start:      []float32{0.2, -0.1, 0.4},
		end:        []float32{-0.3, 0.5, 0.1},
		transitions: [][]float32{
			{0.1, 0.8, -0.2},
			{-0.5, 0.3, 0.6},
			{0.4, -0.1, 0.2},
		},
	}
}

// pathScore recomputes one tag path's unnormalized log score directly.
func pathScore(c *crf, emissions [][]float32, path []int) float64 {
	score := float64(c.start[path[0]]) + float64(emissions[0][path[0]])
	for t := 1; t < len(path); t++ {
		score += float64(c.transitions[path[t-1]][path[t]]) + float64(emissions[t][path[t]])
	}
	return score + float64(c.end[path[len(path)-1]])
}

func allPaths(labelCount, length int) [][]int {
	if length == 0 {
		return [][]int{{}}
	}
	var paths [][]int
	for _, prefix := range allPaths(labelCount, length-1) {
		for tag := 0; tag < labelCount; tag++ {
			path := append(append([]int{}, prefix...), tag)
			paths = append(paths, path)
		}
	}
	return paths
}

func TestViterbiMatchesBruteForce(t *testing.T) {
	c := testCRF()
	emissions := [][]float32{
		{0.3, 1.2, -0.4},
		{-0.8, 0.1, 0.9},
		{1.1, -0.2, 0.3},
		{0.0, 0.7, -0.5},
	}

	best := c.Decode(emissions)
	require.Len(t, best, len(emissions))

	bestBrute := math.Inf(-1)
	var bestPath []int
	for _, path := range allPaths(c.labelCount, len(emissions)) {
		if score := pathScore(c, emissions, path); score > bestBrute {
			bestBrute = score
			bestPath = path
		}
	}
	assert.Equal(t, bestPath, best)
	assert.InDelta(t, bestBrute, pathScore(c, emissions, best), 1e-9)
}

func TestNegLogLikelihoodMatchesBruteForce(t *testing.T) {
	c := testCRF()
	emissions := [][]float32{
		{0.3, 1.2, -0.4},
		{-0.8, 0.1, 0.9},
		{1.1, -0.2, 0.3},
	}
	gold := []int{1, 2, 0}

	nll, err := c.NegLogLikelihood(emissions, gold, len(emissions))
	require.NoError(t, err)

	// log partition over every possible path.
	sum := 0.0
	for _, path := range allPaths(c.labelCount, len(emissions)) {
		sum += math.Exp(pathScore(c, emissions, path))
	}
	expected := math.Log(sum) - pathScore(c, emissions, gold)
	assert.InDelta(t, expected, nll, 1e-9)
	assert.Greater(t, nll, 0.0)
}

func TestNegLogLikelihoodHonorsMaskLength(t *testing.T) {
	c := testCRF()
	emissions := [][]float32{
		{0.3, 1.2, -0.4},
		{-0.8, 0.1, 0.9},
		{100, 100, 100}, // padding, must not contribute
	}
	gold := []int{1, 2, 0}

	masked, err := c.NegLogLikelihood(emissions, gold, 2)
	require.NoError(t, err)
	unpadded, err := c.NegLogLikelihood(emissions[:2], gold[:2], 2)
	require.NoError(t, err)
	assert.InDelta(t, unpadded, masked, 1e-9)

	empty, err := c.NegLogLikelihood(emissions, gold, 0)
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestNegLogLikelihoodRejectsBadTags(t *testing.T) {
	c := testCRF()
	emissions := [][]float32{{0.1, 0.2, 0.3}}
	_, err := c.NegLogLikelihood(emissions, []int{5}, 1)
	assert.Error(t, err)
}
