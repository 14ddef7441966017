package kbner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVoterValidation(t *testing.T) {
	_, err := NewVoter(0, 0)
	assert.Error(t, err)
	_, err = NewVoter(3, -1)
	assert.Error(t, err)
	_, err = NewVoter(3, 3)
	assert.Error(t, err)
	_, err = NewVoter(3, 2)
	assert.NoError(t, err)
}

func TestMergeMajorityWins(t *testing.T) {
	// {A: 3, B: 1}: majority wins regardless of the tie-break head
	for tieBreak := 0; tieBreak < 4; tieBreak++ {
		voter, err := NewVoter(4, tieBreak)
		require.NoError(t, err)
		merged, err := voter.Merge([][]int{{7}, {7}, {7}, {9}})
		require.NoError(t, err)
		assert.Equal(t, []int{7}, merged, "tie-break head %d", tieBreak)
	}
}

func TestMergeTieFallsBackToDesignatedHead(t *testing.T) {
	// {A: 2, B: 2}: the tie-break head's own vote decides
	votes := [][]int{{7}, {9}, {7}, {9}}
	for tieBreak, expected := range map[int]int{0: 7, 1: 9, 2: 7, 3: 9} {
		voter, err := NewVoter(4, tieBreak)
		require.NoError(t, err)
		merged, err := voter.Merge(votes)
		require.NoError(t, err)
		assert.Equal(t, []int{expected}, merged, "tie-break head %d", tieBreak)
	}
}

func TestMergeThreeHeads(t *testing.T) {
	voter, err := NewVoter(3, 1)
	require.NoError(t, err)

	merged, err := voter.Merge([][]int{
		{1, 1, 2},
		{1, 1, 1},
		{1, 2, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, merged)
}

func TestMergeValidation(t *testing.T) {
	voter, err := NewVoter(2, 0)
	require.NoError(t, err)

	_, err = voter.Merge([][]int{{1}})
	assert.Error(t, err)

	_, err = voter.Merge([][]int{{1, 2}, {1}})
	assert.Error(t, err)
}
