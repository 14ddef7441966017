package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestFeatureRows(t *testing.T) {
	backing := []float32{
		1, 2, 3, 4, 5, 6, // instance 0, two positions, hidden 3
		7, 8, 9, 10, 11, 12, // instance 1
	}
	dense := tensor.New(tensor.WithShape(2, 2, 3), tensor.WithBacking(backing))

	rows, err := FeatureRows(dense)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []float32{1, 2, 3}, rows[0][0])
	assert.Equal(t, []float32{4, 5, 6}, rows[0][1])
	assert.Equal(t, []float32{10, 11, 12}, rows[1][1])
}

func TestFeatureRowsRejectsWrongShape(t *testing.T) {
	flat := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(make([]float32, 6)))
	_, err := FeatureRows(flat)
	assert.Error(t, err)

	ints := tensor.New(tensor.WithShape(1, 2, 3), tensor.WithBacking(make([]int64, 6)))
	_, err = FeatureRows(ints)
	assert.Error(t, err)
}

func TestFlattenInputs(t *testing.T) {
	input := EncoderInput{
		TokenIDs:      [][]int{{5, 6}, {7, 8}},
		AttentionMask: [][]int{{1, 1}, {1, 0}},
		PositionIDs:   [][]int{{0, 1}, {0, 1}},
		Visibility: [][][]bool{
			{{true, true}, {true, true}},
			{{true, false}, {false, false}},
		},
	}

	tokenIDs, attentionMask, positionIDs, visibility, batchSize, seqLen, err := flattenInputs(input)
	require.NoError(t, err)
	assert.Equal(t, 2, batchSize)
	assert.Equal(t, 2, seqLen)
	assert.Equal(t, []int64{5, 6, 7, 8}, tokenIDs)
	assert.Equal(t, []int64{1, 1, 1, 0}, attentionMask)
	assert.Equal(t, []int64{0, 1, 0, 1}, positionIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0, 0, 0}, visibility)
}

func TestFlattenInputsValidation(t *testing.T) {
	_, _, _, _, _, _, err := flattenInputs(EncoderInput{})
	assert.Error(t, err)

	ragged := EncoderInput{
		TokenIDs:      [][]int{{1, 2}, {3}},
		AttentionMask: [][]int{{1, 1}, {1}},
		PositionIDs:   [][]int{{0, 1}, {0}},
		Visibility:    [][][]bool{{{true, true}, {true, true}}, {{true}}},
	}
	_, _, _, _, _, _, err = flattenInputs(ragged)
	assert.Error(t, err)
}
