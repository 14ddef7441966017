package heads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/kbner/backends"
)

func rnnCheckpoint(gates, in, out int, nBias float32) *backends.Checkpoint {
	tensors := map[string]backends.Tensor{}
	for _, direction := range []string{"forward", "backward"} {
		tensors["rnn."+direction+".weight_ih"] = zeroTensor(gates*out, in)
		tensors["rnn."+direction+".weight_hh"] = zeroTensor(gates*out, out)
		// nonzero gate biases so content positions produce nonzero
		// activations
		biasIH := make([]float32, gates*out)
		for i := range biasIH {
			biasIH[i] = nBias
		}
		tensors["rnn."+direction+".bias_ih"] = backends.Tensor{Shape: []int{gates * out}, Data: biasIH}
		tensors["rnn."+direction+".bias_hh"] = zeroVector(gates * out)
	}
	return &backends.Checkpoint{Tensors: tensors}
}

func zeroTensor(rows, cols int) backends.Tensor {
	return backends.Tensor{Shape: []int{rows, cols}, Data: make([]float32, rows*cols)}
}

func zeroVector(length int) backends.Tensor {
	return backends.Tensor{Shape: []int{length}, Data: make([]float32, length)}
}

func TestBiRNNPacksToContentLength(t *testing.T) {
	rnn, err := newBiRNN(RefinerGRU, 2, rnnCheckpoint(3, 2, 1, 1.0))
	require.NoError(t, err)

	features := [][]float32{{0.5, -0.5}, {1.0, 0.2}, {0.3, 0.3}, {0.9, -0.9}}
	out := rnn.Run(features, 2)
	require.Len(t, out, 4)

	for t2 := 0; t2 < 2; t2++ {
		assert.NotZero(t, out[t2][0], "forward output at content position %d", t2)
		assert.NotZero(t, out[t2][1], "backward output at content position %d", t2)
	}
	for t2 := 2; t2 < 4; t2++ {
		assert.Equal(t, []float32{0, 0}, out[t2], "padding position %d must stay zero", t2)
	}
}

func TestBiRNNUnpackedWithoutMask(t *testing.T) {
	rnn, err := newBiRNN(RefinerLSTM, 2, rnnCheckpoint(4, 2, 1, 1.0))
	require.NoError(t, err)

	features := [][]float32{{0.5, -0.5}, {1.0, 0.2}, {0.3, 0.3}}
	out := rnn.Run(features, 0)
	for t2 := range out {
		assert.NotZero(t, out[t2][0], "position %d", t2)
		assert.NotZero(t, out[t2][1], "position %d", t2)
	}
}

func TestBiRNNRequiresEvenFeatureSize(t *testing.T) {
	_, err := newBiRNN(RefinerGRU, 3, rnnCheckpoint(3, 3, 1, 0))
	assert.Error(t, err)
}

func TestBiRNNRejectsMissingTensors(t *testing.T) {
	_, err := newBiRNN(RefinerGRU, 2, &backends.Checkpoint{Tensors: map[string]backends.Tensor{}})
	assert.Error(t, err)
}
