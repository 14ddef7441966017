package heads

import (
	"fmt"

	"github.com/knights-analytics/kbner/backends"
	"github.com/knights-analytics/kbner/util/vectorutil"
)

// rnnDirection holds the parameters of one direction of the bidirectional
// refinement layer. Weight layouts follow the usual gate-stacked convention:
// GRU gates are (reset, update, candidate), LSTM gates are
// (input, forget, cell, output).
type rnnDirection struct {
	weightIH [][]float32 // (gates*out) x in
	weightHH [][]float32 // (gates*out) x out
	biasIH   []float32
	biasHH   []float32
}

// biRNN refines per-token features with a single bidirectional recurrent
// layer. Each direction produces half the input width so the concatenated
// output keeps the feature dimension.
type biRNN struct {
	kind      Refiner
	inputSize int
	outSize   int
	forward   rnnDirection
	backward  rnnDirection
}

func newBiRNN(kind Refiner, inputSize int, checkpoint *backends.Checkpoint) (*biRNN, error) {
	if inputSize%2 != 0 {
		return nil, fmt.Errorf("bidirectional refinement requires an even feature size, got %d", inputSize)
	}
	gates := 0
	switch kind {
	case RefinerGRU:
		gates = 3
	case RefinerLSTM:
		gates = 4
	default:
		return nil, fmt.Errorf("refiner %s has no recurrent layer", kind)
	}
	out := inputSize / 2

	rnn := &biRNN{kind: kind, inputSize: inputSize, outSize: out}
	for _, direction := range []struct {
		name string
		dest *rnnDirection
	}{
		{"forward", &rnn.forward},
		{"backward", &rnn.backward},
	} {
		var err error
		prefix := "rnn." + direction.name
		if direction.dest.weightIH, err = checkpoint.Matrix(prefix+".weight_ih", gates*out, inputSize); err != nil {
			return nil, err
		}
		if direction.dest.weightHH, err = checkpoint.Matrix(prefix+".weight_hh", gates*out, out); err != nil {
			return nil, err
		}
		if direction.dest.biasIH, err = checkpoint.Vector(prefix+".bias_ih", gates*out); err != nil {
			return nil, err
		}
		if direction.dest.biasHH, err = checkpoint.Vector(prefix+".bias_hh", gates*out); err != nil {
			return nil, err
		}
	}
	return rnn, nil
}

// Run refines one instance's features. Only the first length positions are
// processed (the packed-sequence equivalent); trailing positions come back
// zero. length <= 0 means no padding mask was supplied and the whole width is
// treated as content.
func (r *biRNN) Run(features [][]float32, length int) [][]float32 {
	width := len(features)
	if length <= 0 || length > width {
		length = width
	}
	out := make([][]float32, width)
	for t := range out {
		out[t] = make([]float32, r.inputSize)
	}

	hidden := make([]float32, r.outSize)
	cell := make([]float32, r.outSize)
	for t := 0; t < length; t++ {
		hidden, cell = r.step(&r.forward, features[t], hidden, cell)
		copy(out[t][:r.outSize], hidden)
	}

	hidden = make([]float32, r.outSize)
	cell = make([]float32, r.outSize)
	for t := length - 1; t >= 0; t-- {
		hidden, cell = r.step(&r.backward, features[t], hidden, cell)
		copy(out[t][r.outSize:], hidden)
	}
	return out
}

func (r *biRNN) step(d *rnnDirection, x, hidden, cell []float32) ([]float32, []float32) {
	gi := affine(d.weightIH, x, d.biasIH)
	gh := affine(d.weightHH, hidden, d.biasHH)
	out := r.outSize

	switch r.kind {
	case RefinerGRU:
		next := make([]float32, out)
		for i := 0; i < out; i++ {
			reset := vectorutil.Sigmoid(gi[i] + gh[i])
			update := vectorutil.Sigmoid(gi[out+i] + gh[out+i])
			candidate := vectorutil.Tanh(gi[2*out+i] + reset*gh[2*out+i])
			next[i] = (1-update)*candidate + update*hidden[i]
		}
		return next, cell
	default: // RefinerLSTM
		nextHidden := make([]float32, out)
		nextCell := make([]float32, out)
		for i := 0; i < out; i++ {
			input := vectorutil.Sigmoid(gi[i] + gh[i])
			forget := vectorutil.Sigmoid(gi[out+i] + gh[out+i])
			candidate := vectorutil.Tanh(gi[2*out+i] + gh[2*out+i])
			output := vectorutil.Sigmoid(gi[3*out+i] + gh[3*out+i])
			nextCell[i] = forget*cell[i] + input*candidate
			nextHidden[i] = output * vectorutil.Tanh(nextCell[i])
		}
		return nextHidden, nextCell
	}
}

func affine(weight [][]float32, x, bias []float32) []float32 {
	out := make([]float32, len(weight))
	for i, row := range weight {
		sum := bias[i]
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum
	}
	return out
}
