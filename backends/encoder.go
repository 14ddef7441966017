// Package backends holds the external-collaborator surface of the evaluator:
// the text encoder that turns token ids and their structural side-channels
// into per-token feature vectors, and the checkpoint blobs carrying trained
// head parameters.
package backends

import (
	"fmt"

	"gorgonia.org/tensor"
)

// EncoderInput carries one batch of encoder inputs. All slices are
// [batch][sequence] shaped; Visibility is [batch][sequence][sequence] and
// restricts which positions may attend to each other (original text vs
// injected knowledge facts).
type EncoderInput struct {
	TokenIDs      [][]int
	AttentionMask [][]int
	PositionIDs   [][]int
	Visibility    [][][]bool
}

// Encoder produces per-token features for a batch. Implementations wrap a
// pretrained model; the evaluator never trains one. One encoder may be
// shared by several heads running concurrently, so Encode and HiddenSize
// must be safe for concurrent use and must not mutate the encoder.
type Encoder interface {
	// Encode returns a float32 tensor of shape (batch, sequence, hidden).
	Encode(input EncoderInput) (*tensor.Dense, error)
	// HiddenSize returns the feature dimension, or 0 when the backing
	// model declares it dynamically. Fixed for the encoder's lifetime.
	HiddenSize() int
}

// FeatureRows views an encoder output of shape (batch, sequence, hidden) as
// per-instance, per-position feature slices backed by the dense data.
func FeatureRows(features *tensor.Dense) ([][][]float32, error) {
	shape := features.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("encoder output must be three dimensional (batch, sequence, hidden), got shape %v", shape)
	}
	backing, ok := features.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("encoder output must be float32, got %T", features.Data())
	}
	batchSize, seqLen, hidden := shape[0], shape[1], shape[2]
	if len(backing) != batchSize*seqLen*hidden {
		return nil, fmt.Errorf("encoder output backing has %d values for shape %v", len(backing), shape)
	}
	rows := make([][][]float32, batchSize)
	for b := 0; b < batchSize; b++ {
		rows[b] = make([][]float32, seqLen)
		for t := 0; t < seqLen; t++ {
			offset := (b*seqLen + t) * hidden
			rows[b][t] = backing[offset : offset+hidden]
		}
	}
	return rows, nil
}

func flattenInputs(input EncoderInput) (tokenIDs, attentionMask, positionIDs, visibility []int64, batchSize, seqLen int, err error) {
	batchSize = len(input.TokenIDs)
	if batchSize == 0 {
		return nil, nil, nil, nil, 0, 0, fmt.Errorf("empty encoder input")
	}
	seqLen = len(input.TokenIDs[0])

	tokenIDs = make([]int64, batchSize*seqLen)
	attentionMask = make([]int64, batchSize*seqLen)
	positionIDs = make([]int64, batchSize*seqLen)
	visibility = make([]int64, batchSize*seqLen*seqLen)

	for b := 0; b < batchSize; b++ {
		if len(input.TokenIDs[b]) != seqLen || len(input.AttentionMask[b]) != seqLen || len(input.PositionIDs[b]) != seqLen {
			return nil, nil, nil, nil, 0, 0, fmt.Errorf("instance %d input sequences disagree on length %d", b, seqLen)
		}
		for t := 0; t < seqLen; t++ {
			flat := b*seqLen + t
			tokenIDs[flat] = int64(input.TokenIDs[b][t])
			attentionMask[flat] = int64(input.AttentionMask[b][t])
			positionIDs[flat] = int64(input.PositionIDs[b][t])
		}
		if len(input.Visibility[b]) != seqLen {
			return nil, nil, nil, nil, 0, 0, fmt.Errorf("instance %d visibility matrix has %d rows for sequence length %d", b, len(input.Visibility[b]), seqLen)
		}
		for r := 0; r < seqLen; r++ {
			row := input.Visibility[b][r]
			if len(row) != seqLen {
				return nil, nil, nil, nil, 0, 0, fmt.Errorf("instance %d visibility row %d has %d columns for sequence length %d", b, r, len(row), seqLen)
			}
			for c := 0; c < seqLen; c++ {
				if row[c] {
					visibility[(b*seqLen+r)*seqLen+c] = 1
				}
			}
		}
	}
	return tokenIDs, attentionMask, positionIDs, visibility, batchSize, seqLen, nil
}
