package backends

import (
	"fmt"

	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/kbner/util/safeconv"
)

// GoEncoder runs the encoder model with the pure Go ONNX backend. It is the
// default backend: no shared library is required.
type GoEncoder struct {
	model       *gonnx.Model
	inputNames  []string
	outputName  string
	hidden      int
}

// NewGoEncoder creates an encoder session from the raw bytes of an ONNX
// model. The model must expose input_ids, attention_mask, position_ids and
// visibility_mask inputs and one (batch, sequence, hidden) output.
func NewGoEncoder(onnxBytes []byte) (*GoEncoder, error) {
	model, err := gonnx.NewModelFromBytes(onnxBytes)
	if err != nil {
		return nil, err
	}
	outputNames := model.OutputNames()
	if len(outputNames) == 0 {
		return nil, fmt.Errorf("encoder model declares no outputs")
	}
	encoder := &GoEncoder{
		model:      model,
		inputNames: model.InputNames(),
		outputName: outputNames[0],
	}
	outputShapes := model.OutputShapes()
	if shape, ok := outputShapes[encoder.outputName]; ok && len(shape) == 3 && shape[2].Size > 0 {
		encoder.hidden = safeconv.Int64ToInt(shape[2].Size)
	}
	return encoder, nil
}

// HiddenSize returns the feature dimension the model declares, or 0 when
// the export leaves that axis dynamic. It is fixed at construction; heads
// verify the dimension of every batch against their checkpoint regardless.
func (e *GoEncoder) HiddenSize() int {
	return e.hidden
}

func (e *GoEncoder) Encode(input EncoderInput) (*tensor.Dense, error) {
	tokenIDs, attentionMask, positionIDs, visibility, batchSize, seqLen, err := flattenInputs(input)
	if err != nil {
		return nil, err
	}

	inputMap := gonnx.Tensors{}
	for _, name := range e.inputNames {
		switch name {
		case "input_ids":
			inputMap[name] = tensor.New(tensor.WithShape(batchSize, seqLen), tensor.WithBacking(tokenIDs))
		case "attention_mask":
			inputMap[name] = tensor.New(tensor.WithShape(batchSize, seqLen), tensor.WithBacking(attentionMask))
		case "position_ids":
			inputMap[name] = tensor.New(tensor.WithShape(batchSize, seqLen), tensor.WithBacking(positionIDs))
		case "visibility_mask":
			inputMap[name] = tensor.New(tensor.WithShape(batchSize, seqLen, seqLen), tensor.WithBacking(visibility))
		default:
			return nil, fmt.Errorf("encoder input %s not recognized", name)
		}
	}

	outputs, err := e.model.Run(inputMap)
	if err != nil {
		return nil, err
	}
	output, ok := outputs[e.outputName]
	if !ok {
		return nil, fmt.Errorf("encoder output %s missing from model results", e.outputName)
	}
	features, ok := output.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("encoder output %s is not a dense tensor: %T", e.outputName, output)
	}
	shape := features.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("encoder output must be three dimensional (batch, sequence, hidden), got shape %v", shape)
	}
	return features, nil
}
