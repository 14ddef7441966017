//go:build ORT || ALL

package backends

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/kbner/util/safeconv"
)

// ORTEncoder runs the encoder model through onnxruntime. Build with
// `-tags ORT` and point the session at the onnxruntime shared library.
type ORTEncoder struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
	hidden      int
}

// NewORTEncoder creates an onnxruntime session from the raw bytes of an ONNX
// model. libraryPath locates the onnxruntime shared library; it is only used
// when the environment has not been initialized yet.
func NewORTEncoder(onnxBytes []byte, libraryPath string) (*ORTEncoder, error) {
	if !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, err
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(onnxBytes)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("encoder model declares no outputs")
	}
	var inputNames, outputNames []string
	for _, v := range inputs {
		inputNames = append(inputNames, v.Name)
	}
	for _, v := range outputs {
		outputNames = append(outputNames, v.Name)
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(onnxBytes, inputNames, outputNames, nil)
	if err != nil {
		return nil, err
	}
	encoder := &ORTEncoder{
		session:     session,
		inputNames:  inputNames,
		outputNames: outputNames,
	}
	if dims := outputs[0].Dimensions; len(dims) == 3 && dims[2] > 0 {
		encoder.hidden = safeconv.Int64ToInt(dims[2])
	}
	return encoder, nil
}

// HiddenSize returns the feature dimension the model declares, or 0 when
// the export leaves that axis dynamic. It is fixed at construction; heads
// verify the dimension of every batch against their checkpoint regardless.
func (e *ORTEncoder) HiddenSize() int {
	return e.hidden
}

// Destroy frees the underlying onnxruntime session.
func (e *ORTEncoder) Destroy() error {
	return e.session.Destroy()
}

func (e *ORTEncoder) Encode(input EncoderInput) (*tensor.Dense, error) {
	tokenIDs, attentionMask, positionIDs, visibility, batchSize, seqLen, err := flattenInputs(input)
	if err != nil {
		return nil, err
	}

	inputTensors := make([]ort.Value, len(e.inputNames))
	defer func() {
		for _, t := range inputTensors {
			if t != nil {
				_ = t.Destroy()
			}
		}
	}()
	for i, name := range e.inputNames {
		var backing []int64
		shape := ort.NewShape(int64(batchSize), int64(seqLen))
		switch name {
		case "input_ids":
			backing = tokenIDs
		case "attention_mask":
			backing = attentionMask
		case "position_ids":
			backing = positionIDs
		case "visibility_mask":
			backing = visibility
			shape = ort.NewShape(int64(batchSize), int64(seqLen), int64(seqLen))
		default:
			return nil, fmt.Errorf("encoder input %s not recognized", name)
		}
		inputTensors[i], err = ort.NewTensor(shape, backing)
		if err != nil {
			return nil, err
		}
	}

	outputTensors := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run(inputTensors, outputTensors); err != nil {
		return nil, err
	}
	defer func() {
		for _, t := range outputTensors {
			if t != nil {
				_ = t.Destroy()
			}
		}
	}()

	output, ok := outputTensors[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("encoder output is not a float32 tensor")
	}
	shape := output.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("encoder output must be three dimensional (batch, sequence, hidden), got shape %v", shape)
	}
	backing := make([]float32, len(output.GetData()))
	copy(backing, output.GetData())
	return tensor.New(
		tensor.WithShape(safeconv.Int64ToInt(shape[0]), safeconv.Int64ToInt(shape[1]), safeconv.Int64ToInt(shape[2])),
		tensor.WithBacking(backing),
	), nil
}
