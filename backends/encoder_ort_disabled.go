//go:build !ORT && !ALL

package backends

import (
	"errors"

	"gorgonia.org/tensor"
)

// ORTEncoder is only available when building with `-tags ORT` or `-tags ALL`.
type ORTEncoder struct{}

func NewORTEncoder(_ []byte, _ string) (*ORTEncoder, error) {
	return nil, errors.New("to enable the onnxruntime backend, run `go build -tags ORT` or `go build -tags ALL`")
}

func (e *ORTEncoder) HiddenSize() int {
	return 0
}

func (e *ORTEncoder) Destroy() error {
	return nil
}

func (e *ORTEncoder) Encode(_ EncoderInput) (*tensor.Dense, error) {
	return nil, errors.New("onnxruntime backend is disabled in this build")
}
