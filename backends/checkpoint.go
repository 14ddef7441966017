package backends

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/knights-analytics/kbner/util/fileutil"
)

// Checkpoint is one trained parameter blob for one ensemble head. The
// architecture tag records which head configuration the parameters were
// trained for; loading a checkpoint into a different configuration fails
// instead of silently corrupting predictions.
type Checkpoint struct {
	Architecture string            `json:"architecture"`
	HiddenSize   int               `json:"hidden_size"`
	LabelCount   int               `json:"label_count"`
	Tensors      map[string]Tensor `json:"tensors"`

	// Target carries the encoder's pretraining head. Every checkpoint
	// ships it but inference never invokes it; it is kept verbatim so a
	// re-saved checkpoint round-trips.
	Target json.RawMessage `json:"target,omitempty"`
}

// Tensor is a shaped float32 parameter stored row-major.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// LoadCheckpoint reads a checkpoint blob from a local or remote path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	raw, err := fileutil.ReadFileBytes(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	checkpoint := &Checkpoint{}
	if err := jsoniter.Unmarshal(raw, checkpoint); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", path, err)
	}
	if checkpoint.Architecture == "" {
		return nil, fmt.Errorf("checkpoint %s carries no architecture tag", path)
	}
	return checkpoint, nil
}

// Matrix returns the named parameter as rows x cols slices, validating shape.
func (c *Checkpoint) Matrix(name string, rows, cols int) ([][]float32, error) {
	t, ok := c.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("checkpoint is missing tensor %s", name)
	}
	if len(t.Shape) != 2 || t.Shape[0] != rows || t.Shape[1] != cols {
		return nil, fmt.Errorf("tensor %s has shape %v, want [%d %d]", name, t.Shape, rows, cols)
	}
	if len(t.Data) != rows*cols {
		return nil, fmt.Errorf("tensor %s has %d values for shape %v", name, len(t.Data), t.Shape)
	}
	out := make([][]float32, rows)
	for r := 0; r < rows; r++ {
		out[r] = t.Data[r*cols : (r+1)*cols]
	}
	return out, nil
}

// Vector returns the named parameter as a flat slice, validating length.
func (c *Checkpoint) Vector(name string, length int) ([]float32, error) {
	t, ok := c.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("checkpoint is missing tensor %s", name)
	}
	if len(t.Shape) != 1 || t.Shape[0] != length || len(t.Data) != length {
		return nil, fmt.Errorf("tensor %s has shape %v with %d values, want [%d]", name, t.Shape, len(t.Data), length)
	}
	return t.Data, nil
}
