package dataset

import "fmt"

// Batch is a contiguous slice of the dataset trimmed to the true maximum
// content length of its instances. Every positional field, the visibility
// matrix on both axes included, is truncated to TrueMaxLen so that heads never
// compute over trailing all-padding columns shared by the whole batch.
type Batch struct {
	Instances  []Instance
	TrueMaxLen int
}

// Size returns the number of instances in the batch.
func (b *Batch) Size() int {
	return len(b.Instances)
}

// Width returns the common (truncated) sequence length of the batch.
func (b *Batch) Width() int {
	if len(b.Instances) == 0 {
		return 0
	}
	return len(b.Instances[0].TokenIDs)
}

// Batches partitions the dataset into fixed-size batches in dataset order.
// The final batch may be smaller than batchSize. Truncation reuses the
// underlying arrays; batches must be treated as read-only views.
func (d *Dataset) Batches(batchSize int) ([]*Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	var batches []*Batch
	for start := 0; start < len(d.Instances); start += batchSize {
		end := start + batchSize
		if end > len(d.Instances) {
			end = len(d.Instances)
		}
		batches = append(batches, newBatch(d.Instances[start:end]))
	}
	return batches, nil
}

func newBatch(instances []Instance) *Batch {
	trueMax := 0
	for i := range instances {
		if length := instances[i].Length(); length > trueMax {
			trueMax = length
		}
	}
	width := 0
	if len(instances) > 0 {
		width = len(instances[0].TokenIDs)
	}
	// An all-padding batch keeps its full width; the scoring side
	// zero-substitutes degenerate denominators downstream.
	if trueMax <= 0 || trueMax > width {
		trueMax = width
	}

	batch := &Batch{Instances: make([]Instance, len(instances)), TrueMaxLen: trueMax}
	for i := range instances {
		src := &instances[i]
		visibility := make([][]bool, trueMax)
		for r := 0; r < trueMax; r++ {
			visibility[r] = src.Visibility[r][:trueMax]
		}
		batch.Instances[i] = Instance{
			TokenIDs:    src.TokenIDs[:trueMax],
			LabelIDs:    src.LabelIDs[:trueMax],
			Mask:        src.Mask[:trueMax],
			PositionIDs: src.PositionIDs[:trueMax],
			Visibility:  visibility,
			Provenance:  src.Provenance[:trueMax],
			PaddingMask: src.PaddingMask[:trueMax],
		}
	}
	return batch
}

// Lengths returns the per-instance true content lengths, used to pack
// recurrent refinement and to mask structured decoding. An instance without
// a padding mask counts as all content.
func (b *Batch) Lengths() []int {
	width := b.Width()
	lengths := make([]int, len(b.Instances))
	for i := range b.Instances {
		if b.Instances[i].PaddingMask == nil {
			lengths[i] = width
			continue
		}
		length := b.Instances[i].Length()
		if length > width {
			length = width
		}
		lengths[i] = length
	}
	return lengths
}

// Gold returns the gold label ids of the batch, token-flattened row-major.
func (b *Batch) Gold() []int {
	gold := make([]int, 0, b.Size()*b.TrueMaxLen)
	for i := range b.Instances {
		gold = append(gold, b.Instances[i].LabelIDs...)
	}
	return gold
}
