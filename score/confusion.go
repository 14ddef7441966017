package score

import "fmt"

// ConfusionMatrix accumulates per-token outcomes over an evaluation pass,
// indexed counts[predicted][gold].
type ConfusionMatrix struct {
	counts [][]int
	size   int
}

// NewConfusionMatrix returns a zeroed size x size matrix.
func NewConfusionMatrix(size int) *ConfusionMatrix {
	counts := make([][]int, size)
	for i := range counts {
		counts[i] = make([]int, size)
	}
	return &ConfusionMatrix{counts: counts, size: size}
}

// Size returns the label-space width of the matrix.
func (m *ConfusionMatrix) Size() int {
	return m.size
}

// Observe records one scored token.
func (m *ConfusionMatrix) Observe(predicted, gold int) error {
	if predicted < 0 || predicted >= m.size || gold < 0 || gold >= m.size {
		return fmt.Errorf("confusion observation (%d, %d) outside the %d-label space", predicted, gold, m.size)
	}
	m.counts[predicted][gold]++
	return nil
}

// Count returns the number of tokens predicted as predicted with gold tag
// gold.
func (m *ConfusionMatrix) Count(predicted, gold int) int {
	return m.counts[predicted][gold]
}

// PredictedTotal returns the row sum: how often id was predicted.
func (m *ConfusionMatrix) PredictedTotal(id int) int {
	total := 0
	for _, c := range m.counts[id] {
		total += c
	}
	return total
}

// GoldTotal returns the column sum: how often id appears as gold.
func (m *ConfusionMatrix) GoldTotal(id int) int {
	total := 0
	for predicted := 0; predicted < m.size; predicted++ {
		total += m.counts[predicted][id]
	}
	return total
}

// Merge adds another matrix of the same size into this one. Matrices
// accumulated by parallel scoring passes combine with repeated merges.
func (m *ConfusionMatrix) Merge(other *ConfusionMatrix) error {
	if other.size != m.size {
		return fmt.Errorf("cannot merge a %d-label matrix into a %d-label matrix", other.size, m.size)
	}
	for predicted := range m.counts {
		for gold := range m.counts[predicted] {
			m.counts[predicted][gold] += other.counts[predicted][gold]
		}
	}
	return nil
}

// Rows returns a copy of the raw counts for reporting.
func (m *ConfusionMatrix) Rows() [][]int {
	rows := make([][]int, m.size)
	for i := range rows {
		rows[i] = make([]int, m.size)
		copy(rows[i], m.counts[i])
	}
	return rows
}
