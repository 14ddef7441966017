// Package score turns merged predictions into evaluation results: a label
// confusion matrix, entity-span matching and the derived precision, recall
// and F1 figures.
package score

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/knights-analytics/kbner/labels"
)

// Tracker accumulates one evaluation pass. It is not safe for concurrent
// use; parallel passes each keep their own tracker and Merge afterwards.
type Tracker struct {
	vocab     *labels.Vocabulary
	matrix    *ConfusionMatrix
	extractor *SpanExtractor

	goldSpans      int
	predictedSpans int
	correctSpans   int
}

// NewTracker returns a zeroed tracker over the tag vocabulary.
func NewTracker(vocab *labels.Vocabulary) *Tracker {
	return &Tracker{
		vocab:     vocab,
		matrix:    NewConfusionMatrix(vocab.Size()),
		extractor: NewSpanExtractor(vocab),
	}
}

// Observe scores one batch's merged predictions against gold, both
// token-flattened in the same order. Every token updates the confusion
// matrix; spans are extracted from both sequences and matched on exact
// (start, end, type) equality.
func (t *Tracker) Observe(predicted, gold []int) error {
	if len(predicted) != len(gold) {
		return fmt.Errorf("predicted sequence has %d tokens, gold has %d", len(predicted), len(gold))
	}
	for i := range predicted {
		if err := t.matrix.Observe(predicted[i], gold[i]); err != nil {
			return err
		}
	}

	goldSet := map[Span]struct{}{}
	for _, span := range t.extractor.Extract(gold) {
		goldSet[span] = struct{}{}
		t.goldSpans++
	}
	for _, span := range t.extractor.Extract(predicted) {
		t.predictedSpans++
		if _, ok := goldSet[span]; ok {
			t.correctSpans++
		}
	}
	return nil
}

// Merge folds another tracker's accumulation into this one.
func (t *Tracker) Merge(other *Tracker) error {
	if err := t.matrix.Merge(other.matrix); err != nil {
		return err
	}
	t.goldSpans += other.goldSpans
	t.predictedSpans += other.predictedSpans
	t.correctSpans += other.correctSpans
	return nil
}

// LabelMetrics is the diagnostic per-label outcome.
type LabelMetrics struct {
	Tag       string  `json:"tag"`
	Predicted int     `json:"predicted"`
	Gold      int     `json:"gold"`
	Correct   int     `json:"correct"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Report is the outcome of one evaluation pass. Entity-level figures are
// the primary metric; the per-label block is diagnostic.
type Report struct {
	Labels    []LabelMetrics `json:"labels"`
	Confusion [][]int        `json:"confusion"`

	GoldSpans      int `json:"gold_spans"`
	PredictedSpans int `json:"predicted_spans"`
	CorrectSpans   int `json:"correct_spans"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Report derives the final figures. Degenerate denominators (a label never
// predicted or never gold, no spans at all) yield 0, never an error.
func (t *Tracker) Report() *Report {
	report := &Report{
		Confusion:      t.matrix.Rows(),
		GoldSpans:      t.goldSpans,
		PredictedSpans: t.predictedSpans,
		CorrectSpans:   t.correctSpans,
	}
	for id := 0; id < t.vocab.Size(); id++ {
		correct := t.matrix.Count(id, id)
		predicted := t.matrix.PredictedTotal(id)
		gold := t.matrix.GoldTotal(id)
		precision := safeDivide(correct, predicted)
		recall := safeDivide(correct, gold)
		report.Labels = append(report.Labels, LabelMetrics{
			Tag:       t.vocab.Tag(id),
			Predicted: predicted,
			Gold:      gold,
			Correct:   correct,
			Precision: precision,
			Recall:    recall,
			F1:        harmonicMean(precision, recall),
		})
	}
	report.Precision = safeDivide(t.correctSpans, t.predictedSpans)
	report.Recall = safeDivide(t.correctSpans, t.goldSpans)
	report.F1 = harmonicMean(report.Precision, report.Recall)
	return report
}

// JSON renders the report for machine consumption.
func (r *Report) JSON() ([]byte, error) {
	return jsoniter.MarshalIndent(r, "", "  ")
}

// String renders the report for terminals.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString("label            predicted      gold   correct  precision     recall         f1\n")
	for _, l := range r.Labels {
		fmt.Fprintf(&b, "%-15s %10d %9d %9d %10.4f %10.4f %10.4f\n",
			l.Tag, l.Predicted, l.Gold, l.Correct, l.Precision, l.Recall, l.F1)
	}
	b.WriteString("\nconfusion matrix (rows predicted, columns gold):\n")
	for id, row := range r.Confusion {
		fmt.Fprintf(&b, "%-15s", r.Labels[id].Tag)
		for _, count := range row {
			fmt.Fprintf(&b, " %7d", count)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nentity spans: %d gold, %d predicted, %d correct\n",
		r.GoldSpans, r.PredictedSpans, r.CorrectSpans)
	fmt.Fprintf(&b, "entity precision %.4f, recall %.4f, f1 %.4f\n", r.Precision, r.Recall, r.F1)
	return b.String()
}

func safeDivide(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

func harmonicMean(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}
