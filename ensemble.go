// Package kbner evaluates ensembles of sequence-labeling heads over
// knowledge-graph-augmented text. Every head decodes the same batches; the
// per-token predictions are merged by majority vote, entity spans are
// rebuilt from the merged sequence and scored against gold.
package kbner

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/knights-analytics/kbner/dataset"
	"github.com/knights-analytics/kbner/heads"
	"github.com/knights-analytics/kbner/labels"
	"github.com/knights-analytics/kbner/score"
	"github.com/knights-analytics/kbner/util/vectorutil"
)

// Ensemble is a fixed set of heads sharing one tag vocabulary.
type Ensemble struct {
	heads      []*heads.Head
	vocab      *labels.Vocabulary
	voter      *Voter
	concurrent bool
}

// NewEnsemble validates that the heads agree with the vocabulary and with
// each other. All heads must predict over the same tag space; an ensemble
// over mismatched vocabularies would vote across incomparable ids.
func NewEnsemble(vocab *labels.Vocabulary, members []*heads.Head, opts ...WithOption) (*Ensemble, error) {
	options := &ensembleOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if vocab == nil {
		return nil, fmt.Errorf("nil tag vocabulary")
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("an ensemble needs at least one head")
	}
	for i, head := range members {
		if head == nil {
			return nil, fmt.Errorf("head %d is nil", i)
		}
		if head.LabelCount() != vocab.Size() {
			return nil, fmt.Errorf("head %s predicts over %d labels, vocabulary has %d",
				head.Name(), head.LabelCount(), vocab.Size())
		}
	}
	voter, err := NewVoter(len(members), options.tieBreakHead)
	if err != nil {
		return nil, err
	}
	return &Ensemble{
		heads:      members,
		vocab:      vocab,
		voter:      voter,
		concurrent: options.concurrentHeads,
	}, nil
}

// HeadResult is the standalone outcome of one head over the full pass.
type HeadResult struct {
	Name         string  `json:"name"`
	Architecture string  `json:"architecture"`
	MeanLoss     float64 `json:"mean_loss"`
	Correct      int     `json:"correct"`
	Accuracy     float64 `json:"accuracy"`
}

// Result is the outcome of one evaluation pass: the entity-level report for
// the merged predictions plus diagnostics for the merged sequence and each
// head on its own.
type Result struct {
	Report *score.Report `json:"report"`
	Heads  []HeadResult  `json:"heads"`

	Tokens         int     `json:"tokens"`
	MergedCorrect  int     `json:"merged_correct"`
	MergedAccuracy float64 `json:"merged_accuracy"`
}

// Evaluate runs the full pass: sequential over batches, every head over
// each batch before voting. The context is checked between batches only;
// inference over a finite dataset otherwise runs to completion.
func (e *Ensemble) Evaluate(ctx context.Context, data *dataset.Dataset, batchSize int) (*Result, error) {
	batches, err := data.Batches(batchSize)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("dataset holds no instances")
	}

	tracker := score.NewTracker(e.vocab)
	result := &Result{Heads: make([]HeadResult, len(e.heads))}
	for i, head := range e.heads {
		result.Heads[i].Name = head.Name()
		result.Heads[i].Architecture = head.Architecture()
	}
	batchLosses := make([][]float64, len(e.heads))

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		predictions, err := e.predictBatch(batch)
		if err != nil {
			return nil, err
		}

		gold := batch.Gold()
		predicted := make([][]int, len(e.heads))
		for i, p := range predictions {
			if !slices.Equal(p.Gold, gold) {
				return nil, fmt.Errorf("head %s returned gold labels disagreeing with the batch", e.heads[i].Name())
			}
			predicted[i] = p.Predicted
			batchLosses[i] = append(batchLosses[i], p.Loss)
			result.Heads[i].Correct += p.Correct
		}

		merged, err := e.voter.Merge(predicted)
		if err != nil {
			return nil, err
		}
		for t, g := range gold {
			if g == labels.PadID {
				continue
			}
			result.Tokens++
			if merged[t] == g {
				result.MergedCorrect++
			}
		}
		if err := tracker.Observe(merged, gold); err != nil {
			return nil, err
		}
	}

	for i := range result.Heads {
		result.Heads[i].MeanLoss = vectorutil.Mean(batchLosses[i])
		if result.Tokens > 0 {
			result.Heads[i].Accuracy = float64(result.Heads[i].Correct) / float64(result.Tokens)
		}
	}
	if result.Tokens > 0 {
		result.MergedAccuracy = float64(result.MergedCorrect) / float64(result.Tokens)
	}
	result.Report = tracker.Report()
	return result, nil
}

// predictBatch evaluates every head over one batch, concurrently when the
// ensemble was built with WithConcurrentHeads. Heads share no mutable
// state, so the only synchronization needed is the join before voting.
func (e *Ensemble) predictBatch(batch *dataset.Batch) ([]heads.Prediction, error) {
	predictions := make([]heads.Prediction, len(e.heads))
	if !e.concurrent {
		for i, head := range e.heads {
			p, err := head.Predict(batch)
			if err != nil {
				return nil, err
			}
			predictions[i] = p
		}
		return predictions, nil
	}

	errs := make([]error, len(e.heads))
	var wg sync.WaitGroup
	for i, head := range e.heads {
		wg.Add(1)
		go func(i int, head *heads.Head) {
			defer wg.Done()
			predictions[i], errs[i] = head.Predict(batch)
		}(i, head)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return predictions, nil
}
