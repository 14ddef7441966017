// Package heads implements the sequence-labeling head of one ensemble
// member: an optional bidirectional recurrent refinement layer over the
// encoder features, a linear projection to tag space, and one of three
// decoders (plain softmax, label-smoothed softmax, linear-chain CRF).
package heads

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/kbner/backends"
	"github.com/knights-analytics/kbner/dataset"
	"github.com/knights-analytics/kbner/labels"
	"github.com/knights-analytics/kbner/util/vectorutil"
)

// Refiner selects the recurrent refinement applied to encoder features
// before projection.
type Refiner int

const (
	RefinerNone Refiner = iota
	RefinerGRU
	RefinerLSTM
)

func (r Refiner) String() string {
	switch r {
	case RefinerNone:
		return "none"
	case RefinerGRU:
		return "gru"
	case RefinerLSTM:
		return "lstm"
	default:
		return fmt.Sprintf("refiner(%d)", int(r))
	}
}

// ParseRefiner maps a configuration string onto a Refiner.
func ParseRefiner(s string) (Refiner, error) {
	switch s {
	case "", "none":
		return RefinerNone, nil
	case "gru":
		return RefinerGRU, nil
	case "lstm":
		return RefinerLSTM, nil
	default:
		return RefinerNone, fmt.Errorf("unknown refiner %q, expected none, gru or lstm", s)
	}
}

// Decoder selects how tag emissions are turned into predictions and loss.
type Decoder int

const (
	DecoderSoftmax Decoder = iota
	DecoderSmoothedSoftmax
	DecoderCRF
)

func (d Decoder) String() string {
	switch d {
	case DecoderSoftmax:
		return "softmax"
	case DecoderSmoothedSoftmax:
		return "smoothed-softmax"
	case DecoderCRF:
		return "crf"
	default:
		return fmt.Sprintf("decoder(%d)", int(d))
	}
}

// ParseDecoder maps a configuration string onto a Decoder.
func ParseDecoder(s string) (Decoder, error) {
	switch s {
	case "softmax":
		return DecoderSoftmax, nil
	case "smoothed-softmax":
		return DecoderSmoothedSoftmax, nil
	case "crf":
		return DecoderCRF, nil
	default:
		return DecoderSoftmax, fmt.Errorf("unknown decoder %q, expected softmax, smoothed-softmax or crf", s)
	}
}

// ParseArchitecture splits a combined architecture tag such as "gru-crf" or
// "smoothed-softmax" into its refiner and decoder axes.
func ParseArchitecture(tag string) (Refiner, Decoder, error) {
	decoder, err := ParseDecoder(tag)
	if err == nil {
		return RefinerNone, decoder, nil
	}
	if prefix, rest, found := strings.Cut(tag, "-"); found {
		refiner, refErr := ParseRefiner(prefix)
		if refErr == nil && refiner != RefinerNone {
			decoder, err = ParseDecoder(rest)
			if err != nil {
				return RefinerNone, DecoderSoftmax, fmt.Errorf("architecture %q: %w", tag, err)
			}
			return refiner, decoder, nil
		}
	}
	return RefinerNone, DecoderSoftmax, fmt.Errorf("architecture %q: %w", tag, err)
}

// defaultSmoothing is the label smoothing mass spread across the tag space
// by the smoothed softmax decoder.
const defaultSmoothing = 0.1

// Config describes one head. Name is free-form and only used in reports.
type Config struct {
	Name       string
	Refiner    Refiner
	Decoder    Decoder
	LabelCount int

	// Smoothing overrides the smoothed softmax epsilon; zero means the
	// default of 0.1. Ignored by the other decoders.
	Smoothing float64
}

// Architecture returns the compatibility tag a checkpoint must carry to be
// loadable into this configuration, for example "gru-crf" or "softmax".
func (c Config) Architecture() string {
	if c.Refiner == RefinerNone {
		return c.Decoder.String()
	}
	return c.Refiner.String() + "-" + c.Decoder.String()
}

// Validate checks the configuration for structural errors.
func (c Config) Validate() error {
	if c.Refiner < RefinerNone || c.Refiner > RefinerLSTM {
		return fmt.Errorf("invalid refiner %d", int(c.Refiner))
	}
	if c.Decoder < DecoderSoftmax || c.Decoder > DecoderCRF {
		return fmt.Errorf("invalid decoder %d", int(c.Decoder))
	}
	if c.LabelCount <= labels.EntID {
		return fmt.Errorf("label count %d cannot cover the reserved tags", c.LabelCount)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("smoothing epsilon %f outside [0, 1)", c.Smoothing)
	}
	return nil
}

// Head is one fully wired ensemble member: a shared or dedicated encoder
// plus the trained refinement, projection and decoder parameters of one
// checkpoint.
type Head struct {
	config     Config
	encoder    backends.Encoder
	hidden     int
	rnn        *biRNN
	projWeight [][]float32
	projBias   []float32
	crf        *crf
	epsilon    float64
}

// New builds a head from its configuration, an encoder and a checkpoint.
// The checkpoint's architecture tag must match the configuration exactly.
func New(config Config, encoder backends.Encoder, checkpoint *backends.Checkpoint) (*Head, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("head %s: %w", config.Name, err)
	}
	if encoder == nil {
		return nil, fmt.Errorf("head %s: nil encoder", config.Name)
	}
	if checkpoint == nil {
		return nil, fmt.Errorf("head %s: nil checkpoint", config.Name)
	}
	if tag := config.Architecture(); checkpoint.Architecture != tag {
		return nil, fmt.Errorf("head %s: checkpoint was trained for architecture %q, configuration expects %q",
			config.Name, checkpoint.Architecture, tag)
	}
	if checkpoint.LabelCount != config.LabelCount {
		return nil, fmt.Errorf("head %s: checkpoint covers %d labels, configuration expects %d",
			config.Name, checkpoint.LabelCount, config.LabelCount)
	}
	hidden := checkpoint.HiddenSize
	if hidden <= 0 {
		return nil, fmt.Errorf("head %s: checkpoint declares hidden size %d", config.Name, hidden)
	}
	if encoderHidden := encoder.HiddenSize(); encoderHidden > 0 && encoderHidden != hidden {
		return nil, fmt.Errorf("head %s: encoder produces %d features, checkpoint expects %d",
			config.Name, encoderHidden, hidden)
	}

	head := &Head{config: config, encoder: encoder, hidden: hidden}

	var err error
	if head.projWeight, err = checkpoint.Matrix("proj.weight", config.LabelCount, hidden); err != nil {
		return nil, fmt.Errorf("head %s: %w", config.Name, err)
	}
	if head.projBias, err = checkpoint.Vector("proj.bias", config.LabelCount); err != nil {
		return nil, fmt.Errorf("head %s: %w", config.Name, err)
	}
	if config.Refiner != RefinerNone {
		if head.rnn, err = newBiRNN(config.Refiner, hidden, checkpoint); err != nil {
			return nil, fmt.Errorf("head %s: %w", config.Name, err)
		}
	}
	switch config.Decoder {
	case DecoderCRF:
		if head.crf, err = newCRF(config.LabelCount, checkpoint); err != nil {
			return nil, fmt.Errorf("head %s: %w", config.Name, err)
		}
	case DecoderSmoothedSoftmax:
		head.epsilon = config.Smoothing
		if head.epsilon == 0 {
			head.epsilon = defaultSmoothing
		}
	}
	return head, nil
}

// Name returns the head's configured name.
func (h *Head) Name() string {
	return h.config.Name
}

// Architecture returns the head's architecture tag.
func (h *Head) Architecture() string {
	return h.config.Architecture()
}

// LabelCount returns the size of the tag space the head predicts over.
func (h *Head) LabelCount() int {
	return h.config.LabelCount
}

// Prediction is the outcome of one head over one batch, token-flattened in
// row-major batch order. Predicted positions whose gold tag is padding are
// forced to the padding id so every head agrees on padding by construction.
type Prediction struct {
	Loss      float64
	Correct   int
	Predicted []int
	Gold      []int
}

// Predict runs the head over one batch.
func (h *Head) Predict(batch *dataset.Batch) (Prediction, error) {
	if batch == nil || batch.Size() == 0 {
		return Prediction{}, fmt.Errorf("head %s: empty batch", h.config.Name)
	}
	width := batch.Width()

	features, err := h.encoder.Encode(encoderInput(batch))
	if err != nil {
		return Prediction{}, fmt.Errorf("head %s: encoding batch: %w", h.config.Name, err)
	}
	rows, err := backends.FeatureRows(features)
	if err != nil {
		return Prediction{}, fmt.Errorf("head %s: %w", h.config.Name, err)
	}
	if len(rows) != batch.Size() {
		return Prediction{}, fmt.Errorf("head %s: encoder returned features for %d instances, batch has %d",
			h.config.Name, len(rows), batch.Size())
	}
	if len(rows[0]) != width {
		return Prediction{}, fmt.Errorf("head %s: encoder returned %d positions per instance, batch width is %d",
			h.config.Name, len(rows[0]), width)
	}
	if width > 0 && len(rows[0][0]) != h.hidden {
		return Prediction{}, fmt.Errorf("head %s: encoder returned %d features per token, expected %d",
			h.config.Name, len(rows[0][0]), h.hidden)
	}

	prediction := Prediction{
		Predicted: make([]int, 0, batch.Size()*width),
		Gold:      batch.Gold(),
	}
	lossSum := 0.0
	nonPadding := 0
	lengths := batch.Lengths()

	for b := range batch.Instances {
		instance := &batch.Instances[b]
		length := lengths[b]
		gold := instance.LabelIDs

		feats := rows[b]
		if h.rnn != nil {
			feats = h.rnn.Run(feats, length)
		}
		emissions := make([][]float32, width)
		for t := 0; t < width; t++ {
			emissions[t] = affine(h.projWeight, feats[t], h.projBias)
		}

		var predicted []int
		switch h.config.Decoder {
		case DecoderCRF:
			nll, err := h.crf.NegLogLikelihood(emissions, gold, length)
			if err != nil {
				return Prediction{}, fmt.Errorf("head %s instance %d: %w", h.config.Name, b, err)
			}
			lossSum += nll
			predicted = h.crf.Decode(emissions)
		default:
			predicted = make([]int, width)
			for t := 0; t < width; t++ {
				best, _, err := vectorutil.ArgMax(emissions[t])
				if err != nil {
					return Prediction{}, fmt.Errorf("head %s instance %d: %w", h.config.Name, b, err)
				}
				predicted[t] = best
				if gold[t] == labels.PadID {
					continue
				}
				logProbs := vectorutil.LogSoftMax(emissions[t])
				if h.config.Decoder == DecoderSmoothedSoftmax {
					smoothed := 0.0
					for _, lp := range logProbs {
						smoothed += lp
					}
					lossSum += -(1-h.epsilon)*logProbs[gold[t]] - h.epsilon/float64(h.config.LabelCount)*smoothed
				} else {
					lossSum += -logProbs[gold[t]]
				}
			}
		}

		for t := 0; t < width; t++ {
			if gold[t] == labels.PadID {
				predicted[t] = labels.PadID
				continue
			}
			nonPadding++
			if predicted[t] == gold[t] {
				prediction.Correct++
			}
		}
		prediction.Predicted = append(prediction.Predicted, predicted...)
	}

	if h.config.Decoder == DecoderCRF {
		prediction.Loss = lossSum / float64(batch.Size())
	} else {
		prediction.Loss = lossSum / (float64(nonPadding) + 1e-6)
	}
	return prediction, nil
}

func encoderInput(batch *dataset.Batch) backends.EncoderInput {
	input := backends.EncoderInput{
		TokenIDs:      make([][]int, batch.Size()),
		AttentionMask: make([][]int, batch.Size()),
		PositionIDs:   make([][]int, batch.Size()),
		Visibility:    make([][][]bool, batch.Size()),
	}
	for i := range batch.Instances {
		instance := &batch.Instances[i]
		input.TokenIDs[i] = instance.TokenIDs
		input.AttentionMask[i] = instance.Mask
		input.PositionIDs[i] = instance.PositionIDs
		input.Visibility[i] = instance.Visibility
	}
	return input
}
