// Package dataset reads evaluation data and slices it into batches. One
// Instance is one sentence after knowledge-graph augmentation: parallel,
// equal-length sequences of token ids, gold label ids, attention mask,
// soft-position ids, a pairwise visibility matrix, per-position provenance
// tags and a padding mask.
package dataset

import (
	"bufio"
	"fmt"
	"math/rand"
	"strings"

	"github.com/knights-analytics/kbner/labels"
	"github.com/knights-analytics/kbner/util/fileutil"
)

// Provenance values for each augmented position.
const (
	ProvenanceText     = 0 // token from the original sentence
	ProvenanceInjected = 1 // token injected from the knowledge graph
)

type Instance struct {
	TokenIDs    []int
	LabelIDs    []int
	Mask        []int
	PositionIDs []int
	Visibility  [][]bool
	Provenance  []int
	PaddingMask []int
}

// Length returns the number of positions holding real content.
func (i *Instance) Length() int {
	length := 0
	for _, m := range i.PaddingMask {
		length += m
	}
	return length
}

// Dataset is a fully materialized evaluation set.
type Dataset struct {
	Instances []Instance
}

type loadConfig struct {
	shuffle bool
	seed    int64
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

// WithShuffle shuffles the dataset once, at materialization time, with the
// given seed. Batch slicing afterwards is always in dataset order.
func WithShuffle(seed int64) LoadOption {
	return func(c *loadConfig) {
		c.shuffle = true
		c.seed = seed
	}
}

// Load reads a tab separated dataset file (one header line, then
// "<space separated tokens>\t<space separated tags>" per sentence), augments
// every sentence through the injector and remaps the gold tags onto the
// augmented sequence: original-text positions consume the next gold tag,
// injected positions become [ENT], padding becomes [PAD].
//
// A sentence whose gold tags cannot be consumed exactly by its original-text
// positions is a fatal error. No partial-row recovery is attempted.
func Load(path string, tokens *TokenVocabulary, tagVocab *labels.Vocabulary, injector Injector, opts ...LoadOption) (*Dataset, error) {
	cfg := loadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	reader, err := fileutil.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer fileutil.CloseFile(reader)

	d := &Dataset{}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue // header
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		instance, rowErr := parseRow(line, tokens, tagVocab, injector)
		if rowErr != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", path, lineNo, rowErr)
		}
		d.Instances = append(d.Instances, instance)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}

	if cfg.shuffle {
		rng := rand.New(rand.NewSource(cfg.seed))
		rng.Shuffle(len(d.Instances), func(i, j int) {
			d.Instances[i], d.Instances[j] = d.Instances[j], d.Instances[i]
		})
	}
	return d, nil
}

func parseRow(line string, tokens *TokenVocabulary, tagVocab *labels.Vocabulary, injector Injector) (Instance, error) {
	columns := strings.Split(line, "\t")
	if len(columns) != 2 {
		return Instance{}, fmt.Errorf("expected 2 tab separated columns, got %d", len(columns))
	}
	surface := strings.Fields(columns[0])
	tags := strings.Fields(columns[1])
	if len(surface) != len(tags) {
		return Instance{}, fmt.Errorf("token/tag count mismatch: %d tokens, %d tags", len(surface), len(tags))
	}

	augmented, err := injector.Augment(surface)
	if err != nil {
		return Instance{}, fmt.Errorf("knowledge augmentation: %w", err)
	}
	if err := augmented.validate(); err != nil {
		return Instance{}, err
	}

	width := len(augmented.Tokens)
	instance := Instance{
		TokenIDs:    make([]int, width),
		LabelIDs:    make([]int, width),
		Mask:        make([]int, width),
		PositionIDs: augmented.Positions,
		Visibility:  augmented.Visibility,
		Provenance:  augmented.Provenance,
		PaddingMask: augmented.PaddingMask,
	}
	for i, token := range augmented.Tokens {
		instance.TokenIDs[i] = tokens.ID(token)
		instance.Mask[i] = augmented.PaddingMask[i]
	}

	// Remap the gold tags onto the augmented sequence.
	next := 0
	for i := 0; i < width; i++ {
		switch {
		case augmented.Provenance[i] == ProvenanceText && instance.TokenIDs[i] != tokens.PadID():
			if next >= len(tags) {
				return Instance{}, fmt.Errorf("token/tag count mismatch after augmentation: more than %d original-text positions", len(tags))
			}
			id := tagVocab.ID(tags[next])
			if id < 0 {
				return Instance{}, fmt.Errorf("tag %q not present in the label vocabulary", tags[next])
			}
			instance.LabelIDs[i] = id
			next++
		case augmented.Provenance[i] == ProvenanceInjected && instance.TokenIDs[i] != tokens.PadID():
			instance.LabelIDs[i] = labels.EntID
		default:
			instance.LabelIDs[i] = labels.PadID
		}
	}
	if next != len(tags) {
		return Instance{}, fmt.Errorf("token/tag count mismatch after augmentation: %d of %d tags consumed", next, len(tags))
	}
	return instance, nil
}
