package dataset

import "fmt"

// Augmented is the output of a knowledge injector for one sentence: the
// rewritten token sequence padded to a fixed width, soft-position ids, the
// pairwise visibility matrix, per-position provenance and the padding mask.
// All sequences share one length.
type Augmented struct {
	Tokens      []string
	Positions   []int
	Visibility  [][]bool
	Provenance  []int
	PaddingMask []int
}

func (a *Augmented) validate() error {
	width := len(a.Tokens)
	if len(a.Positions) != width || len(a.Provenance) != width || len(a.PaddingMask) != width {
		return fmt.Errorf("augmented sequences disagree on length: tokens=%d positions=%d provenance=%d padding=%d",
			width, len(a.Positions), len(a.Provenance), len(a.PaddingMask))
	}
	if len(a.Visibility) != width {
		return fmt.Errorf("visibility matrix has %d rows for %d positions", len(a.Visibility), width)
	}
	for i, row := range a.Visibility {
		if len(row) != width {
			return fmt.Errorf("visibility matrix row %d has %d columns for %d positions", i, len(row), width)
		}
	}
	return nil
}

// Injector rewrites a tokenized sentence into its knowledge-augmented form.
// The augmentation algorithm itself lives outside this repository; evaluation
// only depends on this contract.
type Injector interface {
	Augment(tokens []string) (Augmented, error)
}

// PassthroughInjector performs no knowledge injection: tokens pass through
// unchanged, every position is original text, positions are sequential and
// every real token sees every other. Sentences shorter than MaxLength are
// padded with PadToken; longer ones lose their trailing positions, which
// Load then rejects because the dropped gold tags are never consumed.
type PassthroughInjector struct {
	MaxLength int
	PadToken  string
}

func (p *PassthroughInjector) Augment(tokens []string) (Augmented, error) {
	if p.MaxLength <= 0 {
		return Augmented{}, fmt.Errorf("passthrough injector requires a positive max length, got %d", p.MaxLength)
	}
	padToken := p.PadToken
	if padToken == "" {
		padToken = "[PAD]"
	}
	content := len(tokens)
	if content > p.MaxLength {
		content = p.MaxLength
	}

	out := Augmented{
		Tokens:      make([]string, p.MaxLength),
		Positions:   make([]int, p.MaxLength),
		Visibility:  make([][]bool, p.MaxLength),
		Provenance:  make([]int, p.MaxLength),
		PaddingMask: make([]int, p.MaxLength),
	}
	for i := 0; i < p.MaxLength; i++ {
		out.Positions[i] = i
		out.Visibility[i] = make([]bool, p.MaxLength)
		if i < content {
			out.Tokens[i] = tokens[i]
			out.Provenance[i] = ProvenanceText
			out.PaddingMask[i] = 1
		} else {
			out.Tokens[i] = padToken
		}
	}
	for i := 0; i < content; i++ {
		for j := 0; j < content; j++ {
			out.Visibility[i][j] = true
		}
	}
	return out, nil
}
