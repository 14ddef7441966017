package kbner

type ensembleOptions struct {
	tieBreakHead    int
	concurrentHeads bool
}

// WithOption is the interface for all ensemble option functions.
type WithOption func(o *ensembleOptions)

// WithTieBreakHead designates the head whose vote wins tied tallies.
// Defaults to head 0.
func WithTieBreakHead(index int) WithOption {
	return func(o *ensembleOptions) {
		o.tieBreakHead = index
	}
}

// WithConcurrentHeads dispatches the heads of each batch across goroutines
// instead of evaluating them in order. Voting waits for every head, so the
// merged result is identical either way.
func WithConcurrentHeads() WithOption {
	return func(o *ensembleOptions) {
		o.concurrentHeads = true
	}
}
