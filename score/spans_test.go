package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/kbner/labels"
)

// extractorVocab: [PAD]=0, [ENT]=1, O=2, B-X=3, I-X=4, B-Y=5
func extractorVocab(t *testing.T) *labels.Vocabulary {
	t.Helper()
	v, err := labels.NewVocabulary("O", "B-X", "I-X", "B-Y")
	require.NoError(t, err)
	return v
}

func TestExtractSimpleSpan(t *testing.T) {
	v := extractorVocab(t)
	e := NewSpanExtractor(v)

	// O B-X I-X O
	spans := e.Extract([]int{2, 3, 4, 2})
	assert.Equal(t, []Span{{Start: 1, End: 2, Type: 3}}, spans)
}

func TestExtractRoundTrip(t *testing.T) {
	v := extractorVocab(t)
	e := NewSpanExtractor(v)

	// a known span surrounded by O tags must come back exactly once
	sequence := []int{2, 2, 3, 4, 4, 2, 2}
	spans := e.Extract(sequence)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 2, End: 4, Type: 3}, spans[0])
}

func TestExtractTransparentMarkers(t *testing.T) {
	v := extractorVocab(t)
	e := NewSpanExtractor(v)

	// markers between the begin tag and the boundary extend the span
	spans := e.Extract([]int{3, 1, 1, 4, 2})
	assert.Equal(t, []Span{{Start: 0, End: 3, Type: 3}}, spans)

	// markers only, up to the boundary
	spans = e.Extract([]int{2, 3, 1, 1, 2})
	assert.Equal(t, []Span{{Start: 1, End: 3, Type: 3}}, spans)
}

func TestExtractSpanEndsAtSequenceEnd(t *testing.T) {
	v := extractorVocab(t)
	e := NewSpanExtractor(v)

	spans := e.Extract([]int{2, 3, 4, 4})
	assert.Equal(t, []Span{{Start: 1, End: 3, Type: 3}}, spans)
}

func TestExtractAdjacentSpans(t *testing.T) {
	v := extractorVocab(t)
	e := NewSpanExtractor(v)

	// a begin tag closes the running span and opens a new one
	spans := e.Extract([]int{3, 4, 5, 4, 0})
	assert.Equal(t, []Span{
		{Start: 0, End: 1, Type: 3},
		{Start: 2, End: 3, Type: 5},
	}, spans)
}

func TestExtractClosesAtPadding(t *testing.T) {
	v := extractorVocab(t)
	e := NewSpanExtractor(v)

	spans := e.Extract([]int{3, 4, 0, 0})
	assert.Equal(t, []Span{{Start: 0, End: 1, Type: 3}}, spans)
}

func TestExtractNoSpans(t *testing.T) {
	v := extractorVocab(t)
	e := NewSpanExtractor(v)

	assert.Empty(t, e.Extract([]int{2, 2, 4, 0}))
	assert.Empty(t, e.Extract(nil))
}
