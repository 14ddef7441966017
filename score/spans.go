package score

import "github.com/knights-analytics/kbner/labels"

// Span is one extracted entity: inclusive token positions and the opening
// tag id. Spans match only on exact (start, end, type) equality.
type Span struct {
	Start int
	End   int
	Type  int
}

// SpanExtractor converts a flat tag-id sequence into entity spans. Injected
// knowledge markers are transparent: they extend a span without terminating
// it and never open one.
type SpanExtractor struct {
	begins    labels.BeginIDSet
	padID     int
	entID     int
	outsideID int
}

// NewSpanExtractor derives an extractor from the tag vocabulary.
func NewSpanExtractor(vocab *labels.Vocabulary) *SpanExtractor {
	return &SpanExtractor{
		begins:    vocab.BeginIDs(),
		padID:     labels.PadID,
		entID:     labels.EntID,
		outsideID: vocab.OutsideID(),
	}
}

// Extract scans left to right. A span opens at every begin-tag position and
// closes at the position immediately before the next padding, outside or
// begin tag, or at the final index. Positions carrying the injected-entity
// marker are skipped over while scanning.
func (e *SpanExtractor) Extract(tags []int) []Span {
	var spans []Span
	i := 0
	for i < len(tags) {
		if !e.begins.Contains(tags[i]) {
			i++
			continue
		}
		start, spanType := i, tags[i]
		j := i + 1
		for j < len(tags) {
			id := tags[j]
			if id == e.entID {
				j++
				continue
			}
			if id == e.padID || e.begins.Contains(id) || (e.outsideID >= 0 && id == e.outsideID) {
				break
			}
			j++
		}
		spans = append(spans, Span{Start: start, End: j - 1, Type: spanType})
		i = j
	}
	return spans
}
