package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/kbner/labels"
)

func testTokenVocabulary(t *testing.T) *TokenVocabulary {
	t.Helper()
	v, err := NewTokenVocabulary([]string{"[PAD]", "[UNK]", "john", "lives", "in", "paris", "acme"})
	require.NoError(t, err)
	return v
}

func testTagVocabulary(t *testing.T) *labels.Vocabulary {
	t.Helper()
	v, err := labels.NewVocabulary("O", "B-PER", "B-LOC", "I-LOC")
	require.NoError(t, err)
	return v
}

func writeDataset(t *testing.T, rows ...string) string {
	t.Helper()
	content := "text\tlabels\n"
	for _, row := range rows {
		content += row + "\n"
	}
	path := filepath.Join(t.TempDir(), "eval.tsv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPassthroughInjector(t *testing.T) {
	injector := &PassthroughInjector{MaxLength: 5}
	augmented, err := injector.Augment([]string{"john", "lives"})
	require.NoError(t, err)

	assert.Equal(t, []string{"john", "lives", "[PAD]", "[PAD]", "[PAD]"}, augmented.Tokens)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, augmented.Positions)
	assert.Equal(t, []int{1, 1, 0, 0, 0}, augmented.PaddingMask)
	assert.Equal(t, []int{ProvenanceText, ProvenanceText, 0, 0, 0}, augmented.Provenance)
	assert.True(t, augmented.Visibility[0][1])
	assert.True(t, augmented.Visibility[1][0])
	assert.False(t, augmented.Visibility[0][2])
	assert.False(t, augmented.Visibility[4][4])
	require.NoError(t, augmented.validate())
}

func TestLoadRemapsGoldTags(t *testing.T) {
	path := writeDataset(t, "john lives in paris\tB-PER O O B-LOC")
	injector := &PassthroughInjector{MaxLength: 6}

	data, err := Load(path, testTokenVocabulary(t), testTagVocabulary(t), injector)
	require.NoError(t, err)
	require.Len(t, data.Instances, 1)

	instance := data.Instances[0]
	tags := testTagVocabulary(t)
	assert.Equal(t, []int{
		tags.ID("B-PER"), tags.ID("O"), tags.ID("O"), tags.ID("B-LOC"),
		labels.PadID, labels.PadID,
	}, instance.LabelIDs)
	assert.Equal(t, 4, instance.Length())
	assert.Equal(t, []int{1, 1, 1, 1, 0, 0}, instance.PaddingMask)
}

func TestLoadMalformedRowIsFatal(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"missing tag column", "john lives"},
		{"count mismatch", "john lives\tB-PER"},
		{"unknown tag", "john\tB-MISC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDataset(t, tt.row)
			_, err := Load(path, testTokenVocabulary(t), testTagVocabulary(t), &PassthroughInjector{MaxLength: 4})
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestLoadRejectsOverlongSentences(t *testing.T) {
	// four tokens, but the injector only keeps two positions: the trailing
	// gold tags are never consumed, so the row is fatal
	path := writeDataset(t, "john lives in paris\tB-PER O O B-LOC")
	_, err := Load(path, testTokenVocabulary(t), testTagVocabulary(t), &PassthroughInjector{MaxLength: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "2 of 4 tags consumed")
}

func TestLoadShuffleIsDeterministic(t *testing.T) {
	path := writeDataset(t,
		"john\tB-PER",
		"paris\tB-LOC",
		"acme\tO",
		"lives\tO",
	)
	injector := &PassthroughInjector{MaxLength: 2}

	first, err := Load(path, testTokenVocabulary(t), testTagVocabulary(t), injector, WithShuffle(42))
	require.NoError(t, err)
	second, err := Load(path, testTokenVocabulary(t), testTagVocabulary(t), injector, WithShuffle(42))
	require.NoError(t, err)

	require.Len(t, first.Instances, 4)
	for i := range first.Instances {
		assert.Equal(t, first.Instances[i].TokenIDs, second.Instances[i].TokenIDs)
	}
}

func TestBatchesTruncateToTrueMaxLength(t *testing.T) {
	path := writeDataset(t,
		"john lives in paris\tB-PER O O B-LOC",
		"acme\tO",
	)
	data, err := Load(path, testTokenVocabulary(t), testTagVocabulary(t), &PassthroughInjector{MaxLength: 8})
	require.NoError(t, err)

	batches, err := data.Batches(2)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	batch := batches[0]
	assert.Equal(t, 2, batch.Size())
	assert.Equal(t, 4, batch.TrueMaxLen)
	assert.Equal(t, 4, batch.Width())
	for _, instance := range batch.Instances {
		assert.Len(t, instance.TokenIDs, 4)
		assert.Len(t, instance.Visibility, 4)
		for _, row := range instance.Visibility {
			assert.Len(t, row, 4)
		}
	}
	assert.Equal(t, []int{4, 1}, batch.Lengths())
	assert.Len(t, batch.Gold(), 8)
}

func TestLengthsWithoutPaddingMask(t *testing.T) {
	batch := &Batch{Instances: []Instance{
		{TokenIDs: make([]int, 3)},
		{TokenIDs: make([]int, 3), PaddingMask: []int{1, 1, 0}},
	}, TrueMaxLen: 3}
	assert.Equal(t, []int{3, 2}, batch.Lengths())
}

func TestBatchesPartialFinalBatch(t *testing.T) {
	path := writeDataset(t,
		"john\tB-PER",
		"paris\tB-LOC",
		"acme\tO",
	)
	data, err := Load(path, testTokenVocabulary(t), testTagVocabulary(t), &PassthroughInjector{MaxLength: 4})
	require.NoError(t, err)

	batches, err := data.Batches(2)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 2, batches[0].Size())
	assert.Equal(t, 1, batches[1].Size())

	_, err = data.Batches(0)
	assert.Error(t, err)
}
