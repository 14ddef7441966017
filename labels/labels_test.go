package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVocabularyReservedEntries(t *testing.T) {
	v, err := NewVocabulary("O", "B-ORG", "I-ORG")
	require.NoError(t, err)

	assert.Equal(t, PadID, v.ID(PadTag))
	assert.Equal(t, EntID, v.ID(EntTag))
	assert.Equal(t, 2, v.ID("O"))
	assert.Equal(t, 3, v.ID("B-ORG"))
	assert.Equal(t, 4, v.ID("I-ORG"))
	assert.Equal(t, 5, v.Size())
	assert.Equal(t, "B-ORG", v.Tag(3))
	assert.Equal(t, -1, v.ID("B-LOC"))
	assert.Equal(t, "", v.Tag(99))
	assert.Equal(t, 2, v.OutsideID())
}

func TestFromTrainingFileFirstSeenOrder(t *testing.T) {
	content := "text\tlabels\n" +
		"John lives in Paris\tB-PER O O B-LOC\n" +
		"Acme hired John\tB-ORG O B-PER\n"
	path := filepath.Join(t.TempDir(), "train.tsv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v, err := FromTrainingFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, v.ID("B-PER"))
	assert.Equal(t, 3, v.ID("O"))
	assert.Equal(t, 4, v.ID("B-LOC"))
	assert.Equal(t, 5, v.ID("B-ORG"))
	assert.Equal(t, 6, v.Size())
}

func TestFromTrainingFileMalformedRow(t *testing.T) {
	content := "text\tlabels\nno tags here\n"
	path := filepath.Join(t.TempDir(), "train.tsv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := FromTrainingFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestBeginIDs(t *testing.T) {
	v, err := NewVocabulary("O", "B-PER", "I-PER", "S-LOC", "E-LOC")
	require.NoError(t, err)

	begins := v.BeginIDs()
	assert.True(t, begins.Contains(v.ID("B-PER")))
	assert.True(t, begins.Contains(v.ID("S-LOC")))
	assert.False(t, begins.Contains(v.ID("I-PER")))
	assert.False(t, begins.Contains(v.ID("E-LOC")))
	assert.False(t, begins.Contains(v.ID("O")))
	assert.False(t, begins.Contains(PadID))
	assert.False(t, begins.Contains(EntID))
}
