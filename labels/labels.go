// Package labels holds the tag vocabulary shared by every head of an
// ensemble. All heads must be built against the same vocabulary, otherwise
// their predictions are not comparable and scoring is meaningless.
package labels

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/knights-analytics/kbner/util/fileutil"
)

const (
	PadTag = "[PAD]"
	EntTag = "[ENT]"

	// PadID and EntID are pre-seeded before the training file is scanned,
	// so they are stable regardless of the tag set.
	PadID = 0
	EntID = 1
)

// Vocabulary is a bijective mapping between tag strings and integer ids,
// assigned in first-seen order. It is built once and never mutated afterwards.
type Vocabulary struct {
	ids  map[string]int
	tags []string
}

// NewVocabulary returns a vocabulary containing the tags in order, after the
// two reserved entries. Tags must not collide with the reserved entries.
func NewVocabulary(tags ...string) (*Vocabulary, error) {
	v := &Vocabulary{
		ids:  map[string]int{PadTag: PadID, EntTag: EntID},
		tags: []string{PadTag, EntTag},
	}
	for _, tag := range tags {
		if err := v.add(tag); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (v *Vocabulary) add(tag string) error {
	if tag == "" {
		return fmt.Errorf("empty tag string")
	}
	if _, ok := v.ids[tag]; ok {
		return nil
	}
	v.ids[tag] = len(v.tags)
	v.tags = append(v.tags, tag)
	return nil
}

// FromTrainingFile scans the training label file and assigns an id to every
// tag in first-seen order. The file is tab separated with one header line:
// each subsequent line is "<tokens>\t<space separated tags>".
func FromTrainingFile(path string) (*Vocabulary, error) {
	reader, err := fileutil.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening training file %s: %w", path, err)
	}
	defer fileutil.CloseFile(reader)

	v, _ := NewVocabulary()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue // header
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		columns := strings.Split(line, "\t")
		if len(columns) < 2 {
			return nil, fmt.Errorf("training file %s line %d: expected 2 tab separated columns, got %d", path, lineNo, len(columns))
		}
		for _, tag := range strings.Fields(columns[1]) {
			if err := v.add(tag); err != nil {
				return nil, fmt.Errorf("training file %s line %d: %w", path, lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading training file %s: %w", path, err)
	}
	return v, nil
}

// ID returns the id for tag, or -1 when the tag is unknown.
func (v *Vocabulary) ID(tag string) int {
	if id, ok := v.ids[tag]; ok {
		return id
	}
	return -1
}

// Tag returns the tag string for id, or "" when out of range.
func (v *Vocabulary) Tag(id int) string {
	if id < 0 || id >= len(v.tags) {
		return ""
	}
	return v.tags[id]
}

// Size returns the number of tags, reserved entries included.
func (v *Vocabulary) Size() int {
	return len(v.tags)
}

// OutsideID returns the id of the "O" tag, or -1 when the training data
// carried no outside tag.
func (v *Vocabulary) OutsideID() int {
	return v.ID("O")
}

// BeginIDSet is the subset of ids that open an entity span.
type BeginIDSet map[int]struct{}

// BeginIDs derives the set of span-opening ids: tags prefixed "B" or "S" by
// the usual BIO/BIOES conventions.
func (v *Vocabulary) BeginIDs() BeginIDSet {
	set := BeginIDSet{}
	for id, tag := range v.tags {
		if id == PadID || id == EntID {
			continue
		}
		if strings.HasPrefix(tag, "B") || strings.HasPrefix(tag, "S") {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether id opens an entity span.
func (s BeginIDSet) Contains(id int) bool {
	_, ok := s[id]
	return ok
}
