package dataset

import (
	"bufio"
	"fmt"

	"github.com/knights-analytics/kbner/util/fileutil"
)

// TokenVocabulary maps token strings to the integer ids the encoder was
// trained with. Ids are line numbers in the vocabulary file, 0-indexed.
type TokenVocabulary struct {
	tokenToID map[string]int
	idToToken []string
	padID     int
	unkID     int
}

// LoadTokenVocabulary reads a vocab.txt style file, one token per line. The
// file must contain the [PAD] and [UNK] tokens.
func LoadTokenVocabulary(path string) (*TokenVocabulary, error) {
	reader, err := fileutil.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening token vocabulary %s: %w", path, err)
	}
	defer fileutil.CloseFile(reader)

	v := &TokenVocabulary{tokenToID: make(map[string]int, 32768)}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		token := scanner.Text()
		if _, ok := v.tokenToID[token]; !ok {
			v.tokenToID[token] = len(v.idToToken)
		}
		v.idToToken = append(v.idToToken, token)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading token vocabulary %s: %w", path, err)
	}
	if len(v.idToToken) == 0 {
		return nil, fmt.Errorf("token vocabulary %s is empty", path)
	}

	var ok bool
	if v.padID, ok = v.tokenToID["[PAD]"]; !ok {
		return nil, fmt.Errorf("token vocabulary %s is missing [PAD]", path)
	}
	if v.unkID, ok = v.tokenToID["[UNK]"]; !ok {
		return nil, fmt.Errorf("token vocabulary %s is missing [UNK]", path)
	}
	return v, nil
}

// NewTokenVocabulary builds a vocabulary from tokens in order, for tests and
// in-memory use. The slice must contain [PAD] and [UNK].
func NewTokenVocabulary(tokens []string) (*TokenVocabulary, error) {
	v := &TokenVocabulary{tokenToID: make(map[string]int, len(tokens))}
	for _, token := range tokens {
		if _, ok := v.tokenToID[token]; !ok {
			v.tokenToID[token] = len(v.idToToken)
		}
		v.idToToken = append(v.idToToken, token)
	}
	var ok bool
	if v.padID, ok = v.tokenToID["[PAD]"]; !ok {
		return nil, fmt.Errorf("token vocabulary is missing [PAD]")
	}
	if v.unkID, ok = v.tokenToID["[UNK]"]; !ok {
		return nil, fmt.Errorf("token vocabulary is missing [UNK]")
	}
	return v, nil
}

// ID returns the id for token, falling back to [UNK] for unknown tokens.
func (v *TokenVocabulary) ID(token string) int {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return v.unkID
}

// PadID returns the id of the [PAD] token.
func (v *TokenVocabulary) PadID() int {
	return v.padID
}

// Size returns the number of entries.
func (v *TokenVocabulary) Size() int {
	return len(v.idToToken)
}
