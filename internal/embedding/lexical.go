package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const LexicalModelID = "lexical-hash-v1"

// LexicalModel is a feature-hashing bag-of-words model. Texts sharing
// words get similar vectors, which makes it a usable stand-in when no
// neural model is installed.
type LexicalModel struct {
	dims int
}

func NewLexicalModel(dims int) *LexicalModel {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &LexicalModel{dims: dims}
}

func (m *LexicalModel) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, m.dims)
	for _, w := range Words(text) {
		v[xxhash.Sum64String(w)%uint64(m.dims)]++
	}
	return Normalize(v), nil
}

func (m *LexicalModel) Dimensions() int { return m.dims }
func (m *LexicalModel) ID() string      { return LexicalModelID }

// Words lowercases text and splits it on anything that is not a letter or
// a digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// LexicalLoader adapts NewLexicalModel to a Loader.
func LexicalLoader(dims int) Loader {
	return func() (Model, error) { return NewLexicalModel(dims), nil }
}
