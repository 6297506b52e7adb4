package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic_CeilOfQuarter(t *testing.T) {
	h := Heuristic{}
	assert.Equal(t, 0, h.Count(""))
	assert.Equal(t, 1, h.Count("a"))
	assert.Equal(t, 1, h.Count("abcd"))
	assert.Equal(t, 2, h.Count("abcde"))
	assert.Equal(t, 1, h.Count("日本"))
}

func TestNew_DefaultsToHeuristic(t *testing.T) {
	_, ok := New("", nil).(Heuristic)
	assert.True(t, ok)
	_, ok = New("tiktoken", nil).(*Tiktoken)
	assert.True(t, ok)
}
