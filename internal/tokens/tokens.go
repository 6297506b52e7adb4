// Package tokens estimates how many model tokens a text costs.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
)

type Counter interface {
	Count(text string) int
}

// Heuristic charges one token per four characters, rounded up.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

// Tiktoken counts with a BPE encoding. The encoding is fetched on first
// use; if that fails every call falls back to Heuristic.
type Tiktoken struct {
	encoding string
	log      *logrus.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTiktoken(encoding string, log *logrus.Logger) *Tiktoken {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Tiktoken{encoding: encoding, log: log}
}

func (t *Tiktoken) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.log.WithField("encoding", t.encoding).WithError(err).Warn("tiktoken unavailable, using heuristic")
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return Heuristic{}.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// New picks a counter by name: "tiktoken" or anything else for Heuristic.
func New(name string, log *logrus.Logger) Counter {
	if name == "tiktoken" {
		return NewTiktoken("", log)
	}
	return Heuristic{}
}
