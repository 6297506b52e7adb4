package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
	assert.Equal(t, logrus.WarnLevel, New(" WARNING ").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("chatty").GetLevel())

	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, logrus.ErrorLevel, New("").GetLevel())
}
