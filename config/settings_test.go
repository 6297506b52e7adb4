package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	s := fromViper(v)

	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, "sqlite", s.DBDriver)
	assert.Equal(t, "onnx", s.EmbeddingBackend)
	assert.Equal(t, 384, s.EmbeddingDimensions)
	assert.Equal(t, time.Hour, s.EmbeddingCacheTTL)
	assert.Equal(t, 5, s.RetrievalTopK)
	assert.InDelta(t, 0.6, s.RetrievalMinSimilarity, 1e-9)
	assert.Equal(t, 2000, s.ContextMaxTokens)
	assert.Equal(t, 30*time.Minute, s.SessionInactivity)
	assert.Equal(t, "goroutine", s.Indexer)
	assert.Equal(t, "none", s.LLMProvider)
	assert.Empty(t, s.RedisURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("SESSION_INACTIVITY", "5m")
	t.Setenv("REDIS_URI", "redis://cache:6379/0")
	t.Setenv("EMBEDDING_BACKEND", "LEXICAL")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", s.Port)
	assert.Equal(t, "postgres", s.DBDriver)
	assert.Equal(t, 8, s.RetrievalTopK)
	assert.Equal(t, 5*time.Minute, s.SessionInactivity)
	assert.Equal(t, "redis://cache:6379/0", s.RedisURL)
	assert.Equal(t, "lexical", s.EmbeddingBackend)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("CONTEXT_MAX_TOKENS: 1500\nLLM_PROVIDER: anthropic\n"), 0o600))
	t.Setenv("MEMORY_CONFIG", path)
	t.Setenv("LLM_PROVIDER", "vertex")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1500, s.ContextMaxTokens)
	assert.Equal(t, "vertex", s.LLMProvider)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("MEMORY_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
