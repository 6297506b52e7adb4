package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings is the resolved runtime configuration. Services receive the
// pieces they need from here; nothing reads the environment after Load.
type Settings struct {
	Port     string
	LogLevel string

	DBDriver     string
	SQLitePath   string
	PostgresURI  string
	RedisURL     string
	MongoURI     string
	MongoDB      string
	ExportBucket string

	// MongoPinTLS12 works around Atlas handshakes failing on newer TLS.
	MongoPinTLS12    bool
	MongoInsecureTLS bool

	EmbeddingBackend       string
	EmbeddingModelPath     string
	EmbeddingTokenizerPath string
	EmbeddingDimensions    int
	EmbeddingCacheTTL      time.Duration

	RetrievalTopK          int
	RetrievalMinSimilarity float64
	ContextMaxTokens       int
	StyleWindow            int
	StyleThreshold         float64
	SessionInactivity      time.Duration
	SweepInterval          time.Duration

	Indexer      string
	TokenCounter string

	LLMProvider     string
	LLMModel        string
	AnthropicAPIKey string
	GCPProject      string
	GCPLocation     string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("SQLITE_PATH", "memory.db")
	v.SetDefault("MONGO_DB", "yoomemory")
	v.SetDefault("EMBEDDING_BACKEND", "onnx")
	v.SetDefault("EMBEDDING_DIMENSIONS", 384)
	v.SetDefault("EMBEDDING_CACHE_TTL", "1h")
	v.SetDefault("RETRIEVAL_TOP_K", 5)
	v.SetDefault("RETRIEVAL_MIN_SIMILARITY", 0.6)
	v.SetDefault("CONTEXT_MAX_TOKENS", 2000)
	v.SetDefault("STYLE_WINDOW", 50)
	v.SetDefault("STYLE_THRESHOLD", 0.2)
	v.SetDefault("SESSION_INACTIVITY", "30m")
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("INDEXER", "goroutine")
	v.SetDefault("TOKEN_COUNTER", "heuristic")
	v.SetDefault("LLM_PROVIDER", "none")
	v.SetDefault("GCP_LOCATION", "us-central1")
}

// Load reads .env (if present), an optional YAML file named by
// MEMORY_CONFIG, then the process environment. Later sources win.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("MEMORY_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Settings {
	redisURL := v.GetString("REDIS_ADDR")
	if redisURL == "" {
		redisURL = v.GetString("REDIS_URI")
	}
	if redisURL == "" {
		redisURL = v.GetString("REDIS_URL")
	}

	return &Settings{
		Port:     v.GetString("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		DBDriver:     strings.ToLower(v.GetString("DB_DRIVER")),
		SQLitePath:   v.GetString("SQLITE_PATH"),
		PostgresURI:  v.GetString("POSTGRES_URI"),
		RedisURL:     redisURL,
		MongoURI:     v.GetString("MONGO_URI"),
		MongoDB:      v.GetString("MONGO_DB"),
		ExportBucket: v.GetString("GCS_EXPORT_BUCKET"),

		MongoPinTLS12:    v.GetBool("MONGO_FORCE_TLS_CONFIG"),
		MongoInsecureTLS: v.GetBool("MONGO_INSECURE_TLS"),

		EmbeddingBackend:       strings.ToLower(v.GetString("EMBEDDING_BACKEND")),
		EmbeddingModelPath:     v.GetString("EMBEDDING_MODEL_PATH"),
		EmbeddingTokenizerPath: v.GetString("EMBEDDING_TOKENIZER_PATH"),
		EmbeddingDimensions:    v.GetInt("EMBEDDING_DIMENSIONS"),
		EmbeddingCacheTTL:      v.GetDuration("EMBEDDING_CACHE_TTL"),

		RetrievalTopK:          v.GetInt("RETRIEVAL_TOP_K"),
		RetrievalMinSimilarity: v.GetFloat64("RETRIEVAL_MIN_SIMILARITY"),
		ContextMaxTokens:       v.GetInt("CONTEXT_MAX_TOKENS"),
		StyleWindow:            v.GetInt("STYLE_WINDOW"),
		StyleThreshold:         v.GetFloat64("STYLE_THRESHOLD"),
		SessionInactivity:      v.GetDuration("SESSION_INACTIVITY"),
		SweepInterval:          v.GetDuration("SWEEP_INTERVAL"),

		Indexer:      strings.ToLower(v.GetString("INDEXER")),
		TokenCounter: strings.ToLower(v.GetString("TOKEN_COUNTER")),

		LLMProvider:     strings.ToLower(v.GetString("LLM_PROVIDER")),
		LLMModel:        v.GetString("LLM_MODEL"),
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		GCPProject:      v.GetString("GCP_PROJECT"),
		GCPLocation:     v.GetString("GCP_LOCATION"),

		JWTSecret:   v.GetString("SUPABASE_JWT_SECRET"),
		JWTIssuer:   v.GetString("SUPABASE_JWT_ISSUER"),
		JWTAudience: v.GetString("SUPABASE_JWT_AUDIENCE"),
	}
}
