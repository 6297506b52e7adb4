// Package bootstrap wires backends, repositories and services from
// config.Settings. Both binaries build their App here.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/yoockh/yoomemory/config"
	"github.com/yoockh/yoomemory/internal/analysis/style"
	"github.com/yoockh/yoomemory/internal/cache"
	"github.com/yoockh/yoomemory/internal/embedding"
	"github.com/yoockh/yoomemory/internal/providers/llm"
	mongorepo "github.com/yoockh/yoomemory/internal/repositories/mongo"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/storage"
	"github.com/yoockh/yoomemory/internal/tokens"
	"github.com/yoockh/yoomemory/internal/vectorstore"
	"github.com/yoockh/yoomemory/internal/workers"
)

const embeddingCacheBytes = 64 << 20

type App struct {
	Settings *config.Settings
	Log      *logrus.Logger

	DB    *gorm.DB
	Redis *redis.Client
	Mongo *mongo.Client

	Messages sqldb.MessageRepository
	// Mirror is nil unless MONGO_URI is set.
	Mirror mongorepo.AuditMirror

	Audit           services.AuditService
	Consent         services.ConsentService
	Profiles        services.ProfileService
	Sessions        services.SessionService
	Retrieval       services.RetrievalService
	Conversations   services.ConversationService
	Context         services.ContextService
	Personalization services.PersonalizationService
	DataRights      services.DataRightsService
	Chat            services.ChatService

	Sweeper *workers.Sweeper
	// Pool is set when INDEXER=redis; the caller starts it.
	Pool    *workers.EmbeddingWorkerPool
	Indexer *workers.GoroutineIndexer

	closers []func() error
}

// New opens every configured backend. Optional backends (redis, mongo,
// GCS, text generation) are skipped when their settings are empty.
func New(ctx context.Context, s *config.Settings, log *logrus.Logger) (*App, error) {
	a := &App{Settings: s, Log: log}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	s, log := a.Settings, a.Log

	db, err := config.OpenDatabase(s)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := sqldb.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if s.RedisURL != "" {
		rdb, err := config.InitRedis(ctx, s.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	var mirror services.AuditMirror
	if s.MongoURI != "" {
		mc, mdb, err := config.OpenMongo(ctx, s)
		if mc == nil {
			return fmt.Errorf("mongo: %w", err)
		}
		if err != nil {
			log.WithError(err).Warn("mongo index setup failed")
		}
		a.Mongo = mc
		a.closers = append(a.closers, func() error { return mc.Disconnect(context.Background()) })

		a.Mirror = mongorepo.NewAuditMirror(mdb, config.AuditMirrorCollection)
		mirror = a.Mirror
	}

	var embCache cache.Cache
	if a.Redis != nil {
		embCache = cache.NewRedisCache(a.Redis, "memory:")
	} else {
		rc, err := cache.NewRistrettoCache(embeddingCacheBytes)
		if err != nil {
			return fmt.Errorf("embedding cache: %w", err)
		}
		embCache = rc
		a.closers = append(a.closers, func() error { rc.Close(); return nil })
	}

	loader := embedding.NewONNXLoader(embedding.ONNXConfig{
		ModelPath:     s.EmbeddingModelPath,
		TokenizerPath: s.EmbeddingTokenizerPath,
		Dimensions:    s.EmbeddingDimensions,
	})
	if s.EmbeddingBackend == "lexical" {
		loader = embedding.LexicalLoader(s.EmbeddingDimensions)
	}
	gen := embedding.NewGenerator(
		loader,
		embCache,
		embedding.Config{Dimensions: s.EmbeddingDimensions, CacheTTL: s.EmbeddingCacheTTL},
		log,
	)

	var archive storage.Archive
	if s.ExportBucket != "" {
		gcsArchive, err := storage.NewGCSArchive(ctx, s.ExportBucket)
		if err != nil {
			return fmt.Errorf("gcs: %w", err)
		}
		archive = gcsArchive
		a.closers = append(a.closers, gcsArchive.Close)
	}

	provider, err := newProvider(ctx, s)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	if provider != nil {
		a.closers = append(a.closers, provider.Close)
	}

	profileRepo := sqldb.NewProfileRepo(db)
	sessionRepo := sqldb.NewSessionRepo(db)
	messageRepo := sqldb.NewMessageRepo(db)
	embeddingRepo := sqldb.NewEmbeddingRepo(db)
	consentRepo := sqldb.NewConsentRepo(db)
	auditRepo := sqldb.NewAuditRepo(db)
	rightsRepo := sqldb.NewDataRightsRepo(db)
	a.Messages = messageRepo

	counter := tokens.New(s.TokenCounter, log)

	a.Audit = services.NewAuditService(auditRepo, mirror, log)
	a.Consent = services.NewConsentService(consentRepo, a.Audit, log)
	a.Profiles = services.NewProfileService(profileRepo)
	a.Sessions = services.NewSessionService(sessionRepo, s.SessionInactivity, log)
	a.Retrieval = services.NewRetrievalService(gen, vectorstore.NewChromemStore(log), embeddingRepo, messageRepo, profileRepo, a.Consent,
		services.RetrievalConfig{TopK: s.RetrievalTopK, MinSimilarity: s.RetrievalMinSimilarity}, log)

	var indexer services.Indexer
	if s.Indexer == "redis" && a.Redis != nil {
		a.Pool = &workers.EmbeddingWorkerPool{Redis: a.Redis, Messages: messageRepo, Retrieval: a.Retrieval, Logger: log}
		indexer = a.Pool
	} else {
		a.Indexer = workers.NewGoroutineIndexer(a.Retrieval, log)
		indexer = a.Indexer
	}

	a.Conversations = services.NewConversationService(messageRepo, profileRepo, a.Profiles, a.Sessions, a.Retrieval, a.Audit, counter, indexer, log)
	a.Context = services.NewContextService(messageRepo, sessionRepo, profileRepo, a.Retrieval, a.Consent, counter,
		services.ContextConfig{MaxTokens: s.ContextMaxTokens}, log)
	a.Personalization = services.NewPersonalizationService(messageRepo, profileRepo, a.Consent,
		style.NewDetector(s.StyleWindow, s.StyleThreshold), log)
	a.DataRights = services.NewDataRightsService(services.DataRightsRepos{
		Profiles: profileRepo,
		Sessions: sessionRepo,
		Messages: messageRepo,
		Consents: consentRepo,
		Rights:   rightsRepo,
	}, a.Audit, a.Retrieval, archive, log)
	a.Chat = services.NewChatService(a.Conversations, a.Context, a.Personalization, provider, log)

	a.Sweeper = &workers.Sweeper{
		Conversations: a.Conversations,
		Consents:      a.Consent,
		Sessions:      a.Sessions,
		Retrieval:     a.Retrieval,
		Interval:      s.SweepInterval,
		Logger:        log,
	}
	return nil
}

func newProvider(ctx context.Context, s *config.Settings) (llm.Provider, error) {
	switch s.LLMProvider {
	case "", "none":
		return nil, nil
	case "anthropic":
		if s.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return llm.NewAnthropic(s.AnthropicAPIKey, s.LLMModel), nil
	case "vertex":
		return llm.NewVertexGemini(ctx, s.GCPProject, s.GCPLocation, s.LLMModel)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", s.LLMProvider)
	}
}

// Close drains background indexing, then closes backends in reverse order.
func (a *App) Close() error {
	if a.Indexer != nil {
		a.Indexer.Wait()
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
