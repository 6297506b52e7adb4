package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yoomemory/internal/embedding"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/testutil"
	"github.com/yoockh/yoomemory/internal/tokens"
	"github.com/yoockh/yoomemory/internal/vectorstore"
)

// syncIndexer indexes inline so tests can search right after storing.
type syncIndexer struct {
	retrieval services.RetrievalService
}

func (ix syncIndexer) Enqueue(ctx context.Context, msg models.Message) {
	_, _ = ix.retrieval.IndexMessage(ctx, msg)
}

type env struct {
	profileRepo   sqldb.ProfileRepository
	sessionRepo   sqldb.SessionRepository
	messageRepo   sqldb.MessageRepository
	embeddingRepo sqldb.EmbeddingRepository
	consentRepo   sqldb.ConsentRepository
	auditRepo     sqldb.AuditRepository
	rightsRepo    sqldb.DataRightsRepository

	gen   *embedding.Generator
	store *vectorstore.ChromemStore

	audit         services.AuditService
	consent       services.ConsentService
	profiles      services.ProfileService
	sessions      services.SessionService
	retrieval     services.RetrievalService
	conversations services.ConversationService
	context       services.ContextService
	persona       services.PersonalizationService
	rights        services.DataRightsService
}

type envOption func(*envConfig)

type envConfig struct {
	indexed   bool
	maxTokens int
}

// withoutIndexer leaves stored messages unembedded until Backfill.
func withoutIndexer() envOption { return func(c *envConfig) { c.indexed = false } }

func withMaxTokens(n int) envOption { return func(c *envConfig) { c.maxTokens = n } }

func newEnv(t *testing.T, opts ...envOption) *env {
	cfg := envConfig{indexed: true}
	for _, o := range opts {
		o(&cfg)
	}

	db := testutil.NewDB(t)
	e := &env{
		profileRepo:   sqldb.NewProfileRepo(db),
		sessionRepo:   sqldb.NewSessionRepo(db),
		messageRepo:   sqldb.NewMessageRepo(db),
		embeddingRepo: sqldb.NewEmbeddingRepo(db),
		consentRepo:   sqldb.NewConsentRepo(db),
		auditRepo:     sqldb.NewAuditRepo(db),
		rightsRepo:    sqldb.NewDataRightsRepo(db),
		gen:           embedding.NewGenerator(embedding.LexicalLoader(384), nil, embedding.Config{Dimensions: 384}, nil),
		store:         vectorstore.NewChromemStore(nil),
	}
	counter := tokens.Heuristic{}

	e.audit = services.NewAuditService(e.auditRepo, nil, nil)
	e.consent = services.NewConsentService(e.consentRepo, e.audit, nil)
	e.profiles = services.NewProfileService(e.profileRepo)
	e.sessions = services.NewSessionService(e.sessionRepo, 0, nil)
	e.retrieval = e.newRetrieval(e.store)

	var indexer services.Indexer
	if cfg.indexed {
		indexer = syncIndexer{retrieval: e.retrieval}
	}
	e.conversations = services.NewConversationService(e.messageRepo, e.profileRepo, e.profiles, e.sessions, e.retrieval, e.audit, counter, indexer, nil)
	e.context = services.NewContextService(e.messageRepo, e.sessionRepo, e.profileRepo, e.retrieval, e.consent, counter,
		services.ContextConfig{MaxTokens: cfg.maxTokens}, nil)
	e.persona = services.NewPersonalizationService(e.messageRepo, e.profileRepo, e.consent, nil, nil)
	e.rights = services.NewDataRightsService(services.DataRightsRepos{
		Profiles: e.profileRepo,
		Sessions: e.sessionRepo,
		Messages: e.messageRepo,
		Consents: e.consentRepo,
		Rights:   e.rightsRepo,
	}, e.audit, e.retrieval, nil, nil)
	return e
}

func (e *env) newRetrieval(store vectorstore.Store) services.RetrievalService {
	return services.NewRetrievalService(e.gen, store, e.embeddingRepo, e.messageRepo, e.profileRepo, e.consent,
		services.RetrievalConfig{TopK: 5, MinSimilarity: 0.6}, nil)
}

func (e *env) grant(t *testing.T, userID string, types ...models.ConsentType) {
	t.Helper()
	for _, ct := range types {
		_, err := e.consent.Grant(context.Background(), services.GrantInput{UserID: userID, Type: ct})
		require.NoError(t, err)
	}
}

func (e *env) say(t *testing.T, userID, sessionID string, role models.Role, content string) *models.Message {
	t.Helper()
	m, err := e.conversations.StoreMessage(context.Background(), services.StoreMessageInput{
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	require.NoError(t, err)
	return m
}

// appendAt writes a message with an explicit timestamp, bypassing the
// service clock.
func (e *env) appendAt(t *testing.T, userID, sessionID, content string, ts time.Time) *models.Message {
	t.Helper()
	m := &models.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		UserID:     userID,
		Role:       models.RoleUser,
		Content:    content,
		Timestamp:  ts.UTC(),
		TokenCount: tokens.Heuristic{}.Count(content),
	}
	require.NoError(t, e.messageRepo.Append(context.Background(), m))
	return m
}

func (e *env) auditActions(t *testing.T, userID string) []string {
	t.Helper()
	rows, err := e.audit.List(context.Background(), userID, 0)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Action
	}
	return out
}
