package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/embedding"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/repositories/sqldb"
	"github.com/yoockh/yoomemory/internal/utils"
	"github.com/yoockh/yoomemory/internal/vectorstore"
)

const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.6

	relevanceSimilarityWeight = 0.6
	relevanceRecencyWeight    = 0.3
	relevanceImportanceWeight = 0.1
	recencyDecayDays          = 30.0
	importanceFullLength      = 400.0
)

type SearchOptions struct {
	TopK             int
	MinSimilarity    *float64
	SessionID        string
	ExcludeSessionID string
	ExcludeIDs       []string
}

// SearchResult is a similarity match with its combined relevance.
type SearchResult struct {
	vectorstore.Match
	Relevance float64 `json:"relevance"`
}

type BackfillReport struct {
	Scanned   int `json:"scanned"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type RetrievalService interface {
	Search(ctx context.Context, userID, query string, opts SearchOptions) ([]SearchResult, error)
	// IndexMessage embeds and indexes one message. It reports false,
	// without error, when the user's memory settings forbid indexing.
	IndexMessage(ctx context.Context, msg models.Message) (bool, error)
	Backfill(ctx context.Context, limit int) (BackfillReport, error)
	// Warm rebuilds the user's in-memory index from stored embeddings.
	Warm(ctx context.Context, userID string) (int, error)
	Remove(ctx context.Context, userID string, messageIDs ...string) error
	Forget(ctx context.Context, userID string) error
	// MemoryAllowed is true when the user granted memory storage and has
	// not switched memory off in their profile.
	MemoryAllowed(ctx context.Context, userID string) bool
}

type RetrievalConfig struct {
	TopK          int
	MinSimilarity float64
}

type retrievalService struct {
	gen        *embedding.Generator
	store      vectorstore.Store
	embeddings sqldb.EmbeddingRepository
	messages   sqldb.MessageRepository
	profiles   sqldb.ProfileRepository
	consent    ConsentService
	cfg        RetrievalConfig
	log        *logrus.Logger

	warmed sync.Map
}

func NewRetrievalService(
	gen *embedding.Generator,
	store vectorstore.Store,
	embeddings sqldb.EmbeddingRepository,
	messages sqldb.MessageRepository,
	profiles sqldb.ProfileRepository,
	consent ConsentService,
	cfg RetrievalConfig,
	log *logrus.Logger,
) RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if log == nil {
		log = logger.Discard()
	}
	return &retrievalService{
		gen:        gen,
		store:      store,
		embeddings: embeddings,
		messages:   messages,
		profiles:   profiles,
		consent:    consent,
		cfg:        cfg,
		log:        log,
	}
}

// RelevanceScore blends similarity with recency and importance:
// 0.6*sim + 0.3*exp(-age_days/30) + 0.1*importance.
func RelevanceScore(similarity float64, createdAt time.Time, role models.Role, chars int, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Exp(-ageDays / recencyDecayDays)
	return relevanceSimilarityWeight*similarity +
		relevanceRecencyWeight*recency +
		relevanceImportanceWeight*Importance(role, chars)
}

// Importance favours longer turns and turns the user wrote.
func Importance(role models.Role, chars int) float64 {
	imp := 0.3 + 0.4*math.Min(1, float64(chars)/importanceFullLength)
	if role == models.RoleUser {
		imp += 0.3
	}
	return math.Min(1, imp)
}

func (s *retrievalService) MemoryAllowed(ctx context.Context, userID string) bool {
	if !s.consent.HasConsent(ctx, userID, models.ConsentMemoryStorage) {
		return false
	}
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		// no profile yet means defaults, and memory defaults to on
		return errors.Is(err, utils.ErrNotFound)
	}
	return p.MemoryEnabled
}

func (s *retrievalService) Search(ctx context.Context, userID, query string, opts SearchOptions) ([]SearchResult, error) {
	const op = "RetrievalService.Search"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if query == "" {
		return nil, nil
	}
	if !s.MemoryAllowed(ctx, userID) {
		return nil, nil
	}
	if err := s.ensureWarm(ctx, userID); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to load memory index", err)
	}

	emb, err := s.gen.Generate(ctx, query)
	if err != nil {
		return nil, utils.E(utils.CodeTimeout, op, "query embedding interrupted", err)
	}

	f := vectorstore.Filter{
		TopK:             opts.TopK,
		MinSimilarity:    s.cfg.MinSimilarity,
		SessionID:        opts.SessionID,
		ExcludeSessionID: opts.ExcludeSessionID,
		ExcludeIDs:       opts.ExcludeIDs,
	}
	if f.TopK <= 0 {
		f.TopK = s.cfg.TopK
	}
	if opts.MinSimilarity != nil {
		f.MinSimilarity = *opts.MinSimilarity
	}

	matches, err := s.store.Search(ctx, userID, emb.Vector, f)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "vector search failed", err)
	}

	now := time.Now().UTC()
	out := make([]SearchResult, len(matches))
	for i, m := range matches {
		out[i] = SearchResult{
			Match:     m,
			Relevance: RelevanceScore(m.Similarity, m.CreatedAt, m.Role, utf8.RuneCountInString(m.Content), now),
		}
	}
	return out, nil
}

func (s *retrievalService) IndexMessage(ctx context.Context, msg models.Message) (bool, error) {
	const op = "RetrievalService.IndexMessage"

	if !s.MemoryAllowed(ctx, msg.UserID) {
		return false, nil
	}
	emb, err := s.gen.Generate(ctx, msg.Content)
	if err != nil {
		return false, utils.E(utils.CodeTimeout, op, "embedding interrupted", err)
	}

	row := &models.Embedding{
		MessageID:  msg.ID,
		Vector:     pgvector.NewVector(emb.Vector),
		Model:      emb.Model,
		Dimensions: len(emb.Vector),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.embeddings.Save(ctx, row); err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to save embedding", err)
	}
	if err := s.store.Add(ctx, recordFor(msg, emb.Vector)); err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to index embedding", err)
	}
	return true, nil
}

func recordFor(msg models.Message, vec []float32) vectorstore.Record {
	return vectorstore.Record{
		MessageID:  msg.ID,
		UserID:     msg.UserID,
		SessionID:  msg.SessionID,
		Role:       msg.Role,
		Content:    msg.Content,
		CreatedAt:  msg.Timestamp,
		TokenCount: msg.TokenCount,
		Vector:     vec,
	}
}

func (s *retrievalService) Backfill(ctx context.Context, limit int) (BackfillReport, error) {
	const op = "RetrievalService.Backfill"

	var rep BackfillReport
	pending, err := s.messages.ListMissingEmbedding(ctx, time.Now().UTC(), limit)
	if err != nil {
		return rep, utils.E(utils.CodeInternal, op, "failed to scan for unembedded messages", err)
	}

	allowed := make(map[string]bool)
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++

		ok, seen := allowed[msg.UserID]
		if !seen {
			ok = s.MemoryAllowed(ctx, msg.UserID)
			allowed[msg.UserID] = ok
		}
		if !ok {
			rep.Skipped++
			continue
		}

		if _, err := s.IndexMessage(ctx, msg); err != nil {
			rep.Failed++
			s.log.WithFields(logrus.Fields{
				"component":  "retrieval",
				"message_id": msg.ID,
				"user_id":    msg.UserID,
			}).WithError(err).Warn("backfill failed for message")
			continue
		}
		rep.Succeeded++
	}

	s.log.WithFields(logrus.Fields{
		"component": "retrieval",
		"scanned":   rep.Scanned,
		"succeeded": rep.Succeeded,
		"failed":    rep.Failed,
		"skipped":   rep.Skipped,
	}).Info("embedding backfill finished")
	return rep, nil
}

func (s *retrievalService) ensureWarm(ctx context.Context, userID string) error {
	if _, ok := s.warmed.Load(userID); ok {
		return nil
	}
	_, err := s.Warm(ctx, userID)
	return err
}

func (s *retrievalService) Warm(ctx context.Context, userID string) (int, error) {
	const op = "RetrievalService.Warm"

	rows, err := s.embeddings.ListByUser(ctx, userID)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to load embeddings", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	n := 0
	for _, e := range rows {
		if e.Message == nil {
			continue
		}
		if err := s.store.Add(ctx, recordFor(*e.Message, e.Vector.Slice())); err != nil {
			if errors.Is(err, vectorstore.ErrNoDirection) {
				continue
			}
			return n, utils.E(utils.CodeInternal, op, "failed to index embedding", err)
		}
		n++
	}
	s.warmed.Store(userID, struct{}{})
	return n, nil
}

func (s *retrievalService) Remove(ctx context.Context, userID string, messageIDs ...string) error {
	const op = "RetrievalService.Remove"

	if err := s.store.Delete(ctx, userID, messageIDs...); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to remove from index", err)
	}
	return nil
}

func (s *retrievalService) Forget(ctx context.Context, userID string) error {
	const op = "RetrievalService.Forget"

	s.warmed.Delete(userID)
	if err := s.store.DropUser(ctx, userID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to drop user index", err)
	}
	return nil
}
