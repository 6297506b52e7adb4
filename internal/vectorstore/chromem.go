package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
)

// ChromemStore holds one chromem collection per user. Searches read every
// document of the user and filter, score and rank in process.
type ChromemStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	log         *logrus.Logger
}

func NewChromemStore(log *logrus.Logger) *ChromemStore {
	if log == nil {
		log = logger.Discard()
	}
	return &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		log:         log,
	}
}

func collectionName(userID string) string { return "user_" + userID }

func (s *ChromemStore) collection(userID string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok || !create {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}
	// vectors are supplied by the caller, so no embedding func
	col, err := s.db.CreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *ChromemStore) Add(ctx context.Context, r Record) error {
	if r.UserID == "" || r.MessageID == "" {
		return fmt.Errorf("vectorstore: record needs user and message id")
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("vectorstore: empty vector for message %s", r.MessageID)
	}
	if !HasDirection(r.Vector) {
		return fmt.Errorf("message %s: %w", r.MessageID, ErrNoDirection)
	}
	col, err := s.collection(r.UserID, true)
	if err != nil {
		return err
	}

	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	return col.AddDocument(ctx, chromem.Document{
		ID:        r.MessageID,
		Content:   r.Content,
		Embedding: vec,
		Metadata: map[string]string{
			"user_id":     r.UserID,
			"session_id":  r.SessionID,
			"role":        string(r.Role),
			"created_at":  r.CreatedAt.UTC().Format(time.RFC3339Nano),
			"token_count": strconv.Itoa(r.TokenCount),
		},
	})
}

// queryAll returns every document of col ranked against query. chromem
// rejects nResults above the collection size, so a delete landing between
// Count and the query is retried with the smaller size.
func queryAll(ctx context.Context, col *chromem.Collection, query []float32) ([]chromem.Result, error) {
	n := col.Count()
	for n > 0 {
		results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
		if err == nil {
			return results, nil
		}
		now := col.Count()
		if now >= n {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		n = now
	}
	return nil, nil
}

func (s *ChromemStore) Search(ctx context.Context, userID string, query []float32, f Filter) ([]Match, error) {
	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return nil, err
	}
	if !HasDirection(query) {
		return nil, nil
	}
	results, err := queryAll(ctx, col, query)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		if _, skip := excluded[res.ID]; skip {
			continue
		}
		rec := fromResult(userID, res)
		if f.SessionID != "" && rec.SessionID != f.SessionID {
			continue
		}
		if f.ExcludeSessionID != "" && rec.SessionID == f.ExcludeSessionID {
			continue
		}
		sim := Cosine(query, res.Embedding)
		if !(sim >= f.MinSimilarity) {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if f.TopK > 0 && len(matches) > f.TopK {
		matches = matches[:f.TopK]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}
	return matches, nil
}

func fromResult(userID string, res chromem.Result) Record {
	created, _ := time.Parse(time.RFC3339Nano, res.Metadata["created_at"])
	tokens, _ := strconv.Atoi(res.Metadata["token_count"])
	return Record{
		MessageID:  res.ID,
		UserID:     userID,
		SessionID:  res.Metadata["session_id"],
		Role:       models.Role(res.Metadata["role"]),
		Content:    res.Content,
		CreatedAt:  created,
		TokenCount: tokens,
		Vector:     res.Embedding,
	}
}

func (s *ChromemStore) Delete(ctx context.Context, userID string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return err
	}
	return col.Delete(ctx, nil, nil, messageIDs...)
}

func (s *ChromemStore) DropUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[userID]; !ok {
		return nil
	}
	delete(s.collections, userID)
	if err := s.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	s.log.WithFields(logrus.Fields{"component": "vectorstore", "user_id": userID}).Info("user index dropped")
	return nil
}

func (s *ChromemStore) Count(userID string) int {
	col, _ := s.collection(userID, false)
	if col == nil {
		return 0
	}
	return col.Count()
}
