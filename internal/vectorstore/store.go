// Package vectorstore keeps per-user message vectors in memory and answers
// similarity queries over them.
package vectorstore

import (
	"context"
	"time"

	"github.com/yoockh/yoomemory/internal/models"
)

// Record is one indexed message.
type Record struct {
	MessageID  string
	UserID     string
	SessionID  string
	Role       models.Role
	Content    string
	CreatedAt  time.Time
	TokenCount int
	Vector     []float32
}

// Filter narrows a search. Zero values mean "no restriction".
type Filter struct {
	TopK             int
	MinSimilarity    float64
	SessionID        string
	ExcludeSessionID string
	ExcludeIDs       []string
}

// Match is a Record with its similarity to the query and a 1-based rank.
type Match struct {
	Record
	Similarity float64
	Rank       int
}

type Store interface {
	// Add indexes r, replacing any earlier vector for the same message.
	Add(ctx context.Context, r Record) error
	Search(ctx context.Context, userID string, query []float32, f Filter) ([]Match, error)
	Delete(ctx context.Context, userID string, messageIDs ...string) error
	DropUser(ctx context.Context, userID string) error
	Count(userID string) int
}
