package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/utils"
	"github.com/yoockh/yoomemory/internal/vectorstore"
)

func TestSearch_FindsRelevantMemory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage)

	pup := e.say(t, "u1", "", models.RoleUser, "I adopted a puppy named Rex last week")
	e.say(t, "u1", pup.SessionID, models.RoleUser, "The weather is terrible today")

	res, err := e.retrieval.Search(ctx, "u1", "last week I adopted a puppy named Rex", services.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, pup.ID, res[0].MessageID)
	assert.Equal(t, 1, res[0].Rank)
	assert.InDelta(t, 1.0, res[0].Similarity, 1e-4)
	assert.Greater(t, res[0].Relevance, 0.9)

	// another user sees nothing
	e.grant(t, "u2", models.ConsentMemoryStorage)
	other, err := e.retrieval.Search(ctx, "u2", "puppy named Rex", services.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSearch_SessionFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage)

	a := e.say(t, "u1", "", models.RoleUser, "my favourite band is radiohead")
	s2, err := e.sessions.Start(ctx, "u1")
	require.NoError(t, err)
	b := e.say(t, "u1", s2.ID, models.RoleUser, "my favourite band is radiohead")

	res, err := e.retrieval.Search(ctx, "u1", "my favourite band is radiohead", services.SearchOptions{ExcludeSessionID: s2.ID})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, a.ID, res[0].MessageID)

	res, err = e.retrieval.Search(ctx, "u1", "my favourite band is radiohead", services.SearchOptions{SessionID: s2.ID})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, b.ID, res[0].MessageID)

	res, err = e.retrieval.Search(ctx, "u1", "my favourite band is radiohead", services.SearchOptions{ExcludeIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestIndexMessage_RequiresConsent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	m := e.say(t, "u1", "", models.RoleUser, "I adopted a puppy named Rex last week")
	_, err := e.embeddingRepo.GetByMessageID(ctx, m.ID)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.Zero(t, e.store.Count("u1"))

	res, err := e.retrieval.Search(ctx, "u1", "puppy", services.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	rep, err := e.retrieval.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, services.BackfillReport{}, rep)
}

func TestIndexMessage_MemoryDisabledInProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage)

	off := false
	_, err := e.profiles.Update(ctx, "u1", services.ProfileUpdate{MemoryEnabled: &off})
	require.NoError(t, err)

	m := e.say(t, "u1", "", models.RoleUser, "do not remember this")
	ok, err := e.retrieval.IndexMessage(ctx, *m)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, e.retrieval.MemoryAllowed(ctx, "u1"))
}

func TestSearch_WarmsFreshStoreFromEmbeddings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage)

	m := e.say(t, "u1", "", models.RoleUser, "my sister lives in lisbon")

	// a restarted process starts with an empty index
	fresh := vectorstore.NewChromemStore(nil)
	r := e.newRetrieval(fresh)

	res, err := r.Search(ctx, "u1", "my sister lives in lisbon", services.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, m.ID, res[0].MessageID)
	assert.Equal(t, 1, fresh.Count("u1"))
}

func TestBackfill_IndexesPendingMessages(t *testing.T) {
	e := newEnv(t, withoutIndexer())
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage)

	e.say(t, "u1", "", models.RoleUser, "first")
	e.say(t, "u1", "", models.RoleAgent, "second")
	e.say(t, "u2", "", models.RoleUser, "no consent here")

	rep, err := e.retrieval.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, services.BackfillReport{Scanned: 2, Succeeded: 2}, rep)
	assert.Equal(t, 2, e.store.Count("u1"))

	again, err := e.retrieval.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, services.BackfillReport{}, again)
}

func TestBackfill_ReachesConsentingUserBehindOthers(t *testing.T) {
	e := newEnv(t, withoutIndexer())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e.say(t, "u2", "", models.RoleUser, "nothing to keep")
	}
	e.grant(t, "u1", models.ConsentMemoryStorage)
	m := e.say(t, "u1", "", models.RoleUser, "my sister lives in lisbon")

	rep, err := e.retrieval.Backfill(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, services.BackfillReport{Scanned: 1, Succeeded: 1}, rep)

	_, err = e.embeddingRepo.GetByMessageID(ctx, m.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, e.store.Count("u1"))
}

func TestForget_DropsIndex(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage)
	e.say(t, "u1", "", models.RoleUser, "remember me")

	require.NoError(t, e.retrieval.Forget(ctx, "u1"))
	assert.Zero(t, e.store.Count("u1"))
}

func TestRelevanceScore(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := services.RelevanceScore(0.8, now, models.RoleUser, 400, now)
	assert.InDelta(t, 0.6*0.8+0.3*1+0.1*1, fresh, 1e-9)

	month := services.RelevanceScore(0.8, now.Add(-30*24*time.Hour), models.RoleUser, 400, now)
	assert.InDelta(t, 0.6*0.8+0.3*0.36787944+0.1*1, month, 1e-6)
	assert.Less(t, month, fresh)

	// future timestamps are treated as brand new
	assert.InDelta(t, fresh, services.RelevanceScore(0.8, now.Add(time.Hour), models.RoleUser, 400, now), 1e-9)
}

func TestImportance(t *testing.T) {
	assert.InDelta(t, 0.3, services.Importance(models.RoleAgent, 0), 1e-9)
	assert.InDelta(t, 0.6, services.Importance(models.RoleUser, 0), 1e-9)
	assert.InDelta(t, 0.5, services.Importance(models.RoleAgent, 200), 1e-9)
	assert.InDelta(t, 1.0, services.Importance(models.RoleUser, 4000), 1e-9)
}
