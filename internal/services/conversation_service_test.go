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
)

func TestStoreMessage_FirstContactCreatesProfileAndSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	m := e.say(t, "u1", "", models.RoleUser, "  I am so happy today  ")
	assert.Equal(t, "I am so happy today", m.Content)
	assert.Equal(t, 5, m.TokenCount)
	require.NotNil(t, m.Emotion)
	assert.Equal(t, "joy", *m.Emotion)

	p, err := e.profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.MemoryEnabled)

	s, err := e.sessions.Get(ctx, m.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Equal(t, 1, s.MessageCount)

	// the next turn lands in the same session
	m2 := e.say(t, "u1", "", models.RoleAgent, "Glad to hear it")
	assert.Equal(t, m.SessionID, m2.SessionID)
	assert.Nil(t, m2.Emotion)
}

func TestStoreMessage_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.conversations.StoreMessage(ctx, services.StoreMessageInput{UserID: "u1", Role: models.RoleUser, Content: "   "})
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, err = e.conversations.StoreMessage(ctx, services.StoreMessageInput{UserID: "u1", Role: "system", Content: "hi"})
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, err = e.conversations.StoreMessage(ctx, services.StoreMessageInput{UserID: "u1", SessionID: "missing", Role: models.RoleUser, Content: "hi"})
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestStoreMessage_RejectsOtherUsersSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	theirs := e.say(t, "u1", "", models.RoleUser, "hello")
	_, err := e.conversations.StoreMessage(ctx, services.StoreMessageInput{
		UserID:    "u2",
		SessionID: theirs.SessionID,
		Role:      models.RoleUser,
		Content:   "sneaky",
	})
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestGetConversationHistory_Chronological(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.say(t, "u1", "", models.RoleUser, "one")
	e.say(t, "u1", first.SessionID, models.RoleAgent, "two")
	e.say(t, "u1", first.SessionID, models.RoleUser, "three")

	rows, err := e.conversations.GetConversationHistory(ctx, "u1", first.SessionID, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "two", rows[0].Content)
	assert.Equal(t, "three", rows[1].Content)

	all, err := e.conversations.GetConversationHistory(ctx, "u1", "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := e.conversations.GetConversationHistory(ctx, "u2", first.SessionID, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRetentionSweep_DeletesOldMessagesKeepsProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage)

	fresh := e.say(t, "u1", "", models.RoleUser, "remember my sister's birthday")
	old := e.appendAt(t, "u1", fresh.SessionID, "an old thought", time.Now().Add(-72*time.Hour))
	_, err := e.retrieval.IndexMessage(ctx, *old)
	require.NoError(t, err)

	days := 1
	_, err = e.profiles.Update(ctx, "u1", services.ProfileUpdate{RetentionDays: &days})
	require.NoError(t, err)

	n, err := e.conversations.RetentionSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := e.messageRepo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)

	_, err = e.embeddingRepo.GetByMessageID(ctx, old.ID)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.Equal(t, 1, e.store.Count("u1"))

	p, err := e.profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.RetentionDays)
	assert.Contains(t, e.auditActions(t, "u1"), models.AuditRetentionSweep)
}

func TestRetentionSweep_ZeroMeansKeepForever(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	m := e.say(t, "u1", "", models.RoleUser, "hello")
	e.appendAt(t, "u1", m.SessionID, "ancient", time.Now().Add(-365*24*time.Hour))

	n, err := e.conversations.RetentionSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
