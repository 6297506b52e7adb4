package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yoomemory/internal/analysis/style"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
)

func casualUser(t *testing.T, e *env) {
	t.Helper()
	m := e.say(t, "u1", "", models.RoleUser, "hey lol gonna grab food")
	e.say(t, "u1", m.SessionID, models.RoleUser, "yeah thx")
	e.say(t, "u1", m.SessionID, models.RoleUser, "lol that's cool")
}

func TestAdaptResponse_SkippedWithoutConsent(t *testing.T) {
	e := newEnv(t)
	casualUser(t, e)

	res, err := e.persona.AdaptResponse(context.Background(), "u1", "I am glad you asked.")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "I am glad you asked.", res.Text)
	assert.Equal(t, style.Default(), res.Profile)
	assert.NotNil(t, res.Changes)
	assert.Empty(t, res.Changes)
}

func TestAdaptResponse_MatchesCasualUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	casualUser(t, e)
	e.grant(t, "u1", models.ConsentMemoryStorage, models.ConsentPersonalization)

	prof, err := e.persona.DetectStyle(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, style.Casual, prof.Formality)
	assert.Equal(t, style.Concise, prof.Verbosity)
	assert.Equal(t, style.NoEmoji, prof.Emoji)
	assert.Equal(t, 3, prof.Samples)

	res, err := e.persona.AdaptResponse(ctx, "u1", "I am glad you asked. That is great.")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "I'm glad you asked. That's great.", res.Text)
	assert.Equal(t, []style.Change{style.ChangeContracted}, res.Changes)
}

func TestAdaptResponse_MemoryDisabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	casualUser(t, e)
	e.grant(t, "u1", models.ConsentMemoryStorage, models.ConsentPersonalization)

	off := false
	_, err := e.profiles.Update(ctx, "u1", services.ProfileUpdate{MemoryEnabled: &off})
	require.NoError(t, err)

	res, err := e.persona.AdaptResponse(ctx, "u1", "I am here.")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "I am here.", res.Text)
}

func TestAdaptResponse_StopsAfterMemoryRevoked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage, models.ConsentPersonalization)
	casualUser(t, e)

	res, err := e.persona.AdaptResponse(ctx, "u1", "I am glad you asked.")
	require.NoError(t, err)
	require.True(t, res.Applied)

	require.NoError(t, e.consent.Revoke(ctx, "u1", models.ConsentMemoryStorage))
	e.say(t, "u1", "", models.RoleUser, "lol ok")

	res, err = e.persona.AdaptResponse(ctx, "u1", "I am glad you asked.")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "I am glad you asked.", res.Text)

	prof, err := e.persona.DetectStyle(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, style.Default(), prof)
}

func TestDetectStyle_DefaultWithoutConsent(t *testing.T) {
	e := newEnv(t)
	casualUser(t, e)

	prof, err := e.persona.DetectStyle(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, style.Default(), prof)
}

func TestEngagementScore_NeedsAnalyticsConsent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	casualUser(t, e)

	_, ok, err := e.persona.EngagementScore(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	e.grant(t, "u1", models.ConsentAnalytics)
	score, ok, err := e.persona.EngagementScore(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	// 3 turns this week, ~15 chars each, no emoji or questions, active just now
	assert.Equal(t, 31, score)
}

func TestEngagement(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := func(content string, ago time.Duration) models.Message {
		return models.Message{Content: content, Timestamp: now.Add(-ago)}
	}

	assert.Zero(t, services.Engagement(nil, now))

	rows := []models.Message{
		msg("how are you? 😊", time.Hour),
		msg("fine", 2*time.Hour),
	}
	// 6 frequency + 0.9 length + 15 emoji + 15 questions + 20 recency
	assert.Equal(t, 57, services.Engagement(rows, now))

	stale := []models.Message{msg("ok", 40*24*time.Hour)}
	assert.Zero(t, services.Engagement(stale, now))

	var busy []models.Message
	for i := 0; i < 20; i++ {
		busy = append(busy, msg("what do you think about this long message?", time.Duration(i)*time.Hour))
	}
	// frequency and questions saturate
	assert.Equal(t, 30+4+0+15+20, services.Engagement(busy, now))
}
