package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/services"
	"github.com/yoockh/yoomemory/internal/utils"
)

type fakeProvider struct {
	chunks []string
	err    error
	prompt string
}

func (p *fakeProvider) StreamAnswer(_ context.Context, prompt string) (<-chan string, <-chan error) {
	p.prompt = prompt
	chunks := make(chan string, len(p.chunks))
	for _, c := range p.chunks {
		chunks <- c
	}
	close(chunks)
	errs := make(chan error, 1)
	errs <- p.err
	close(errs)
	return chunks, errs
}

func (p *fakeProvider) Close() error { return nil }

func TestChatTurn_StoresBothTurnsAndAdapts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.grant(t, "u1", models.ConsentMemoryStorage, models.ConsentPersonalization)

	p := &fakeProvider{chunks: []string{"I am doing well. ", "How are you?"}}
	chat := services.NewChatService(e.conversations, e.context, e.persona, p, nil)

	res, err := chat.Turn(ctx, services.TurnInput{UserID: "u1", Content: "hey lol what's up"})
	require.NoError(t, err)

	assert.Equal(t, "I'm doing well. How are you?", res.Reply)
	assert.True(t, res.Adaptation.Applied)
	assert.Equal(t, models.RoleAgent, res.AgentMessage.Role)
	assert.Equal(t, res.Reply, res.AgentMessage.Content)
	assert.Equal(t, res.UserMessage.SessionID, res.AgentMessage.SessionID)

	// the stored user turn doubles as the query and is not repeated
	assert.Equal(t, 1, strings.Count(p.prompt, "user: hey lol what's up\n"))
	assert.Contains(t, p.prompt, "## Conversation\n")

	hist, err := e.conversations.GetConversationHistory(ctx, "u1", res.UserMessage.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, models.RoleUser, hist[0].Role)
	assert.Equal(t, models.RoleAgent, hist[1].Role)
}

func TestChatTurn_GenerationFailure(t *testing.T) {
	e := newEnv(t)
	p := &fakeProvider{err: errors.New("rate limited")}
	chat := services.NewChatService(e.conversations, e.context, e.persona, p, nil)

	_, err := chat.Turn(context.Background(), services.TurnInput{UserID: "u1", Content: "hello"})
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

func TestChatTurn_NoProvider(t *testing.T) {
	e := newEnv(t)
	chat := services.NewChatService(e.conversations, e.context, e.persona, nil, nil)

	_, err := chat.Turn(context.Background(), services.TurnInput{UserID: "u1", Content: "hello"})
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))

	// nothing was stored
	rows, err := e.messageRepo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
