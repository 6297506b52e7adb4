package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoomemory/internal/logger"
	"github.com/yoockh/yoomemory/internal/models"
	"github.com/yoockh/yoomemory/internal/providers/llm"
	"github.com/yoockh/yoomemory/internal/utils"
)

type TurnInput struct {
	UserID    string
	SessionID string
	Content   string
	MaxTokens int
}

type TurnResult struct {
	UserMessage  *models.Message `json:"user_message"`
	AgentMessage *models.Message `json:"agent_message"`
	Reply        string          `json:"reply"`
	Context      *ContextPackage `json:"context"`
	Adaptation   *AdaptResult    `json:"adaptation"`
}

// ChatService runs one companion turn: store the user turn, assemble
// memory context, generate, adapt to the user's style and store the reply.
type ChatService interface {
	Turn(ctx context.Context, in TurnInput) (*TurnResult, error)
}

type chatService struct {
	conversations ConversationService
	context       ContextService
	persona       PersonalizationService
	provider      llm.Provider
	log           *logrus.Logger
}

// NewChatService accepts a nil provider; Turn then fails with UNAVAILABLE.
func NewChatService(conversations ConversationService, ctxSvc ContextService, persona PersonalizationService, provider llm.Provider, log *logrus.Logger) ChatService {
	if log == nil {
		log = logger.Discard()
	}
	return &chatService{conversations: conversations, context: ctxSvc, persona: persona, provider: provider, log: log}
}

func (s *chatService) Turn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	const op = "ChatService.Turn"

	if s.provider == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "no text generator configured", nil)
	}

	userMsg, err := s.conversations.StoreMessage(ctx, StoreMessageInput{
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Role:      models.RoleUser,
		Content:   in.Content,
	})
	if err != nil {
		return nil, err
	}

	pkg, err := s.context.AssembleContext(ctx, AssembleRequest{
		UserID:         in.UserID,
		SessionID:      userMsg.SessionID,
		Query:          userMsg.Content,
		MaxTokens:      in.MaxTokens,
		IncludeProfile: true,
	})
	if err != nil {
		return nil, err
	}

	draft, err := llm.Collect(ctx, s.provider, s.context.FormatPrompt(pkg))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "text generation failed", err)
	}

	adapted, err := s.persona.AdaptResponse(ctx, in.UserID, draft)
	if err != nil {
		return nil, err
	}

	agentMsg, err := s.conversations.StoreMessage(ctx, StoreMessageInput{
		UserID:    in.UserID,
		SessionID: userMsg.SessionID,
		Role:      models.RoleAgent,
		Content:   adapted.Text,
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"component":  "chat",
		"user_id":    in.UserID,
		"session_id": userMsg.SessionID,
		"retrieved":  len(pkg.Retrieved),
		"adapted":    adapted.Applied,
	}).Info("turn completed")

	return &TurnResult{
		UserMessage:  userMsg,
		AgentMessage: agentMsg,
		Reply:        adapted.Text,
		Context:      pkg,
		Adaptation:   adapted,
	}, nil
}
