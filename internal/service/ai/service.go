package ai

import (
	"context"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"jarvis/internal/config"
	"jarvis/internal/models"
)

const (
	DefaultModel     = "gpt-3.5-turbo"
	DefaultMaxTokens = 150
	SystemPrompt     = "You are Jarvis, a helpful AI assistant."
)

var ErrEmptyResponse = errors.New("completion returned no message")

// Generator is the part of an eino chat model the service needs.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Service sends a conversation to the chat-completions endpoint.
type Service struct {
	chatModel Generator
}

// NewService builds the openai chat model for the fixed model and token budget.
func NewService(ctx context.Context, cfg config.CompletionConfig) (*Service, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultCompletionBaseURL
	}
	maxTokens := DefaultMaxTokens
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   baseURL,
		Model:     DefaultModel,
		APIKey:    cfg.APIKey,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init openai chat model")
	}
	return &Service{chatModel: chatModel}, nil
}

// NewServiceWithModel wraps an existing generator.
func NewServiceWithModel(g Generator) *Service {
	return &Service{chatModel: g}
}

// Complete sends the system prompt followed by history and returns the reply text.
func (s *Service) Complete(ctx context.Context, history []models.Message) (string, error) {
	if s == nil || s.chatModel == nil {
		return "", errors.New("ai service unavailable")
	}
	start := time.Now()
	resp, err := s.chatModel.Generate(ctx, convertMessages(history))
	if err != nil {
		return "", errors.Wrap(err, "generate completion")
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	log.Debug().
		Str("component", "ai").
		Str("model", DefaultModel).
		Int("messages", len(history)+1).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Interface("response", resp).
		Msg("completion received")
	return resp.Content, nil
}

func convertMessages(history []models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, &schema.Message{
		Role:    schemaRole(models.RoleSystem),
		Content: SystemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, &schema.Message{
			Role:    schemaRole(msg.Role()),
			Content: msg.Text,
		})
	}
	return messages
}

func schemaRole(role models.Role) schema.RoleType {
	switch role {
	case models.RoleUser:
		return schema.User
	case models.RoleSystem:
		return schema.System
	default:
		return schema.Assistant
	}
}
