// Package chat implements the response orchestrator: one user message
// in, one assistant message out, as a single sequential unit of work.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"polychat/internal/annotate"
	"polychat/internal/models"
	"polychat/internal/service/assistant"
)

// ErrLLM marks a failed model call. No fallback reply is synthesized;
// the caller decides how to report it. The human message persisted
// before the call stays stored (a tolerated partial turn).
var ErrLLM = errors.New("llm call failed")

// ChatModel is the single blocking round trip the orchestrator needs
// from the hosted model.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Recommender supplies the optional media enrichment line. It reports
// a placeholder rather than an error: the stage may never fail a turn.
type Recommender interface {
	Recommend(ctx context.Context, sentiment models.Sentiment, language string) string
}

var basePrompt = prompt.FromMessages(schema.FString,
	schema.SystemMessage("You are a multilingual assistant and you will answer in {language}. "+
		"Adjust your reply to the context of the conversation and to the user's {sentiment} mood."),
	schema.MessagesPlaceholder("history", true),
	schema.UserMessage("{input}"),
)

var recommendPrompt = prompt.FromMessages(schema.FString,
	schema.SystemMessage("***CONVERSATION RULES***\n"+
		"1. Recommend a video matching the user's mood: {sentiment}.\n"+
		"2. Include the recommendation's title and link: {recommended_media}.\n"+
		"3. Answer in the user's preferred language: {language}."),
	schema.MessagesPlaceholder("history", true),
	schema.UserMessage("{input}"),
)

// Transient steering messages. These bias a single model call and are
// never persisted.
const (
	framingSteer    = "You are a helpful, friendly assistant. Respond appropriately to the conversation context."
	empathySteer    = "The user seems upset or frustrated. Be empathetic and considerate."
	enthusiasmSteer = "The user is in good spirits. Respond with enthusiasm."
)

// Service generates replies. The histories map is a process-wide view
// of recent session context, rebuilt from storage on every access; the
// mutex protects the map itself, not the read-modify-write span of a
// turn, so concurrent writers to one session race by design.
type Service struct {
	store       *assistant.Service
	model       ChatModel
	recommender Recommender

	mu        sync.RWMutex
	histories map[string][]*models.Message
}

// NewService builds the orchestrator. recommender may be nil, which
// disables the enrichment stage.
func NewService(store *assistant.Service, chatModel ChatModel, recommender Recommender) *Service {
	return &Service{
		store:       store,
		model:       chatModel,
		recommender: recommender,
		histories:   make(map[string][]*models.Message),
	}
}

// Generate runs one full turn for the user message and returns the
// reply text. Model failures wrap ErrLLM; annotation failures never
// surface (the annotator defaults them).
func (s *Service) Generate(ctx context.Context, userID, sessionID, text string) (string, error) {
	if userID == "" {
		return "", errors.New("user_id is required")
	}
	if sessionID == "" {
		return "", errors.New("session_id is required")
	}

	preferred, err := s.store.PreferredLanguage(ctx, userID)
	if err != nil {
		return "", err
	}
	sentiment := annotate.ScoreSentiment(text)

	history, err := s.loadHistory(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if _, err := s.store.AddMessage(ctx, models.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      models.RoleHuman,
		Content:   text,
		Language:  annotate.DetectLanguage(text),
		Sentiment: sentiment,
	}); err != nil {
		return "", err
	}

	history = steer(history, sentiment)

	vars := map[string]any{
		"language":  preferred,
		"sentiment": string(sentiment),
		"history":   toSchema(history),
		"input":     text,
	}
	tpl := basePrompt
	if s.recommender != nil {
		vars["recommended_media"] = s.recommender.Recommend(ctx, sentiment, preferred)
		tpl = recommendPrompt
	}
	messages, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}

	resp, err := s.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLM, err)
	}
	reply := resp.Content

	if _, err := s.store.AddMessage(ctx, models.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      models.RoleAssistant,
		Content:   reply,
		Language:  annotate.DetectLanguage(reply),
		Sentiment: annotate.ScoreSentiment(reply),
	}); err != nil {
		return "", err
	}

	return reply, nil
}

// loadHistory re-reads the session's recent messages from storage and
// unconditionally replaces the cached entry. The store stays the
// source of truth; losing this map costs nothing.
func (s *Service) loadHistory(ctx context.Context, sessionID string) ([]*models.Message, error) {
	history, err := s.store.SessionHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.histories[sessionID] = history
	s.mu.Unlock()
	return history, nil
}

// steer injects the transient system messages for this call: a framing
// message when the session is brand new, then a mood-specific nudge.
func steer(history []*models.Message, sentiment models.Sentiment) []*models.Message {
	if len(history) == 0 {
		history = append(history, &models.Message{
			Role:    models.RoleSystem,
			Content: framingSteer,
		})
	}
	switch sentiment {
	case models.SentimentNegative:
		history = append(history, &models.Message{
			Role:    models.RoleSystem,
			Content: empathySteer,
		})
	case models.SentimentPositive:
		history = append(history, &models.Message{
			Role:    models.RoleSystem,
			Content: enthusiasmSteer,
		})
	}
	return history
}

func toSchema(history []*models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleHuman:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}
