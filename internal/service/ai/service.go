// Package ai constructs the hosted chat model behind the orchestrator.
// The remote call is opaque: one blocking round trip, bounded output,
// fixed sampling temperature, no retry at this layer.
package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"polychat/internal/config"
)

const (
	// MaxReplyTokens bounds the generated reply length.
	MaxReplyTokens = 250
	// Temperature is the fixed sampling creativity for every call.
	Temperature float32 = 0.7
)

// NewChatModel builds the chat model for the named provider from its
// configured credentials.
func NewChatModel(ctx context.Context, cfg *config.Config, provider string) (model.BaseChatModel, error) {
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		temperature := Temperature
		maxTokens := MaxReplyTokens
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     provCfg.BaseURL,
			Model:       provCfg.Model,
			APIKey:      provCfg.APIKey,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		temperature := Temperature
		maxTokens := MaxReplyTokens
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       provCfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		temperature := Temperature
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:      provCfg.APIKey,
			Model:       provCfg.Model,
			BaseURL:     baseURLPtr,
			MaxTokens:   MaxReplyTokens,
			Temperature: &temperature,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}
