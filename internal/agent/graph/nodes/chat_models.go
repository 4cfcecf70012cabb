package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/walletpilot/server/internal/agent/model"
	logx "github.com/walletpilot/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	AgentConfig *model.AgentModelConfig
}

// ChatModels holds the agent chat model used by the dialogue loop.
type ChatModels struct {
	Agent          *gemini.ChatModel
	AgentModelName string
}

// NewChatModels creates the agent chat model with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.AgentConfig.Model,
		Temperature: &config.AgentConfig.Temperature,
		MaxTokens:   &config.AgentConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	return &ChatModels{
		Agent:          chatModel,
		AgentModelName: config.AgentConfig.Model,
	}, nil
}

// BindToolsToAgentModel binds the tool registry to the agent chat model.
func (cm *ChatModels) BindToolsToAgentModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Agent.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Msg("Successfully bound tools to agent model")
	return nil
}

// NewAgentChatModelNode creates a wrapper for the agent chat model to be used as a node
func NewAgentChatModelNode(chatModel *gemini.ChatModel) *gemini.ChatModel {
	return chatModel
}
