package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/walletpilot/server/internal/agent/graph/tools"
	"github.com/walletpilot/server/internal/agent/model"
)

//go:embed template/system_prompt.txt
var coreSystemPrompt string

// RenderSystem renders the agent system prompt and triggers prompt callbacks.
func RenderSystem(ctx context.Context, config model.AgentPromptConfig) (string, error) {
	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	vars := map[string]any{
		"AgentName":           config.AgentName,
		"NetworkName":         config.NetworkName,
		"GenerateTool":        tools.ToolGenerateAccount,
		"DeployTool":          tools.ToolDeployAccount,
		"AccountTool":         tools.ToolGetCurrentAccount,
		"BalanceTool":         tools.ToolCheckBalance,
		"SendTool":            tools.ToolSendFunds,
		"SwapTool":            tools.ToolSwap,
		"NewsTool":            tools.ToolGetNews,
		"StartBackgroundTool": tools.ToolStartBackgroundAction,
		"StopBackgroundTool":  tools.ToolStopBackgroundAction,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
