package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	logx "github.com/walletpilot/server/pkg/logger"
)

// ===================================
// Background Action Tools
// ===================================

type StartBackgroundActionInput struct {
	Action          string `json:"action"`
	IntervalSeconds int    `json:"interval_seconds"`
}

type StartBackgroundActionOutput struct {
	Result string `json:"result"`
}

func createStartBackgroundActionTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolStartBackgroundAction,
			Desc: "Schedule an action to run repeatedly in the background for this conversation, e.g. \"check my eth balance\" every 3600 seconds. Replaces any previously scheduled action.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"action": {
					Type:     "string",
					Desc:     "Plain-text description of what to do on each run.",
					Required: true,
				},
				"interval_seconds": {
					Type:     "number",
					Desc:     "Seconds between runs. Must be positive.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *StartBackgroundActionInput) (*StartBackgroundActionOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}
			if in.Action == "" {
				return nil, fmt.Errorf("action is required")
			}
			if in.IntervalSeconds <= 0 {
				return nil, fmt.Errorf("interval_seconds must be positive, got %d", in.IntervalSeconds)
			}

			interval := time.Duration(in.IntervalSeconds) * time.Second
			if err := deps.Scheduler.Start(conversationID, in.Action, interval); err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to start background action")
				return &StartBackgroundActionOutput{Result: fmt.Sprintf("Could not schedule the action: %v", err)}, nil
			}

			return &StartBackgroundActionOutput{Result: fmt.Sprintf(
				"Scheduled %q to run every %d seconds. Any previously scheduled action was replaced.",
				in.Action, in.IntervalSeconds,
			)}, nil
		},
	)
}

type StopBackgroundActionInput struct{}

type StopBackgroundActionOutput struct {
	Result string `json:"result"`
}

func createStopBackgroundActionTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolStopBackgroundAction,
			Desc:        "Stop the background action scheduled for this conversation, if any.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, in *StopBackgroundActionInput) (*StopBackgroundActionOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}

			if deps.Scheduler.Stop(conversationID) {
				return &StopBackgroundActionOutput{Result: "Background action stopped."}, nil
			}
			return &StopBackgroundActionOutput{Result: "There was no background action running."}, nil
		},
	)
}
