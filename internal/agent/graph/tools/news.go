package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	logx "github.com/walletpilot/server/pkg/logger"
)

// ===================================
// Get News Tool
// ===================================

type GetNewsInput struct{}

type GetNewsOutput struct {
	Result string `json:"result"`
}

func createGetNewsTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolGetNews,
			Desc:        "Fetch the latest ecosystem and market headlines.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, in *GetNewsInput) (*GetNewsOutput, error) {
			items, err := deps.News.GetNews(ctx)
			if err != nil {
				logx.Error().Err(err).Msg("News fetch failed")
				return &GetNewsOutput{Result: fmt.Sprintf("Could not fetch the news right now: %v", err)}, nil
			}
			if len(items) == 0 {
				return &GetNewsOutput{Result: "No recent headlines available."}, nil
			}

			var b strings.Builder
			b.WriteString("Latest headlines:\n")
			for i, item := range items {
				fmt.Fprintf(&b, "%d. %s (%s) %s\n", i+1, item.Title, item.Source, item.URL)
			}
			return &GetNewsOutput{Result: strings.TrimRight(b.String(), "\n")}, nil
		},
	)
}
