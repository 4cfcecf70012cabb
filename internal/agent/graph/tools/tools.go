package tools

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/walletpilot/server/internal/agent/model"
	"github.com/walletpilot/server/internal/market"
	"github.com/walletpilot/server/internal/news"
	"github.com/walletpilot/server/internal/wallet"
)

// Tool names bound to the response model.
const (
	ToolSendFunds             = "send_funds"
	ToolSwap                  = "swap"
	ToolGenerateAccount       = "generate_account"
	ToolDeployAccount         = "deploy_account"
	ToolGetCurrentAccount     = "get_current_account"
	ToolCheckBalance          = "check_balance"
	ToolGetNews               = "get_news"
	ToolStartBackgroundAction = "start_background_action"
	ToolStopBackgroundAction  = "stop_background_action"
)

// MarketService is the aggregator surface the swap tool needs.
type MarketService interface {
	GetQuote(ctx context.Context, sellToken, buyToken string, sellAmount *big.Int) (*market.Quote, error)
	ExecuteSwap(ctx context.Context, account *wallet.Account, q *market.Quote, opts market.SwapOptions) (*market.SwapResult, error)
}

// NewsService is the headlines surface the news tool needs.
type NewsService interface {
	GetNews(ctx context.Context) ([]news.Item, error)
}

// SchedulerService is the background-action surface.
type SchedulerService interface {
	Start(conversationID, description string, interval time.Duration) error
	Stop(conversationID string) bool
}

// Deps carries every collaborator the tool set is wired to.
type Deps struct {
	Wallet    *wallet.Service
	Market    MarketService
	News      NewsService
	Scheduler SchedulerService
	KV        model.KeyValueStore
}

// GetWalletTools assembles the full tool registry for the response model.
func GetWalletTools(deps *Deps) []tool.BaseTool {
	return []tool.BaseTool{
		createSendFundsTool(deps),
		createSwapTool(deps),
		createGenerateAccountTool(deps),
		createDeployAccountTool(deps),
		createGetCurrentAccountTool(deps),
		createCheckBalanceTool(deps),
		createGetNewsTool(deps),
		createStartBackgroundActionTool(deps),
		createStopBackgroundActionTool(deps),
	}
}

// GetToolInfos collects the ToolInfo schemas for binding to the chat model.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// conversationIDKey carries the active conversation through tool execution.
type conversationIDKey struct{}

// WithConversationID binds the conversation identifier into the context
// handed to tool handlers.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationIDKey{}, conversationID)
}

// ConversationIDFromContext extracts the conversation identifier, if bound.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationIDKey{}).(string)
	return id, ok && id != ""
}
