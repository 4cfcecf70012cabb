package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/walletpilot/server/internal/market"
	"github.com/walletpilot/server/internal/wallet"
	logx "github.com/walletpilot/server/pkg/logger"
)

// ===================================
// Swap Tool
// ===================================

// Swaps run with a fixed 1% slippage tolerance and automatic approval.
const swapSlippageBps = 100

type SwapInput struct {
	TokenInAddress  string `json:"token_in_address"`
	TokenOutAddress string `json:"token_out_address"`
	Amount          string `json:"amount"`
}

type SwapOutput struct {
	Result string `json:"result"`
}

func createSwapTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSwap,
			Desc: "Swap one token for another at the best aggregator price. Accepts token symbols (eth, strk) or contract addresses. Requires a deployed account.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"token_in_address": {
					Type:     "string",
					Desc:     "Token to sell: symbol (\"eth\", \"strk\") or contract address.",
					Required: true,
				},
				"token_out_address": {
					Type:     "string",
					Desc:     "Token to buy: symbol (\"eth\", \"strk\") or contract address.",
					Required: true,
				},
				"amount": {
					Type:     "string",
					Desc:     "Decimal amount of the sell token, e.g. \"0.1\".",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *SwapInput) (*SwapOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}

			// Normalize symbolic aliases before quoting; case-insensitive.
			sellToken := wallet.NormalizeTokenAddress(in.TokenInAddress)
			buyToken := wallet.NormalizeTokenAddress(in.TokenOutAddress)

			sellDecimals := uint8(18)
			sellSymbol := in.TokenInAddress
			if t, known := wallet.LookupToken(in.TokenInAddress); known {
				sellDecimals = t.Decimals
				sellSymbol = t.Symbol
			}
			buyDecimals := uint8(18)
			buySymbol := in.TokenOutAddress
			if t, known := wallet.LookupToken(in.TokenOutAddress); known {
				buyDecimals = t.Decimals
				buySymbol = t.Symbol
			}

			sellAmount, err := wallet.ToBaseUnits(in.Amount, sellDecimals)
			if err != nil {
				return nil, fmt.Errorf("invalid amount: %w", err)
			}

			acct, err := deps.Wallet.GetAccount(ctx, conversationID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Account lookup failed in swap")
				return &SwapOutput{Result: fmt.Sprintf("Could not look up your account: %v. Please try again.", err)}, nil
			}
			if acct == nil {
				return &SwapOutput{Result: "You don't have a wallet account yet. Generate and deploy one first."}, nil
			}

			quote, err := deps.Market.GetQuote(ctx, sellToken, buyToken, sellAmount)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Quote failed")
				return &SwapOutput{Result: fmt.Sprintf("Could not fetch a quote: %v. Please try again in a moment.", err)}, nil
			}

			result, err := deps.Market.ExecuteSwap(ctx, acct, quote, market.SwapOptions{
				AutoApprove: true,
				SlippageBps: swapSlippageBps,
			})
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Swap failed")
				return &SwapOutput{Result: fmt.Sprintf("Swap failed: %v. Please try again.", err)}, nil
			}

			received := quote.BuyAmount
			if v, err := quote.BuyAmountBase(); err == nil {
				received = wallet.FormatBaseUnits(v, buyDecimals)
			}

			return &SwapOutput{Result: fmt.Sprintf(
				"Swapped %s %s for ~%s %s. Transaction: %s",
				in.Amount, sellSymbol, received, buySymbol,
				result.TransactionHash.Hex(),
			)}, nil
		},
	)
}
