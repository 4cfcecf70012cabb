package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/ethereum/go-ethereum/common"

	"github.com/walletpilot/server/internal/wallet"
	logx "github.com/walletpilot/server/pkg/logger"
)

// ===================================
// Check Balance Tool
// ===================================

type CheckBalanceInput struct {
	Token string `json:"token,omitempty"`
}

type CheckBalanceOutput struct {
	Result string `json:"result"`
}

func createCheckBalanceTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCheckBalance,
			Desc: "Check the active account's balance for a token. Defaults to eth.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"token": {
					Type: "string",
					Desc: "Token to check: symbol (\"eth\", \"strk\") or contract address. Defaults to eth.",
				},
			}),
		},
		func(ctx context.Context, in *CheckBalanceInput) (*CheckBalanceOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}

			tokenInput := in.Token
			if tokenInput == "" {
				tokenInput = "eth"
			}
			tokenAddr := common.HexToAddress(wallet.NormalizeTokenAddress(tokenInput))
			decimals := uint8(18)
			symbol := tokenInput
			if t, known := wallet.LookupToken(tokenInput); known {
				decimals = t.Decimals
				symbol = t.Symbol
			}

			acct, err := deps.Wallet.GetAccount(ctx, conversationID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Account lookup failed in check_balance")
				return &CheckBalanceOutput{Result: fmt.Sprintf("Could not look up your account: %v", err)}, nil
			}
			if acct == nil {
				return &CheckBalanceOutput{Result: "No account exists for this conversation yet. Generate and deploy one first."}, nil
			}

			balance, err := deps.Wallet.TokenBalance(ctx, acct.Address(), tokenAddr)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Balance query failed")
				return &CheckBalanceOutput{Result: fmt.Sprintf("Could not read the balance: %v", err)}, nil
			}

			return &CheckBalanceOutput{Result: fmt.Sprintf(
				"Balance of %s: %s %s",
				acct.Address().Hex(), wallet.FormatBaseUnits(balance, decimals), symbol,
			)}, nil
		},
	)
}
