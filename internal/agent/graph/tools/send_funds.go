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
// Send Funds Tool
// ===================================

type SendFundsInput struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token,omitempty"`
}

type SendFundsOutput struct {
	Result string `json:"result"`
}

func createSendFundsTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSendFunds,
			Desc: "Send tokens from the user's wallet account to a recipient address. Requires a deployed account. Returns the transaction hash and an explorer link.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"recipient": {
					Type:     "string",
					Desc:     "Recipient address in 0x hex form.",
					Required: true,
				},
				"amount": {
					Type:     "string",
					Desc:     "Decimal token amount to send, e.g. \"0.5\". Keep it as a string to preserve precision.",
					Required: true,
				},
				"token": {
					Type: "string",
					Desc: "Token to send: a symbol like \"eth\" or \"strk\", or a contract address. Defaults to eth.",
				},
			}),
		},
		func(ctx context.Context, in *SendFundsInput) (*SendFundsOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}
			if !common.IsHexAddress(in.Recipient) {
				return nil, fmt.Errorf("recipient must be a 0x hex address, got %q", in.Recipient)
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

			// Fixed-point conversion with truncation; never send more than asked.
			amount, err := wallet.ToBaseUnits(in.Amount, decimals)
			if err != nil {
				return nil, fmt.Errorf("invalid amount: %w", err)
			}

			acct, err := deps.Wallet.GetAccount(ctx, conversationID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Account lookup failed in send_funds")
				return &SendFundsOutput{Result: fmt.Sprintf("Could not look up your account: %v. Please try again.", err)}, nil
			}
			if acct == nil {
				return &SendFundsOutput{Result: "You don't have a wallet account yet. Generate and deploy one first."}, nil
			}

			hash, err := acct.ExecuteTransfer(ctx, tokenAddr, common.HexToAddress(in.Recipient), amount)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Transfer failed")
				return &SendFundsOutput{Result: fmt.Sprintf("Transfer failed: %v", err)}, nil
			}

			return &SendFundsOutput{Result: fmt.Sprintf(
				"Sent %s %s to %s. Transaction: %s (%s)",
				in.Amount, symbol, common.HexToAddress(in.Recipient).Hex(),
				hash.Hex(), deps.Wallet.ExplorerTxURL(hash),
			)}, nil
		},
	)
}
