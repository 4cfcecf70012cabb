package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/walletpilot/server/internal/agent/model"
	logx "github.com/walletpilot/server/pkg/logger"
)

// ===================================
// Account Tools
// ===================================

// fixedAccountRefusal is returned verbatim by generate_account and
// deploy_account whenever the process-level account override is active.
const fixedAccountRefusal = "Account management is disabled: this deployment runs against a fixed operator account, so generating or deploying per-conversation accounts is not available."

type GenerateAccountInput struct{}

type GenerateAccountOutput struct {
	Result string `json:"result"`
}

func createGenerateAccountTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolGenerateAccount,
			Desc:        "Create a new wallet key pair and its not-yet-deployed account address for this conversation. The user must fund the address before it can be deployed. Overwrites any previously generated, undeployed account.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, in *GenerateAccountInput) (*GenerateAccountOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}
			if deps.Wallet.FixedAccountConfigured() {
				return &GenerateAccountOutput{Result: fixedAccountRefusal}, nil
			}

			generated, err := deps.Wallet.GenerateAccount(ctx)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Account generation failed")
				return &GenerateAccountOutput{Result: fmt.Sprintf("Could not generate an account: %v", err)}, nil
			}

			// Overwrites any prior generated-but-undeployed credential.
			key := model.CredentialKey(conversationID, model.FieldGeneratedPrivateKey)
			if err := deps.KV.Set(ctx, key, generated.PrivateKey); err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to persist generated key")
				return &GenerateAccountOutput{Result: fmt.Sprintf("Could not save the generated account: %v", err)}, nil
			}

			return &GenerateAccountOutput{Result: fmt.Sprintf(
				"Generated a new account at %s. Send some funds to this address to cover deployment, then ask me to deploy it.",
				generated.Address.Hex(),
			)}, nil
		},
	)
}

type DeployAccountInput struct{}

type DeployAccountOutput struct {
	Result string `json:"result"`
}

func createDeployAccountTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolDeployAccount,
			Desc:        "Deploy the previously generated account on-chain so it can hold funds and sign transactions. Requires a funded, generated account.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, in *DeployAccountInput) (*DeployAccountOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}
			if deps.Wallet.FixedAccountConfigured() {
				return &DeployAccountOutput{Result: fixedAccountRefusal}, nil
			}

			generatedKey := model.CredentialKey(conversationID, model.FieldGeneratedPrivateKey)
			privateKey, found, err := deps.KV.Get(ctx, generatedKey)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to read generated key")
				return &DeployAccountOutput{Result: fmt.Sprintf("Could not read your generated account: %v", err)}, nil
			}
			if !found {
				return &DeployAccountOutput{Result: "There is no generated account to deploy. Generate one first."}, nil
			}

			address, txHash, err := deps.Wallet.DeployAccount(ctx, privateKey)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Account deployment failed")
				return &DeployAccountOutput{Result: fmt.Sprintf("Deployment failed: %v. Make sure the account is funded and try again.", err)}, nil
			}

			if err := deps.KV.Set(ctx, model.CredentialKey(conversationID, model.FieldPrivateKey), privateKey); err != nil {
				return &DeployAccountOutput{Result: fmt.Sprintf("Deployment submitted but saving credentials failed: %v", err)}, nil
			}
			if err := deps.KV.Set(ctx, model.CredentialKey(conversationID, model.FieldAccountAddress), address.Hex()); err != nil {
				return &DeployAccountOutput{Result: fmt.Sprintf("Deployment submitted but saving credentials failed: %v", err)}, nil
			}
			// Deployment consumes the generated slot.
			if err := deps.KV.Delete(ctx, generatedKey); err != nil {
				logx.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to clear generated slot after deploy")
			}

			return &DeployAccountOutput{Result: fmt.Sprintf(
				"Account deployed at %s. Transaction: %s (%s)",
				address.Hex(), txHash.Hex(), deps.Wallet.ExplorerTxURL(txHash),
			)}, nil
		},
	)
}

type GetCurrentAccountInput struct{}

type GetCurrentAccountOutput struct {
	Result string `json:"result"`
}

func createGetCurrentAccountTool(deps *Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolGetCurrentAccount,
			Desc:        "Get the address of the wallet account currently active for this conversation.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, in *GetCurrentAccountInput) (*GetCurrentAccountOutput, error) {
			conversationID, ok := ConversationIDFromContext(ctx)
			if !ok {
				return nil, fmt.Errorf("missing conversation id in context")
			}

			acct, err := deps.Wallet.GetAccount(ctx, conversationID)
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Account lookup failed")
				return &GetCurrentAccountOutput{Result: fmt.Sprintf("Could not look up your account: %v", err)}, nil
			}
			if acct == nil {
				return &GetCurrentAccountOutput{Result: "No account exists for this conversation yet. Generate and deploy one first."}, nil
			}

			return &GetCurrentAccountOutput{Result: fmt.Sprintf("Your active account address is %s.", acct.Address().Hex())}, nil
		},
	)
}
