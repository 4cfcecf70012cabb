package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	errx "github.com/walletpilot/server/internal/core/error"
	logx "github.com/walletpilot/server/pkg/logger"
)

const erc20ABIJSON = `[
 {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const accountABIJSON = `[
 {"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"result","type":"bytes"}]}
]`

var (
	erc20ABI   = mustParseABI(erc20ABIJSON)
	accountABI = mustParseABI(accountABIJSON)
)

func mustParseABI(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Account is the handle over a deployed smart account. Calls are routed
// through the account contract's execute entrypoint and signed by the owner
// key.
type Account struct {
	address common.Address
	owner   *ecdsa.PrivateKey
	svc     *Service
}

// Address returns the on-chain account address.
func (a *Account) Address() common.Address {
	return a.address
}

// Execute sends an arbitrary call through the account contract and returns
// the transaction hash.
func (a *Account) Execute(ctx context.Context, target common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}
	callData, err := accountABI.Pack("execute", target, value, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack execute: %w", err)
	}

	ownerAddr := crypto.PubkeyToAddress(a.owner.PublicKey)
	backend := a.svc.backend

	nonce, err := backend.PendingNonceAt(ctx, ownerAddr)
	if err != nil {
		return common.Hash{}, errx.WrapChain(err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errx.WrapChain(err)
	}
	gasLimit, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From: ownerAddr,
		To:   &a.address,
		Data: callData,
	})
	if err != nil {
		return common.Hash{}, errx.WrapChain(err)
	}

	tx, err := types.SignNewTx(a.owner, types.LatestSignerForChainID(a.svc.chainID), &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &a.address,
		Data:     callData,
	})
	if err != nil {
		return common.Hash{}, errx.WrapChain(err)
	}

	if err := backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, errx.WrapChain(err)
	}

	logx.Debug().
		Str("account", a.address.Hex()).
		Str("target", target.Hex()).
		Str("tx", tx.Hash().Hex()).
		Msg("Account call submitted")

	return tx.Hash(), nil
}

// Approve grants an ERC-20 allowance from the account to a spender.
func (a *Account) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}
	return a.Execute(ctx, token, nil, data)
}

// ExecuteTransfer moves tokens out of the account: a native value call for
// the native marker token, an ERC-20 transfer otherwise.
func (a *Account) ExecuteTransfer(ctx context.Context, token common.Address, to common.Address, amount *big.Int) (common.Hash, error) {
	if token == NativeTokenAddress {
		return a.Execute(ctx, to, amount, nil)
	}

	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack transfer: %w", err)
	}
	return a.Execute(ctx, token, nil, data)
}
