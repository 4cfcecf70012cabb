package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/walletpilot/server/internal/agent/model"
	errx "github.com/walletpilot/server/internal/core/error"
	logx "github.com/walletpilot/server/pkg/logger"
)

type Config struct {
	RPCURL          string `envconfig:"CHAIN_RPC_URL" required:"true"`
	ChainID         int64  `envconfig:"CHAIN_ID" default:"11155111"`
	ExplorerBaseURL string `envconfig:"CHAIN_EXPLORER_BASE_URL" default:"https://sepolia.etherscan.io"`

	// When both are set, the whole process runs against this one account and
	// per-conversation generation/deployment is disabled.
	FixedAccountAddress    string `envconfig:"FIXED_ACCOUNT_ADDRESS"`
	FixedAccountPrivateKey string `envconfig:"FIXED_ACCOUNT_PRIVATE_KEY"`
}

// ChainBackend is the subset of ethclient.Client the wallet needs. Narrowed
// to an interface so tests can stub the chain.
type ChainBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// GeneratedAccount is a fresh key pair plus the counterfactual address the
// smart account will occupy once deployed.
type GeneratedAccount struct {
	PrivateKey string
	Address    common.Address
}

// AccountSourceKind tags where a conversation's active account comes from.
type AccountSourceKind int

const (
	AccountSourceNone AccountSourceKind = iota
	AccountSourceFixed
	AccountSourcePerSession
)

// AccountSource is the single configuration-resolution result consulted by
// every account-touching tool.
type AccountSource struct {
	Kind    AccountSourceKind
	Account *Account
}

// Service generates, deploys and resolves smart accounts over a JSON-RPC
// chain backend, persisting credentials in the key-value store.
type Service struct {
	backend      ChainBackend
	chainID      *big.Int
	creds        model.KeyValueStore
	explorerBase string

	fixedAddress common.Address
	fixedKey     *ecdsa.PrivateKey
	hasFixed     bool
}

// Dial connects to the configured RPC endpoint and returns a ready Service.
func Dial(ctx context.Context, cfg Config, creds model.KeyValueStore) (*Service, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("chain rpc url is empty")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	return New(ethclient.NewClient(rpcClient), cfg, creds)
}

// New builds a Service over an existing backend.
func New(backend ChainBackend, cfg Config, creds model.KeyValueStore) (*Service, error) {
	if creds == nil {
		return nil, fmt.Errorf("credential store is nil")
	}

	s := &Service{
		backend:      backend,
		chainID:      big.NewInt(cfg.ChainID),
		creds:        creds,
		explorerBase: strings.TrimRight(cfg.ExplorerBaseURL, "/"),
	}

	addr := strings.TrimSpace(cfg.FixedAccountAddress)
	keyHex := strings.TrimSpace(cfg.FixedAccountPrivateKey)
	if addr != "" && keyHex != "" {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid fixed account address: %s", addr)
		}
		key, err := parsePrivateKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed account private key: %w", err)
		}
		s.fixedAddress = common.HexToAddress(addr)
		s.fixedKey = key
		s.hasFixed = true
		logx.Info().Str("address", s.fixedAddress.Hex()).Msg("Fixed account override active; per-conversation accounts disabled")
	}

	return s, nil
}

// FixedAccountConfigured reports whether the process-level account override
// is active.
func (s *Service) FixedAccountConfigured() bool {
	return s.hasFixed
}

// GenerateAccount creates a new key pair and the not-yet-deployed account
// address derived from it. Nothing is persisted here; the caller owns the
// credential slots.
func (s *Service) GenerateAccount(ctx context.Context) (*GeneratedAccount, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errx.WrapChain(err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)

	return &GeneratedAccount{
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
		Address:    counterfactualAddress(owner),
	}, nil
}

// DeployAccount submits the account contract creation transaction for the
// given owner key and returns the deployed address with the tx hash.
func (s *Service) DeployAccount(ctx context.Context, privateKeyHex string) (common.Address, common.Hash, error) {
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("parse private key: %w", err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)
	predicted := counterfactualAddress(owner)

	nonce, err := s.backend.PendingNonceAt(ctx, owner)
	if err != nil {
		return common.Address{}, common.Hash{}, errx.WrapChain(err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Address{}, common.Hash{}, errx.WrapChain(err)
	}

	initCode := accountInitCode(owner)
	gasLimit, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: owner,
		Data: initCode,
	})
	if err != nil {
		return common.Address{}, common.Hash{}, errx.WrapChain(err)
	}

	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(s.chainID), &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       nil, // contract creation
		Data:     initCode,
	})
	if err != nil {
		return common.Address{}, common.Hash{}, errx.WrapChain(err)
	}

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		return common.Address{}, common.Hash{}, errx.WrapChain(err)
	}

	logx.Info().
		Str("owner", owner.Hex()).
		Str("account", predicted.Hex()).
		Str("tx", tx.Hash().Hex()).
		Msg("Account deployment submitted")

	return predicted, tx.Hash(), nil
}

// ResolveAccountSource performs the one-shot configuration resolution for a
// conversation: fixed override first, then the deployed per-conversation
// slots, otherwise none.
func (s *Service) ResolveAccountSource(ctx context.Context, conversationID string) (AccountSource, error) {
	if s.hasFixed {
		return AccountSource{
			Kind:    AccountSourceFixed,
			Account: &Account{address: s.fixedAddress, owner: s.fixedKey, svc: s},
		}, nil
	}

	keyHex, okKey, err := s.creds.Get(ctx, model.CredentialKey(conversationID, model.FieldPrivateKey))
	if err != nil {
		return AccountSource{}, err
	}
	addrHex, okAddr, err := s.creds.Get(ctx, model.CredentialKey(conversationID, model.FieldAccountAddress))
	if err != nil {
		return AccountSource{}, err
	}
	if !okKey || !okAddr {
		return AccountSource{Kind: AccountSourceNone}, nil
	}

	key, err := parsePrivateKey(keyHex)
	if err != nil {
		return AccountSource{}, fmt.Errorf("stored private key for %s is corrupt: %w", conversationID, err)
	}

	return AccountSource{
		Kind:    AccountSourcePerSession,
		Account: &Account{address: common.HexToAddress(addrHex), owner: key, svc: s},
	}, nil
}

// GetAccount resolves the active deployed account for a conversation, or nil
// when none exists.
func (s *Service) GetAccount(ctx context.Context, conversationID string) (*Account, error) {
	src, err := s.ResolveAccountSource(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return src.Account, nil
}

// TokenBalance reads an account's balance for a token: the chain's native
// balance for the native marker address, balanceOf otherwise.
func (s *Service) TokenBalance(ctx context.Context, account common.Address, token common.Address) (*big.Int, error) {
	if token == NativeTokenAddress {
		v, err := s.backend.BalanceAt(ctx, account, nil)
		if err != nil {
			return nil, errx.WrapChain(err)
		}
		return v, nil
	}

	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := s.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, errx.WrapChain(err)
	}
	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	v, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}
	return v, nil
}

// ExplorerTxURL renders the block-explorer link for a transaction.
func (s *Service) ExplorerTxURL(hash common.Hash) string {
	return s.explorerBase + "/tx/" + hash.Hex()
}

func parsePrivateKey(keyHex string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
}

// counterfactualAddress predicts the account contract address: the owner's
// first contract creation.
func counterfactualAddress(owner common.Address) common.Address {
	return crypto.CreateAddress(owner, 0)
}
