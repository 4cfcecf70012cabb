package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletpilot/server/internal/agent/model"
	"github.com/walletpilot/server/internal/market"
	"github.com/walletpilot/server/internal/news"
	"github.com/walletpilot/server/internal/wallet"
)

const testConversationID = "conv-test-1"

// memKV is an in-memory model.KeyValueStore.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// fakeBackend is a canned wallet.ChainBackend.
type fakeBackend struct {
	balance    *big.Int
	callResult []byte
	sendErr    error
	sent       []*types.Transaction
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 210_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callResult, nil
}

type fakeMarket struct {
	quote    *market.Quote
	quoteErr error
	swapErr  error
	txHash   common.Hash
}

func (f *fakeMarket) GetQuote(ctx context.Context, sellToken, buyToken string, sellAmount *big.Int) (*market.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeMarket) ExecuteSwap(ctx context.Context, account *wallet.Account, q *market.Quote, opts market.SwapOptions) (*market.SwapResult, error) {
	if f.swapErr != nil {
		return nil, f.swapErr
	}
	return &market.SwapResult{TransactionHash: f.txHash}, nil
}

type fakeNews struct {
	items []news.Item
	err   error
}

func (f *fakeNews) GetNews(ctx context.Context) ([]news.Item, error) {
	return f.items, f.err
}

type fakeScheduler struct {
	started map[string]time.Duration
	stopped []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{started: make(map[string]time.Duration)}
}

func (f *fakeScheduler) Start(conversationID, description string, interval time.Duration) error {
	f.started[conversationID] = interval
	return nil
}

func (f *fakeScheduler) Stop(conversationID string) bool {
	f.stopped = append(f.stopped, conversationID)
	_, ok := f.started[conversationID]
	delete(f.started, conversationID)
	return ok
}

type testEnv struct {
	deps    *Deps
	kv      *memKV
	backend *fakeBackend
	market  *fakeMarket
	news    *fakeNews
	sched   *fakeScheduler
}

func newTestEnv(t *testing.T, cfg wallet.Config) *testEnv {
	t.Helper()
	kv := newMemKV()
	backend := &fakeBackend{}
	if cfg.ExplorerBaseURL == "" {
		cfg.ExplorerBaseURL = "https://sepolia.etherscan.io"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 11155111
	}
	svc, err := wallet.New(backend, cfg, kv)
	require.NoError(t, err)

	mkt := &fakeMarket{}
	nws := &fakeNews{}
	sched := newFakeScheduler()
	return &testEnv{
		deps: &Deps{
			Wallet:    svc,
			Market:    mkt,
			News:      nws,
			Scheduler: sched,
			KV:        kv,
		},
		kv:      kv,
		backend: backend,
		market:  mkt,
		news:    nws,
		sched:   sched,
	}
}

// invokeTool runs a named tool through its real invocation surface and
// returns the decoded result text.
func invokeTool(t *testing.T, deps *Deps, name, args string) (string, error) {
	t.Helper()
	ctx := WithConversationID(context.Background(), testConversationID)
	return invokeToolCtx(t, ctx, deps, name, args)
}

func invokeToolCtx(t *testing.T, ctx context.Context, deps *Deps, name, args string) (string, error) {
	t.Helper()
	for _, bt := range GetWalletTools(deps) {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		if info.Name != name {
			continue
		}
		inv, ok := bt.(tool.InvokableTool)
		require.True(t, ok, "tool %s is not invokable", name)

		raw, err := inv.InvokableRun(ctx, args)
		if err != nil {
			return "", err
		}
		var out struct {
			Result string `json:"result"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &out))
		return out.Result, nil
	}
	t.Fatalf("tool %s not registered", name)
	return "", nil
}

// seedDeployedAccount stores valid per-conversation credentials.
func seedDeployedAccount(t *testing.T, env *testEnv) common.Address {
	t.Helper()
	ctx := context.Background()
	generated, err := env.deps.Wallet.GenerateAccount(ctx)
	require.NoError(t, err)
	require.NoError(t, env.kv.Set(ctx, model.CredentialKey(testConversationID, model.FieldPrivateKey), generated.PrivateKey))
	require.NoError(t, env.kv.Set(ctx, model.CredentialKey(testConversationID, model.FieldAccountAddress), generated.Address.Hex()))
	return generated.Address
}

func TestToolRegistryCoversAllTools(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	infos, err := GetToolInfos(context.Background(), GetWalletTools(env.deps))
	require.NoError(t, err)

	names := make(map[string]bool, len(infos))
	for _, info := range infos {
		names[info.Name] = true
	}
	for _, want := range []string{
		ToolSendFunds, ToolSwap, ToolGenerateAccount, ToolDeployAccount,
		ToolGetCurrentAccount, ToolCheckBalance, ToolGetNews,
		ToolStartBackgroundAction, ToolStopBackgroundAction,
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
	assert.Len(t, infos, 9)
}

func TestGenerateAccountOverwritesPriorSlot(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})

	_, err := invokeTool(t, env.deps, ToolGenerateAccount, "{}")
	require.NoError(t, err)
	first, ok, err := env.kv.Get(context.Background(), model.CredentialKey(testConversationID, model.FieldGeneratedPrivateKey))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = invokeTool(t, env.deps, ToolGenerateAccount, "{}")
	require.NoError(t, err)
	second, ok, err := env.kv.Get(context.Background(), model.CredentialKey(testConversationID, model.FieldGeneratedPrivateKey))
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, first, second, "second generate must overwrite the undeployed slot")
}

func TestDeployAccountConsumesGeneratedSlot(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	ctx := context.Background()

	_, err := invokeTool(t, env.deps, ToolGenerateAccount, "{}")
	require.NoError(t, err)

	result, err := invokeTool(t, env.deps, ToolDeployAccount, "{}")
	require.NoError(t, err)
	assert.Contains(t, result, "Account deployed at")
	require.Len(t, env.backend.sent, 1)

	_, ok, err := env.kv.Get(ctx, model.CredentialKey(testConversationID, model.FieldGeneratedPrivateKey))
	require.NoError(t, err)
	assert.False(t, ok, "deployment must consume the generated slot")

	_, ok, err = env.kv.Get(ctx, model.CredentialKey(testConversationID, model.FieldPrivateKey))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = env.kv.Get(ctx, model.CredentialKey(testConversationID, model.FieldAccountAddress))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeployAccountWithoutGeneratedSlot(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})

	result, err := invokeTool(t, env.deps, ToolDeployAccount, "{}")
	require.NoError(t, err)
	assert.Contains(t, result, "no generated account to deploy")
	assert.Empty(t, env.backend.sent)
}

func TestDeployAccountChainFailureIsResultText(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	_, err := invokeTool(t, env.deps, ToolGenerateAccount, "{}")
	require.NoError(t, err)

	env.backend.sendErr = fmt.Errorf("insufficient funds for gas")
	result, err := invokeTool(t, env.deps, ToolDeployAccount, "{}")
	require.NoError(t, err, "collaborator failures must not escape the tool boundary")
	assert.Contains(t, result, "Deployment failed")

	// Credentials must not be promoted on failure.
	_, ok, _ := env.kv.Get(context.Background(), model.CredentialKey(testConversationID, model.FieldPrivateKey))
	assert.False(t, ok)
}

func TestFixedAccountDisablesAccountManagement(t *testing.T) {
	fixed, err := wallet.New(&fakeBackend{}, wallet.Config{}, newMemKV())
	require.NoError(t, err)
	generated, err := fixed.GenerateAccount(context.Background())
	require.NoError(t, err)

	env := newTestEnv(t, wallet.Config{
		FixedAccountAddress:    generated.Address.Hex(),
		FixedAccountPrivateKey: generated.PrivateKey,
	})

	genResult, err := invokeTool(t, env.deps, ToolGenerateAccount, "{}")
	require.NoError(t, err)
	deployResult, err := invokeTool(t, env.deps, ToolDeployAccount, "{}")
	require.NoError(t, err)

	// Both tools refuse with the identical message regardless of session state.
	assert.Equal(t, fixedAccountRefusal, genResult)
	assert.Equal(t, fixedAccountRefusal, deployResult)

	// Even a pre-existing generated slot does not change the refusal.
	require.NoError(t, env.kv.Set(context.Background(),
		model.CredentialKey(testConversationID, model.FieldGeneratedPrivateKey), generated.PrivateKey))
	deployAgain, err := invokeTool(t, env.deps, ToolDeployAccount, "{}")
	require.NoError(t, err)
	assert.Equal(t, fixedAccountRefusal, deployAgain)

	// The fixed account is still fully usable.
	current, err := invokeTool(t, env.deps, ToolGetCurrentAccount, "{}")
	require.NoError(t, err)
	assert.Contains(t, current, generated.Address.Hex())
}

func TestGetCurrentAccountWhenMissing(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	result, err := invokeTool(t, env.deps, ToolGetCurrentAccount, "{}")
	require.NoError(t, err)
	assert.Contains(t, result, "No account exists")
}

func TestSendFundsValidation(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})

	_, err := invokeTool(t, env.deps, ToolSendFunds, `{"recipient":"not-an-address","amount":"1"}`)
	assert.Error(t, err, "bad recipient is a validation error, not result text")

	_, err = invokeTool(t, env.deps, ToolSendFunds, `{"recipient":"0x8464135c8F25Da09e49BC8782676a84730C318bC","amount":"abc"}`)
	assert.Error(t, err, "bad amount is a validation error")

	// Missing conversation id is a hard error too.
	_, err = invokeToolCtx(t, context.Background(), env.deps, ToolSendFunds,
		`{"recipient":"0x8464135c8F25Da09e49BC8782676a84730C318bC","amount":"1"}`)
	assert.Error(t, err)
}

func TestSendFundsWithoutAccount(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	result, err := invokeTool(t, env.deps, ToolSendFunds,
		`{"recipient":"0x8464135c8F25Da09e49BC8782676a84730C318bC","amount":"1"}`)
	require.NoError(t, err)
	assert.Contains(t, result, "don't have a wallet account yet")
	assert.Empty(t, env.backend.sent)
}

func TestSendFundsNative(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	seedDeployedAccount(t, env)

	result, err := invokeTool(t, env.deps, ToolSendFunds,
		`{"recipient":"0x8464135c8F25Da09e49BC8782676a84730C318bC","amount":"1.5"}`)
	require.NoError(t, err)
	assert.Contains(t, result, "Sent 1.5 ETH")
	assert.Contains(t, result, "0x8464135c8F25Da09e49BC8782676a84730C318bC")
	assert.Contains(t, result, "https://sepolia.etherscan.io/tx/")
	require.Len(t, env.backend.sent, 1)
}

func TestSendFundsTransferFailureIsResultText(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	seedDeployedAccount(t, env)
	env.backend.sendErr = fmt.Errorf("nonce too low")

	result, err := invokeTool(t, env.deps, ToolSendFunds,
		`{"recipient":"0x8464135c8F25Da09e49BC8782676a84730C318bC","amount":"1"}`)
	require.NoError(t, err)
	assert.Contains(t, result, "Transfer failed")
}

func TestCheckBalanceNative(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	addr := seedDeployedAccount(t, env)
	env.backend.balance, _ = new(big.Int).SetString("1500000000000000000", 10)

	result, err := invokeTool(t, env.deps, ToolCheckBalance, "{}")
	require.NoError(t, err)
	assert.Contains(t, result, addr.Hex())
	assert.Contains(t, result, "1.5 ETH")
}

func TestCheckBalanceWithoutAccount(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	result, err := invokeTool(t, env.deps, ToolCheckBalance, `{"token":"strk"}`)
	require.NoError(t, err)
	assert.Contains(t, result, "No account exists")
}

func TestSwapHappyPath(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	seedDeployedAccount(t, env)
	env.market.quote = &market.Quote{
		QuoteID:    "q-1",
		SellToken:  wallet.NativeTokenAddress.Hex(),
		BuyToken:   wallet.TokenSTRK.Address.Hex(),
		SellAmount: "1000000000000000000",
		BuyAmount:  "2500000000000000000",
	}
	env.market.txHash = common.HexToHash("0xabc123")

	result, err := invokeTool(t, env.deps, ToolSwap,
		`{"token_in_address":"ETH","token_out_address":"strk","amount":"1"}`)
	require.NoError(t, err)
	assert.Contains(t, result, "Swapped 1 ETH")
	assert.Contains(t, result, "~2.5 STRK")
	assert.Contains(t, result, env.market.txHash.Hex())
}

func TestSwapQuoteFailureIsResultText(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	seedDeployedAccount(t, env)
	env.market.quoteErr = fmt.Errorf("aggregator unavailable")

	result, err := invokeTool(t, env.deps, ToolSwap,
		`{"token_in_address":"eth","token_out_address":"strk","amount":"1"}`)
	require.NoError(t, err)
	assert.Contains(t, result, "Could not fetch a quote")
	assert.Contains(t, result, "try again")
}

func TestGetNews(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	env.news.items = []news.Item{
		{Title: "Protocol upgrade lands", Source: "chainwire", URL: "https://example.com/1"},
		{Title: "Fees hit yearly low", Source: "blockbeat", URL: "https://example.com/2"},
	}

	result, err := invokeTool(t, env.deps, ToolGetNews, "{}")
	require.NoError(t, err)
	assert.Contains(t, result, "1. Protocol upgrade lands")
	assert.Contains(t, result, "2. Fees hit yearly low")
}

func TestGetNewsFailureIsResultText(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})
	env.news.err = fmt.Errorf("upstream timeout")

	result, err := invokeTool(t, env.deps, ToolGetNews, "{}")
	require.NoError(t, err, "news outage must surface as text, not an error")
	assert.Contains(t, result, "Could not fetch the news")
}

func TestStartBackgroundAction(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})

	result, err := invokeTool(t, env.deps, ToolStartBackgroundAction,
		`{"action":"check my eth balance","interval_seconds":3600}`)
	require.NoError(t, err)
	assert.Contains(t, result, `Scheduled "check my eth balance" to run every 3600 seconds`)
	assert.Equal(t, time.Hour, env.sched.started[testConversationID])
}

func TestStartBackgroundActionValidation(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})

	_, err := invokeTool(t, env.deps, ToolStartBackgroundAction, `{"action":"","interval_seconds":10}`)
	assert.Error(t, err)

	_, err = invokeTool(t, env.deps, ToolStartBackgroundAction, `{"action":"ping","interval_seconds":0}`)
	assert.Error(t, err)

	_, err = invokeTool(t, env.deps, ToolStartBackgroundAction, `{"action":"ping","interval_seconds":-5}`)
	assert.Error(t, err)
	assert.Empty(t, env.sched.started)
}

func TestStopBackgroundActionIdempotent(t *testing.T) {
	env := newTestEnv(t, wallet.Config{})

	result, err := invokeTool(t, env.deps, ToolStopBackgroundAction, "{}")
	require.NoError(t, err)
	assert.Equal(t, "There was no background action running.", result)

	_, err = invokeTool(t, env.deps, ToolStartBackgroundAction, `{"action":"ping","interval_seconds":60}`)
	require.NoError(t, err)

	result, err = invokeTool(t, env.deps, ToolStopBackgroundAction, "{}")
	require.NoError(t, err)
	assert.Equal(t, "Background action stopped.", result)

	result, err = invokeTool(t, env.deps, ToolStopBackgroundAction, "{}")
	require.NoError(t, err)
	assert.Equal(t, "There was no background action running.", result)
}
