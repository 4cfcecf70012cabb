package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletpilot/server/internal/agent/model"
)

type stubBackend struct {
	balance *big.Int
	sent    []*types.Transaction
}

func (s *stubBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if s.balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(s.balance), nil
}

func (s *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (s *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (s *stubBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 300_000, nil
}

func (s *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	s.sent = append(s.sent, tx)
	return nil
}

func (s *stubBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string]string)} }

func (m *mapStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newTestService(t *testing.T, cfg Config) (*Service, *stubBackend, *mapStore) {
	t.Helper()
	backend := &stubBackend{}
	store := newMapStore()
	svc, err := New(backend, cfg, store)
	require.NoError(t, err)
	return svc, backend, store
}

func TestGenerateAccountPredictsOwnerFirstCreate(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	generated, err := svc.GenerateAccount(context.Background())
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(generated.PrivateKey[2:]) // strip 0x
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	assert.Equal(t, crypto.CreateAddress(owner, 0), generated.Address)
	assert.NotEqual(t, owner, generated.Address, "account address is the contract, not the EOA")
}

func TestGenerateAccountIsRandom(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	a, err := svc.GenerateAccount(context.Background())
	require.NoError(t, err)
	b, err := svc.GenerateAccount(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, b.Address)
}

func TestDeployAccountSubmitsCreationTx(t *testing.T) {
	svc, backend, _ := newTestService(t, Config{ChainID: 11155111})

	generated, err := svc.GenerateAccount(context.Background())
	require.NoError(t, err)

	addr, txHash, err := svc.DeployAccount(context.Background(), generated.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, generated.Address, addr)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Nil(t, tx.To(), "deployment is a contract creation")
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.NotEmpty(t, tx.Data())
	assert.Equal(t, txHash, tx.Hash())
}

func TestResolveAccountSourceNone(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	src, err := svc.ResolveAccountSource(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, AccountSourceNone, src.Kind)
	assert.Nil(t, src.Account)
}

func TestResolveAccountSourcePerSession(t *testing.T) {
	svc, _, store := newTestService(t, Config{})
	ctx := context.Background()

	generated, err := svc.GenerateAccount(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, model.CredentialKey("conv-1", model.FieldPrivateKey), generated.PrivateKey))
	require.NoError(t, store.Set(ctx, model.CredentialKey("conv-1", model.FieldAccountAddress), generated.Address.Hex()))

	src, err := svc.ResolveAccountSource(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, AccountSourcePerSession, src.Kind)
	require.NotNil(t, src.Account)
	assert.Equal(t, generated.Address, src.Account.Address())

	// A generated-but-undeployed slot alone resolves to none.
	src, err = svc.ResolveAccountSource(ctx, "conv-2")
	require.NoError(t, err)
	assert.Equal(t, AccountSourceNone, src.Kind)
}

func TestResolveAccountSourceFixedWinsOverSession(t *testing.T) {
	seed, err := crypto.GenerateKey()
	require.NoError(t, err)
	fixedAddr := crypto.PubkeyToAddress(seed.PublicKey)

	svc, _, store := newTestService(t, Config{
		FixedAccountAddress:    fixedAddr.Hex(),
		FixedAccountPrivateKey: common.Bytes2Hex(crypto.FromECDSA(seed)),
	})
	ctx := context.Background()

	// Session credentials exist but the fixed override takes precedence.
	other, err := svc.GenerateAccount(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, model.CredentialKey("conv-1", model.FieldPrivateKey), other.PrivateKey))
	require.NoError(t, store.Set(ctx, model.CredentialKey("conv-1", model.FieldAccountAddress), other.Address.Hex()))

	src, err := svc.ResolveAccountSource(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, AccountSourceFixed, src.Kind)
	assert.Equal(t, fixedAddr, src.Account.Address())
	assert.True(t, svc.FixedAccountConfigured())
}

func TestNewRejectsBadFixedConfig(t *testing.T) {
	_, err := New(&stubBackend{}, Config{
		FixedAccountAddress:    "not-hex",
		FixedAccountPrivateKey: "deadbeef",
	}, newMapStore())
	assert.Error(t, err)

	_, err = New(&stubBackend{}, Config{
		FixedAccountAddress:    "0x8464135c8F25Da09e49BC8782676a84730C318bC",
		FixedAccountPrivateKey: "zzzz",
	}, newMapStore())
	assert.Error(t, err)
}

func TestExplorerTxURL(t *testing.T) {
	svc, _, _ := newTestService(t, Config{ExplorerBaseURL: "https://sepolia.etherscan.io/"})
	hash := common.HexToHash("0x01")
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+hash.Hex(), svc.ExplorerTxURL(hash))
}
