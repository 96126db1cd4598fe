package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

// fakeBackend implements backend in-memory.
type fakeBackend struct {
	balance    *big.Int
	gasPrice   *big.Int
	nonce      uint64
	sent       []*types.Transaction
	sendErr    error
	receipts   map[common.Hash]*types.Receipt
	receiptErr error
	// receiptAfter delays receipt availability by N lookups.
	receiptAfter int32
	closed       bool
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if atomic.AddInt32(&f.receiptAfter, -1) >= 0 {
		return nil, errors.New("not found")
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (f *fakeBackend) Close() { f.closed = true }

func testClient(f *fakeBackend) *Client {
	key, _ := crypto.HexToECDSA(testKeyHex)
	return &Client{
		eth:     f,
		chainID: big.NewInt(1),
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func TestClient_GetBalanceAndGasPrice(t *testing.T) {
	f := &fakeBackend{balance: big.NewInt(1000), gasPrice: big.NewInt(42)}
	c := testClient(f)

	bal, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Int64())

	price, err := c.GetGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), price.Int64())
}

func TestClient_SignAndSend(t *testing.T) {
	f := &fakeBackend{nonce: 7}
	c := testClient(f)

	to := common.HexToAddress("0x42f30aa6d2237248638d1c74ddfcf80f4ecd340a")
	price := big.NewInt(50_000_000_000)
	hash, err := c.SignAndSend(context.Background(), SweepTx{
		To:                   to,
		Value:                big.NewInt(998_950),
		GasLimit:             21000,
		MaxFeePerGas:         price,
		MaxPriorityFeePerGas: price,
	})
	require.NoError(t, err)
	require.Len(t, f.sent, 1)

	sent := f.sent[0]
	assert.Equal(t, hash, sent.Hash())
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, uint64(21000), sent.Gas())
	assert.Equal(t, to, *sent.To())
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent.Type())
	assert.Zero(t, price.Cmp(sent.GasFeeCap()))
	assert.Zero(t, price.Cmp(sent.GasTipCap()))

	// Signature must recover to the client's own address.
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), sent)
	require.NoError(t, err)
	assert.Equal(t, c.Address(), from)
}

func TestClient_SignAndSend_BroadcastError(t *testing.T) {
	f := &fakeBackend{sendErr: errors.New("insufficient funds for gas * price + value")}
	c := testClient(f)

	_, err := c.SignAndSend(context.Background(), SweepTx{
		To:                   common.HexToAddress("0x1"),
		Value:                big.NewInt(1),
		GasLimit:             21000,
		MaxFeePerGas:         big.NewInt(1),
		MaxPriorityFeePerGas: big.NewInt(1),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestClient_AwaitInclusion_Success(t *testing.T) {
	hash := common.HexToHash("0xabc")
	f := &fakeBackend{
		receipts: map[common.Hash]*types.Receipt{hash: {
			TxHash:      hash,
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(123),
			GasUsed:     21000,
		}},
	}
	c := testClient(f)

	inc, err := c.AwaitInclusion(context.Background(), hash)
	require.NoError(t, err)
	assert.False(t, inc.Reverted)
	assert.Equal(t, uint64(123), inc.BlockNumber)
}

func TestClient_AwaitInclusion_Reverted(t *testing.T) {
	hash := common.HexToHash("0xdef")
	f := &fakeBackend{
		receipts: map[common.Hash]*types.Receipt{hash: {
			TxHash:      hash,
			Status:      types.ReceiptStatusFailed,
			BlockNumber: big.NewInt(124),
		}},
	}
	c := testClient(f)

	inc, err := c.AwaitInclusion(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, inc.Reverted)
}

func TestClient_AwaitInclusion_Cancelled(t *testing.T) {
	f := &fakeBackend{receiptErr: errors.New("not found")}
	c := testClient(f)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.AwaitInclusion(ctx, common.HexToHash("0x1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Close(t *testing.T) {
	f := &fakeBackend{}
	c := testClient(f)
	c.Close()
	assert.True(t, f.closed)
}
