// Package chain wraps go-ethereum behind the provider capability the
// sweeper core depends on: balance and gas price reads, EIP-1559 broadcast,
// and a cancellable wait for inclusion.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// SweepTx is the one transaction shape the sweeper ever sends: a plain
// value transfer with both fee caps pinned to the resolved gas price.
type SweepTx struct {
	To                   common.Address
	Value                *big.Int
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Inclusion is the terminal chain-level outcome of a broadcast transaction.
type Inclusion struct {
	TxHash      common.Hash
	Reverted    bool
	BlockNumber uint64
	GasUsed     uint64
}

// Provider is the connected-wallet capability. Exactly one live Provider
// backs a session; the session layer owns its lifecycle.
type Provider interface {
	Address() common.Address
	ChainID() int64
	GetBalance(ctx context.Context) (*big.Int, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	SignAndSend(ctx context.Context, tx SweepTx) (common.Hash, error)
	AwaitInclusion(ctx context.Context, hash common.Hash) (Inclusion, error)
	Close()
}

// backend is the slice of ethclient.Client the provider needs. Narrowed for
// testability.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

var _ backend = (*ethclient.Client)(nil)

// receiptInterval is how often AwaitInclusion re-checks for a receipt.
const receiptInterval = 2 * time.Second

// Client implements Provider over a JSON-RPC endpoint and a local signing
// key.
type Client struct {
	eth     backend
	chainID *big.Int
	key     *ecdsa.PrivateKey
	addr    common.Address
}

// Connect dials the RPC endpoint, verifies it serves the expected chain,
// and binds the signing key to it. A chain-id mismatch is an error: results
// from the wrong network must never be attributed to this session.
func Connect(ctx context.Context, rpcURL string, wantChainID int64, keyHex string) (*Client, error) {
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if chainID.Int64() != wantChainID {
		eth.Close()
		return nil, fmt.Errorf("chain id mismatch: endpoint serves %d, want %d", chainID.Int64(), wantChainID)
	}

	return &Client{
		eth:     eth,
		chainID: chainID,
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (c *Client) Address() common.Address { return c.addr }

func (c *Client) ChainID() int64 { return c.chainID.Int64() }

func (c *Client) GetBalance(ctx context.Context) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, c.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	return price, nil
}

// SignAndSend signs tx as an EIP-1559 dynamic-fee transaction and
// broadcasts it, returning the transaction hash.
func (c *Client) SignAndSend(ctx context.Context, tx SweepTx) (common.Hash, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.addr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tx.MaxPriorityFeePerGas,
		GasFeeCap: tx.MaxFeePerGas,
		Gas:       tx.GasLimit,
		To:        &tx.To,
		Value:     tx.Value,
	})

	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash(), nil
}

// AwaitInclusion polls for the receipt until the transaction is included or
// ctx is cancelled. There is deliberately no timeout of its own: bounding
// the wait is the caller's decision.
func (c *Client) AwaitInclusion(ctx context.Context, hash common.Hash) (Inclusion, error) {
	ticker := time.NewTicker(receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return Inclusion{
				TxHash:      receipt.TxHash,
				Reverted:    receipt.Status == types.ReceiptStatusFailed,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
		if ctx.Err() != nil {
			return Inclusion{}, ctx.Err()
		}

		// Not found yet, or transient RPC trouble: retry next tick.
		select {
		case <-ctx.Done():
			return Inclusion{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Close() {
	c.eth.Close()
}
