// Package session tracks the single live wallet/network binding and owns
// the lifecycle of everything scoped to it: the provider connection, the
// poller and the executor.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/THaGKI9/eth-wallet-sweeper/internal/chain"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/chains"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/config"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/executor"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/notify"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/poller"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/sweep"
)

var (
	ErrNoSession         = errors.New("no active session")
	ErrConnectInProgress = errors.New("a connect attempt is already in progress")
)

// Info is the displayable identity of the active session.
type Info struct {
	Address     common.Address `json:"address"`
	ChainID     int64          `json:"chain_id"`
	ChainName   string         `json:"chain_name"`
	TokenSymbol string         `json:"token_symbol"`
	ExplorerURL string         `json:"explorer_url"`
	ConnectedAt time.Time      `json:"connected_at"`
}

// Dialer opens a provider. Stubbed in tests; chain.Connect in production.
type Dialer func(ctx context.Context, rpcURL string, chainID int64, keyHex string) (chain.Provider, error)

// DefaultDialer adapts chain.Connect to the Dialer shape.
func DefaultDialer(ctx context.Context, rpcURL string, chainID int64, keyHex string) (chain.Provider, error) {
	return chain.Connect(ctx, rpcURL, chainID, keyHex)
}

type active struct {
	info     Info
	provider chain.Provider
	exec     *executor.Executor
	// ctx scopes the poller and any in-flight execution; cancel is the
	// teardown switch.
	ctx        context.Context
	cancel     context.CancelFunc
	pollerDone chan struct{}
}

// Manager replaces the whole session on connect or chain switch and
// guarantees that a torn-down session's background work can no longer
// mutate anything observable.
type Manager struct {
	dial           Dialer
	keyHex         string
	store          *sweep.Store
	sink           notify.Sink
	pollCfg        config.PollConfig
	confirmTimeout time.Duration
	log            *zap.Logger

	mu         sync.Mutex
	connecting bool
	cur        *active
}

func NewManager(dial Dialer, cfg *config.Config, store *sweep.Store, sink notify.Sink, log *zap.Logger) *Manager {
	return &Manager{
		dial:           dial,
		keyHex:         cfg.Wallet.PrivateKey,
		store:          store,
		sink:           sink,
		pollCfg:        cfg.Poll,
		confirmTimeout: cfg.Wallet.ConfirmTimeout,
		log:            log,
	}
}

// Connect establishes a session on chainID, replacing any existing one.
// rpcURL overrides the chain table's default endpoint when non-empty.
// Concurrent connect attempts are rejected, not queued.
func (m *Manager) Connect(ctx context.Context, chainID int64, rpcURL string) (Info, error) {
	meta, err := chains.Get(chainID)
	if err != nil {
		return Info{}, err
	}
	if rpcURL == "" {
		rpcURL = meta.RPCURL
	}

	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return Info{}, ErrConnectInProgress
	}
	m.connecting = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	provider, err := m.dial(ctx, rpcURL, chainID, m.keyHex)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Address:     provider.Address(),
		ChainID:     chainID,
		ChainName:   meta.Name,
		TokenSymbol: meta.TokenSymbol,
		ExplorerURL: meta.ExplorerURL,
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.teardownLocked()

	sessCtx, cancel := context.WithCancel(context.Background())
	a := &active{
		info:       info,
		provider:   provider,
		exec:       executor.New(provider, m.store, m.sink, m.confirmTimeout, m.log),
		ctx:        sessCtx,
		cancel:     cancel,
		pollerDone: make(chan struct{}),
	}
	m.cur = a
	m.mu.Unlock()

	go func() {
		defer close(a.pollerDone)
		poller.New(provider, m.store, m.pollCfg, m.log).Run(sessCtx)
	}()

	m.log.Info("session connected",
		zap.String("address", info.Address.Hex()),
		zap.Int64("chain_id", chainID),
		zap.String("chain", meta.Name))
	return info, nil
}

// Disconnect tears down the active session. A no-op without one.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// teardownLocked cancels session-scoped work, closes the provider and
// resets every quantity to unknown. In-flight executions are abandoned:
// their completions observe the cancelled context and apply nothing.
func (m *Manager) teardownLocked() {
	if m.cur == nil {
		return
	}
	a := m.cur
	m.cur = nil

	a.cancel()
	<-a.pollerDone
	a.provider.Close()
	m.store.Reset()
	m.log.Info("session disconnected", zap.String("address", a.info.Address.Hex()))
}

// Current returns the active session's identity, if any.
func (m *Manager) Current() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Info{}, false
	}
	return m.cur.info, true
}

// Execute starts a sweep on the active session. The attempt is scoped to
// the session, not to the caller's request: the caller going away does not
// abandon a broadcast transaction, only session teardown does.
func (m *Manager) Execute(recipient string) (executor.Execution, error) {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return executor.Execution{}, ErrNoSession
	}
	exec, sessCtx := m.cur.exec, m.cur.ctx
	m.mu.Unlock()

	return exec.Execute(sessCtx, recipient)
}

// Execution reports the live (or last) sweep attempt of the session.
func (m *Manager) Execution() (executor.Execution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return executor.Execution{}, false
	}
	return m.cur.exec.Current(), true
}
