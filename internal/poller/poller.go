// Package poller keeps the quantity store fed from the chain: balance on a
// fast cadence, gas price on a slow one.
package poller

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/THaGKI9/eth-wallet-sweeper/internal/chain"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/config"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/sweep"
)

// Poller owns the two periodic read loops of a session. It lives exactly as
// long as the session's context: teardown cancels the context and both
// loops exit without committing anything further.
type Poller struct {
	provider chain.Provider
	store    *sweep.Store
	cfg      config.PollConfig
	log      *zap.Logger
}

func New(provider chain.Provider, store *sweep.Store, cfg config.PollConfig, log *zap.Logger) *Poller {
	return &Poller{provider: provider, store: store, cfg: cfg, log: log}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.loop(ctx, "balance", p.cfg.BalanceInterval,
			p.provider.GetBalance, p.store.SetBalance, p.store.ClearBalance)
	}()
	go func() {
		defer wg.Done()
		p.loop(ctx, "gas_price", p.cfg.GasInterval,
			p.provider.GetGasPrice, p.store.SetNetworkGasPrice, p.store.ClearGasQuote)
	}()

	wg.Wait()
	p.log.Info("poller stopped")
}

// loop issues one read per tick. Fixed-delay scheduling: the next tick is
// armed only after the current query finished, so a slow endpoint never
// causes catch-up bursts. Transient failures keep the previous snapshot;
// only a sustained outage (no success for StaleAfter) clears it to unknown.
func (p *Poller) loop(
	ctx context.Context,
	name string,
	interval time.Duration,
	query func(context.Context) (*big.Int, error),
	commit func(*big.Int),
	clear func(),
) {
	lastSuccess := time.Now()
	stale := false

	timer := time.NewTimer(0) // first query fires immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		qctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
		v, err := query(qctx)
		cancel()

		// A result that raced with teardown must not be attributed to a
		// session that no longer exists.
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			p.log.Warn("poll failed, keeping previous value",
				zap.String("quantity", name), zap.Error(err))
			if !stale && time.Since(lastSuccess) > p.cfg.StaleAfter {
				p.log.Warn("snapshot stale, clearing to unknown", zap.String("quantity", name))
				clear()
				stale = true
			}
		default:
			commit(v)
			lastSuccess = time.Now()
			stale = false
		}

		timer.Reset(interval)
	}
}
