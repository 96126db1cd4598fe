// Package executor drives a single sweep attempt through its lifecycle:
// Idle → Submitting → Pending → Confirmed/Failed. One executor serves one
// session; at most one attempt is ever in flight.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/THaGKI9/eth-wallet-sweeper/internal/chain"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/notify"
	"github.com/THaGKI9/eth-wallet-sweeper/internal/sweep"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePending    State = "pending"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

// Guard failures. Advisory: they block the attempt locally and are never
// retried by the executor itself.
var (
	ErrExecutionInFlight = errors.New("a sweep is already in flight")
	ErrInvalidRecipient  = errors.New("invalid recipient address")
	ErrNothingToSweep    = errors.New("balance does not cover the gas fee")
	ErrZeroBalance       = errors.New("balance is zero")
)

// Execution is one sweep attempt. Recipient, value and gas price are the
// values captured when the attempt entered Submitting; later store changes
// never reach an in-flight execution.
type Execution struct {
	State       State
	Recipient   common.Address
	Value       *big.Int
	GasPrice    *big.Int
	TxHash      string
	ErrorDetail string
}

// Executor validates preconditions, broadcasts, awaits inclusion and
// reports the terminal outcome exactly once per attempt.
type Executor struct {
	provider chain.Provider
	store    *sweep.Store
	sink     notify.Sink
	log      *zap.Logger

	// confirmTimeout bounds the inclusion wait; zero keeps the historical
	// wait-indefinitely behavior.
	confirmTimeout time.Duration

	mu  sync.Mutex
	cur Execution
	seq uint64 // attempt counter, guards exactly-once terminal transitions
}

func New(provider chain.Provider, store *sweep.Store, sink notify.Sink, confirmTimeout time.Duration, log *zap.Logger) *Executor {
	return &Executor{
		provider:       provider,
		store:          store,
		sink:           sink,
		confirmTimeout: confirmTimeout,
		log:            log,
		cur:            Execution{State: StateIdle},
	}
}

// Current returns a snapshot of the live (or last) execution.
func (e *Executor) Current() Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Execute starts a sweep to recipient. It returns once the attempt has
// entered Submitting; broadcast and confirmation continue on a background
// goroutine scoped to ctx. A second call while one attempt is Submitting or
// Pending returns ErrExecutionInFlight and changes nothing.
func (e *Executor) Execute(ctx context.Context, recipient string) (Execution, error) {
	if !common.IsHexAddress(recipient) {
		return Execution{}, ErrInvalidRecipient
	}
	to := common.HexToAddress(recipient)

	snap := e.store.Snapshot()

	e.mu.Lock()
	if e.cur.State == StateSubmitting || e.cur.State == StatePending {
		e.mu.Unlock()
		return Execution{}, ErrExecutionInFlight
	}
	if snap.Balance == nil || snap.Balance.Sign() == 0 {
		e.mu.Unlock()
		return Execution{}, ErrZeroBalance
	}
	if !snap.Plan.Sweepable() || snap.ResolvedPrice == nil {
		e.mu.Unlock()
		return Execution{}, ErrNothingToSweep
	}

	e.seq++
	seq := e.seq
	e.cur = Execution{
		State:     StateSubmitting,
		Recipient: to,
		Value:     new(big.Int).Set(snap.Plan.TransferValue),
		GasPrice:  new(big.Int).Set(snap.ResolvedPrice),
	}
	started := e.snapshotLocked()
	e.mu.Unlock()

	h := e.sink.Notify(ctx, notify.LevelInfo,
		fmt.Sprintf("sweeping %s wei to %s", started.Value, to.Hex()))

	go e.run(ctx, seq, started, h)

	return started, nil
}

func (e *Executor) run(ctx context.Context, seq uint64, exec Execution, h notify.Handle) {
	hash, err := e.provider.SignAndSend(ctx, chain.SweepTx{
		To:                   exec.Recipient,
		Value:                exec.Value,
		GasLimit:             sweep.GasLimit,
		MaxFeePerGas:         exec.GasPrice,
		MaxPriorityFeePerGas: exec.GasPrice,
	})
	if err != nil {
		// Signing or broadcast failed: user rejection, insufficient funds
		// at broadcast time, or a network error. Keep the detail verbatim.
		e.transition(ctx, seq, StateSubmitting, func(cur *Execution) {
			cur.State = StateFailed
			cur.ErrorDetail = err.Error()
		})
		e.sink.Update(ctx, h, notify.LevelError, "sweep failed: "+err.Error())
		e.log.Error("broadcast failed", zap.Error(err))
		return
	}

	e.transition(ctx, seq, StateSubmitting, func(cur *Execution) {
		cur.State = StatePending
		cur.TxHash = hash.Hex()
	})
	e.sink.Update(ctx, h, notify.LevelInfo, "sweep pending: "+hash.Hex())
	e.log.Info("transaction broadcast", zap.String("tx", hash.Hex()))

	waitCtx := ctx
	if e.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.confirmTimeout)
		defer cancel()
	}

	inc, err := e.provider.AwaitInclusion(waitCtx, hash)
	if ctx.Err() != nil {
		// Session torn down mid-wait: the execution belongs to a dead
		// session and must not transition further.
		e.log.Info("inclusion wait abandoned, session ended", zap.String("tx", hash.Hex()))
		return
	}
	if err != nil {
		e.transition(ctx, seq, StatePending, func(cur *Execution) {
			cur.State = StateFailed
			cur.ErrorDetail = err.Error()
		})
		e.sink.Update(ctx, h, notify.LevelError, "sweep confirmation failed: "+err.Error())
		e.log.Error("confirmation failed", zap.String("tx", hash.Hex()), zap.Error(err))
		return
	}

	if inc.Reverted {
		// Distinct from a broadcast failure: the transaction landed on
		// chain and the fee was spent.
		e.transition(ctx, seq, StatePending, func(cur *Execution) {
			cur.State = StateFailed
			cur.ErrorDetail = "transaction reverted on chain"
		})
		e.sink.Update(ctx, h, notify.LevelError, "sweep reverted: "+hash.Hex())
		e.log.Error("transaction reverted", zap.String("tx", hash.Hex()))
		return
	}

	e.transition(ctx, seq, StatePending, func(cur *Execution) {
		cur.State = StateConfirmed
	})
	e.sink.Update(ctx, h, notify.LevelSuccess, "sweep confirmed: "+hash.Hex())
	e.log.Info("transaction confirmed",
		zap.String("tx", hash.Hex()),
		zap.Uint64("block", inc.BlockNumber))
}

// transition applies mutate to the current execution iff it still belongs
// to attempt seq and is in the expected state. Completions from superseded
// attempts or already-terminal executions are dropped, which makes the
// terminal transition exactly-once.
func (e *Executor) transition(ctx context.Context, seq uint64, from State, mutate func(*Execution)) {
	if ctx.Err() != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq != seq || e.cur.State != from {
		return
	}
	mutate(&e.cur)
}

func (e *Executor) snapshotLocked() Execution {
	out := e.cur
	if e.cur.Value != nil {
		out.Value = new(big.Int).Set(e.cur.Value)
	}
	if e.cur.GasPrice != nil {
		out.GasPrice = new(big.Int).Set(e.cur.GasPrice)
	}
	return out
}
