// Package sweep holds the quantity store and the fee/transfer computation
// at the heart of the sweeper: wallet balance, network gas price, the
// auto/custom gas price policy, and the plan derived from them.
package sweep

import (
	"math/big"
	"sync"
	"time"
)

// GasMode selects where the resolved gas price comes from.
type GasMode string

const (
	GasAuto   GasMode = "auto"   // track the network quote
	GasCustom GasMode = "custom" // parse the user-supplied gwei input
)

// Snapshot is a consistent view of every quantity in the store, taken under
// one lock acquisition so balance, price and plan always belong to the same
// commit. All big.Int fields are copies.
type Snapshot struct {
	Balance   *big.Int
	BalanceAt time.Time

	NetworkGasPrice *big.Int
	GasQuoteAt      time.Time

	GasMode        GasMode
	CustomGasInput string
	ResolvedPrice  *big.Int

	Plan Plan
}

// Store is the single shared mutable resource of the sweeper. Pollers and
// the gas policy write into it; the calculator runs inside each committed
// mutation, so subscribers and readers never observe a plan derived from a
// different tick than the balance they see.
type Store struct {
	mu sync.Mutex

	balance   *big.Int
	balanceAt time.Time

	quote   *big.Int
	quoteAt time.Time

	mode      GasMode
	customRaw string
	// One-shot latch: the custom input is seeded from the last resolved
	// price at most once per Custom-mode activation.
	seeded bool

	resolved *big.Int
	plan     Plan

	subs []func(Snapshot)
}

func NewStore() *Store {
	return &Store{mode: GasAuto}
}

// Subscribe registers fn to run after every committed mutation with the
// snapshot of that commit. Subscribers run synchronously on the mutating
// goroutine, in registration order.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// SetBalance commits a fresh balance observation.
func (s *Store) SetBalance(v *big.Int) {
	s.mutate(func() {
		s.balance = new(big.Int).Set(v)
		s.balanceAt = time.Now()
	})
}

// ClearBalance drops the balance to unknown (sustained poll failure or
// session teardown).
func (s *Store) ClearBalance() {
	s.mutate(func() {
		s.balance = nil
		s.balanceAt = time.Time{}
	})
}

// SetNetworkGasPrice commits a fresh network gas quote. In auto mode it
// becomes the resolved price immediately; in custom mode it only refreshes
// the quote and never touches the user's input.
func (s *Store) SetNetworkGasPrice(v *big.Int) {
	s.mutate(func() {
		s.quote = new(big.Int).Set(v)
		s.quoteAt = time.Now()
	})
}

// ClearGasQuote drops the network quote to unknown.
func (s *Store) ClearGasQuote() {
	s.mutate(func() {
		s.quote = nil
		s.quoteAt = time.Time{}
	})
}

// SetGasMode switches between auto and custom pricing. Entering custom mode
// seeds an empty input from the last resolved price, once per activation,
// so the field starts non-surprising without fighting later edits.
func (s *Store) SetGasMode(mode GasMode) {
	s.mutate(func() {
		if s.mode == mode {
			return
		}
		s.mode = mode
		if mode == GasCustom {
			s.seeded = false
			if s.customRaw == "" && s.resolved != nil {
				s.customRaw = FormatGwei(s.resolved)
				s.seeded = true
			}
		}
	})
}

// SetCustomGasInput records the user's raw gwei input. Malformed input is
// kept verbatim (the field is theirs) but resolves to no price.
func (s *Store) SetCustomGasInput(raw string) {
	s.mutate(func() {
		s.customRaw = raw
		// An explicit edit counts as the one seeding for this activation.
		s.seeded = true
	})
}

// Reset returns the store to its initial all-unknown state. Used on session
// teardown.
func (s *Store) Reset() {
	s.mutate(func() {
		s.balance = nil
		s.balanceAt = time.Time{}
		s.quote = nil
		s.quoteAt = time.Time{}
		s.mode = GasAuto
		s.customRaw = ""
		s.seeded = false
	})
}

// Snapshot returns a consistent copy of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// mutate serializes a write, re-resolves the gas price, recomputes the plan
// within the same cycle, and notifies subscribers with the committed view.
func (s *Store) mutate(apply func()) {
	s.mu.Lock()
	apply()
	s.resolveLocked()
	s.plan = Recompute(s.balance, s.resolved)
	snap := s.snapshotLocked()
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) resolveLocked() {
	switch s.mode {
	case GasCustom:
		p, err := ParseGwei(s.customRaw)
		if err != nil {
			s.resolved = nil
			return
		}
		s.resolved = p
	default:
		s.resolved = s.quote
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Balance:         copyInt(s.balance),
		BalanceAt:       s.balanceAt,
		NetworkGasPrice: copyInt(s.quote),
		GasQuoteAt:      s.quoteAt,
		GasMode:         s.mode,
		CustomGasInput:  s.customRaw,
		ResolvedPrice:   copyInt(s.resolved),
		Plan: Plan{
			GasFee:        copyInt(s.plan.GasFee),
			TransferValue: copyInt(s.plan.TransferValue),
		},
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
