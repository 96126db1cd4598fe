package sweep

import "math/big"

// GasLimit is the fixed work budget of a plain value transfer.
const GasLimit = 21000

var gasLimitBig = big.NewInt(GasLimit)

// Plan is the derived output of the sweep calculation. A nil field means the
// quantity is undefined: no resolved gas price, or a balance too small to
// cover the fee ("not sweepable"). Negative values are never produced.
type Plan struct {
	GasFee        *big.Int
	TransferValue *big.Int
}

// Sweepable reports whether the plan has a defined, non-negative transfer
// value.
func (p Plan) Sweepable() bool {
	return p.TransferValue != nil && p.TransferValue.Sign() >= 0
}

// Recompute derives the plan from the current balance and resolved gas
// price. Pure: equal inputs always yield an equal plan, and the inputs are
// never mutated.
//
//	gasFee        = resolvedPrice * GasLimit
//	transferValue = balance - gasFee, defined only when balance >= gasFee
func Recompute(balance, resolvedPrice *big.Int) Plan {
	var p Plan
	if resolvedPrice == nil {
		return p
	}
	p.GasFee = new(big.Int).Mul(resolvedPrice, gasLimitBig)
	if balance == nil || balance.Cmp(p.GasFee) < 0 {
		return p
	}
	p.TransferValue = new(big.Int).Sub(balance, p.GasFee)
	return p
}
