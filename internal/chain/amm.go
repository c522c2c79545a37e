package chain

import (
	"errors"
	"math/big"
)

// ErrInsufficientLiquidity is returned when a pool cannot produce
// the requested output amount.
var ErrInsufficientLiquidity = errors.New("chain: insufficient pool liquidity")

// AmountIn computes the input required to receive exactly out from a
// constant-product pool charging the standard 0.3% fee:
//
//	in = reserveIn*out*1000 / ((reserveOut-out)*997) + 1
//
// The +1 rounds up so the pool never under-delivers.
func AmountIn(reserveIn, reserveOut, out *big.Int) (*big.Int, error) {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if out.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	numerator := new(big.Int).Mul(reserveIn, out)
	numerator.Mul(numerator, big.NewInt(1000))

	denominator := new(big.Int).Sub(reserveOut, out)
	denominator.Mul(denominator, big.NewInt(997))

	in := numerator.Div(numerator, denominator)
	return in.Add(in, big.NewInt(1)), nil
}

// WithSlippage bounds a quoted input amount upward by bps basis
// points. Exact-output trades tolerate price movement between quote
// and execution by capping input, never by shrinking output.
func WithSlippage(in *big.Int, bps int64) *big.Int {
	bounded := new(big.Int).Mul(in, big.NewInt(10000+bps))
	return bounded.Div(bounded, big.NewInt(10000))
}
