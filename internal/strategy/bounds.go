package strategy

import "math/big"

// InBounds reports whether an execution that spent input collateral units and
// received output deposit units satisfies the strategy's bound price. The
// comparison cross-multiplies so it holds for prices below one:
//
//	input / output <= numerator / denominator
//
// A zero-for-zero execution is out of bounds by definition.
func InBounds(input, output, boundPriceNumerator, boundPriceDenominator uint64) bool {
	bounded := new(big.Int).Mul(
		new(big.Int).SetUint64(boundPriceNumerator),
		new(big.Int).SetUint64(output),
	)
	executed := new(big.Int).Mul(
		new(big.Int).SetUint64(input),
		new(big.Int).SetUint64(boundPriceDenominator),
	)
	if bounded.Sign() == 0 && executed.Sign() == 0 {
		return false
	}
	return executed.Cmp(bounded) <= 0
}

// Integer golden-section search constants, scaled by 1000.
const (
	gssScale  = 1000
	gssInvPhi = 618 // (sqrt(5)-1)/2
	gssInvPhi2 = 381 // (3-sqrt(5))/2
)

// MaxInputWithinBound finds the input amount in [lowerBound, upperBound] that
// maximizes simulate. Callers pass a simulate function that returns zero for
// inputs whose execution price breaks the bound, which turns the search into
// "largest input still inside the bound" over a unimodal curve.
func MaxInputWithinBound(simulate func(uint64) uint64, lowerBound, upperBound uint64, iterations int) uint64 {
	a, b := lowerBound, upperBound
	h := b - a
	c := a + gssInvPhi2*h/gssScale
	d := a + gssInvPhi*h/gssScale
	fc := simulate(c)
	fd := simulate(d)
	for i := 0; i <= iterations; i++ {
		if fc > fd {
			b = d
			d = c
			fd = fc
			h = gssInvPhi * h / gssScale
			c = a + gssInvPhi2*h/gssScale
			fc = simulate(c)
		} else {
			a = c
			c = d
			fc = fd
			h = gssInvPhi * h / gssScale
			d = a + gssInvPhi*h/gssScale
			fd = simulate(d)
		}
	}
	if fc > fd {
		return (a + b) / 2
	}
	return (c + b) / 2
}
