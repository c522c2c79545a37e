package chain

import (
	"math/big"
	"testing"
)

func TestAmountIn(t *testing.T) {
	// 1000/1000 reserves, want 100 out:
	// 1000*100*1000 / (900*997) + 1 = 111445 + 1... integer math:
	// 100000000 / 897300 = 111 (floor), +1 = 112.
	in, err := AmountIn(big.NewInt(1000), big.NewInt(1000), big.NewInt(100))
	if err != nil {
		t.Fatalf("AmountIn failed: %v", err)
	}
	if in.Int64() != 112 {
		t.Errorf("Expected 112, got %s", in)
	}
}

func TestAmountIn_RoundsUp(t *testing.T) {
	reserveIn := big.NewInt(5_000_000)
	reserveOut := big.NewInt(3_000_000)
	out := big.NewInt(250_000)

	in, err := AmountIn(reserveIn, reserveOut, out)
	if err != nil {
		t.Fatalf("AmountIn failed: %v", err)
	}

	// Feeding the computed input back through the forward formula
	// must yield at least the requested output.
	inWithFee := new(big.Int).Mul(in, big.NewInt(997))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(1000))
	denominator.Add(denominator, inWithFee)
	got := numerator.Div(numerator, denominator)
	if got.Cmp(out) < 0 {
		t.Errorf("Quoted input %s yields only %s, want >= %s", in, got, out)
	}
}

func TestAmountIn_InsufficientLiquidity(t *testing.T) {
	_, err := AmountIn(big.NewInt(1000), big.NewInt(100), big.NewInt(100))
	if err != ErrInsufficientLiquidity {
		t.Errorf("Expected ErrInsufficientLiquidity, got %v", err)
	}
	_, err = AmountIn(big.NewInt(0), big.NewInt(100), big.NewInt(10))
	if err != ErrInsufficientLiquidity {
		t.Errorf("Expected ErrInsufficientLiquidity for empty reserve, got %v", err)
	}
}

func TestWithSlippage(t *testing.T) {
	// 1% on 1000 = 1010.
	got := WithSlippage(big.NewInt(1000), 100)
	if got.Int64() != 1010 {
		t.Errorf("Expected 1010, got %s", got)
	}
	// Truncation: 1% on 99 = 99.99 -> 99.
	got = WithSlippage(big.NewInt(99), 100)
	if got.Int64() != 99 {
		t.Errorf("Expected 99, got %s", got)
	}
}
