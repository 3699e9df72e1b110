package app

import (
	"math/bits"

	errorsmod "cosmossdk.io/errors"
)

func addUint64Checked(a uint64, b uint64, field string) (uint64, error) {
	if a > ^uint64(0)-b {
		return 0, errorsmod.Wrapf(ErrInvariant, "%s overflows uint64", field)
	}
	return a + b, nil
}

func subUint64Checked(a uint64, b uint64, field string) (uint64, error) {
	if a < b {
		return 0, errorsmod.Wrapf(ErrInvariant, "%s underflows: have=%d sub=%d", field, a, b)
	}
	return a - b, nil
}

// mulDivUint64 computes floor(a*b/den) with a 128-bit intermediate.
func mulDivUint64(a uint64, b uint64, den uint64, field string) (uint64, error) {
	if den == 0 {
		return 0, errorsmod.Wrapf(ErrInvariant, "%s divides by zero", field)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, errorsmod.Wrapf(ErrInvariant, "%s overflows uint64", field)
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}
