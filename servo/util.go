package servo

import "golang.org/x/exp/constraints"

// LimitVal clamps x to [lo, hi].
func LimitVal[T constraints.Ordered](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
