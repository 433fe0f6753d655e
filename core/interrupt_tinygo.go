//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks interrupts around timer list mutation and
// returns the previous state.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
