package sim

import "fmt"

// HaltError reports an unrecoverable cross-cutting invariant violation.
// Unlike per-agent domain errors, a HaltError aborts the run; the caller
// keeps the snapshot sequence produced so far and must restart from a
// persisted state.
type HaltError struct {
	Step   int
	Reason string
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("simulation halted at step %d: %s", e.Step, e.Reason)
}
