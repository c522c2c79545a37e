package payments

import (
	"errors"
	"fmt"
)

// ErrDescriptorUnavailable means the backing registry could not
// resolve a plan identifier into a descriptor.
var ErrDescriptorUnavailable = errors.New("payments: plan descriptor unavailable")

// InsufficientBalanceError means settlement could not secure the
// required credits after exhausting swap/order attempts. Fatal to
// the enclosing step.
type InsufficientBalanceError struct {
	PlanID string
	Reason string
	Err    error
}

func (e *InsufficientBalanceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payments: plan %s: %s: %v", e.PlanID, e.Reason, e.Err)
	}
	return fmt.Sprintf("payments: plan %s: %s", e.PlanID, e.Reason)
}

func (e *InsufficientBalanceError) Unwrap() error { return e.Err }
