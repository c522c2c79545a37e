package invoke

import (
	"context"
	"sync"

	"github.com/tuneframe/orchestrator/internal/ledger"
)

// TaskAPI is the slice of the ledger used to dispatch remote tasks.
type TaskAPI interface {
	CreateTask(ctx context.Context, agentDID string, payload ledger.TaskPayload, credential string, onSignal ledger.SignalHandler) (*ledger.TaskAck, error)
}

// Validator reads back a completed task's full record and produces
// the stage's typed output.
type Validator[T any] func(ctx context.Context, taskID string) (T, error)

// Invoke dispatches one remote task and blocks until its
// asynchronous completion signal arrives. Completion resolves a
// capacity-one future guarded by sync.Once, so a duplicate signal
// for the same task id is a no-op and the validator runs at most
// once. A rejected dispatch returns immediately without waiting for
// any signal.
func Invoke[T any](ctx context.Context, api TaskAPI, agentDID string, payload ledger.TaskPayload, credential string, validate Validator[T]) (T, error) {
	var zero T

	done := make(chan ledger.StepStatus, 1)
	var once sync.Once
	ack, err := api.CreateTask(ctx, agentDID, payload, credential, func(taskID string, status ledger.StepStatus) {
		once.Do(func() { done <- status })
	})
	if err != nil {
		return zero, err
	}
	if !ack.Accepted() || ack.Task == nil {
		return zero, &DispatchError{AgentDID: agentDID, Status: ack.Status}
	}

	select {
	case status := <-done:
		if status != ledger.StatusCompleted {
			return zero, &TaskFailedError{TaskID: ack.Task.TaskID}
		}
		return validate(ctx, ack.Task.TaskID)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
