package invoke

import "fmt"

// DispatchError means the synchronous acknowledgement of a task
// dispatch was not a success; no completion signal will follow.
type DispatchError struct {
	AgentDID string
	Status   int
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("invoke: agent %s rejected task dispatch with status %d", e.AgentDID, e.Status)
}

// TaskFailedError means the remote agent reported a terminal failure
// for a task it had accepted.
type TaskFailedError struct {
	TaskID string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("invoke: task %s reported failure", e.TaskID)
}

// ValidationError means a completed task's output was malformed or
// missing expected fields.
type ValidationError struct {
	TaskID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invoke: task %s output invalid: %s", e.TaskID, e.Reason)
}

// PartialFanOutError means more sub-tasks failed than the stage's
// budget allows.
type PartialFanOutError struct {
	Failed int
	Budget int
	Total  int
}

func (e *PartialFanOutError) Error() string {
	return fmt.Sprintf("invoke: %d of %d sub-tasks failed, budget allows %d", e.Failed, e.Total, e.Budget)
}
