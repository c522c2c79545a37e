package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tuneframe/orchestrator/internal/ledger"
)

// handleInit synthesizes the full successor chain for a fresh task.
// Each successor points at the previous one; the ledger feeds a
// completed step's output into its successor's input, so the chain
// advances one notification at a time.
func (e *Engine) handleInit(ctx context.Context, step *ledger.Step) error {
	chain := SuccessorChain()
	steps := make([]ledger.Step, 0, len(chain))
	predecessor := step.StepID
	for i, stage := range chain {
		next := ledger.Step{
			StepID:        uuid.NewString(),
			TaskID:        step.TaskID,
			PredecessorID: predecessor,
			Name:          string(stage),
			Status:        ledger.StatusPending,
			IsLast:        i == len(chain)-1,
		}
		steps = append(steps, next)
		predecessor = next.StepID
	}

	if err := e.ledger.CreateSteps(ctx, step.StepID, step.TaskID, steps); err != nil {
		return fmt.Errorf("could not create pipeline steps: %w", err)
	}

	e.notify.Progress(step.TaskID, fmt.Sprintf(
		"Got it. I'll compose a song, write a script, paint the scenes and cut the video for: %s",
		step.InputQuery))
	return e.completeStep(ctx, step, step.InputQuery, step.InputArtifacts, 0)
}
