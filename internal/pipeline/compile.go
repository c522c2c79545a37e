package pipeline

import (
	"context"
	"fmt"

	"github.com/tuneframe/orchestrator/internal/invoke"
	"github.com/tuneframe/orchestrator/internal/ledger"
	"github.com/tuneframe/orchestrator/internal/retry"
)

// handleCompile hands the song plus every clip to the compiler agent
// for the final cut. This is the last step of the chain, so its
// completion also closes the story for the user.
func (e *Engine) handleCompile(ctx context.Context, step *ledger.Step) error {
	cfg, err := e.stageConfig(StageCompile)
	if err != nil {
		return err
	}
	if len(step.InputArtifacts) < 2 {
		return fmt.Errorf("no clips to compile")
	}
	if err := e.settle.EnsureBalance(ctx, step.TaskID, e.planFor(cfg.PlanID), cfg.RequiredCredits); err != nil {
		return err
	}
	access, err := e.ledger.GetServiceAccessConfig(ctx, cfg.AgentDID)
	if err != nil {
		return fmt.Errorf("could not obtain credential for compiler agent: %w", err)
	}

	e.notify.Progress(step.TaskID, "Cutting the final video.")

	videoURL, err := retry.Do(func() (string, error) {
		return invoke.Invoke(ctx, e.ledger, cfg.AgentDID,
			ledger.TaskPayload{Query: step.InputQuery, Artifacts: step.InputArtifacts},
			access.AccessToken,
			func(ctx context.Context, taskID string) (string, error) {
				return e.validateSingleArtifact(ctx, cfg.AgentDID, taskID, access.AccessToken)
			})
	}, stageRetries, e.retryNotify(step.TaskID, "video compilation"))
	if err != nil {
		return err
	}

	if err := e.completeStep(ctx, step, "music video ready", []string{videoURL}, cfg.RequiredCredits); err != nil {
		return err
	}
	e.notify.Done(step.TaskID, "Your music video is ready!", []string{videoURL})
	return nil
}
