package pipeline

import (
	"context"
	"fmt"

	"github.com/tuneframe/orchestrator/internal/invoke"
	"github.com/tuneframe/orchestrator/internal/ledger"
)

// handleImages renders one image per script prompt, all in parallel.
// The fan-out never short-circuits: every prompt gets its full retry
// budget even when siblings have already failed, and results keep the
// prompt order.
func (e *Engine) handleImages(ctx context.Context, step *ledger.Step) error {
	cfg, err := e.stageConfig(StageImages)
	if err != nil {
		return err
	}
	if len(step.InputArtifacts) == 0 {
		return fmt.Errorf("no song artifact from the previous stage")
	}
	script, err := parseScript(step.InputQuery)
	if err != nil {
		return err
	}
	prompts := script.ImagePrompts

	required := cfg.RequiredCredits + cfg.CreditsPerItem*int64(len(prompts))
	if err := e.settle.EnsureBalance(ctx, step.TaskID, e.planFor(cfg.PlanID), required); err != nil {
		return err
	}
	access, err := e.ledger.GetServiceAccessConfig(ctx, cfg.AgentDID)
	if err != nil {
		return fmt.Errorf("could not obtain credential for image agent: %w", err)
	}

	e.notify.Progress(step.TaskID, fmt.Sprintf("Painting %d scenes.", len(prompts)))

	items := make([]func(context.Context) (string, error), len(prompts))
	for i, prompt := range prompts {
		items[i] = func(ctx context.Context) (string, error) {
			return invoke.Invoke(ctx, e.ledger, cfg.AgentDID,
				ledger.TaskPayload{Query: prompt},
				access.AccessToken,
				func(ctx context.Context, taskID string) (string, error) {
					return e.validateSingleArtifact(ctx, cfg.AgentDID, taskID, access.AccessToken)
				})
		}
	}

	result, err := invoke.FanOut(ctx, items, stageRetries, e.fanOutNotify(step.TaskID, "scene"), cfg.MaxFailures)
	if err != nil {
		return err
	}
	if result.Failures > 0 {
		e.notify.Warning(step.TaskID, fmt.Sprintf(
			"%d of %d scenes could not be rendered; continuing with the rest.",
			result.Failures, len(prompts)))
	}

	// Slot 0 stays the song so the compiler can find it later.
	artifacts := append(step.InputArtifacts[:1:1], result.Values...)
	return e.completeStep(ctx, step, step.InputQuery, artifacts, required)
}
