package pipeline

import (
	"context"
	"fmt"

	"github.com/tuneframe/orchestrator/internal/invoke"
	"github.com/tuneframe/orchestrator/internal/ledger"
)

// handleVideo animates every rendered image into a short clip. Clip
// generation is the flakiest stage, so its failure budget comes from
// configuration rather than being all-or-nothing.
func (e *Engine) handleVideo(ctx context.Context, step *ledger.Step) error {
	cfg, err := e.stageConfig(StageVideo)
	if err != nil {
		return err
	}
	if len(step.InputArtifacts) < 2 {
		return fmt.Errorf("no scene images to animate")
	}
	song := step.InputArtifacts[0]
	images := step.InputArtifacts[1:]

	script, err := parseScript(step.InputQuery)
	if err != nil {
		return err
	}

	required := cfg.RequiredCredits + cfg.CreditsPerItem*int64(len(images))
	if err := e.settle.EnsureBalance(ctx, step.TaskID, e.planFor(cfg.PlanID), required); err != nil {
		return err
	}
	access, err := e.ledger.GetServiceAccessConfig(ctx, cfg.AgentDID)
	if err != nil {
		return fmt.Errorf("could not obtain credential for video agent: %w", err)
	}

	e.notify.Progress(step.TaskID, fmt.Sprintf("Animating %d scenes into clips.", len(images)))

	items := make([]func(context.Context) (string, error), len(images))
	for i, image := range images {
		items[i] = func(ctx context.Context) (string, error) {
			return invoke.Invoke(ctx, e.ledger, cfg.AgentDID,
				ledger.TaskPayload{Query: script.Style, Artifacts: []string{image}},
				access.AccessToken,
				func(ctx context.Context, taskID string) (string, error) {
					return e.validateSingleArtifact(ctx, cfg.AgentDID, taskID, access.AccessToken)
				})
		}
	}

	result, err := invoke.FanOut(ctx, items, stageRetries, e.fanOutNotify(step.TaskID, "clip"), cfg.MaxFailures)
	if err != nil {
		return err
	}
	if result.Failures > 0 {
		e.notify.Warning(step.TaskID, fmt.Sprintf(
			"%d of %d clips could not be animated; the final cut will skip them.",
			result.Failures, len(images)))
	}

	artifacts := append([]string{song}, result.Values...)
	return e.completeStep(ctx, step, step.InputQuery, artifacts, required)
}
