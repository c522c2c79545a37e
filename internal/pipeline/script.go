package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tuneframe/orchestrator/internal/invoke"
	"github.com/tuneframe/orchestrator/internal/ledger"
	"github.com/tuneframe/orchestrator/internal/retry"
)

// MusicScript is the structured screenplay the script agent produces
// from the song's lyrics. ImagePrompts drive the image fan-out, one
// scene per prompt.
type MusicScript struct {
	Title        string   `json:"title"`
	Style        string   `json:"style"`
	ImagePrompts []string `json:"image_prompts"`
}

func parseScript(raw string) (*MusicScript, error) {
	var script MusicScript
	if err := json.Unmarshal([]byte(raw), &script); err != nil {
		return nil, fmt.Errorf("could not parse music script: %w", err)
	}
	if len(script.ImagePrompts) == 0 {
		return nil, fmt.Errorf("music script has no image prompts")
	}
	return &script, nil
}

// handleScript turns the lyrics into a scene-by-scene script. The
// validator parses the agent's output so a malformed script counts as
// a failed attempt rather than poisoning the stages downstream.
func (e *Engine) handleScript(ctx context.Context, step *ledger.Step) error {
	cfg, err := e.stageConfig(StageScript)
	if err != nil {
		return err
	}
	if err := e.settle.EnsureBalance(ctx, step.TaskID, e.planFor(cfg.PlanID), cfg.RequiredCredits); err != nil {
		return err
	}
	access, err := e.ledger.GetServiceAccessConfig(ctx, cfg.AgentDID)
	if err != nil {
		return fmt.Errorf("could not obtain credential for script agent: %w", err)
	}

	e.notify.Progress(step.TaskID, "Writing the music video script.")

	raw, err := retry.Do(func() (string, error) {
		return invoke.Invoke(ctx, e.ledger, cfg.AgentDID,
			ledger.TaskPayload{Query: step.InputQuery, Artifacts: step.InputArtifacts},
			access.AccessToken,
			func(ctx context.Context, taskID string) (string, error) {
				task, err := e.ledger.GetTaskWithSteps(ctx, cfg.AgentDID, taskID, access.AccessToken)
				if err != nil {
					return "", err
				}
				if task == nil || task.Output == "" {
					return "", &invoke.ValidationError{TaskID: taskID, Reason: "no script returned"}
				}
				if _, err := parseScript(task.Output); err != nil {
					return "", &invoke.ValidationError{TaskID: taskID, Reason: err.Error()}
				}
				return task.Output, nil
			})
	}, stageRetries, e.retryNotify(step.TaskID, "script generation"))
	if err != nil {
		return err
	}

	script, err := parseScript(raw)
	if err != nil {
		return err
	}
	e.notify.Progress(step.TaskID, fmt.Sprintf(
		"Script ready: %q, %d scenes.", script.Title, len(script.ImagePrompts)))
	return e.completeStep(ctx, step, raw, step.InputArtifacts, cfg.RequiredCredits)
}
