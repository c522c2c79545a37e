package pipeline

import (
	"context"
	"fmt"

	"github.com/tuneframe/orchestrator/internal/invoke"
	"github.com/tuneframe/orchestrator/internal/ledger"
	"github.com/tuneframe/orchestrator/internal/retry"
)

type songResult struct {
	URL    string
	Lyrics string
}

// handleSong asks the song agent to compose a track from the user's
// prompt. Output carries the lyrics forward; artifact slot 0 carries
// the song URL through the rest of the chain.
func (e *Engine) handleSong(ctx context.Context, step *ledger.Step) error {
	cfg, err := e.stageConfig(StageSong)
	if err != nil {
		return err
	}
	if err := e.settle.EnsureBalance(ctx, step.TaskID, e.planFor(cfg.PlanID), cfg.RequiredCredits); err != nil {
		return err
	}
	access, err := e.ledger.GetServiceAccessConfig(ctx, cfg.AgentDID)
	if err != nil {
		return fmt.Errorf("could not obtain credential for song agent: %w", err)
	}

	e.notify.Progress(step.TaskID, "Composing your song now.")

	song, err := retry.Do(func() (songResult, error) {
		return invoke.Invoke(ctx, e.ledger, cfg.AgentDID,
			ledger.TaskPayload{Query: step.InputQuery},
			access.AccessToken,
			func(ctx context.Context, taskID string) (songResult, error) {
				task, err := e.ledger.GetTaskWithSteps(ctx, cfg.AgentDID, taskID, access.AccessToken)
				if err != nil {
					return songResult{}, err
				}
				if task == nil || len(task.OutputArtifacts) == 0 || task.OutputArtifacts[0] == "" {
					return songResult{}, &invoke.ValidationError{TaskID: taskID, Reason: "no song artifact returned"}
				}
				return songResult{URL: task.OutputArtifacts[0], Lyrics: task.Output}, nil
			})
	}, stageRetries, e.retryNotify(step.TaskID, "song generation"))
	if err != nil {
		return err
	}

	e.notify.Progress(step.TaskID, "Your song is ready. Writing the script next.")
	return e.completeStep(ctx, step, song.Lyrics, []string{song.URL}, cfg.RequiredCredits)
}
