package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/tuneframe/orchestrator/internal/invoke"
	"github.com/tuneframe/orchestrator/internal/ledger"
	"github.com/tuneframe/orchestrator/internal/observability"
	"github.com/tuneframe/orchestrator/internal/payments"
	"github.com/tuneframe/orchestrator/internal/retry"
	"github.com/tuneframe/orchestrator/pkg/config"
)

// Each remote invocation gets 2 retries (3 attempts).
const stageRetries = 2

// Ledger is the slice of the external step/task ledger the engine
// drives the pipeline through.
type Ledger interface {
	GetStep(ctx context.Context, stepID string) (*ledger.Step, error)
	UpdateStep(ctx context.Context, stepID string, patch ledger.StepPatch) error
	CreateSteps(ctx context.Context, parentStepID, taskID string, steps []ledger.Step) error
	CreateTask(ctx context.Context, agentDID string, payload ledger.TaskPayload, credential string, onSignal ledger.SignalHandler) (*ledger.TaskAck, error)
	GetTaskWithSteps(ctx context.Context, agentDID, taskID, credential string) (*ledger.Task, error)
	GetServiceAccessConfig(ctx context.Context, agentDID string) (*ledger.AccessConfig, error)
	GetAssetDDO(ctx context.Context, planID string) (*ledger.DDO, error)
}

// Settler gates paid work on a plan holding enough credits.
type Settler interface {
	EnsureBalance(ctx context.Context, taskID string, plan *payments.PlanAccount, required int64) error
}

// Narrator receives the user-facing story of a run.
type Narrator interface {
	Progress(taskID, message string)
	Warning(taskID, message string)
	Error(taskID, message string)
	Done(taskID, message string, artifacts []string)
}

// Engine routes step-updated notifications to stage handlers. Every
// handler settles payment before spending, dispatches the remote
// agent(s), and writes the step's terminal state back to the ledger.
// A stage failure never escapes the step boundary: it is written to
// the failing step and the routing loop keeps serving other work.
type Engine struct {
	ledger Ledger
	settle Settler
	notify Narrator
	log    *observability.Logger
	stages *config.StageRegistry

	mu    sync.Mutex
	plans map[string]*payments.PlanAccount
}

func NewEngine(api Ledger, settle Settler, notify Narrator, stages *config.StageRegistry, logger *observability.Logger) *Engine {
	return &Engine{
		ledger: api,
		settle: settle,
		notify: notify,
		log:    logger,
		stages: stages,
		plans:  make(map[string]*payments.PlanAccount),
	}
}

// HandleEvent processes one ledger notification. Non-Pending steps
// are no-ops (terminal states are never re-entered, and at-least-once
// delivery makes duplicates routine). Unrecognized step names are
// logged and ignored for forward compatibility.
func (e *Engine) HandleEvent(ctx context.Context, evt ledger.Event) {
	if evt.Type != ledger.EventStepUpdated {
		return
	}

	step, err := e.ledger.GetStep(ctx, evt.StepID)
	if err != nil {
		log.Printf("pipeline: could not load step %s: %v", evt.StepID, err)
		return
	}
	if step.Status != ledger.StatusPending {
		return
	}

	stage, ok := ParseStage(step.Name)
	if !ok {
		log.Printf("pipeline: ignoring step %s with unrecognized name %q", step.StepID, step.Name)
		return
	}

	observability.RunStarted(string(stage))
	defer observability.RunFinished()
	e.log.LogStep(step.TaskID, step.StepID, step.Name, string(step.Status), "handling")

	switch stage {
	case StageInit:
		err = e.handleInit(ctx, step)
	case StageSong:
		err = e.handleSong(ctx, step)
	case StageScript:
		err = e.handleScript(ctx, step)
	case StageImages:
		err = e.handleImages(ctx, step)
	case StageVideo:
		err = e.handleVideo(ctx, step)
	case StageCompile:
		err = e.handleCompile(ctx, step)
	}
	if err != nil {
		e.failStep(ctx, step, err)
	}
}

// failStep writes the step Failed with a human-readable message and
// halts the chain there: no successor steps are created past a
// failure.
func (e *Engine) failStep(ctx context.Context, step *ledger.Step, cause error) {
	e.notify.Error(step.TaskID, fmt.Sprintf("The %s stage failed: %v", step.Name, cause))
	e.log.LogStep(step.TaskID, step.StepID, step.Name, string(ledger.StatusFailed), cause.Error())

	patch := ledger.StepPatch{Status: ledger.StatusFailed, Output: cause.Error()}
	if err := e.ledger.UpdateStep(ctx, step.StepID, patch); err != nil {
		log.Printf("pipeline: could not record failure of step %s: %v", step.StepID, err)
	}
}

func (e *Engine) completeStep(ctx context.Context, step *ledger.Step, output string, artifacts []string, cost int64) error {
	patch := ledger.StepPatch{
		Status:          ledger.StatusCompleted,
		Output:          output,
		OutputArtifacts: artifacts,
	}
	if cost > 0 {
		patch.Cost = &cost
	}
	if err := e.ledger.UpdateStep(ctx, step.StepID, patch); err != nil {
		return fmt.Errorf("could not record step completion: %w", err)
	}
	e.log.LogStep(step.TaskID, step.StepID, step.Name, string(ledger.StatusCompleted), "")
	return nil
}

func (e *Engine) stageConfig(stage Stage) (config.StageConfig, error) {
	cfg, ok := e.stages.Get(string(stage))
	if !ok {
		return config.StageConfig{}, fmt.Errorf("no agent configured for stage %s", stage)
	}
	return cfg, nil
}

// planFor returns the shared, read-mostly plan account for a plan
// id. Accounts are created on first reference and never evicted
// within a run.
func (e *Engine) planFor(planID string) *payments.PlanAccount {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.plans[planID]
	if !ok {
		acct = payments.NewPlanAccount(planID, e.ledger)
		e.plans[planID] = acct
	}
	return acct
}

func (e *Engine) retryNotify(taskID, op string) retry.OnError {
	return func(err error, attempt, retries int) {
		e.log.LogRetry(taskID, op, attempt, retries, err)
		e.notify.Progress(taskID, fmt.Sprintf(
			"The %s hit a snag (attempt %d of %d), trying again.", op, attempt+1, retries+1))
	}
}

func (e *Engine) fanOutNotify(taskID, op string) invoke.ItemError {
	return func(index int, err error, attempt, retries int) {
		e.log.LogRetry(taskID, fmt.Sprintf("%s %d", op, index), attempt, retries, err)
		e.notify.Progress(taskID, fmt.Sprintf(
			"Retrying %s %d (attempt %d of %d).", op, index+1, attempt+1, retries+1))
	}
}

// validateSingleArtifact reads back a completed task and expects
// exactly one usable artifact, the common case for media agents.
func (e *Engine) validateSingleArtifact(ctx context.Context, agentDID, taskID, credential string) (string, error) {
	task, err := e.ledger.GetTaskWithSteps(ctx, agentDID, taskID, credential)
	if err != nil {
		return "", err
	}
	if task == nil || len(task.OutputArtifacts) == 0 || task.OutputArtifacts[0] == "" {
		return "", &invoke.ValidationError{TaskID: taskID, Reason: "no output artifact returned"}
	}
	return task.OutputArtifacts[0], nil
}
