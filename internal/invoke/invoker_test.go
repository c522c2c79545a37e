package invoke

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tuneframe/orchestrator/internal/ledger"
)

type fakeTaskAPI struct {
	ackStatus int
	taskID    string
	err       error

	mu     sync.Mutex
	signal ledger.SignalHandler
	calls  int
}

func (f *fakeTaskAPI) CreateTask(ctx context.Context, agentDID string, payload ledger.TaskPayload, credential string, onSignal ledger.SignalHandler) (*ledger.TaskAck, error) {
	f.mu.Lock()
	f.calls++
	f.signal = onSignal
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ack := &ledger.TaskAck{Status: f.ackStatus}
	if f.ackStatus >= 200 && f.ackStatus < 300 {
		ack.Task = &ledger.Task{TaskID: f.taskID}
	}
	return ack, nil
}

func (f *fakeTaskAPI) getSignal() ledger.SignalHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signal
}

func TestInvoke_CompletedRunsValidatorOnce(t *testing.T) {
	api := &fakeTaskAPI{ackStatus: 201, taskID: "task-9"}
	validated := 0

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := Invoke(context.Background(), api, "did:nv:song", ledger.TaskPayload{Query: "q"}, "cred",
			func(ctx context.Context, taskID string) (string, error) {
				validated++
				if taskID != "task-9" {
					t.Errorf("Expected task-9, got %s", taskID)
				}
				return "output", nil
			})
		resultCh <- v
		errCh <- err
	}()

	// Wait for dispatch to register the signal handler.
	waitFor(t, func() bool { return api.getSignal() != nil })

	// Duplicate signals: the second must be a no-op.
	api.getSignal()("task-9", ledger.StatusCompleted)
	api.getSignal()("task-9", ledger.StatusCompleted)

	if v := <-resultCh; v != "output" {
		t.Errorf("Expected output, got %q", v)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if validated != 1 {
		t.Errorf("Validator must run exactly once, ran %d times", validated)
	}
}

func TestInvoke_FailureSignalRejects(t *testing.T) {
	api := &fakeTaskAPI{ackStatus: 201, taskID: "task-2"}

	errCh := make(chan error, 1)
	go func() {
		_, err := Invoke(context.Background(), api, "did:nv:song", ledger.TaskPayload{}, "cred",
			func(ctx context.Context, taskID string) (string, error) {
				t.Error("Validator must not run for a failed task")
				return "", nil
			})
		errCh <- err
	}()

	waitFor(t, func() bool { return api.getSignal() != nil })
	api.getSignal()("task-2", ledger.StatusFailed)

	err := <-errCh
	var tfe *TaskFailedError
	if !errors.As(err, &tfe) {
		t.Fatalf("Expected TaskFailedError, got %v", err)
	}
	if tfe.TaskID != "task-2" {
		t.Errorf("Expected task-2 in error, got %s", tfe.TaskID)
	}
}

func TestInvoke_RejectedDispatchFailsImmediately(t *testing.T) {
	api := &fakeTaskAPI{ackStatus: 402}

	_, err := Invoke(context.Background(), api, "did:nv:song", ledger.TaskPayload{}, "cred",
		func(ctx context.Context, taskID string) (string, error) {
			t.Error("Validator must not run for a rejected dispatch")
			return "", nil
		})

	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DispatchError, got %v", err)
	}
	if de.Status != 402 {
		t.Errorf("Expected status 402, got %d", de.Status)
	}
}

func TestInvoke_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	api := &fakeTaskAPI{err: boom}

	_, err := Invoke(context.Background(), api, "did:nv:song", ledger.TaskPayload{}, "cred",
		func(ctx context.Context, taskID string) (string, error) { return "", nil })
	if !errors.Is(err, boom) {
		t.Fatalf("Expected transport error, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
