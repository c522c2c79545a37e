package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// RemoteError is a failed ledger call: a transport error or a
// non-2xx response. Callers treat these as transient and retry.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ledger: %s: unexpected status %d", e.Op, e.Status)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Client talks to the external step/task ledger over HTTP and
// delivers its notifications. Completion-signal handlers registered
// through CreateTask are dispatched from the subscription loop.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu      sync.Mutex
	signals map[string]SignalHandler
	cursor  int64
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 90 * time.Second},
		signals: make(map[string]SignalHandler),
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RemoteError{Op: op, Err: err}
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Op: op, Status: resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &RemoteError{Op: op, Err: err}
		}
	}
	return nil
}

// GetStep loads one step by identifier.
func (c *Client) GetStep(ctx context.Context, stepID string) (*Step, error) {
	var s Step
	if err := c.do(ctx, "get step", http.MethodGet, "/v1/steps/"+url.PathEscape(stepID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateStep writes the terminal outcome of a step.
func (c *Client) UpdateStep(ctx context.Context, stepID string, patch StepPatch) error {
	return c.do(ctx, "update step", http.MethodPut, "/v1/steps/"+url.PathEscape(stepID), patch, nil)
}

// CreateSteps registers a batch of successor steps under a task.
func (c *Client) CreateSteps(ctx context.Context, parentStepID, taskID string, steps []Step) error {
	body := map[string]any{"parent_step_id": parentStepID, "steps": steps}
	return c.do(ctx, "create steps", http.MethodPost, "/v1/tasks/"+url.PathEscape(taskID)+"/steps", body, nil)
}

// CreateTask dispatches one remote task to an agent and registers
// onSignal for its asynchronous terminal status. The handler is kept
// until the process exits; duplicate signals are the consumer's
// problem (the invoker resolves at most once).
func (c *Client) CreateTask(ctx context.Context, agentDID string, payload TaskPayload, credential string, onSignal SignalHandler) (*TaskAck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/agents/"+url.PathEscape(agentDID)+"/tasks", marshalReader(payload))
	if err != nil {
		return nil, &RemoteError{Op: "create task", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: "create task", Err: err}
	}
	defer resp.Body.Close()

	ack := &TaskAck{Status: resp.StatusCode}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var body struct {
			Task *Task `json:"task"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, &RemoteError{Op: "create task", Err: err}
		}
		ack.Task = body.Task
	}

	if ack.Accepted() && ack.Task != nil && onSignal != nil {
		c.mu.Lock()
		c.signals[ack.Task.TaskID] = onSignal
		c.mu.Unlock()
	}
	return ack, nil
}

// GetTaskWithSteps reads back the full task record from an agent.
func (c *Client) GetTaskWithSteps(ctx context.Context, agentDID, taskID, credential string) (*Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/agents/"+url.PathEscape(agentDID)+"/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, &RemoteError{Op: "get task", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: "get task", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Op: "get task", Status: resp.StatusCode}
	}

	var body struct {
		Task *Task `json:"task"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &RemoteError{Op: "get task", Err: err}
	}
	return body.Task, nil
}

// GetServiceAccessConfig obtains the credential for calling an agent.
func (c *Client) GetServiceAccessConfig(ctx context.Context, agentDID string) (*AccessConfig, error) {
	var cfg AccessConfig
	if err := c.do(ctx, "get access config", http.MethodGet,
		"/v1/agents/"+url.PathEscape(agentDID)+"/access", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetPlanBalance queries the current credit balance of a plan.
func (c *Client) GetPlanBalance(ctx context.Context, planID string) (*Balance, error) {
	var b Balance
	if err := c.do(ctx, "get plan balance", http.MethodGet,
		"/v1/plans/"+url.PathEscape(planID)+"/balance", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// OrderPlan purchases more credit on a plan through the ledger.
func (c *Client) OrderPlan(ctx context.Context, planID string) (*OrderResult, error) {
	var r OrderResult
	if err := c.do(ctx, "order plan", http.MethodPost,
		"/v1/plans/"+url.PathEscape(planID)+"/order", map[string]any{}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetAssetDDO resolves a plan's descriptor document from the registry.
func (c *Client) GetAssetDDO(ctx context.Context, planID string) (*DDO, error) {
	var d DDO
	if err := c.do(ctx, "get asset ddo", http.MethodGet,
		"/v1/plans/"+url.PathEscape(planID)+"/ddo", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Subscribe long-polls the ledger for notifications and invokes
// handler for every event whose type is in eventTypes. Task-updated
// events with a terminal status additionally dispatch any completion
// signal registered by CreateTask. Delivery is at-least-once; the
// loop runs until ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, handler func(Event), eventTypes []string) {
	wanted := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := c.pollEvents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ledger: event poll failed: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}

		for _, evt := range events {
			if evt.Type == EventTaskUpdated && evt.Status.Terminal() {
				c.dispatchSignal(evt.TaskID, evt.Status)
			}
			if wanted[evt.Type] {
				handler(evt)
			}
		}
	}
}

func (c *Client) pollEvents(ctx context.Context) ([]Event, error) {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	var body struct {
		Events []Event `json:"events"`
		Cursor int64   `json:"cursor"`
	}
	path := "/v1/events?timeout=60&cursor=" + strconv.FormatInt(cursor, 10)
	if err := c.do(ctx, "poll events", http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if body.Cursor > c.cursor {
		c.cursor = body.Cursor
	}
	c.mu.Unlock()
	return body.Events, nil
}

func (c *Client) dispatchSignal(taskID string, status StepStatus) {
	c.mu.Lock()
	h := c.signals[taskID]
	c.mu.Unlock()
	if h != nil {
		h(taskID, status)
	}
}

func marshalReader(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}
