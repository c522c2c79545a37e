package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func item(value string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) { return value, nil }
}

func failing() func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) { return "", errors.New("agent down") }
}

func TestFanOut_AllSucceed(t *testing.T) {
	items := []func(ctx context.Context) (string, error){item("a"), item("b"), item("c")}

	res, err := FanOut(context.Background(), items, 2, nil, 0)
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if res.Failures != 0 {
		t.Errorf("Expected 0 failures, got %d", res.Failures)
	}
	want := []string{"a", "b", "c"}
	for i, v := range want {
		if res.Values[i] != v {
			t.Errorf("Slot %d: expected %s, got %s", i, v, res.Values[i])
		}
	}
}

func TestFanOut_FailuresWithinBudget(t *testing.T) {
	// Slot 1 fails; the survivors keep their input order.
	items := []func(ctx context.Context) (string, error){item("a"), failing(), item("c"), item("d")}

	res, err := FanOut(context.Background(), items, 1, nil, 2)
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if res.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", res.Failures)
	}
	want := []string{"a", "c", "d"}
	if len(res.Values) != len(want) {
		t.Fatalf("Expected %d values, got %v", len(want), res.Values)
	}
	for i, v := range want {
		if res.Values[i] != v {
			t.Errorf("Slot %d: expected %s, got %s", i, v, res.Values[i])
		}
	}
}

func TestFanOut_FailuresExceedBudget(t *testing.T) {
	items := []func(ctx context.Context) (string, error){failing(), item("b"), failing(), failing()}

	res, err := FanOut(context.Background(), items, 0, nil, 2)
	if res != nil {
		t.Error("Expected no partial output when the budget is exceeded")
	}
	var pfe *PartialFanOutError
	if !errors.As(err, &pfe) {
		t.Fatalf("Expected PartialFanOutError, got %v", err)
	}
	if pfe.Failed != 3 || pfe.Budget != 2 || pfe.Total != 4 {
		t.Errorf("Unexpected counts: %+v", pfe)
	}
}

func TestFanOut_NeverShortCircuits(t *testing.T) {
	var started atomic.Int32
	items := make([]func(ctx context.Context) (string, error), 5)
	items[0] = func(ctx context.Context) (string, error) {
		started.Add(1)
		return "", errors.New("immediate failure")
	}
	for i := 1; i < 5; i++ {
		i := i
		items[i] = func(ctx context.Context) (string, error) {
			started.Add(1)
			return fmt.Sprintf("v%d", i), nil
		}
	}

	res, err := FanOut(context.Background(), items, 0, nil, 4)
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if started.Load() != 5 {
		t.Errorf("Expected all 5 sub-tasks to run, got %d", started.Load())
	}
	if res.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", res.Failures)
	}
}

func TestFanOut_PerItemRetryAndCallback(t *testing.T) {
	var attempts atomic.Int32
	items := []func(ctx context.Context) (string, error){
		func(ctx context.Context) (string, error) {
			if attempts.Add(1) < 3 {
				return "", errors.New("transient")
			}
			return "recovered", nil
		},
	}

	type cb struct{ index, attempt int }
	var calls []cb
	res, err := FanOut(context.Background(), items, 2, func(index int, err error, attempt, retries int) {
		calls = append(calls, cb{index, attempt})
	}, 0)
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}
	if res.Values[0] != "recovered" {
		t.Errorf("Expected recovered, got %s", res.Values[0])
	}
	if len(calls) != 2 {
		t.Fatalf("Expected 2 retry callbacks, got %d", len(calls))
	}
	for i, c := range calls {
		if c.index != 0 || c.attempt != i {
			t.Errorf("Callback %d: expected index 0 attempt %d, got %+v", i, i, c)
		}
	}
}
