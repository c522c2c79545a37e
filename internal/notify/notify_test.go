package notify

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tuneframe/orchestrator/internal/observability"
)

type captureSink struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSink) Send(chatID string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *captureSink) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func TestNotifier_PerTaskOrderPreserved(t *testing.T) {
	sink := &captureSink{}
	n := NewNotifier(nil, nil, []Messenger{sink}, "42", observability.NewLogger())

	const count = 20
	for i := 0; i < count; i++ {
		n.Progress("task-1", fmt.Sprintf("update %02d", i))
	}
	n.Close()

	got := sink.all()
	if len(got) != count {
		t.Fatalf("Expected %d deliveries, got %d", count, len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("update %02d", i)
		if msg != want {
			t.Errorf("Delivery %d: expected %q, got %q", i, want, msg)
		}
	}
}

func TestNotifier_SanitizesHTML(t *testing.T) {
	sink := &captureSink{}
	n := NewNotifier(nil, nil, []Messenger{sink}, "42", observability.NewLogger())

	n.Progress("task-1", `<b>done</b> <script>alert(1)</script>`)
	n.Close()

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(got))
	}
	if !strings.Contains(got[0], "<b>done</b>") {
		t.Errorf("Allowed markup stripped: %q", got[0])
	}
	if strings.Contains(got[0], "script") {
		t.Errorf("Disallowed markup survived: %q", got[0])
	}
}

func TestNotifier_ArtifactsAppended(t *testing.T) {
	sink := &captureSink{}
	n := NewNotifier(nil, nil, []Messenger{sink}, "42", observability.NewLogger())

	n.Done("task-1", "video ready", []string{"https://cdn/final.mp4"})
	n.Close()

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(got))
	}
	want := "video ready\nhttps://cdn/final.mp4"
	if got[0] != want {
		t.Errorf("Expected %q, got %q", want, got[0])
	}
}

func TestNotifier_EmitAfterCloseIsNoOp(t *testing.T) {
	sink := &captureSink{}
	n := NewNotifier(nil, nil, []Messenger{sink}, "42", observability.NewLogger())
	n.Close()

	n.Progress("task-1", "late")
	if len(sink.all()) != 0 {
		t.Error("Expected no delivery after Close")
	}
}
