package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tuneframe/orchestrator/internal/observability"
)

// Kind categorizes a narration record.
type Kind string

const (
	KindProgress Kind = "progress"
	KindWarning  Kind = "warning"
	KindError    Kind = "error"
	KindDone     Kind = "done"
)

// Record is one unit of user-facing narration. The pipeline and the
// settlement protocol only produce these; nothing ever reads
// acknowledgements back.
type Record struct {
	TaskID    string
	Kind      Kind
	Message   string
	Metadata  map[string]string
	Artifacts []string
}

// Messenger delivers narration text to one chat destination.
type Messenger interface {
	Send(chatID string, text string) error
}

// Notifier fans narration out to the journal and the configured
// messengers. Records for one task are delivered in emit order
// through a per-task queue; queues are created on first reference
// and live until Close.
type Notifier struct {
	journal   *Journal
	rephraser *Rephraser
	policy    *bluemonday.Policy
	sinks     []Messenger
	chatID    string
	log       *observability.Logger

	mu     sync.Mutex
	queues map[string]chan Record
	wg     sync.WaitGroup
	closed bool
}

// NewNotifier builds a notifier. journal and rephraser may be nil;
// sinks may be empty (narration still reaches the journal and log).
func NewNotifier(journal *Journal, rephraser *Rephraser, sinks []Messenger, chatID string, logger *observability.Logger) *Notifier {
	// Telegram accepts a small HTML subset; strip anything else the
	// language model may produce.
	policy := bluemonday.NewPolicy()
	policy.AllowElements("b", "strong", "i", "em", "u", "s", "code", "pre")
	policy.AllowAttrs("href").OnElements("a")

	return &Notifier{
		journal:   journal,
		rephraser: rephraser,
		policy:    policy,
		sinks:     sinks,
		chatID:    chatID,
		log:       logger,
		queues:    make(map[string]chan Record),
	}
}

// Emit records and delivers one narration record. Journal and log
// writes happen inline so they preserve global emit order; messenger
// delivery is serialized per task but asynchronous to the caller.
func (n *Notifier) Emit(rec Record) {
	n.log.LogNarration(rec.TaskID, string(rec.Kind), rec.Message)
	if n.journal != nil {
		if err := n.journal.Append(rec); err != nil {
			log.Printf("notify: journal append failed: %v", err)
		}
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	q, ok := n.queues[rec.TaskID]
	if !ok {
		q = make(chan Record, 64)
		n.queues[rec.TaskID] = q
		n.wg.Add(1)
		go n.drain(q)
	}
	n.mu.Unlock()

	select {
	case q <- rec:
	default:
		// A full queue means a sink is stuck; narration is best-effort.
		log.Printf("notify: dropping narration for task %s (queue full)", rec.TaskID)
	}
}

func (n *Notifier) drain(q chan Record) {
	defer n.wg.Done()
	for rec := range q {
		n.deliver(rec)
	}
}

func (n *Notifier) deliver(rec Record) {
	msg := rec.Message
	if n.rephraser != nil && (rec.Kind == KindProgress || rec.Kind == KindDone) {
		// Errors and warnings go out verbatim; prettifying a failure
		// report risks losing the detail the user needs.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		msg = n.rephraser.Rephrase(ctx, rec)
		cancel()
	}
	msg = n.policy.Sanitize(msg)

	for _, artifact := range rec.Artifacts {
		msg += "\n" + artifact
	}

	for _, sink := range n.sinks {
		if err := sink.Send(n.chatID, msg); err != nil {
			log.Printf("notify: send failed for task %s: %v", rec.TaskID, err)
		}
	}
}

// Close stops accepting records and waits for queued deliveries.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	for _, q := range n.queues {
		close(q)
	}
	n.mu.Unlock()
	n.wg.Wait()
}

// Progress emits a progress record.
func (n *Notifier) Progress(taskID, message string) {
	n.Emit(Record{TaskID: taskID, Kind: KindProgress, Message: message})
}

// Warning emits a warning record.
func (n *Notifier) Warning(taskID, message string) {
	n.Emit(Record{TaskID: taskID, Kind: KindWarning, Message: message})
}

// Error emits an error record.
func (n *Notifier) Error(taskID, message string) {
	n.Emit(Record{TaskID: taskID, Kind: KindError, Message: message})
}

// Done emits a completion record with its artifacts.
func (n *Notifier) Done(taskID, message string, artifacts []string) {
	n.Emit(Record{TaskID: taskID, Kind: KindDone, Message: message, Artifacts: artifacts})
}
