package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeStep       EventType = "step"
	EventTypeSettlement EventType = "settlement"
	EventTypeRetry      EventType = "retry"
	EventTypeNarration  EventType = "narration"
	EventTypeChain      EventType = "chain"
	EventTypeHeartbeat  EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. Settlement events are
// additionally appended to a JSONL audit file, since they describe
// irreversible on-chain spending.
type Logger struct {
	settlementLogPath string
	maxSize           int64
}

func NewLogger() *Logger {
	return &Logger{
		settlementLogPath: filepath.Join("logs", "settlement.jsonl"),
		maxSize:           10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeSettlement {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.settlementLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.settlementLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.settlementLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.settlementLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.settlementLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogStep(taskID, stepID, name, status, detail string) {
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: taskID,
		StepID: stepID,
		Data: map[string]string{
			"name":   name,
			"status": status,
			"detail": detail,
		},
	})
}

func (l *Logger) LogSettlement(taskID, planID, phase string, detail map[string]any) {
	data := map[string]any{"plan_id": planID, "phase": phase}
	for k, v := range detail {
		data[k] = v
	}
	l.Log(Event{
		Type:   EventTypeSettlement,
		TaskID: taskID,
		Data:   data,
	})
}

func (l *Logger) LogRetry(taskID, op string, attempt, retries int, err error) {
	l.Log(Event{
		Type:   EventTypeRetry,
		TaskID: taskID,
		Data: map[string]any{
			"op":      op,
			"attempt": attempt,
			"retries": retries,
			"error":   err.Error(),
		},
	})
}

func (l *Logger) LogNarration(taskID, kind, message string) {
	l.Log(Event{
		Type:   EventTypeNarration,
		TaskID: taskID,
		Data: map[string]string{
			"kind":    kind,
			"message": message,
		},
	})
}

func (l *Logger) LogChain(taskID, op, txHash string) {
	l.Log(Event{
		Type:   EventTypeChain,
		TaskID: taskID,
		Data: map[string]string{
			"op":      op,
			"tx_hash": txHash,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}
