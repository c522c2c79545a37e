package observability

import (
	"sync"
	"time"
)

type SystemStatus struct {
	mu             sync.RWMutex
	ActiveRuns     int
	CurrentStage   string
	LastSettlement string
	LastHeartbeat  time.Time
}

var globalStatus = &SystemStatus{
	LastHeartbeat: time.Now(),
}

// RunStarted records that a pipeline step began executing.
func RunStarted(stage string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.ActiveRuns++
	globalStatus.CurrentStage = stage
}

// RunFinished records that a pipeline step finished.
func RunFinished() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if globalStatus.ActiveRuns > 0 {
		globalStatus.ActiveRuns--
	}
	if globalStatus.ActiveRuns == 0 {
		globalStatus.CurrentStage = ""
	}
}

// SetLastSettlement records a short summary of the latest settlement.
func SetLastSettlement(summary string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastSettlement = summary
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (int, string, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.ActiveRuns, globalStatus.CurrentStage, globalStatus.LastSettlement, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
