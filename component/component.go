// Package component defines the lifecycle and health contracts shared
// by the engine's long-running parts (engine, sweeper, audit flusher,
// servers). A component is created, initialized once, started with a
// context, and stopped with a timeout.
package component

import (
	"context"
	"time"
)

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "engine", "sweeper", "server", "storage"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus describes the current operational health of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current event flow through a component
type FlowMetrics struct {
	EventsPerSecond float64   `json:"events_per_second"`
	ErrorRate       float64   `json:"error_rate"`
	LastActivity    time.Time `json:"last_activity"`
}

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during a lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle defines components that support full lifecycle management:
//   - Initialize() error                  // Setup/create only, NO context
//   - Start(ctx context.Context) error    // Start with context passed through
//   - Stop(timeout time.Duration) error   // Graceful shutdown with timeout
//
// The component never stores the context; it receives it as a parameter
// and derives its background goroutines' lifetimes from it.
type Lifecycle interface {
	Meta() Metadata
	Health() HealthStatus
	DataFlow() FlowMetrics

	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
