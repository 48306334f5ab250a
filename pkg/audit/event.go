// Package audit provides a run-event journal for collection and analysis operations.
package audit

import (
	"fmt"
	"time"
)

// Event represents an auditable collector event: a bastion connect/disconnect,
// a full collection run, or a security-analysis pass.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Device    string    `json:"device,omitempty"`
	Operation string    `json:"operation"`
	RunID     string    `json:"run_id,omitempty"`
	Group     string    `json:"group,omitempty"`
	Layers    []string  `json:"layers,omitempty"`

	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	DryRun    bool          `json:"dry_run"`
	Duration  time.Duration `json:"duration"`
	ClientIP  string        `json:"client_ip,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
}

// EventType categorizes audit events.
type EventType string

const (
	EventTypeConnect     EventType = "connect"
	EventTypeDisconnect  EventType = "disconnect"
	EventTypeRunStart    EventType = "run_start"
	EventTypeRunComplete EventType = "run_complete"
	EventTypeAnalyze     EventType = "analyze_security"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	Device      string
	User        string
	Operation   string
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event.
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithRun sets the run identifier.
func (e *Event) WithRun(runID string) *Event {
	e.RunID = runID
	return e
}

// WithGroup sets the inventory group selector that produced this run.
func (e *Event) WithGroup(group string) *Event {
	e.Group = group
	return e
}

// WithLayers sets the collected layer names.
func (e *Event) WithLayers(layers []string) *Event {
	e.Layers = layers
	return e
}

// WithSuccess marks the event as successful.
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithDryRun marks whether this event came from a dry-run invocation.
func (e *Event) WithDryRun(dryRun bool) *Event {
	e.DryRun = dryRun
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
