package stores

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an invocation does not exist.
var ErrNotFound = errors.New("invocation not found")

// Invocation is one journaled orchestrator invocation
type Invocation struct {
	ID              string     `json:"id"`
	EventType       string     `json:"event_type"`
	ApplicationID   string     `json:"application_id"`
	RequestID       string     `json:"request_id,omitempty"`
	Phase           string     `json:"phase"`
	StreamArn       string     `json:"stream_arn,omitempty"`
	PinpointRoleArn string     `json:"pinpoint_role_arn,omitempty"`
	Error           *string    `json:"error,omitempty"`
	ErrorKind       *string    `json:"error_kind,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Steps           []Step     `json:"steps,omitempty"`
}

// Succeeded reports whether the invocation completed without error.
func (i *Invocation) Succeeded() bool {
	return i.CompletedAt != nil && i.Error == nil
}

// Step is one journaled orchestration step
type Step struct {
	Seq       int           `json:"seq"`
	Name      string        `json:"name"`
	Resource  string        `json:"resource"`
	Status    string        `json:"status"`
	Error     *string       `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ListOptions filters ListInvocations
type ListOptions struct {
	// ApplicationID restricts the listing to one application when set.
	ApplicationID string

	// Limit caps the number of rows. Zero means 50.
	Limit int

	// Offset skips rows for pagination.
	Offset int
}
