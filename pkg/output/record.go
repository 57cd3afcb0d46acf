// Package output provides JSONL output for CLI results.
//
// Output is structured as typed record envelopes containing frameworks,
// kernel sessions, errors and summaries. Each line is a self-contained JSON
// object that can be parsed independently.
package output

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: mesosproxy.<type>.v<version>
const (
	// TypeFramework identifies framework listing records.
	TypeFramework = "mesosproxy.framework.v1"

	// TypeSession identifies kernel session records.
	TypeSession = "mesosproxy.session.v1"

	// TypeError identifies error records.
	TypeError = "mesosproxy.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "mesosproxy.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// The type field determines how to interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "mesosproxy.framework.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this CLI invocation.
	RunID string `json:"run_id"`

	// Endpoint is the Mesos master endpoint the records refer to.
	Endpoint string `json:"endpoint"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// FrameworkRecord describes one framework known to the master.
type FrameworkRecord struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// SessionRecord is the data payload for a persisted kernel session.
type SessionRecord struct {
	KernelID      string    `json:"kernel_id"`
	ApplicationID string    `json:"application_id,omitempty"`
	PID           int       `json:"pid,omitempty"`
	IP            string    `json:"ip,omitempty"`
	State         string    `json:"state"`
	Alive         *bool     `json:"alive,omitempty"`
	SavedAt       time.Time `json:"saved_at,omitempty"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// KernelID is the kernel related to this error, if applicable.
	KernelID string `json:"kernel_id,omitempty"`

	// StatusCode is the HTTP status returned by the master, if any.
	StatusCode int `json:"status_code,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeUnprocessable   = "UNPROCESSABLE"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeInternal        = "INTERNAL"
)

// SummaryRecord is emitted at the end of a listing with aggregate counts.
type SummaryRecord struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Matched   int `json:"matched"`

	// Duration is the total command duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // marshal_data, marshal_record or write
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
