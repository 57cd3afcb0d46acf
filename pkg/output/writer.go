package output

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Writer outputs JSONL records.
//
// Implementations must be safe for concurrent use. Each Write* method emits
// a complete record as a single line of JSON followed by a newline.
type Writer interface {
	WriteFramework(ctx context.Context, fw *FrameworkRecord) error
	WriteSession(ctx context.Context, s *SessionRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
// Writes are serialized so lines never interleave.
type JSONLWriter struct {
	w        io.Writer
	runID    string
	endpoint string
	now      func() time.Time
	mu       sync.Mutex
	closed   bool
}

// NewJSONLWriter creates a new JSONL writer stamping every envelope with
// runID and endpoint.
func NewJSONLWriter(w io.Writer, runID, endpoint string) *JSONLWriter {
	return &JSONLWriter{
		w:        w,
		runID:    runID,
		endpoint: endpoint,
		now:      time.Now,
	}
}

// WriteFramework emits a framework record.
func (jw *JSONLWriter) WriteFramework(ctx context.Context, fw *FrameworkRecord) error {
	return jw.writeRecord(ctx, TypeFramework, fw)
}

// WriteSession emits a session record.
func (jw *JSONLWriter) WriteSession(ctx context.Context, s *SessionRecord) error {
	return jw.writeRecord(ctx, TypeSession, s)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed. The underlying writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:     recordType,
		TS:       jw.now().UTC(),
		RunID:    jw.runID,
		Endpoint: jw.endpoint,
		Data:     dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may report a short write with a nil error.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
