package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var stderr io.Writer = os.Stderr

// FileExporter writes one JSON object per span, for reading with jq.
type FileExporter struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewFileExporter appends spans to path, creating parent directories.
func NewFileExporter(path string) (*FileExporter, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path is cleaned above
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{w: f, c: f}, nil
}

// NewWriterExporter writes spans to w. Shutdown does not close w.
func NewWriterExporter(w io.Writer) *FileExporter {
	return &FileExporter{w: w}
}

func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.w == nil {
		return fmt.Errorf("exporter is shut down")
	}
	enc := json.NewEncoder(e.w)
	for _, span := range spans {
		if err := enc.Encode(recordOf(span)); err != nil {
			return fmt.Errorf("encode span: %w", err)
		}
	}
	return nil
}

func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.w = nil
	if e.c != nil {
		err := e.c.Close()
		e.c = nil
		return err
	}
	return nil
}

// SpanRecord is the exported JSON shape of a span.
type SpanRecord struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	Start        string         `json:"start_time"`
	DurationMs   float64        `json:"duration_ms"`
	Status       string         `json:"status"`
	StatusMsg    string         `json:"status_message,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
}

func recordOf(span sdktrace.ReadOnlySpan) SpanRecord {
	rec := SpanRecord{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		Start:      span.StartTime().Format(time.RFC3339Nano),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000.0,
		Status:     "UNSET",
		StatusMsg:  span.Status().Description,
	}
	if span.Parent().IsValid() {
		rec.ParentSpanID = span.Parent().SpanID().String()
	}
	switch span.Status().Code {
	case codes.Ok:
		rec.Status = "OK"
	case codes.Error:
		rec.Status = "ERROR"
	}
	if attrs := span.Attributes(); len(attrs) > 0 {
		rec.Attributes = make(map[string]any, len(attrs))
		for _, kv := range attrs {
			rec.Attributes[string(kv.Key)] = kv.Value.AsInterface()
		}
	}
	for _, evt := range span.Events() {
		if evt.Name != "exception" {
			continue
		}
		for _, kv := range evt.Attributes {
			if kv.Key == "exception.message" {
				rec.Errors = append(rec.Errors, kv.Value.AsString())
			}
		}
	}
	return rec
}
