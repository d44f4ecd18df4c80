// Package jsonlsink implements ingest.Client as a newline-delimited JSON
// writer: one typed record per call, written as a single JSON line, with no
// external dependency. Intended for local inspection and tests.
package jsonlsink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/auxoncorp/rtrace/internal/attr"
)

// RecordType identifies which ingest call produced a line.
type RecordType string

const (
	RecordOpenTimeline     RecordType = "open_timeline"
	RecordTimelineMetadata RecordType = "timeline_metadata"
	RecordEvent            RecordType = "event"
)

// Record is one line of the jsonl sink's output.
type Record struct {
	Type       RecordType `json:"type"`
	TimelineID string     `json:"timeline_id,omitempty"`
	Ordering   uint64     `json:"ordering,omitempty"`
	Attrs      []Attr     `json:"attrs,omitempty"`
}

// Attr is one ordered key-value pair, preserving the attr.Set's insertion
// order (a plain map[string]any would let encoding/json re-sort the keys
// alphabetically, which this sink's whole purpose is to avoid).
type Attr struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Sink writes each ingest call as one JSON line to w. Safe for sequential
// use by a single driver; a mutex guards the underlying writer in case a
// caller shares one Sink across goroutines anyway.
type Sink struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

// New wraps w (typically os.Stdout in the CLI) as an ingest.Client.
func New(w io.Writer) *Sink {
	return &Sink{enc: json.NewEncoder(w), w: w}
}

func toAttrs(s *attr.Set) []Attr {
	if s == nil {
		return nil
	}
	keys := s.Keys()
	out := make([]Attr, 0, len(keys))
	m := s.Map()
	for _, k := range keys {
		out = append(out, Attr{Key: k, Value: m[k]})
	}
	return out
}

func (s *Sink) write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("jsonlsink: encoding %s record: %w", rec.Type, err)
	}
	return nil
}

func (s *Sink) OpenTimeline(_ context.Context, timelineID string) error {
	return s.write(Record{Type: RecordOpenTimeline, TimelineID: timelineID})
}

func (s *Sink) TimelineMetadata(_ context.Context, timelineID string, attrs *attr.Set) error {
	return s.write(Record{Type: RecordTimelineMetadata, TimelineID: timelineID, Attrs: toAttrs(attrs)})
}

func (s *Sink) Event(_ context.Context, ordering uint64, attrs *attr.Set) error {
	return s.write(Record{Type: RecordEvent, Ordering: ordering, Attrs: toAttrs(attrs)})
}

// Flush is a no-op: json.Encoder writes synchronously to w, and the CLI's w
// (os.Stdout) needs no explicit flush. If w is a *bufio.Writer, callers
// should flush it themselves after the driver returns.
func (s *Sink) Flush(context.Context) error {
	return nil
}
