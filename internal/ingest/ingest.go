// Package ingest defines the causal-event backend boundary the reader driver
// writes to: open a timeline, describe it once, append ordered events to it,
// and flush. Two concrete transports live in sibling packages (jsonlsink,
// grpcingest); callers needing a different backend implement Client directly.
package ingest

import (
	"context"

	"github.com/auxoncorp/rtrace/internal/attr"
)

// Client is the ingest backend boundary. Every method may block on I/O; the
// driver calls them sequentially and treats any error as fatal for the
// session (after attempting to flush what it already has buffered). Attribute
// sets are passed through as *attr.Set, not a plain map, so transports that
// care about presentation order (the jsonl sink, in particular) see the same
// ordering the context manager built.
type Client interface {
	// OpenTimeline marks timelineID as the active timeline for events that
	// follow, creating it at the backend on first use.
	OpenTimeline(ctx context.Context, timelineID string) error

	// TimelineMetadata attaches attrs to timelineID. The driver calls this at
	// most once per timeline, immediately after the first OpenTimeline for
	// that id.
	TimelineMetadata(ctx context.Context, timelineID string, attrs *attr.Set) error

	// Event appends one ordered event to the currently open timeline.
	Event(ctx context.Context, ordering uint64, attrs *attr.Set) error

	// Flush forces any buffered writes out to the backend.
	Flush(ctx context.Context) error
}
