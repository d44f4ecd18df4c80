package jsonlsink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/auxoncorp/rtrace/internal/attr"
)

func TestOpenTimelineWritesRecord(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	if err := s.OpenTimeline(context.Background(), "tl-1"); err != nil {
		t.Fatal(err)
	}

	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Type != RecordOpenTimeline || rec.TimelineID != "tl-1" {
		t.Errorf("record = %+v, want type=%s timeline_id=tl-1", rec, RecordOpenTimeline)
	}
}

func TestTimelineMetadataPreservesAttrOrder(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	set := attr.NewSet()
	attr.Put(set, attr.Key[string]("z_first"), "1")
	attr.Put(set, attr.Key[string]("a_second"), "2")

	if err := s.TimelineMetadata(context.Background(), "tl-1", set); err != nil {
		t.Fatal(err)
	}

	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if len(rec.Attrs) != 2 || rec.Attrs[0].Key != "z_first" || rec.Attrs[1].Key != "a_second" {
		t.Errorf("Attrs = %+v, want insertion order z_first, a_second", rec.Attrs)
	}
}

func TestEventWritesOrderingAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	set := attr.NewSet()
	attr.Put(set, attr.Key[int]("count"), 3)

	if err := s.Event(context.Background(), 42, set); err != nil {
		t.Fatal(err)
	}

	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Type != RecordEvent || rec.Ordering != 42 {
		t.Errorf("record = %+v, want type=%s ordering=42", rec, RecordEvent)
	}
}

func TestEachCallWritesExactlyOneLine(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	ctx := context.Background()
	_ = s.OpenTimeline(ctx, "tl-1")
	_ = s.TimelineMetadata(ctx, "tl-1", attr.NewSet())
	_ = s.Event(ctx, 1, attr.NewSet())
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 3 {
		t.Errorf("wrote %d lines, want 3 (Flush is a no-op)", lines)
	}
}

func TestNilAttrsEncodeAsEmpty(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	if err := s.Event(context.Background(), 1, nil); err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if len(rec.Attrs) != 0 {
		t.Errorf("Attrs = %+v, want empty for a nil attr.Set", rec.Attrs)
	}
}
