package reader

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/auxoncorp/rtrace/internal/attr"
	"github.com/auxoncorp/rtrace/internal/config"
	"github.com/auxoncorp/rtrace/internal/contextmgr"
	"github.com/auxoncorp/rtrace/internal/types"
	"github.com/auxoncorp/rtrace/internal/wire"
)

const psfMagic = uint32(0x50534600)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// headerBody mirrors the wire package's fixed-width header layout, so driver
// tests can synthesize a stream without exporting wire internals.
type headerBody struct {
	KernelPort               uint16
	FormatVersion            uint16
	NumCores                 uint8
	IRQPriorityOrder         uint8
	ISRTailChainingThreshold uint32
	PlatformCfg              [8]byte
	PlatformCfgVersion       [3]uint8
	KernelVersion            [8]byte
	HeapSize                 uint64
	TimerType                uint8
	TimerFrequency           uint32
	TimerPeriod              uint32
	TimerWraparounds         uint32
	OSTickRateHz             uint32
	OSTickCount              uint64
	LatestTimestamp          uint64
}

func appendHeader(buf *bytes.Buffer, kernelPort uint16, freq uint32) {
	var magicBytes [4]byte
	binary.BigEndian.PutUint32(magicBytes[:], psfMagic)
	buf.Write(magicBytes[:])
	body := headerBody{
		KernelPort:     kernelPort,
		FormatVersion:  14,
		NumCores:       1,
		TimerType:      2,
		TimerFrequency: freq,
	}
	copy(body.PlatformCfg[:], "FreeRTOS")
	binary.Write(buf, binary.LittleEndian, body)
}

func appendEvent(buf *bytes.Buffer, id uint16, count uint16, timer uint32, params ...uint32) {
	code := uint16(len(params))<<12 | id
	binary.Write(buf, binary.LittleEndian, code)
	binary.Write(buf, binary.LittleEndian, count)
	binary.Write(buf, binary.LittleEndian, timer)
	for _, p := range params {
		binary.Write(buf, binary.LittleEndian, p)
	}
}

// fakeClient records every ingest call in order, for assertions on ordering
// and on what the driver's look-ahead buffer decided to promote.
type fakeClient struct {
	opens     []string
	metadata  []string
	events    []uint64
	nonceSeen []bool
	flushed   bool
}

func (f *fakeClient) OpenTimeline(_ context.Context, id string) error {
	f.opens = append(f.opens, id)
	return nil
}

func (f *fakeClient) TimelineMetadata(_ context.Context, id string, _ *attr.Set) error {
	f.metadata = append(f.metadata, id)
	return nil
}

func (f *fakeClient) Event(_ context.Context, ordering uint64, attrs *attr.Set) error {
	f.events = append(f.events, ordering)
	_, ok := attr.Get(attrs, attr.Nonce)
	f.nonceSeen = append(f.nonceSeen, ok)
	return nil
}

func (f *fakeClient) Flush(context.Context) error {
	f.flushed = true
	return nil
}

func TestDriverRunDecodesAndFlushesEntireStream(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100)            // TRACE_START
	appendEvent(&buf, 12, 2, 110, 7, 3)     // TASK_BEGIN handle=7 priority=3
	appendEvent(&buf, 12, 3, 120, 9, 1)     // TASK_BEGIN handle=9 priority=1

	wr, err := wire.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	mgr := contextmgr.New(config.Default(), wr.Header, quietLogger())
	client := &fakeClient{}
	d := New(wr, mgr, client, quietLogger())

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !client.flushed {
		t.Error("Run should call client.Flush on clean EOF exit")
	}
	if len(client.events) != 3 {
		t.Fatalf("got %d events, want 3", len(client.events))
	}
	if len(client.opens) == 0 {
		t.Error("expected at least one OpenTimeline call")
	}
	if len(client.metadata) == 0 {
		t.Error("expected TimelineMetadata for the startup timeline")
	}
}

func TestDriverPromotesBufferedEventNonceOnSwitch(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100)        // TRACE_START
	appendEvent(&buf, 12, 2, 110, 7, 3) // TASK_BEGIN handle=7

	wr, err := wire.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	mgr := contextmgr.New(config.Default(), wr.Header, quietLogger())
	client := &fakeClient{}
	d := New(wr, mgr, client, quietLogger())

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The first (TRACE_START) event is promoted when the TASK_BEGIN switch
	// references it as a causal predecessor under FullyLinearized mode.
	if len(client.nonceSeen) != 2 {
		t.Fatalf("got %d events, want 2", len(client.nonceSeen))
	}
	if !client.nonceSeen[0] {
		t.Error("the startup event's nonce should have been promoted before it was pushed")
	}
}

func TestDriverStopsOnContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100)

	wr, err := wire.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	mgr := contextmgr.New(config.Default(), wr.Header, quietLogger())
	client := &fakeClient{}
	d := New(wr, mgr, client, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if !client.flushed {
		t.Error("Run should still flush on a cancelled context")
	}
}

func TestDriverSurvivesMidStreamRestart(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100)        // TRACE_START
	appendEvent(&buf, 12, 2, 110, 7, 3) // TASK_BEGIN handle=7
	appendEvent(&buf, 12, 3, 120, 9, 1) // TASK_BEGIN handle=9
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 10)        // restarted session's TRACE_START
	appendEvent(&buf, 12, 2, 20, 7, 3) // TASK_BEGIN handle=7
	appendEvent(&buf, 12, 3, 30, 9, 1) // TASK_BEGIN handle=9

	wr, err := wire.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	mgr := contextmgr.New(config.Default(), wr.Header, quietLogger())
	client := &fakeClient{}
	d := New(wr, mgr, client, quietLogger())

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(client.events) != 6 {
		t.Fatalf("got %d events across the restart, want 6", len(client.events))
	}
	// Timeline ids are preserved across the restart, so no timeline should
	// report its metadata twice.
	seen := map[string]int{}
	for _, id := range client.metadata {
		seen[id]++
		if seen[id] > 1 {
			t.Errorf("timeline %s metadata sent %d times, want once", id, seen[id])
		}
	}
	for i := 1; i < len(client.events); i++ {
		if client.events[i] <= client.events[i-1] {
			t.Errorf("ordering not strictly increasing at %d: %v", i, client.events)
		}
	}
}

func TestDriverSkipsUserEventWithUnresolvableFormatString(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100)               // TRACE_START
	appendEvent(&buf, 40, 2, 110, 200, 999)    // USER_EVENT, fmt handle 999 unregistered
	appendEvent(&buf, 40, 3, 120, 200, 201, 5) // USER_EVENT, resolvable

	wr, err := wire.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	wr.RegisterObjectName(200, "telemetry", types.ObjectClassUnknown)
	wr.RegisterObjectName(201, "temp=%d", types.ObjectClassUnknown)

	mgr := contextmgr.New(config.Default(), wr.Header, quietLogger())
	client := &fakeClient{}
	d := New(wr, mgr, client, quietLogger())

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The unformattable user event is skipped; TRACE_START and the
	// resolvable user event still reach the ingest client.
	if len(client.events) != 2 {
		t.Fatalf("got %d events, want 2", len(client.events))
	}
}
