package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/auxoncorp/rtrace/internal/types"
)

func appendHeader(buf *bytes.Buffer, kernelPort uint16, freq uint32) {
	var magicBytes [4]byte
	binary.BigEndian.PutUint32(magicBytes[:], psfMagic)
	buf.Write(magicBytes[:])
	raw := rawHeader{
		KernelPort:     kernelPort,
		FormatVersion:  14,
		NumCores:       1,
		TimerType:      2,
		TimerFrequency: freq,
	}
	copy(raw.PlatformCfg[:], "FreeRTOS")
	copy(raw.KernelVersion[:], "10.5.1")
	binary.Write(buf, binary.LittleEndian, raw)
}

func appendEvent(buf *bytes.Buffer, id uint16, count, timer uint32, params ...uint32) {
	code := EventCode(uint16(len(params))<<12 | id)
	binary.Write(buf, binary.LittleEndian, code)
	binary.Write(buf, binary.LittleEndian, uint16(count))
	binary.Write(buf, binary.LittleEndian, timer)
	for _, p := range params {
		binary.Write(buf, binary.LittleEndian, p)
	}
}

func TestNewReaderParsesHeader(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 16_000_000)

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.Header.KernelPort != types.KernelPortFreeRTOS {
		t.Errorf("KernelPort = %v, want FreeRTOS", r.Header.KernelPort)
	}
	if r.Header.Timestamp.TimerFrequency != 16_000_000 {
		t.Errorf("TimerFrequency = %v, want 16000000", r.Header.Timestamp.TimerFrequency)
	}
}

func TestNewReaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(types.KernelPortFreeRTOS))
	binary.Write(&buf, binary.LittleEndian, uint32(1000))

	if _, err := NewReader(&buf); !errors.Is(err, ErrBadMagic) {
		t.Errorf("NewReader error = %v, want ErrBadMagic", err)
	}
}

func TestNewReaderRejectsUnsupportedKernelPort(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortZephyr), 1000)

	_, err := NewReader(&buf)
	var unsupported *UnsupportedKernelPortError
	if !errors.As(err, &unsupported) {
		t.Fatalf("NewReader error = %v, want *UnsupportedKernelPortError", err)
	}
}

func TestNextDecodesTraceStartAndTaskBegin(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100)           // TRACE_START
	appendEvent(&buf, 12, 2, 110, 7, 3) // TASK_BEGIN handle=7 priority=3

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}

	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventTraceStart {
		t.Errorf("first event kind = %v, want EventTraceStart", ev.Kind)
	}

	_, ev, err = r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventTaskBegin {
		t.Errorf("second event kind = %v, want EventTaskBegin", ev.Kind)
	}
	if ev.Handle != 7 || ev.Priority != 3 {
		t.Errorf("TASK_BEGIN decoded handle=%d priority=%d, want 7, 3", ev.Handle, ev.Priority)
	}

	if _, _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end of stream = %v, want io.EOF", err)
	}
}

func TestNextRejectsInvalidObjectHandle(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 12, 1, 100, 0) // TASK_BEGIN handle=0 (reserved)

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = r.Next()
	var invalid *InvalidObjectHandleError
	if !errors.As(err, &invalid) {
		t.Fatalf("Next() error = %v, want *InvalidObjectHandleError", err)
	}
}

func TestNextObjectNameLookupFailureAndSuccess(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 3, 1, 100, 42) // OBJECT_NAME handle=42, unregistered

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = r.Next()
	var lookupErr *ObjectLookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("Next() error = %v, want *ObjectLookupError", err)
	}

	r.RegisterObjectName(42, "myQueue", types.ObjectClassQueue)

	var buf2 bytes.Buffer
	appendHeader(&buf2, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf2, 3, 1, 100, 42)
	r2, err := NewReader(&buf2)
	if err != nil {
		t.Fatal(err)
	}
	r2.RegisterObjectName(42, "myQueue", types.ObjectClassQueue)
	_, ev, err := r2.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Name != "myQueue" {
		t.Errorf("ev.Name = %q, want %q", ev.Name, "myQueue")
	}
}

func TestNextDetectsRestart(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100) // TRACE_START
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 2000)
	appendEvent(&buf, 1, 1, 0) // new session's TRACE_START

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Next(); err != nil {
		t.Fatal(err)
	}

	_, _, err = r.Next()
	var restarted *RestartedError
	if !errors.As(err, &restarted) {
		t.Fatalf("Next() across restart = %v, want *RestartedError", err)
	}

	if err := r.Restart(); err != nil {
		t.Fatal(err)
	}
	if r.Header.Timestamp.TimerFrequency != 2000 {
		t.Errorf("TimerFrequency after restart = %v, want 2000", r.Header.Timestamp.TimerFrequency)
	}

	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventTraceStart {
		t.Errorf("event after restart kind = %v, want EventTraceStart", ev.Kind)
	}
}

func TestClassHintDisambiguatesQueueFamily(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 30, 1, 100, 5) // QUEUE_SEND handle=5

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	r.RegisterObjectName(5, "mutexA", types.ObjectClassMutex)

	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.ClassHint != types.ObjectClassMutex {
		t.Errorf("ClassHint = %v, want ObjectClassMutex", ev.ClassHint)
	}
}

func TestClassHintDefaultsWhenUnregistered(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 30, 1, 100, 99) // QUEUE_SEND handle=99, never registered

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.ClassHint != types.ObjectClassQueue {
		t.Errorf("ClassHint = %v, want ObjectClassQueue default", ev.ClassHint)
	}
}

func TestNextDecodesTraceStartHandle(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 1, 1, 100, 5) // TRACE_START current task handle=5

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventTraceStart {
		t.Fatalf("kind = %v, want EventTraceStart", ev.Kind)
	}
	if ev.Handle != 5 {
		t.Errorf("TRACE_START handle = %d, want 5", ev.Handle)
	}
}

func TestNextDecodesInlineObjectName(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	name := binary.LittleEndian.Uint32([]byte{'g', 'p', 's', 0})
	appendEvent(&buf, 3, 1, 100, 7, name) // OBJECT_NAME handle=7 "gps"

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Name != "gps" {
		t.Errorf("ev.Name = %q, want gps", ev.Name)
	}
	if r.Objects[7] != "gps" {
		t.Errorf("Objects[7] = %q, want gps (inline names register themselves)", r.Objects[7])
	}
}

func TestNextTsConfigUpdatesHeaderFrequency(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 2, 1, 100, 48_000_000, 1000) // TS_CONFIG freq, tick rate

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventTsConfig {
		t.Fatalf("kind = %v, want EventTsConfig", ev.Kind)
	}
	if r.Header.Timestamp.TimerFrequency != 48_000_000 {
		t.Errorf("TimerFrequency after TS_CONFIG = %d, want 48000000", r.Header.Timestamp.TimerFrequency)
	}
	if r.Header.Timestamp.OSTickRateHz != 1000 {
		t.Errorf("OSTickRateHz after TS_CONFIG = %d, want 1000", r.Header.Timestamp.OSTickRateHz)
	}
}

func TestNextDecodesFullHeader(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.Header.FormatVersion != 14 {
		t.Errorf("FormatVersion = %d, want 14", r.Header.FormatVersion)
	}
	if r.Header.NumCores != 1 {
		t.Errorf("NumCores = %d, want 1", r.Header.NumCores)
	}
	if r.Header.PlatformCfg != "FreeRTOS" {
		t.Errorf("PlatformCfg = %q, want FreeRTOS", r.Header.PlatformCfg)
	}
	if r.Header.KernelVersion != "10.5.1" {
		t.Errorf("KernelVersion = %q, want 10.5.1", r.Header.KernelVersion)
	}
	if r.Header.Timestamp.TimerType != "free-running" {
		t.Errorf("TimerType = %q, want free-running", r.Header.Timestamp.TimerType)
	}
}

func TestNextDecodesUserEventChannelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 40, 1, 100, 200, 201, 42, 7) // USER_EVENT ch=200 fmt=201 args 42, 7

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	r.RegisterObjectName(200, "telemetry", types.ObjectClassUnknown)
	r.RegisterObjectName(201, "temp=%d hum=%d", types.ObjectClassUnknown)

	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventUserEvent {
		t.Fatalf("kind = %v, want EventUserEvent", ev.Kind)
	}
	if ev.Channel != "telemetry" {
		t.Errorf("Channel = %q, want telemetry", ev.Channel)
	}
	if ev.Format != "temp=%d hum=%d" {
		t.Errorf("Format = %q, want temp=%%d hum=%%d", ev.Format)
	}
	if len(ev.Args) != 2 || ev.Args[0] != uint32(42) || ev.Args[1] != uint32(7) {
		t.Errorf("Args = %v, want [42 7]", ev.Args)
	}
}

func TestNextUserEventUnregisteredChannelIsUnnamed(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 40, 1, 100, 200, 201)

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	r.RegisterObjectName(201, "boot", types.ObjectClassUnknown)

	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Channel != "" {
		t.Errorf("Channel = %q, want empty for an unregistered channel handle", ev.Channel)
	}
	if ev.Format != "boot" {
		t.Errorf("Format = %q, want boot", ev.Format)
	}
}

func TestNextUserEventFormatLookupFailureIsRecoverable(t *testing.T) {
	var buf bytes.Buffer
	appendHeader(&buf, uint16(types.KernelPortFreeRTOS), 1000)
	appendEvent(&buf, 40, 1, 100, 200, 201, 5) // fmt handle 201 never registered
	appendEvent(&buf, 12, 2, 110, 7, 3)        // TASK_BEGIN follows

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	r.RegisterObjectName(200, "telemetry", types.ObjectClassUnknown)

	_, _, err = r.Next()
	var fmtLookup *UserEventFmtStringLookupError
	if !errors.As(err, &fmtLookup) {
		t.Fatalf("Next() error = %v, want *UserEventFmtStringLookupError", err)
	}
	if fmtLookup.Handle != 201 {
		t.Errorf("error handle = %d, want 201", fmtLookup.Handle)
	}

	// The failed record was fully consumed; decoding resumes cleanly.
	_, ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventTaskBegin {
		t.Errorf("kind after skip = %v, want EventTaskBegin", ev.Kind)
	}
}
