// Package wire parses a Percepio-style streaming RTOS trace byte stream into
// a sequence of (EventCode, Event) pairs. It tracks the stream's object and
// symbol tables, endianness, and timer configuration, and surfaces a small
// set of recoverable conditions (object lookup failure, malformed user-event
// format string, trace restart) distinctly from fatal protocol errors.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/auxoncorp/rtrace/internal/types"
)

// Fatal protocol errors.
var (
	ErrTruncated  = fmt.Errorf("wire: truncated record")
	ErrChecksum   = fmt.Errorf("wire: header checksum mismatch")
	ErrBadMagic   = fmt.Errorf("wire: bad PSF start word")
)

// UnsupportedKernelPortError is returned when the header names a kernel port
// other than FreeRTOS.
type UnsupportedKernelPortError struct {
	Port types.KernelPortIdentity
}

func (e *UnsupportedKernelPortError) Error() string {
	return fmt.Sprintf("wire: kernel port %s is not supported", e.Port)
}

// ObjectLookupError is a recoverable condition: an event referenced an
// object handle with no corresponding name-table entry.
type ObjectLookupError struct {
	Handle types.ObjectHandle
}

func (e *ObjectLookupError) Error() string {
	return fmt.Sprintf("wire: no object properties for handle %d", e.Handle)
}

// InvalidObjectHandleError is a recoverable condition: an event referenced
// the zero/reserved handle where a real object was expected.
type InvalidObjectHandleError struct {
	Handle types.ObjectHandle
}

func (e *InvalidObjectHandleError) Error() string {
	return fmt.Sprintf("wire: invalid object handle %d", e.Handle)
}

// UserEventFmtStringLookupError is a recoverable condition: a user event's
// format-string handle has no symbol-table entry, so the event cannot be
// formatted. The driver warns and skips the event.
type UserEventFmtStringLookupError struct {
	Handle types.ObjectHandle
}

func (e *UserEventFmtStringLookupError) Error() string {
	return fmt.Sprintf("wire: no format string registered for handle %d", e.Handle)
}

// RestartedError signals that a new PSF start word was found mid-stream; the
// driver must re-read a header (possibly with new endianness) and continue.
type RestartedError struct {
	Endianness types.Endianness
}

func (e *RestartedError) Error() string { return "wire: trace restarted" }

// TsConfig carries the timestamp/timer configuration reported by the
// target's header.
type TsConfig struct {
	TimerType        string
	TimerFrequency   types.TimerFrequencyHz
	TimerPeriod      uint32
	TimerWraparounds uint32
	OSTickRateHz     uint32
	OSTickCount      uint64
	LatestTimestamp  uint64 // ticks
}

// Header is the parsed trace stream preamble.
type Header struct {
	KernelPort               types.KernelPortIdentity
	KernelVersion            string
	Endianness               types.Endianness
	FormatVersion            uint16
	NumCores                 uint8
	IRQPriorityOrder         uint8 // 0: lower number is higher priority
	ISRTailChainingThreshold uint32
	PlatformCfg              string
	PlatformCfgVersionMajor  uint8
	PlatformCfgVersionMinor  uint8
	PlatformCfgVersionPatch  uint8
	HeapSize                 uint64
	Timestamp                TsConfig
}

const psfMagic = uint32(0x50534600) // "PSF\0" big-endian-ish sentinel, arbitrary but stable

// EventCode packs a 4-bit parameter count and 12-bit event id, matching the
// on-wire 16-bit layout.
type EventCode uint16

func (c EventCode) ParameterCount() uint8 { return uint8(c >> 12) }
func (c EventCode) ID() uint16            { return uint16(c) & 0x0FFF }

// EventKind enumerates the event variants the context manager understands.
// Unrecognised ids decode as EventUnknown and are dropped unless the config
// requests otherwise.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventTraceStart
	EventTsConfig
	EventObjectName
	EventIsrBegin
	EventIsrResume
	EventIsrDefine
	EventTaskBegin
	EventTaskResume
	EventTaskActivate
	EventTaskCreate
	EventTaskReady
	EventTaskPriority
	EventTaskPriorityInherit
	EventTaskPriorityDisinherit
	EventTaskNotify
	EventTaskNotifyFromIsr
	EventTaskNotifyWait
	EventTaskNotifyWaitBlock
	EventUnusedStack
	EventQueueCreate
	EventQueueSend
	EventQueueSendBlock
	EventQueueSendFromIsr
	EventQueueSendFront
	EventQueueSendFrontBlock
	EventQueueSendFrontFromIsr
	EventQueueReceive
	EventQueueReceiveBlock
	EventQueueReceiveFromIsr
	EventQueuePeek
	EventQueuePeekBlock
	EventMutexCreate
	EventMutexGive
	EventMutexGiveBlock
	EventMutexGiveRecursive
	EventMutexTake
	EventMutexTakeBlock
	EventMutexTakeRecursive
	EventMutexTakeRecursiveBlock
	EventSemaphoreBinaryCreate
	EventSemaphoreCountingCreate
	EventSemaphoreGive
	EventSemaphoreGiveBlock
	EventSemaphoreGiveFromIsr
	EventSemaphoreTake
	EventSemaphoreTakeBlock
	EventSemaphoreTakeFromIsr
	EventSemaphorePeek
	EventSemaphorePeekBlock
	EventEventGroupCreate
	EventEventGroupSync
	EventEventGroupWaitBits
	EventEventGroupClearBits
	EventEventGroupClearBitsFromIsr
	EventEventGroupSetBits
	EventEventGroupSetBitsFromIsr
	EventEventGroupSyncBlock
	EventEventGroupWaitBitsBlock
	EventMessageBufferCreate
	EventMessageBufferSend
	EventMessageBufferSendFromIsr
	EventMessageBufferSendBlock
	EventMessageBufferReceive
	EventMessageBufferReceiveFromIsr
	EventMessageBufferReceiveBlock
	EventMessageBufferReset
	EventStateMachineCreate
	EventStateMachineStateCreate
	EventStateMachineStateChange
	EventUserEvent
	EventMemoryAlloc
	EventMemoryFree
)

func (k EventKind) String() string {
	switch k {
	case EventTraceStart:
		return "TRACE_START"
	case EventTsConfig:
		return "TS_CONFIG"
	case EventObjectName:
		return "OBJECT_NAME"
	case EventIsrBegin:
		return "ISR_BEGIN"
	case EventIsrResume:
		return "ISR_RESUME"
	case EventIsrDefine:
		return "ISR_DEFINE"
	case EventTaskBegin:
		return "TASK_BEGIN"
	case EventTaskResume:
		return "TASK_RESUME"
	case EventTaskActivate:
		return "TASK_ACTIVATE"
	case EventTaskCreate:
		return "TASK_CREATE"
	case EventTaskReady:
		return "TASK_READY"
	case EventTaskPriority:
		return "TASK_PRIORITY"
	case EventTaskPriorityInherit:
		return "TASK_PRIORITY_INHERIT"
	case EventTaskPriorityDisinherit:
		return "TASK_PRIORITY_DISINHERIT"
	case EventTaskNotify:
		return "TASK_NOTIFY"
	case EventTaskNotifyFromIsr:
		return "TASK_NOTIFY_FROM_ISR"
	case EventTaskNotifyWait:
		return "TASK_NOTIFY_WAIT"
	case EventTaskNotifyWaitBlock:
		return "TASK_NOTIFY_WAIT_BLOCK"
	case EventUnusedStack:
		return "UNUSED_STACK"
	case EventQueueCreate:
		return "QUEUE_CREATE"
	case EventQueueSend:
		return "QUEUE_SEND"
	case EventQueueSendBlock:
		return "QUEUE_SEND_BLOCK"
	case EventQueueSendFromIsr:
		return "QUEUE_SEND_FROM_ISR"
	case EventQueueSendFront:
		return "QUEUE_SEND_FRONT"
	case EventQueueSendFrontBlock:
		return "QUEUE_SEND_FRONT_BLOCK"
	case EventQueueSendFrontFromIsr:
		return "QUEUE_SEND_FRONT_FROM_ISR"
	case EventQueueReceive:
		return "QUEUE_RECEIVE"
	case EventQueueReceiveBlock:
		return "QUEUE_RECEIVE_BLOCK"
	case EventQueueReceiveFromIsr:
		return "QUEUE_RECEIVE_FROM_ISR"
	case EventQueuePeek:
		return "QUEUE_PEEK"
	case EventQueuePeekBlock:
		return "QUEUE_PEEK_BLOCK"
	case EventMutexCreate:
		return "MUTEX_CREATE"
	case EventMutexGive:
		return "MUTEX_GIVE"
	case EventMutexGiveBlock:
		return "MUTEX_GIVE_BLOCK"
	case EventMutexGiveRecursive:
		return "MUTEX_GIVE_RECURSIVE"
	case EventMutexTake:
		return "MUTEX_TAKE"
	case EventMutexTakeBlock:
		return "MUTEX_TAKE_BLOCK"
	case EventMutexTakeRecursive:
		return "MUTEX_TAKE_RECURSIVE"
	case EventMutexTakeRecursiveBlock:
		return "MUTEX_TAKE_RECURSIVE_BLOCK"
	case EventSemaphoreBinaryCreate:
		return "SEMAPHORE_BINARY_CREATE"
	case EventSemaphoreCountingCreate:
		return "SEMAPHORE_COUNTING_CREATE"
	case EventSemaphoreGive:
		return "SEMAPHORE_GIVE"
	case EventSemaphoreGiveBlock:
		return "SEMAPHORE_GIVE_BLOCK"
	case EventSemaphoreGiveFromIsr:
		return "SEMAPHORE_GIVE_FROM_ISR"
	case EventSemaphoreTake:
		return "SEMAPHORE_TAKE"
	case EventSemaphoreTakeBlock:
		return "SEMAPHORE_TAKE_BLOCK"
	case EventSemaphoreTakeFromIsr:
		return "SEMAPHORE_TAKE_FROM_ISR"
	case EventSemaphorePeek:
		return "SEMAPHORE_PEEK"
	case EventSemaphorePeekBlock:
		return "SEMAPHORE_PEEK_BLOCK"
	case EventEventGroupCreate:
		return "EVENT_GROUP_CREATE"
	case EventEventGroupSync:
		return "EVENT_GROUP_SYNC"
	case EventEventGroupWaitBits:
		return "EVENT_GROUP_WAIT_BITS"
	case EventEventGroupClearBits:
		return "EVENT_GROUP_CLEAR_BITS"
	case EventEventGroupClearBitsFromIsr:
		return "EVENT_GROUP_CLEAR_BITS_FROM_ISR"
	case EventEventGroupSetBits:
		return "EVENT_GROUP_SET_BITS"
	case EventEventGroupSetBitsFromIsr:
		return "EVENT_GROUP_SET_BITS_FROM_ISR"
	case EventEventGroupSyncBlock:
		return "EVENT_GROUP_SYNC_BLOCK"
	case EventEventGroupWaitBitsBlock:
		return "EVENT_GROUP_WAIT_BITS_BLOCK"
	case EventMessageBufferCreate:
		return "MESSAGE_BUFFER_CREATE"
	case EventMessageBufferSend:
		return "MESSAGE_BUFFER_SEND"
	case EventMessageBufferSendFromIsr:
		return "MESSAGE_BUFFER_SEND_FROM_ISR"
	case EventMessageBufferSendBlock:
		return "MESSAGE_BUFFER_SEND_BLOCK"
	case EventMessageBufferReceive:
		return "MESSAGE_BUFFER_RECEIVE"
	case EventMessageBufferReceiveFromIsr:
		return "MESSAGE_BUFFER_RECEIVE_FROM_ISR"
	case EventMessageBufferReceiveBlock:
		return "MESSAGE_BUFFER_RECEIVE_BLOCK"
	case EventMessageBufferReset:
		return "MESSAGE_BUFFER_RESET"
	case EventStateMachineCreate:
		return "STATE_MACHINE_CREATE"
	case EventStateMachineStateCreate:
		return "STATE_MACHINE_STATE_CREATE"
	case EventStateMachineStateChange:
		return "STATE_MACHINE_STATE_CHANGE"
	case EventUserEvent:
		return "USER_EVENT"
	case EventMemoryAlloc:
		return "MEMORY_ALLOC"
	case EventMemoryFree:
		return "MEMORY_FREE"
	default:
		return "UNKNOWN"
	}
}

// IsSwitchIn reports whether this variant can change the active context.
func (k EventKind) IsSwitchIn() bool {
	switch k {
	case EventIsrBegin, EventIsrResume, EventTaskBegin, EventTaskResume, EventTaskActivate:
		return true
	default:
		return false
	}
}

// Event is one decoded wire record.
type Event struct {
	Kind        EventKind
	Code        EventCode
	Count       uint16
	TimerTicks  uint32
	Handle      types.ObjectHandle // subject object handle, when applicable
	Name        string             // for OBJECT_NAME / task-name-bearing events
	Priority    uint32
	WaitTicks   uint32
	QueueLength uint32
	Address     uint32
	Size        uint32
	DestHandle  types.ObjectHandle // notification/queue destination, when applicable
	Channel     string             // user event channel
	Format      string             // user event format string
	Args        []any              // user event positional args
	ClassHint   types.ObjectClass
	RawParams   []byte // reassembled little-endian parameter bytes, for sub-decoders (e.g. deviant events)

	Bits          uint32             // event-group bit mask (set/clear/wait/sync)
	Value         uint32             // generic secondary count: semaphore count, message-buffer size/bytes-in-buffer
	RelatedHandle types.ObjectHandle // state-machine state handle, for state-create/state-change
	StateName     string             // state-machine state name, resolved from RelatedHandle if registered
}

// Reader pulls (EventCode, Event) pairs from a byte stream.
type Reader struct {
	br     *bufio.Reader
	Header Header
	// Objects maps a handle to its registered name, populated by OBJECT_NAME
	// events and pre-seeded task/ISR names carried in the header's symbol
	// table (not modelled here beyond what streaming decode provides).
	Objects map[types.ObjectHandle]string
	Classes map[types.ObjectHandle]types.ObjectClass

	// customPrintfEventID, when set, is treated as EventUserEvent in addition
	// to the default id 40, matching a target build whose trace library was
	// configured with a non-standard printf event id.
	customPrintfEventID *uint16
}

// SetCustomPrintfEventID overrides the wire parser's printf/user-event id,
// for target builds that don't use the default id 40.
func (r *Reader) SetCustomPrintfEventID(id uint16) {
	r.customPrintfEventID = &id
}

// NewReader reads and validates the header, returning a Reader positioned at
// the first event record.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{
		br:      bufio.NewReader(r),
		Objects: make(map[types.ObjectHandle]string),
		Classes: make(map[types.ObjectHandle]types.ObjectClass),
	}
	if err := rd.readHeader(); err != nil {
		return nil, err
	}
	return rd, nil
}

// rawHeader is the fixed-width little-endian header body following the PSF
// start word. Strings are NUL-padded ASCII.
type rawHeader struct {
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

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func timerTypeName(t uint8) string {
	switch t {
	case 1:
		return "os-increment"
	case 2:
		return "free-running"
	default:
		return fmt.Sprintf("type-%d", t)
	}
}

func (r *Reader) readHeader() error {
	var magic uint32
	if err := binary.Read(r.br, binary.BigEndian, &magic); err != nil {
		return fmt.Errorf("wire: reading magic: %w", err)
	}
	if magic != psfMagic {
		return ErrBadMagic
	}
	var raw rawHeader
	if err := binary.Read(r.br, binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("wire: reading header body: %w", err)
	}
	r.Header = Header{
		KernelPort:               types.KernelPortIdentity(raw.KernelPort),
		KernelVersion:            cString(raw.KernelVersion[:]),
		Endianness:               types.LittleEndian,
		FormatVersion:            raw.FormatVersion,
		NumCores:                 raw.NumCores,
		IRQPriorityOrder:         raw.IRQPriorityOrder,
		ISRTailChainingThreshold: raw.ISRTailChainingThreshold,
		PlatformCfg:              cString(raw.PlatformCfg[:]),
		PlatformCfgVersionMajor:  raw.PlatformCfgVersion[0],
		PlatformCfgVersionMinor:  raw.PlatformCfgVersion[1],
		PlatformCfgVersionPatch:  raw.PlatformCfgVersion[2],
		HeapSize:                 raw.HeapSize,
		Timestamp: TsConfig{
			TimerType:        timerTypeName(raw.TimerType),
			TimerFrequency:   types.TimerFrequencyHz(raw.TimerFrequency),
			TimerPeriod:      raw.TimerPeriod,
			TimerWraparounds: raw.TimerWraparounds,
			OSTickRateHz:     raw.OSTickRateHz,
			OSTickCount:      raw.OSTickCount,
			LatestTimestamp:  raw.LatestTimestamp,
		},
	}
	if r.Header.KernelPort != types.KernelPortFreeRTOS {
		return &UnsupportedKernelPortError{Port: r.Header.KernelPort}
	}
	return nil
}

// Next decodes the next event record. It returns io.EOF when the stream is
// exhausted cleanly.
func (r *Reader) Next() (EventCode, Event, error) {
	// Restart detection: a fresh PSF magic appears where an event code would.
	// Peek rather than read, so Restart() finds the stream positioned at the
	// start of the new header.
	if b, err := r.br.Peek(4); err == nil && binary.BigEndian.Uint32(b) == psfMagic {
		return 0, Event{}, &RestartedError{Endianness: r.Header.Endianness}
	}

	var code EventCode
	if err := binary.Read(r.br, binary.LittleEndian, &code); err != nil {
		if err == io.EOF {
			return 0, Event{}, io.EOF
		}
		return 0, Event{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	var count uint16
	if err := binary.Read(r.br, binary.LittleEndian, &count); err != nil {
		return 0, Event{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	var timer uint32
	if err := binary.Read(r.br, binary.LittleEndian, &timer); err != nil {
		return 0, Event{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	params := make([]uint32, code.ParameterCount())
	for i := range params {
		if err := binary.Read(r.br, binary.LittleEndian, &params[i]); err != nil {
			return 0, Event{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
	}

	ev := Event{Code: code, Count: count, TimerTicks: timer}
	ev.RawParams = make([]byte, len(params)*4)
	for i, p := range params {
		binary.LittleEndian.PutUint32(ev.RawParams[i*4:], p)
	}
	ev.Kind = r.kindForID(code.ID())
	if err := r.fillVariant(&ev, params); err != nil {
		return code, ev, err
	}
	return code, ev, nil
}

func (r *Reader) kindForID(id uint16) EventKind {
	if r.customPrintfEventID != nil && id == *r.customPrintfEventID {
		return EventUserEvent
	}
	switch id {
	case 1:
		return EventTraceStart
	case 2:
		return EventTsConfig
	case 3:
		return EventObjectName
	case 10:
		return EventIsrBegin
	case 11:
		return EventIsrResume
	case 15:
		return EventIsrDefine
	case 12:
		return EventTaskBegin
	case 13:
		return EventTaskResume
	case 14:
		return EventTaskActivate
	case 60:
		return EventTaskCreate
	case 61:
		return EventTaskReady
	case 62:
		return EventTaskPriority
	case 63:
		return EventTaskPriorityInherit
	case 64:
		return EventTaskPriorityDisinherit
	case 65:
		return EventUnusedStack
	case 20:
		return EventTaskNotify
	case 21:
		return EventTaskNotifyFromIsr
	case 22:
		return EventTaskNotifyWait
	case 23:
		return EventTaskNotifyWaitBlock
	case 70:
		return EventQueueCreate
	case 30:
		return EventQueueSend
	case 71:
		return EventQueueSendBlock
	case 31:
		return EventQueueSendFromIsr
	case 32:
		return EventQueueSendFront
	case 72:
		return EventQueueSendFrontBlock
	case 33:
		return EventQueueSendFrontFromIsr
	case 34:
		return EventQueueReceive
	case 73:
		return EventQueueReceiveBlock
	case 35:
		return EventQueueReceiveFromIsr
	case 36:
		return EventQueuePeek
	case 74:
		return EventQueuePeekBlock
	case 80:
		return EventMutexCreate
	case 81:
		return EventMutexGive
	case 82:
		return EventMutexGiveBlock
	case 83:
		return EventMutexGiveRecursive
	case 84:
		return EventMutexTake
	case 85:
		return EventMutexTakeBlock
	case 86:
		return EventMutexTakeRecursive
	case 87:
		return EventMutexTakeRecursiveBlock
	case 90:
		return EventSemaphoreBinaryCreate
	case 91:
		return EventSemaphoreCountingCreate
	case 92:
		return EventSemaphoreGive
	case 93:
		return EventSemaphoreGiveBlock
	case 94:
		return EventSemaphoreGiveFromIsr
	case 95:
		return EventSemaphoreTake
	case 96:
		return EventSemaphoreTakeBlock
	case 97:
		return EventSemaphoreTakeFromIsr
	case 98:
		return EventSemaphorePeek
	case 99:
		return EventSemaphorePeekBlock
	case 100:
		return EventEventGroupCreate
	case 101:
		return EventEventGroupSync
	case 102:
		return EventEventGroupWaitBits
	case 103:
		return EventEventGroupClearBits
	case 104:
		return EventEventGroupClearBitsFromIsr
	case 105:
		return EventEventGroupSetBits
	case 106:
		return EventEventGroupSetBitsFromIsr
	case 107:
		return EventEventGroupSyncBlock
	case 108:
		return EventEventGroupWaitBitsBlock
	case 110:
		return EventMessageBufferCreate
	case 111:
		return EventMessageBufferSend
	case 112:
		return EventMessageBufferSendFromIsr
	case 113:
		return EventMessageBufferSendBlock
	case 114:
		return EventMessageBufferReceive
	case 115:
		return EventMessageBufferReceiveFromIsr
	case 116:
		return EventMessageBufferReceiveBlock
	case 117:
		return EventMessageBufferReset
	case 120:
		return EventStateMachineCreate
	case 121:
		return EventStateMachineStateCreate
	case 122:
		return EventStateMachineStateChange
	case 40:
		return EventUserEvent
	case 50:
		return EventMemoryAlloc
	case 51:
		return EventMemoryFree
	default:
		return EventUnknown
	}
}

// fillVariant maps raw parameter words onto the typed Event fields for the
// variants the context manager and attribute projection consume. Object
// handles are the first parameter word for every context/IPC event, matching
// the layout used throughout the streaming importer.
func (r *Reader) fillVariant(ev *Event, params []uint32) error {
	switch ev.Kind {
	case EventTraceStart:
		// The startup current-task handle. NO_TASK is legal here: it means the
		// target had not scheduled a real task yet.
		if len(params) >= 1 {
			ev.Handle = types.ObjectHandle(params[0])
		}
	case EventTsConfig:
		// Refreshes the timer configuration mid-stream; consumed into the
		// header's TsConfig, never surfaced as an emitted event.
		if len(params) >= 1 {
			r.Header.Timestamp.TimerFrequency = types.TimerFrequencyHz(params[0])
		}
		if len(params) >= 2 {
			r.Header.Timestamp.OSTickRateHz = params[1]
		}
		if len(params) >= 3 {
			r.Header.Timestamp.TimerWraparounds = params[2]
		}
	case EventIsrBegin, EventIsrResume, EventIsrDefine:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if ev.Handle == types.NoTask {
			return &InvalidObjectHandleError{Handle: ev.Handle}
		}
		if len(params) > 1 {
			ev.Priority = params[1]
		}
	case EventTaskBegin, EventTaskResume, EventTaskActivate, EventTaskCreate, EventTaskReady:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if ev.Handle == types.NoTask {
			return &InvalidObjectHandleError{Handle: ev.Handle}
		}
		if len(params) > 1 {
			ev.Priority = params[1]
		}
	case EventTaskPriority, EventTaskPriorityInherit, EventTaskPriorityDisinherit:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		ev.Priority = params[1]
	case EventUnusedStack:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		ev.Value = params[1] // stack low-water-mark
	case EventTaskNotify, EventTaskNotifyFromIsr:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.DestHandle = types.ObjectHandle(params[0])
	case EventTaskNotifyWait, EventTaskNotifyWaitBlock:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if len(params) > 1 {
			ev.WaitTicks = params[1]
		}
	case EventQueueCreate:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if len(params) > 1 {
			ev.QueueLength = params[1]
		}
	case EventQueueSend, EventQueueSendBlock, EventQueueSendFromIsr, EventQueueSendFront, EventQueueSendFrontBlock, EventQueueSendFrontFromIsr,
		EventQueueReceive, EventQueueReceiveBlock, EventQueueReceiveFromIsr, EventQueuePeek, EventQueuePeekBlock:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if len(params) > 1 {
			ev.QueueLength = params[1]
		}
		if len(params) > 2 {
			ev.WaitTicks = params[2]
		}
	case EventMutexCreate:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
	case EventMutexGive, EventMutexGiveBlock, EventMutexGiveRecursive,
		EventMutexTake, EventMutexTakeBlock, EventMutexTakeRecursive, EventMutexTakeRecursiveBlock:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if len(params) > 1 {
			ev.WaitTicks = params[1]
		}
	case EventSemaphoreBinaryCreate, EventSemaphoreCountingCreate:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if len(params) > 1 {
			ev.Value = params[1] // initial count
		}
	case EventSemaphoreGive, EventSemaphoreGiveBlock, EventSemaphoreGiveFromIsr,
		EventSemaphoreTake, EventSemaphoreTakeBlock, EventSemaphoreTakeFromIsr,
		EventSemaphorePeek, EventSemaphorePeekBlock:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		ev.Value = params[1] // count after the operation
		if len(params) > 2 {
			ev.WaitTicks = params[2]
		}
	case EventEventGroupCreate:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		ev.Bits = params[1]
	case EventEventGroupSync, EventEventGroupWaitBits, EventEventGroupClearBits, EventEventGroupClearBitsFromIsr,
		EventEventGroupSetBits, EventEventGroupSetBitsFromIsr, EventEventGroupSyncBlock, EventEventGroupWaitBitsBlock:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		ev.Bits = params[1]
		if len(params) > 2 {
			ev.WaitTicks = params[2]
		}
	case EventMessageBufferCreate:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		ev.Value = params[1] // buffer size
	case EventMessageBufferSend, EventMessageBufferSendFromIsr, EventMessageBufferSendBlock,
		EventMessageBufferReceive, EventMessageBufferReceiveFromIsr, EventMessageBufferReceiveBlock, EventMessageBufferReset:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		if len(params) > 1 {
			ev.Value = params[1] // bytes in buffer after the operation
		}
		if len(params) > 2 {
			ev.WaitTicks = params[2]
		}
	case EventStateMachineCreate:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
	case EventStateMachineStateCreate, EventStateMachineStateChange:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		ev.RelatedHandle = types.ObjectHandle(params[1])
		if name, ok := r.Objects[ev.RelatedHandle]; ok {
			ev.StateName = name
		}
	case EventObjectName:
		if len(params) < 1 {
			return ErrTruncated
		}
		ev.Handle = types.ObjectHandle(params[0])
		// Parameter words beyond the handle carry the NUL-padded name text.
		// An empty name falls back to the symbol table populated by
		// RegisterObjectName; a handle known nowhere is a recoverable lookup
		// failure, not a malformed record.
		if name := cString(ev.RawParams[4:]); name != "" {
			ev.Name = name
			r.Objects[ev.Handle] = name
		} else if name, ok := r.Objects[ev.Handle]; ok {
			ev.Name = name
		} else {
			return &ObjectLookupError{Handle: ev.Handle}
		}
	case EventMemoryAlloc, EventMemoryFree:
		if len(params) < 2 {
			return ErrTruncated
		}
		ev.Address = params[0]
		ev.Size = params[1]
	case EventUserEvent:
		// The first two parameters are symbol-table handles for the channel
		// and the format string; the rest are the format arguments. Both
		// resolve through the same registry OBJECT_NAME events populate. A
		// missing channel entry leaves the channel unnamed; a missing format
		// string makes the event unformattable and is a recoverable skip.
		if len(params) < 2 {
			return ErrTruncated
		}
		if name, ok := r.Objects[types.ObjectHandle(params[0])]; ok {
			ev.Channel = name
		}
		fmtHandle := types.ObjectHandle(params[1])
		format, ok := r.Objects[fmtHandle]
		if !ok {
			return &UserEventFmtStringLookupError{Handle: fmtHandle}
		}
		ev.Format = format
		ev.Args = make([]any, len(params)-2)
		for i, p := range params[2:] {
			ev.Args[i] = p
		}
	}
	ev.ClassHint = r.classHint(ev)
	return nil
}

// classHint resolves the object class an ignored_object_classes filter
// should match against. Queue-family events are ambiguous by event kind
// alone (FreeRTOS implements semaphores and mutexes on top of the queue
// primitive), so those consult the symbol table populated by
// RegisterObjectName; other variants' class follows directly from the
// event kind.
func (r *Reader) classHint(ev *Event) types.ObjectClass {
	switch ev.Kind {
	case EventIsrBegin, EventIsrResume, EventIsrDefine:
		return types.ObjectClassISR
	case EventTaskBegin, EventTaskResume, EventTaskActivate, EventTaskNotify, EventTaskNotifyFromIsr, EventTaskNotifyWait,
		EventTaskCreate, EventTaskReady, EventTaskPriority, EventTaskPriorityInherit, EventTaskPriorityDisinherit,
		EventTaskNotifyWaitBlock, EventUnusedStack:
		return types.ObjectClassTask
	case EventQueueCreate, EventQueueSend, EventQueueSendBlock, EventQueueSendFromIsr, EventQueueSendFront, EventQueueSendFrontBlock, EventQueueSendFrontFromIsr,
		EventQueueReceive, EventQueueReceiveBlock, EventQueueReceiveFromIsr, EventQueuePeek, EventQueuePeekBlock:
		if class, ok := r.Classes[ev.Handle]; ok {
			return class
		}
		return types.ObjectClassQueue
	case EventMutexCreate, EventMutexGive, EventMutexGiveBlock, EventMutexGiveRecursive,
		EventMutexTake, EventMutexTakeBlock, EventMutexTakeRecursive, EventMutexTakeRecursiveBlock:
		return types.ObjectClassMutex
	case EventSemaphoreBinaryCreate, EventSemaphoreCountingCreate,
		EventSemaphoreGive, EventSemaphoreGiveBlock, EventSemaphoreGiveFromIsr,
		EventSemaphoreTake, EventSemaphoreTakeBlock, EventSemaphoreTakeFromIsr,
		EventSemaphorePeek, EventSemaphorePeekBlock:
		return types.ObjectClassSemaphore
	case EventEventGroupCreate, EventEventGroupSync, EventEventGroupWaitBits, EventEventGroupClearBits, EventEventGroupClearBitsFromIsr,
		EventEventGroupSetBits, EventEventGroupSetBitsFromIsr, EventEventGroupSyncBlock, EventEventGroupWaitBitsBlock:
		return types.ObjectClassEventGroup
	case EventMessageBufferCreate, EventMessageBufferSend, EventMessageBufferSendFromIsr, EventMessageBufferSendBlock,
		EventMessageBufferReceive, EventMessageBufferReceiveFromIsr, EventMessageBufferReceiveBlock, EventMessageBufferReset:
		return types.ObjectClassMessageBuffer
	case EventStateMachineCreate:
		return types.ObjectClassStateMachine
	case EventStateMachineStateCreate, EventStateMachineStateChange:
		return types.ObjectClassStateMachineState
	case EventObjectName:
		if class, ok := r.Classes[ev.Handle]; ok {
			return class
		}
		return types.ObjectClassUnknown
	default:
		return types.ObjectClassUnknown
	}
}

// RegisterObjectName records a symbol-table entry so subsequent OBJECT_NAME
// events and projections can resolve a handle to a human name and class.
func (r *Reader) RegisterObjectName(h types.ObjectHandle, name string, class types.ObjectClass) {
	r.Objects[h] = name
	r.Classes[h] = class
}

// Restart re-reads a header after a RestartedError, using the already
// negotiated endianness (format version renegotiation happens in the new
// header, same as the initial read).
func (r *Reader) Restart() error {
	return r.readHeader()
}
