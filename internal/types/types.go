// Package types defines the handle and identity primitives shared across the
// wire parser, context manager, and attribute projection.
package types

import "fmt"

// ObjectHandle is an opaque target-side identifier for a task, ISR, queue,
// semaphore, mutex, event group, message buffer, or state machine. It is
// unique within one trace session.
type ObjectHandle uint32

// NoTask is the reserved handle denoting the synthetic startup context before
// the target has reported a real current task.
const NoTask ObjectHandle = 0

// StartupTaskName is the default name used for the synthetic startup context.
const StartupTaskName = "(startup)"

// ContextKind distinguishes a task context from an interrupt context.
type ContextKind uint8

const (
	ContextTask ContextKind = iota
	ContextISR
)

func (k ContextKind) String() string {
	if k == ContextISR {
		return "isr"
	}
	return "task"
}

// ContextHandle is a tagged union over ObjectHandle: a Task(h) or an Isr(h).
// Ordering is by (Kind, Handle), matching the data model's tagged-union
// comparison rule.
type ContextHandle struct {
	Kind   ContextKind
	Handle ObjectHandle
}

func Task(h ObjectHandle) ContextHandle { return ContextHandle{Kind: ContextTask, Handle: h} }
func ISR(h ObjectHandle) ContextHandle  { return ContextHandle{Kind: ContextISR, Handle: h} }

func (c ContextHandle) String() string {
	return fmt.Sprintf("%s(%d)", c.Kind, c.Handle)
}

// Less implements the tagged-union ordering: by Kind first, then Handle.
func (c ContextHandle) Less(o ContextHandle) bool {
	if c.Kind != o.Kind {
		return c.Kind < o.Kind
	}
	return c.Handle < o.Handle
}

// ObjectClass names the kind of kernel object an ObjectHandle refers to.
type ObjectClass uint8

const (
	ObjectClassTask ObjectClass = iota
	ObjectClassISR
	ObjectClassQueue
	ObjectClassSemaphore
	ObjectClassMutex
	ObjectClassEventGroup
	ObjectClassMessageBuffer
	ObjectClassStateMachine
	ObjectClassStateMachineState
	ObjectClassUnknown
)

func (c ObjectClass) String() string {
	switch c {
	case ObjectClassTask:
		return "task"
	case ObjectClassISR:
		return "isr"
	case ObjectClassQueue:
		return "queue"
	case ObjectClassSemaphore:
		return "semaphore"
	case ObjectClassMutex:
		return "mutex"
	case ObjectClassEventGroup:
		return "event_group"
	case ObjectClassMessageBuffer:
		return "message_buffer"
	case ObjectClassStateMachine:
		return "state_machine"
	case ObjectClassStateMachineState:
		return "state_machine_state"
	default:
		return "unknown"
	}
}

// KernelPortIdentity identifies the RTOS kernel port that produced a trace.
// Only FreeRTOS is supported by this decoder; any other value observed in a
// trace header is a fatal configuration mismatch.
type KernelPortIdentity uint16

const (
	KernelPortFreeRTOS KernelPortIdentity = 1
	KernelPortZephyr   KernelPortIdentity = 2
	KernelPortThreadX  KernelPortIdentity = 3
)

func (k KernelPortIdentity) String() string {
	switch k {
	case KernelPortFreeRTOS:
		return "FreeRTOS"
	case KernelPortZephyr:
		return "Zephyr"
	case KernelPortThreadX:
		return "ThreadX"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(k))
	}
}

// Endianness of the multi-byte fields in a trace stream.
type Endianness uint8

const (
	LittleEndian Endianness = iota
	BigEndian
)

// MaxUserEventArgs is the maximum number of positional arguments a user
// event may carry.
const MaxUserEventArgs = 15

// Nonce is a per-timeline wrapping counter used as the local coordinate of a
// causal interaction edge.
type Nonce int64

// TimerFrequencyHz of zero means "ticks only": no tick-to-nanosecond
// conversion is possible for this session.
type TimerFrequencyHz uint64

// TicksToNanos converts a tick count to nanoseconds at the given frequency.
// ok is false when freq is zero (frequency unknown).
func TicksToNanos(ticks uint64, freq TimerFrequencyHz) (ns uint64, ok bool) {
	if freq == 0 {
		return 0, false
	}
	return ticks * 1_000_000_000 / uint64(freq), true
}
