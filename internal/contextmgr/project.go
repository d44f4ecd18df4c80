package contextmgr

import (
	"fmt"

	"github.com/auxoncorp/rtrace/internal/attr"
	"github.com/auxoncorp/rtrace/internal/types"
	"github.com/auxoncorp/rtrace/internal/wire"
)

// FmtArgAttrKeysCountMismatchError is a fatal projection error: a
// channel+format-string pair registered in the custom-argument map declared a
// different number of keys than the event actually carried.
type FmtArgAttrKeysCountMismatchError struct {
	Channel, Format string
	Want, Got       int
}

func (e *FmtArgAttrKeysCountMismatchError) Error() string {
	return fmt.Sprintf("contextmgr: custom arg-key map for channel %q format %q declares %d keys, event has %d args", e.Channel, e.Format, e.Want, e.Got)
}

// ExceededMaxUserEventArgsError is a fatal projection error: a user event
// carried more positional arguments than the wire format allows.
type ExceededMaxUserEventArgsError struct {
	Channel string
	Count   int
}

func (e *ExceededMaxUserEventArgsError) Error() string {
	return fmt.Sprintf("contextmgr: user event on channel %q has %d args, exceeding the %d maximum", e.Channel, e.Count, types.MaxUserEventArgs)
}

// project builds the ordered attribute set for one wire event, applying the
// common fields every event carries plus variant-specific fields.
func (m *Manager) project(code wire.EventCode, ev wire.Event, extendedCount uint64, dropped uint16, timestamp uint64) (*attr.Set, error) {
	a := attr.NewSet()

	name := ev.Kind.String()
	eventType := "kernel"

	if ev.Kind == wire.EventUserEvent {
		var err error
		name, eventType, err = m.projectUserEvent(ev, a)
		if err != nil {
			return nil, err
		}
	}

	// Deviant decoding applies only to otherwise-unknown event ids; a
	// malformed deviant payload is fatal for the session, same as any other
	// projection error.
	if ev.Kind == wire.EventUnknown {
		handled, err := m.projectDeviant(code.ID(), ev.RawParams, a)
		if err != nil {
			return nil, err
		}
		if handled {
			name, _ = attr.Get(a, attr.EventName)
			eventType = "deviant"
		}
	}

	attr.Put(a, attr.EventName, name)
	attr.Put(a, attr.EventType, eventType)
	attr.Put(a, attr.EventCode, uint16(code))
	attr.Put(a, attr.EventID, code.ID())
	attr.Put(a, attr.ParameterCount, code.ParameterCount())
	attr.Put(a, attr.EventCountRaw, ev.Count)
	attr.Put(a, attr.EventCount, extendedCount)
	if dropped != 0 {
		attr.Put(a, attr.DroppedEvents, dropped)
	}
	attr.Put(a, attr.TimerTicks, ev.TimerTicks)
	attr.Put(a, attr.TimestampTicks, timestamp)
	if ns, ok := types.TicksToNanos(timestamp, m.freq); ok {
		attr.Put(a, attr.Timestamp, ns)
	}

	m.projectObjectFields(ev, a)

	return a, nil
}

// projectUserEvent resolves the event-name source (channel or formatted
// string, per config), the channel/format rename tables, and the "#WFR"
// warning-channel special case, and attaches positional/custom argument
// attributes. A custom arg-key map whose length disagrees with the event's
// actual argument count, or a positional arg count beyond
// types.MaxUserEventArgs, fails the whole event rather than silently
// truncating it.
func (m *Manager) projectUserEvent(ev wire.Event, a *attr.Set) (name, eventType string, err error) {
	name = ev.Kind.String()
	if m.cfg.UserEventChannel {
		name = ev.Channel
	} else if m.cfg.UserEventFormatString {
		name = ev.Format
	}
	if renamed, ok := m.cfg.UserEventChannelRenameMap[ev.Channel]; ok {
		name = renamed
	}
	if renamed, ok := m.cfg.UserEventFormattedStringRenameMap[ev.Format]; ok {
		name = renamed
	}

	attr.Put(a, attr.UserChannel, ev.Channel)
	if ev.Format != "" {
		attr.Put(a, attr.UserFormattedString, ev.Format)
	}

	if ev.Channel == "#WFR" {
		m.logger.Warn("warning from recorder", "format", ev.Format)
		name = attr.WarningFromRecorderEventName
	}

	if m.cfg.UseTimelineIDChannel && ev.Channel == "modality-timeline-id" && ev.Format == "name=%s,id=%s" {
		// The override is only ever logged, never applied to timeline id
		// allocation.
		m.logger.Warn("modality-timeline-id channel override is not applied", "args", ev.Args)
	}

	if keys, ok := m.cfg.UserEventFmtArgAttrKeys[[2]string{ev.Channel, ev.Format}]; ok {
		if len(keys) != len(ev.Args) {
			return "", "", &FmtArgAttrKeysCountMismatchError{Channel: ev.Channel, Format: ev.Format, Want: len(keys), Got: len(ev.Args)}
		}
		for i, k := range keys {
			attr.Put(a, attr.Key[any](k), ev.Args[i])
		}
		return name, "user", nil
	}

	if len(ev.Args) > types.MaxUserEventArgs {
		return "", "", &ExceededMaxUserEventArgsError{Channel: ev.Channel, Count: len(ev.Args)}
	}
	for i, v := range ev.Args {
		attr.Put(a, attr.Key[any](fmt.Sprintf("user.arg%d", i)), v)
	}

	return name, "user", nil
}

// projectObjectFields attaches the variant-specific fields for
// object-bearing and IPC events.
func (m *Manager) projectObjectFields(ev wire.Event, a *attr.Set) {
	switch ev.Kind {
	case wire.EventIsrBegin, wire.EventIsrResume, wire.EventIsrDefine,
		wire.EventTaskBegin, wire.EventTaskResume, wire.EventTaskActivate, wire.EventTaskCreate, wire.EventTaskReady:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		if ev.Priority != 0 {
			attr.Put(a, attr.Priority, ev.Priority)
		}
	case wire.EventTaskPriority, wire.EventTaskPriorityInherit, wire.EventTaskPriorityDisinherit:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.Priority, ev.Priority)
	case wire.EventUnusedStack:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.StackLowMark, ev.Value)
	case wire.EventTaskNotify, wire.EventTaskNotifyFromIsr:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.DestHandle))
	case wire.EventTaskNotifyWait, wire.EventTaskNotifyWaitBlock:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		if ev.WaitTicks != 0 {
			attr.Put(a, attr.WaitTicks, ev.WaitTicks)
			if ns, ok := types.TicksToNanos(uint64(ev.WaitTicks), m.freq); ok {
				attr.Put(a, attr.WaitTime, ns)
			}
		}
	case wire.EventQueueCreate:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.QueueLength, ev.QueueLength)
	case wire.EventQueueSend, wire.EventQueueSendBlock, wire.EventQueueSendFromIsr, wire.EventQueueSendFront, wire.EventQueueSendFrontBlock, wire.EventQueueSendFrontFromIsr,
		wire.EventQueueReceive, wire.EventQueueReceiveBlock, wire.EventQueueReceiveFromIsr, wire.EventQueuePeek, wire.EventQueuePeekBlock:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.QueueLength, ev.QueueLength)
		if ev.WaitTicks != 0 {
			attr.Put(a, attr.WaitTicks, ev.WaitTicks)
			if ns, ok := types.TicksToNanos(uint64(ev.WaitTicks), m.freq); ok {
				attr.Put(a, attr.WaitTime, ns)
			}
		}
	case wire.EventMutexCreate:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
	case wire.EventMutexGive, wire.EventMutexGiveBlock, wire.EventMutexGiveRecursive,
		wire.EventMutexTake, wire.EventMutexTakeBlock, wire.EventMutexTakeRecursive, wire.EventMutexTakeRecursiveBlock:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		if ev.WaitTicks != 0 {
			attr.Put(a, attr.WaitTicks, ev.WaitTicks)
			if ns, ok := types.TicksToNanos(uint64(ev.WaitTicks), m.freq); ok {
				attr.Put(a, attr.WaitTime, ns)
			}
		}
	case wire.EventSemaphoreBinaryCreate, wire.EventSemaphoreCountingCreate:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.SemaphoreCount, ev.Value)
	case wire.EventSemaphoreGive, wire.EventSemaphoreGiveBlock, wire.EventSemaphoreGiveFromIsr,
		wire.EventSemaphoreTake, wire.EventSemaphoreTakeBlock, wire.EventSemaphoreTakeFromIsr,
		wire.EventSemaphorePeek, wire.EventSemaphorePeekBlock:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.SemaphoreCount, ev.Value)
		if ev.WaitTicks != 0 {
			attr.Put(a, attr.WaitTicks, ev.WaitTicks)
			if ns, ok := types.TicksToNanos(uint64(ev.WaitTicks), m.freq); ok {
				attr.Put(a, attr.WaitTime, ns)
			}
		}
	case wire.EventEventGroupCreate, wire.EventEventGroupSync, wire.EventEventGroupWaitBits,
		wire.EventEventGroupClearBits, wire.EventEventGroupClearBitsFromIsr,
		wire.EventEventGroupSetBits, wire.EventEventGroupSetBitsFromIsr,
		wire.EventEventGroupSyncBlock, wire.EventEventGroupWaitBitsBlock:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.EventGroupBits, ev.Bits)
		if ev.WaitTicks != 0 {
			attr.Put(a, attr.WaitTicks, ev.WaitTicks)
			if ns, ok := types.TicksToNanos(uint64(ev.WaitTicks), m.freq); ok {
				attr.Put(a, attr.WaitTime, ns)
			}
		}
	case wire.EventMessageBufferCreate:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.MessageBufferSize, ev.Value)
	case wire.EventMessageBufferSend, wire.EventMessageBufferSendFromIsr, wire.EventMessageBufferSendBlock,
		wire.EventMessageBufferReceive, wire.EventMessageBufferReceiveFromIsr, wire.EventMessageBufferReceiveBlock, wire.EventMessageBufferReset:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.MessageBufferBytesInUse, ev.Value)
		if ev.WaitTicks != 0 {
			attr.Put(a, attr.WaitTicks, ev.WaitTicks)
			if ns, ok := types.TicksToNanos(uint64(ev.WaitTicks), m.freq); ok {
				attr.Put(a, attr.WaitTime, ns)
			}
		}
	case wire.EventStateMachineCreate:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
	case wire.EventStateMachineStateCreate, wire.EventStateMachineStateChange:
		attr.Put(a, attr.ObjectHandleKey, uint32(ev.Handle))
		attr.Put(a, attr.StateMachineStateHandle, uint32(ev.RelatedHandle))
		if ev.StateName != "" {
			attr.Put(a, attr.StateMachineStateName, ev.StateName)
		}
	case wire.EventMemoryAlloc, wire.EventMemoryFree:
		attr.Put(a, attr.MemoryAddress, ev.Address)
		attr.Put(a, attr.MemorySize, ev.Size)
	}

	if ev.Handle != types.NoTask {
		if n, ok := m.objectNames[ev.Handle]; ok {
			attr.Put(a, attr.ObjectName, n)
		}
	}
	if ev.ClassHint != types.ObjectClassUnknown {
		attr.Put(a, attr.ObjectClass, ev.ClassHint.String())
	}
}

// timelineAttrs builds the once-per-timeline metadata attribute set: common
// run-level attributes plus this context's specific identity.
func (m *Manager) timelineAttrs(tl *TimelineMeta, h types.ContextHandle) {
	a := tl.Attrs
	hdr := m.hdr

	attr.Put(a, attr.TimelineRunID, m.cfg.RunID.String())
	attr.Put(a, attr.TimelineTimeDomain, m.cfg.TimeDomain.String())
	attr.Put(a, attr.TimelineClockStyle, "relative")
	attr.Put(a, attr.TimelineProtocol, "rtrace-streaming-v1")
	if hdr.KernelVersion != "" {
		attr.Put(a, attr.TimelineKernelVersion, hdr.KernelVersion)
	}
	attr.Put(a, attr.TimelineKernelPort, hdr.KernelPort.String())
	attr.Put(a, attr.TimelineEndianness, endiannessName(hdr.Endianness))
	attr.Put(a, attr.TimelineFrequency, uint64(m.freq))
	attr.Put(a, attr.TimelineIRQPriorityOrder, uint32(hdr.IRQPriorityOrder))
	if hdr.PlatformCfg != "" {
		attr.Put(a, attr.TimelinePlatformCfg, hdr.PlatformCfg)
		attr.Put(a, attr.TimelinePlatformCfgVersion, fmt.Sprintf("%d.%d.%d",
			hdr.PlatformCfgVersionMajor, hdr.PlatformCfgVersionMinor, hdr.PlatformCfgVersionPatch))
	}
	attr.Put(a, attr.TimelineHeapSize, hdr.HeapSize)
	attr.Put(a, attr.TimelineTimerType, hdr.Timestamp.TimerType)
	attr.Put(a, attr.TimelineTimerFreq, uint64(hdr.Timestamp.TimerFrequency))
	attr.Put(a, attr.TimelineTimerPeriod, uint64(hdr.Timestamp.TimerPeriod))
	attr.Put(a, attr.TimelineTimerWraps, hdr.Timestamp.TimerWraparounds)
	attr.Put(a, attr.TimelineOSTickRateHz, hdr.Timestamp.OSTickRateHz)
	attr.Put(a, attr.TimelineOSTickCount, hdr.Timestamp.OSTickCount)
	attr.Put(a, attr.TimelineLatestTimestampTicks, hdr.Timestamp.LatestTimestamp)
	if ns, ok := types.TicksToNanos(hdr.Timestamp.LatestTimestamp, m.freq); ok {
		attr.Put(a, attr.TimelineLatestTimestamp, ns)
	}

	name := fmt.Sprintf("%s-%d", h.Kind, h.Handle)
	if n, ok := m.objectNames[h.Handle]; ok {
		name = n
	}
	if h == types.Task(m.startupHandle) {
		name = m.eff.StartupTaskName
	}
	attr.Put(a, attr.TimelineName, name)
	attr.Put(a, attr.TimelineDescription, fmt.Sprintf("%s %s '%s'", hdr.KernelPort, h.Kind, name))
	attr.Put(a, attr.TimelineObjectHandle, uint32(h.Handle))

	windowTicks := m.eff.WindowTicks(m.freq)
	attr.Put(a, attr.TimelineUtilWindowTicks, windowTicks)
	if ns, ok := types.TicksToNanos(windowTicks, m.freq); ok {
		attr.Put(a, attr.TimelineUtilWindow, ns)
	}
}

func endiannessName(e types.Endianness) string {
	if e == types.BigEndian {
		return "big"
	}
	return "little"
}
