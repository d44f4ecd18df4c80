package attr

// Event attribute keys. Names follow a dotted convention (event.*, user.*,
// timeline.*): a namespace prefix followed by a short, stable leaf name.
// These are wire-visible strings; renaming one breaks downstream consumers.
var (
	EventName      = Key[string]("event.name")
	EventCode      = Key[uint16]("event.code")
	EventType      = Key[string]("event.type")
	EventID        = Key[uint16]("event.id")
	EventCountRaw  = Key[uint16]("event.count_raw")
	EventCount     = Key[uint64]("event.count")
	DroppedEvents  = Key[uint16]("event.dropped_events")
	ParameterCount = Key[uint8]("event.parameter_count")
	TimerTicks     = Key[uint32]("event.timer_ticks")
	TimestampTicks = Key[uint64]("event.timestamp_ticks")
	Timestamp      = Key[uint64]("event.timestamp") // nanoseconds

	// Causal interaction edges between timelines.
	InternalNonce    = Key[int64]("event.interaction.internal_nonce")
	Nonce            = Key[int64]("event.interaction.nonce")
	RemoteTimelineID = Key[string]("event.interaction.remote_timeline_id")
	RemoteNonce      = Key[int64]("event.interaction.remote_nonce")

	// Running-time stats, attached on context switch-in.
	Runtime              = Key[uint64]("event.context.runtime") // nanoseconds, if known
	RuntimeTicks         = Key[uint64]("event.context.runtime_ticks")
	RuntimeInWindow      = Key[uint64]("event.context.runtime_in_window")
	RuntimeInWindowTicks = Key[uint64]("event.context.runtime_in_window_ticks")
	RuntimeWindow        = Key[uint64]("event.context.runtime_window")
	RuntimeWindowTicks   = Key[uint64]("event.context.runtime_window_ticks")
	CPUUtilization       = Key[float64]("event.context.cpu_utilization")

	// User events.
	UserChannel         = Key[string]("user.channel")
	UserFormattedString = Key[string]("user.formatted_string")

	// Object-bearing events (task/isr lifecycle, IPC primitives).
	ObjectHandleKey = Key[uint32]("event.object.handle")
	ObjectName      = Key[string]("event.object.name")
	ObjectClass     = Key[string]("event.object.class")
	Priority        = Key[uint32]("event.task.priority")
	WaitTicks       = Key[uint32]("event.wait_ticks")
	WaitTime        = Key[uint64]("event.wait_time") // nanoseconds
	QueueLength     = Key[uint32]("event.queue.messages_waiting")
	MemoryAddress   = Key[uint32]("event.memory.address")
	MemorySize      = Key[uint32]("event.memory.size")
	StackLowMark    = Key[uint32]("event.task.stack_low_water_mark")

	// Event-group bitmask operations (sync, wait, set/clear bits).
	EventGroupBits = Key[uint32]("event.event_group.bits")

	// Semaphore/message-buffer secondary counters (count after the op, or
	// buffer size on create / bytes-in-buffer after send/receive).
	SemaphoreCount          = Key[uint32]("event.semaphore.count")
	MessageBufferSize       = Key[uint32]("event.message_buffer.size")
	MessageBufferBytesInUse = Key[uint32]("event.message_buffer.bytes_in_buffer")

	// State-machine state transitions.
	StateMachineStateHandle = Key[uint32]("event.state_machine.state_handle")
	StateMachineStateName   = Key[string]("event.state_machine.state_name")

	// Mutator/mutation lifecycle (deviant event parser).
	MutatorID       = Key[string]("event.mutator.id")
	MutationID      = Key[string]("event.mutation.id")
	MutationSuccess = Key[bool]("event.mutation.success")
)

// Timeline attribute keys.
var (
	TimelineName         = Key[string]("timeline.name")
	TimelineDescription  = Key[string]("timeline.description")
	TimelineObjectHandle = Key[uint32]("timeline.object_handle")

	TimelineRunID                = Key[string]("timeline.internal.rtrace.run_id")
	TimelineTimeDomain           = Key[string]("timeline.internal.rtrace.time_domain")
	TimelineClockStyle           = Key[string]("timeline.internal.rtrace.clock_style")
	TimelineProtocol             = Key[string]("timeline.internal.rtrace.protocol")
	TimelineKernelVersion        = Key[string]("timeline.internal.rtrace.kernel_version")
	TimelineKernelPort           = Key[string]("timeline.internal.rtrace.kernel_port")
	TimelineEndianness           = Key[string]("timeline.internal.rtrace.endianness")
	TimelineFrequency            = Key[uint64]("timeline.internal.rtrace.frequency")
	TimelineIRQPriorityOrder     = Key[uint32]("timeline.internal.rtrace.irq_priority_order")
	TimelinePlatformCfg          = Key[string]("timeline.internal.rtrace.platform_cfg")
	TimelinePlatformCfgVersion   = Key[string]("timeline.internal.rtrace.platform_cfg_version")
	TimelineHeapSize             = Key[uint64]("timeline.internal.rtrace.heap_size")
	TimelineTimerType            = Key[string]("timeline.internal.rtrace.timer_type")
	TimelineTimerFreq            = Key[uint64]("timeline.internal.rtrace.timer_frequency")
	TimelineTimerPeriod          = Key[uint64]("timeline.internal.rtrace.timer_period")
	TimelineTimerWraps           = Key[uint32]("timeline.internal.rtrace.timer_wraparounds")
	TimelineOSTickRateHz         = Key[uint32]("timeline.internal.rtrace.os_tick_rate_hz")
	TimelineOSTickCount          = Key[uint64]("timeline.internal.rtrace.os_tick_count")
	TimelineLatestTimestampTicks = Key[uint64]("timeline.internal.rtrace.latest_timestamp_ticks")
	TimelineLatestTimestamp      = Key[uint64]("timeline.internal.rtrace.latest_timestamp")

	TimelineUtilWindowTicks = Key[uint64]("timeline.internal.rtrace.cpu_utilization_window_ticks")
	TimelineUtilWindow      = Key[uint64]("timeline.internal.rtrace.cpu_utilization_window")
)

// EventName value for the renamed "#WFR" warning channel.
const WarningFromRecorderEventName = "WARNING_FROM_RECORDER"
