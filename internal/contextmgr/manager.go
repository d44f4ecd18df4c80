// Package contextmgr implements the context manager: the stateful decoder
// that turns a flat stream of wire events into a timeline-per-context model,
// with causal interaction edges between timelines.
package contextmgr

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/auxoncorp/rtrace/internal/attr"
	"github.com/auxoncorp/rtrace/internal/config"
	"github.com/auxoncorp/rtrace/internal/types"
	"github.com/auxoncorp/rtrace/internal/wire"
)

// TimelineMeta is the per-context timeline identity and nonce counter.
type TimelineMeta struct {
	ID       uuid.UUID
	Handle   types.ContextHandle
	Attrs    *attr.Set
	Nonce    int64
	Reported bool // metadata already staged for flush by the driver
}

// ContextStats is the per-context running-time bookkeeping.
type ContextStats struct {
	LastSwitchInTicks       uint64
	TotalRuntimeTicks       uint64
	RuntimeSinceWindowTicks uint64
	HasLastWindow           bool
	LastRunningTicks        uint64
	LastWindowTicks         uint64
}

type pendingInteraction struct {
	TimelineID uuid.UUID
	Nonce      int64
}

// ContextEvent is one emitted, fully-projected event, ready for the reader
// driver's look-ahead buffer and the ingest client.
type ContextEvent struct {
	GlobalOrdering uint64
	TimelineID     uuid.UUID
	NewTimeline    bool
	TimelineAttrs  *attr.Set
	Attrs          *attr.Set

	internalNonce int64
	promoted      bool

	// PromotePrevious signals that the driver's currently-buffered (i.e.
	// previous) event should have its internal nonce promoted to a public
	// nonce, because this event references it as a causal predecessor.
	PromotePrevious bool
}

// PromoteNonce publishes this event's internal nonce as a public Nonce
// attribute. Safe to call at most meaningfully once; later calls are no-ops.
func (e *ContextEvent) PromoteNonce() {
	if e.promoted {
		return
	}
	e.promoted = true
	attr.Put(e.Attrs, attr.Nonce, e.internalNonce)
}

// Manager is the core, single-goroutine-owned decoder state.
type Manager struct {
	cfg    config.Config
	eff    config.Config // cfg with degraded-mode overrides applied
	logger *slog.Logger

	hdr  wire.Header
	freq types.TimerFrequencyHz

	timestamps TimestampTracker
	counters   EventCounterTracker

	timelines   map[types.ContextHandle]*TimelineMeta
	objectNames map[types.ObjectHandle]string
	stats       map[types.ContextHandle]*ContextStats

	active        types.ContextHandle
	startupHandle types.ObjectHandle

	notifyTable map[types.ObjectHandle]pendingInteraction
	queueTables map[types.ObjectHandle][]pendingInteraction

	degraded           bool
	firstEventObserved bool
	globalOrdering     uint64
	windowStart        uint64

	deviant *deviantState
}

// New constructs a Manager for one trace session, seeded from the parsed
// stream header.
func New(cfg config.Config, hdr wire.Header, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InteractionMode == config.IPC && (cfg.SingleTaskTimeline || cfg.FlattenISRTimelines) {
		logger.Warn("single_task_timeline and flatten_isr_timelines are ignored in IPC interaction mode")
		cfg.SingleTaskTimeline = false
		cfg.FlattenISRTimelines = false
	}
	m := &Manager{
		cfg:         cfg,
		eff:         cfg,
		logger:      logger,
		hdr:         hdr,
		freq:        hdr.Timestamp.TimerFrequency,
		timelines:   make(map[types.ContextHandle]*TimelineMeta),
		objectNames: make(map[types.ObjectHandle]string),
		stats:       make(map[types.ContextHandle]*ContextStats),
		notifyTable: make(map[types.ObjectHandle]pendingInteraction),
		queueTables: make(map[types.ObjectHandle][]pendingInteraction),
	}
	if cfg.DeviantEventIDBase != nil {
		if err := m.SetDeviantConfig(*cfg.DeviantEventIDBase); err != nil {
			logger.Warn("ignoring invalid deviant_event_id_base", "error", err)
		}
	}
	return m
}

// UpdateHeader replaces the header snapshot after the driver re-reads one
// across a trace restart.
func (m *Manager) UpdateHeader(hdr wire.Header) {
	m.hdr = hdr
	m.freq = hdr.Timestamp.TimerFrequency
}

// SetDeviantConfig wires the optional deviant-event sub-decoder.
func (m *Manager) SetDeviantConfig(base uint16) error {
	ds, err := newDeviantState(base)
	if err != nil {
		return err
	}
	m.deviant = ds
	return nil
}

// SetDegraded latches degraded mode from an external observation (a
// recoverable wire-parser error seen by the reader driver), exactly like an
// internally detected one.
func (m *Manager) SetDegraded(reason string) {
	m.setDegraded(reason)
}

// setDegraded latches degraded mode, logs once, and snapshots the simplified
// effective configuration for the remainder of the session. The latch is
// sticky: later calls are no-ops.
func (m *Manager) setDegraded(reason string) {
	if m.degraded {
		return
	}
	m.degraded = true
	m.logger.Warn("context manager entering degraded mode", "reason", reason)
	m.eff = m.cfg
	m.eff.InteractionMode = config.FullyLinearized
	m.eff.SingleTaskTimeline = true
	m.eff.FlattenISRTimelines = true
	m.eff.StartupTaskName = "UNKNOWN_CONTEXT"
	m.active = types.Task(m.startupHandle)
}

// ObserveTraceRestart resets per-session counters while preserving allocated
// timelines and their nonces, so causal edges emitted before and after a
// restart remain addressable against the same timeline ids.
func (m *Manager) ObserveTraceRestart() {
	m.firstEventObserved = false
	m.stats = make(map[types.ContextHandle]*ContextStats)
	m.windowStart = 0
}

// Process advances the manager by one wire event, returning the emitted
// ContextEvent, or nil if this event produced no user-visible record (e.g. a
// TS_CONFIG/OBJECT_NAME metadata event).
func (m *Manager) Process(code wire.EventCode, ev wire.Event) (*ContextEvent, error) {
	m.globalOrdering++

	seeding := !m.firstEventObserved
	if seeding {
		if ev.Kind != wire.EventTraceStart {
			m.setDegraded("first event observed was not TRACE_START")
		} else {
			m.startupHandle = ev.Handle
			m.active = types.Task(m.startupHandle)
		}
		m.firstEventObserved = true
		m.counters = EventCounterTracker{}
		m.timestamps.Seed(ev.TimerTicks, m.hdr.Timestamp.TimerWraparounds)
	}

	extendedCount, dropped := m.counters.Update(ev.Count)
	timestamp := m.timestamps.Update(ev.TimerTicks)
	if seeding {
		m.windowStart = timestamp
		m.openStats(m.active, timestamp)
	}
	if dropped != 0 {
		m.logger.Warn("dropped events detected", "event_count", ev.Count, "dropped", dropped)
	}

	switch ev.Kind {
	case wire.EventObjectName:
		if ev.Name != "" {
			m.objectNames[ev.Handle] = ev.Name
		}
		return nil, nil
	case wire.EventTsConfig:
		return nil, nil
	}

	if ev.Kind == wire.EventUnknown && !m.eff.IncludeUnknownEvents && !m.isDeviant(code.ID()) {
		return nil, nil
	}
	if m.eff.IgnoredObjectClasses[ev.ClassHint] {
		return nil, nil
	}

	attrs, err := m.project(code, ev, extendedCount, dropped, timestamp)
	if err != nil {
		return nil, err
	}

	var switched *types.ContextHandle
	if ev.Kind.IsSwitchIn() {
		target := types.Task(ev.Handle)
		if ev.Kind == wire.EventIsrBegin || ev.Kind == wire.EventIsrResume {
			target = types.ISR(ev.Handle)
		}
		switched = m.switchTo(target, timestamp)
	}

	if switched != nil {
		m.maybeRollWindow(timestamp)
		m.attachStats(attrs, m.active)
	}

	tl := m.ensureTimeline(m.active)
	tl.Nonce++

	out := &ContextEvent{
		GlobalOrdering: m.globalOrdering,
		TimelineID:     tl.ID,
		Attrs:          attrs,
		internalNonce:  tl.Nonce,
	}
	attr.Put(attrs, attr.InternalNonce, tl.Nonce)

	if !tl.Reported {
		tl.Reported = true
		out.NewTimeline = true
		out.TimelineAttrs = tl.Attrs
	}

	if m.eff.DisableTaskInteractions {
		return out, nil
	}

	switch m.eff.InteractionMode {
	case config.FullyLinearized:
		m.processFullyLinearized(switched, out, attrs)
	case config.IPC:
		m.processIPC(ev, out, attrs)
	}

	return out, nil
}

// processFullyLinearized implements the emission rule: every switch carries
// an edge back to the timeline that was active immediately before it, and
// flags the driver to promote that timeline's most recent event.
func (m *Manager) processFullyLinearized(switched *types.ContextHandle, out *ContextEvent, attrs *attr.Set) {
	if switched == nil {
		return
	}
	prevTl, ok := m.timelines[*switched]
	if !ok {
		return
	}
	attr.Put(attrs, attr.RemoteTimelineID, prevTl.ID.String())
	attr.Put(attrs, attr.RemoteNonce, prevTl.Nonce)
	out.PromotePrevious = true
}

// processIPC implements the per-primitive notify/queue matching rules.
func (m *Manager) processIPC(ev wire.Event, out *ContextEvent, attrs *attr.Set) {
	active := m.timelines[m.active]

	switch ev.Kind {
	case wire.EventTaskNotify, wire.EventTaskNotifyFromIsr:
		out.PromoteNonce()
		m.notifyTable[ev.DestHandle] = pendingInteraction{TimelineID: active.ID, Nonce: active.Nonce}
	case wire.EventTaskNotifyWait:
		if ev.Handle != m.active.Handle {
			m.logger.Warn("inconsistent IPC interaction context", "receiver", ev.Handle, "active", m.active.Handle)
		}
		if p, ok := m.notifyTable[ev.Handle]; ok {
			delete(m.notifyTable, ev.Handle)
			attr.Put(attrs, attr.RemoteTimelineID, p.TimelineID.String())
			attr.Put(attrs, attr.RemoteNonce, p.Nonce)
		}
	case wire.EventQueueSend, wire.EventQueueSendFromIsr:
		out.PromoteNonce()
		m.queueTables[ev.Handle] = append(m.queueTables[ev.Handle], pendingInteraction{TimelineID: active.ID, Nonce: active.Nonce})
	case wire.EventQueueSendFront, wire.EventQueueSendFrontFromIsr:
		out.PromoteNonce()
		m.queueTables[ev.Handle] = append([]pendingInteraction{{TimelineID: active.ID, Nonce: active.Nonce}}, m.queueTables[ev.Handle]...)
	case wire.EventQueueReceive, wire.EventQueueReceiveFromIsr:
		if q := m.queueTables[ev.Handle]; len(q) > 0 {
			p := q[0]
			m.queueTables[ev.Handle] = q[1:]
			attr.Put(attrs, attr.RemoteTimelineID, p.TimelineID.String())
			attr.Put(attrs, attr.RemoteNonce, p.Nonce)
		}
	case wire.EventQueuePeek:
		if q := m.queueTables[ev.Handle]; len(q) > 0 {
			p := q[0]
			attr.Put(attrs, attr.RemoteTimelineID, p.TimelineID.String())
			attr.Put(attrs, attr.RemoteNonce, p.Nonce)
		}
	}
}

// switchTo runs the active-context state machine for a switch-in event,
// returning the previous active context iff the timeline actually changed
// after applying the effective projection (single-task / flatten-ISR).
func (m *Manager) switchTo(target types.ContextHandle, timestamp uint64) *types.ContextHandle {
	// Runtime stats are opened for the raw incoming context before any
	// timeline projection below; the clock closed is that of the current
	// active context, which under single-task / flatten-ISR projection is the
	// projected one rather than the raw context that last switched in.
	if target != m.active {
		m.closeStats(m.active, timestamp)
		m.openStats(target, timestamp)
	}

	if !m.eff.SingleTaskTimeline && !m.eff.FlattenISRTimelines && target == m.active {
		return nil
	}

	projected := target
	if target.Kind == types.ContextTask {
		if m.eff.SingleTaskTimeline {
			projected = types.Task(m.startupHandle)
		}
	} else if m.eff.FlattenISRTimelines {
		projected = m.active
	}

	if projected == m.active {
		return nil
	}

	prev := m.active
	m.ensureTimeline(projected)
	m.active = projected
	return &prev
}

func (m *Manager) ensureTimeline(h types.ContextHandle) *TimelineMeta {
	tl, ok := m.timelines[h]
	if ok {
		return tl
	}
	tl = &TimelineMeta{
		ID:     uuid.New(),
		Handle: h,
		Attrs:  attr.NewSet(),
	}
	m.timelineAttrs(tl, h)
	m.timelines[h] = tl
	return tl
}

// closeStats finalizes the outgoing context's runtime accumulation up to
// timestamp, the moment it stops running.
func (m *Manager) closeStats(h types.ContextHandle, timestamp uint64) {
	st, ok := m.stats[h]
	if !ok {
		return
	}
	if timestamp < st.LastSwitchInTicks {
		m.logger.Warn("stats timestamp went backwards", "context", h.String())
		return
	}
	elapsed := timestamp - st.LastSwitchInTicks
	st.TotalRuntimeTicks += elapsed
	st.RuntimeSinceWindowTicks += elapsed
	st.LastSwitchInTicks = timestamp
}

// openStats starts the incoming context's running-time clock.
func (m *Manager) openStats(h types.ContextHandle, timestamp uint64) {
	st, ok := m.stats[h]
	if !ok {
		st = &ContextStats{}
		m.stats[h] = st
	}
	st.LastSwitchInTicks = timestamp
}

func (m *Manager) maybeRollWindow(timestamp uint64) {
	windowTicks := m.eff.WindowTicks(m.freq)
	if timestamp-m.windowStart < windowTicks {
		return
	}
	for _, st := range m.stats {
		st.HasLastWindow = true
		st.LastRunningTicks = st.RuntimeSinceWindowTicks
		st.LastWindowTicks = timestamp - m.windowStart
		st.RuntimeSinceWindowTicks = 0
	}
	m.windowStart = timestamp
}

// attachStats reports the switched-in context's accumulated totals as of the
// switch (its own clock for this activation starts at zero elapsed).
func (m *Manager) attachStats(attrs *attr.Set, h types.ContextHandle) {
	st, ok := m.stats[h]
	if !ok {
		return
	}

	attr.Put(attrs, attr.RuntimeTicks, st.TotalRuntimeTicks)
	attr.Put(attrs, attr.RuntimeInWindowTicks, st.RuntimeSinceWindowTicks)
	if ns, ok := types.TicksToNanos(st.TotalRuntimeTicks, m.freq); ok {
		attr.Put(attrs, attr.Runtime, ns)
	}
	if ns, ok := types.TicksToNanos(st.RuntimeSinceWindowTicks, m.freq); ok {
		attr.Put(attrs, attr.RuntimeInWindow, ns)
	}
	if st.HasLastWindow && st.LastWindowTicks > 0 {
		attr.Put(attrs, attr.RuntimeWindowTicks, st.LastWindowTicks)
		if ns, ok := types.TicksToNanos(st.LastWindowTicks, m.freq); ok {
			attr.Put(attrs, attr.RuntimeWindow, ns)
		}
		attr.Put(attrs, attr.CPUUtilization, float64(st.LastRunningTicks)/float64(st.LastWindowTicks))
	}
}

