// Package config defines the decoder's configuration surface: the options a
// caller sets before running an import.
package config

import (
	"time"

	"github.com/google/uuid"

	"github.com/auxoncorp/rtrace/internal/types"
)

// InteractionMode selects how cross-timeline causal edges are derived.
type InteractionMode uint8

const (
	// FullyLinearized treats every context switch as a causal edge from the
	// previously active timeline.
	FullyLinearized InteractionMode = iota
	// IPC derives edges only from matched send/receive and notify/wait
	// pairs on tracked kernel objects.
	IPC
)

// Config is the full set of options accepted by an import run.
type Config struct {
	RunID      uuid.UUID
	TimeDomain uuid.UUID

	StartupTaskName string

	SingleTaskTimeline      bool
	FlattenISRTimelines     bool
	DisableTaskInteractions bool
	UseTimelineIDChannel    bool

	DeviantEventIDBase *uint16

	IncludeUnknownEvents bool
	IgnoredObjectClasses map[types.ObjectClass]bool

	// UserEventChannel selects the user event's channel as its event name;
	// UserEventFormatString selects the formatted string instead. With
	// neither set, user events keep the generic USER_EVENT name.
	UserEventChannel      bool
	UserEventFormatString bool

	UserEventChannelRenameMap         map[string]string
	UserEventFormattedStringRenameMap map[string]string
	UserEventFmtArgAttrKeys           map[[2]string][]string

	InteractionMode InteractionMode

	CPUUtilizationMeasurementWindow time.Duration

	CustomPrintfEventID *uint16

	// Ambient CLI/transport selection (not part of the decoder core proper,
	// but carried here so cmd/rtimport has one place to merge flags into).
	IngestTransport string // "jsonl" or "grpc"
	IngestAddr      string // grpc target, host:port
	AuthToken       string // bearer token for the grpc transport's per-RPC credentials
}

// Default returns the configuration's baseline values.
func Default() Config {
	return Config{
		RunID:                           uuid.New(),
		TimeDomain:                      uuid.New(),
		StartupTaskName:                 types.StartupTaskName,
		IncludeUnknownEvents:            false,
		IgnoredObjectClasses:            map[types.ObjectClass]bool{},
		InteractionMode:                 FullyLinearized,
		CPUUtilizationMeasurementWindow: 500 * time.Millisecond,
		IngestTransport:                 "jsonl",
	}
}

// EffectiveWindow clamps the configured window to at least one millisecond.
func (c Config) EffectiveWindow() time.Duration {
	if c.CPUUtilizationMeasurementWindow < time.Millisecond {
		return time.Millisecond
	}
	return c.CPUUtilizationMeasurementWindow
}

// WindowTicks converts EffectiveWindow to ticks at the given frequency, or a
// fixed fallback tick count when the frequency is unknown (ticks-only
// session).
func (c Config) WindowTicks(freq types.TimerFrequencyHz) uint64 {
	if freq == 0 {
		return 1_000_000
	}
	ms := c.EffectiveWindow().Milliseconds()
	return uint64(ms) * (uint64(freq) / 1000)
}
