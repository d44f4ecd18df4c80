// Package deviant decodes the optional "deviant" mutator/mutation lifecycle
// events: a contiguous block of six event ids starting at a configured base,
// used to correlate fault-injection campaigns with the rest of the trace.
package deviant

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Kind enumerates the six deviant event variants.
type Kind uint8

const (
	MutatorAnnounced Kind = iota
	MutatorRetired
	MutationCommand
	MutationClear
	MutationTriggered
	MutationInjected
)

func (k Kind) String() string {
	switch k {
	case MutatorAnnounced:
		return "MUTATOR_ANNOUNCED"
	case MutatorRetired:
		return "MUTATOR_RETIRED"
	case MutationCommand:
		return "MUTATION_COMMAND"
	case MutationClear:
		return "MUTATION_CLEAR"
	case MutationTriggered:
		return "MUTATION_TRIGGERED"
	case MutationInjected:
		return "MUTATION_INJECTED"
	default:
		return "UNKNOWN"
	}
}

// MaxBaseEventID is the largest legal base id for the deviant block.
const MaxBaseEventID = 0x0FFF

// ConfigError reports an invalid deviant-event configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("deviant event config error: %s", e.Reason)
}

// Parser decodes raw parameter bytes for the six-event block starting at
// Base.
type Parser struct {
	Base uint16
}

// New validates base and returns a Parser, or a *ConfigError.
func New(base uint16) (*Parser, error) {
	if base > MaxBaseEventID {
		return nil, &ConfigError{Reason: fmt.Sprintf("base event id %d exceeds maximum %d", base, MaxBaseEventID)}
	}
	return &Parser{Base: base}, nil
}

// Classify reports whether id falls within this parser's six-event block and,
// if so, which Kind it is.
func (p *Parser) Classify(id uint16) (Kind, bool) {
	if id < p.Base || id > p.Base+5 {
		return 0, false
	}
	return Kind(id - p.Base), true
}

// Record is a decoded deviant event.
type Record struct {
	Kind       Kind
	MutatorID  uuid.UUID
	MutationID uuid.UUID // zero value for MutatorAnnounced / MutatorRetired
	Success    bool      // decoded for the four mutation kinds; false for MutatorAnnounced / MutatorRetired
}

// announceParamBytes is the parameter byte length for MutatorAnnounced and
// MutatorRetired (a single UUID, 16 bytes).
const announceParamBytes = 16

// fullParamBytes is the parameter byte length for the four mutation events
// (two UUIDs plus a 4-byte success flag).
const fullParamBytes = 36

// Decode parses raw parameter bytes for the given Kind. It returns an error
// if the byte length does not match the kind's fixed layout.
func Decode(kind Kind, raw []byte) (Record, error) {
	rec := Record{Kind: kind}
	switch kind {
	case MutatorAnnounced, MutatorRetired:
		if len(raw) != announceParamBytes {
			return Record{}, &ConfigError{Reason: fmt.Sprintf("%s expects %d parameter bytes, got %d", kind, announceParamBytes, len(raw))}
		}
		mutator, err := uuid.FromBytes(raw[:16])
		if err != nil {
			return Record{}, fmt.Errorf("deviant: decoding mutator id: %w", err)
		}
		rec.MutatorID = mutator
		return rec, nil
	case MutationCommand, MutationClear, MutationTriggered, MutationInjected:
		if len(raw) != fullParamBytes {
			return Record{}, &ConfigError{Reason: fmt.Sprintf("%s expects %d parameter bytes, got %d", kind, fullParamBytes, len(raw))}
		}
		mutator, err := uuid.FromBytes(raw[:16])
		if err != nil {
			return Record{}, fmt.Errorf("deviant: decoding mutator id: %w", err)
		}
		mutation, err := uuid.FromBytes(raw[16:32])
		if err != nil {
			return Record{}, fmt.Errorf("deviant: decoding mutation id: %w", err)
		}
		rec.MutatorID = mutator
		rec.MutationID = mutation
		rec.Success = binary.LittleEndian.Uint32(raw[32:36]) != 0
		return rec, nil
	default:
		return Record{}, &ConfigError{Reason: fmt.Sprintf("unknown deviant kind %d", kind)}
	}
}
