package contextmgr

import (
	"github.com/auxoncorp/rtrace/internal/attr"
	"github.com/auxoncorp/rtrace/internal/deviant"
)

// deviantState wraps the deviant-event sub-decoder with the manager's own
// config lifetime.
type deviantState struct {
	parser *deviant.Parser
}

func newDeviantState(base uint16) (*deviantState, error) {
	p, err := deviant.New(base)
	if err != nil {
		return nil, err
	}
	return &deviantState{parser: p}, nil
}

// isDeviant reports whether id falls within the configured deviant block.
func (m *Manager) isDeviant(id uint16) bool {
	if m.deviant == nil {
		return false
	}
	_, ok := m.deviant.parser.Classify(id)
	return ok
}

// projectDeviant recognises an event id within the configured deviant block
// and, if it matches, decodes and attaches mutator/mutation attributes.
// Returns false if this event id is not part of the deviant block.
func (m *Manager) projectDeviant(id uint16, raw []byte, attrs *attr.Set) (bool, error) {
	if m.deviant == nil {
		return false, nil
	}
	kind, ok := m.deviant.parser.Classify(id)
	if !ok {
		return false, nil
	}
	rec, err := deviant.Decode(kind, raw)
	if err != nil {
		return true, err
	}
	attr.Put(attrs, attr.EventName, kind.String())
	attr.Put(attrs, attr.MutatorID, rec.MutatorID.String())
	switch kind {
	case deviant.MutationCommand, deviant.MutationClear, deviant.MutationTriggered, deviant.MutationInjected:
		attr.Put(attrs, attr.MutationID, rec.MutationID.String())
		attr.Put(attrs, attr.MutationSuccess, rec.Success)
	}
	return true, nil
}
