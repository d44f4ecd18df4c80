package deviant

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
)

func TestNewRejectsBaseTooHigh(t *testing.T) {
	if _, err := New(MaxBaseEventID + 1); err == nil {
		t.Fatal("expected an error for a base id exceeding MaxBaseEventID")
	}
}

func TestNewAcceptsMaxBase(t *testing.T) {
	if _, err := New(MaxBaseEventID); err != nil {
		t.Fatalf("New(MaxBaseEventID) = %v, want nil error", err)
	}
	// The bound is the full 12-bit event-id space, with no margin for the
	// block itself.
	if _, err := New(0x0FFF); err != nil {
		t.Fatalf("New(0x0FFF) = %v, want nil error", err)
	}
	if _, err := New(0x1000); err == nil {
		t.Fatal("New(0x1000) accepted a base beyond the 12-bit event-id space")
	}
}

func TestClassify(t *testing.T) {
	p, err := New(100)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		id      uint16
		want    Kind
		matched bool
	}{
		{99, 0, false},
		{100, MutatorAnnounced, true},
		{101, MutatorRetired, true},
		{102, MutationCommand, true},
		{103, MutationClear, true},
		{104, MutationTriggered, true},
		{105, MutationInjected, true},
		{106, 0, false},
	}
	for _, c := range cases {
		got, ok := p.Classify(c.id)
		if ok != c.matched {
			t.Errorf("Classify(%d) matched = %v, want %v", c.id, ok, c.matched)
			continue
		}
		if ok && got != c.want {
			t.Errorf("Classify(%d) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestDecodeMutatorAnnounced(t *testing.T) {
	id := uuid.New()
	raw := id[:]
	rec, err := Decode(MutatorAnnounced, raw)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MutatorID != id {
		t.Errorf("MutatorID = %v, want %v", rec.MutatorID, id)
	}
	if rec.MutationID != uuid.Nil {
		t.Errorf("MutationID = %v, want zero value", rec.MutationID)
	}
}

func TestDecodeMutationTriggeredSuccess(t *testing.T) {
	mutator := uuid.New()
	mutation := uuid.New()
	raw := make([]byte, fullParamBytes)
	copy(raw[:16], mutator[:])
	copy(raw[16:32], mutation[:])
	binary.LittleEndian.PutUint32(raw[32:36], 1)

	rec, err := Decode(MutationTriggered, raw)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MutatorID != mutator || rec.MutationID != mutation {
		t.Errorf("decoded ids = %v/%v, want %v/%v", rec.MutatorID, rec.MutationID, mutator, mutation)
	}
	if !rec.Success {
		t.Error("Success = false, want true")
	}
}

func TestDecodeRejectsWrongParamLength(t *testing.T) {
	if _, err := Decode(MutatorAnnounced, make([]byte, 15)); err == nil {
		t.Fatal("expected an error for a truncated announce payload")
	}
	if _, err := Decode(MutationCommand, make([]byte, 35)); err == nil {
		t.Fatal("expected an error for a truncated mutation payload")
	}
}
