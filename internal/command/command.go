// Package command encodes the 8-byte control-plane command frame sent to a
// target to start or stop trace recording.
package command

import "encoding/binary"

// WireSize is the fixed length of an encoded command frame.
const WireSize = 8

// Opcode identifies the command family. Only the recording start/stop
// opcode is used by this decoder's collectors.
type Opcode uint8

const StartStopOpcode Opcode = 1

// Param1 values for StartStopOpcode.
const (
	Stop  uint8 = 0
	Start uint8 = 1
)

// Command is a single control-plane frame.
type Command struct {
	Opcode Opcode
	Param1 uint8
}

// StartRecording builds the Start command.
func StartRecording() Command { return Command{Opcode: StartStopOpcode, Param1: Start} }

// StopRecording builds the Stop command.
func StopRecording() Command { return Command{Opcode: StartStopOpcode, Param1: Stop} }

// checksum is the ones'-complement style checksum used by the target's
// command parser: 0xFFFF minus the sum of opcode and param1.
func checksum(opcode Opcode, param1 uint8) uint16 {
	return 0xFFFF - (uint16(opcode) + uint16(param1))
}

// Encode writes the 8-byte wire frame: opcode, param1, four reserved zero
// bytes, then a little-endian checksum.
func (c Command) Encode() [WireSize]byte {
	var buf [WireSize]byte
	buf[0] = byte(c.Opcode)
	buf[1] = c.Param1
	// bytes 2-5 reserved, left zero
	binary.LittleEndian.PutUint16(buf[6:8], checksum(c.Opcode, c.Param1))
	return buf
}

// Decode parses an 8-byte wire frame, validating its checksum.
func Decode(buf [WireSize]byte) (Command, bool) {
	c := Command{Opcode: Opcode(buf[0]), Param1: buf[1]}
	want := checksum(c.Opcode, c.Param1)
	got := binary.LittleEndian.Uint16(buf[6:8])
	return c, got == want
}
