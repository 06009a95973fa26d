package trainmsg

import (
	"fmt"
	"strconv"
	"strings"
)

// Packet is one raw BLE frame as delivered by the transport: a command byte,
// a declared payload length and the payload itself. A Packet keeps the
// delivered bytes unmodified so sentinel messages can preserve them for
// diagnostics.
type Packet struct {
	data []byte
}

// NewPacket creates a Packet over a copy of the given bytes, so later reuse
// of the transport buffer cannot alter the packet.
func NewPacket(data []byte) Packet {
	owned := make([]byte, len(data))
	copy(owned, data)
	return Packet{data: owned}
}

// PacketFromCommand builds a Packet from a command id and payload with the
// length header set to the payload length.
func PacketFromCommand(command uint8, payload ...byte) Packet {
	data := make([]byte, 0, len(payload)+2)
	data = append(data, command, uint8(len(payload)))
	data = append(data, payload...)
	return Packet{data: data}
}

// PacketFromHexString parses strings like "06:02:ba:be" into a Packet.
func PacketFromHexString(s string) (Packet, error) {
	if s == "" {
		return Packet{data: []byte{}}, nil
	}
	parts := strings.Split(s, ":")
	data := make([]byte, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return Packet{}, fmt.Errorf("parse hex byte %q: %w", part, err)
		}
		data = append(data, byte(v))
	}
	return Packet{data: data}, nil
}

// Data returns a copy of the raw frame bytes including the header.
func (p Packet) Data() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Len returns the total frame length including the header.
func (p Packet) Len() int {
	return len(p.data)
}

// Command returns the command byte, or 0 for an empty frame.
func (p Packet) Command() uint8 {
	if len(p.data) == 0 {
		return 0
	}
	return p.data[0]
}

// DeclaredLen returns the payload length declared in the frame header, or 0
// if the header is incomplete.
func (p Packet) DeclaredLen() int {
	if len(p.data) < 2 {
		return 0
	}
	return int(p.data[1])
}

// Payload returns the payload bytes following the two header bytes. The
// returned slice aliases the packet and must not be modified.
func (p Packet) Payload() []byte {
	if len(p.data) < 2 {
		return nil
	}
	return p.data[2:]
}

// trimmedPayload returns the payload limited to the declared length. Trailing
// garbage past the declared length is common on the BLE link.
func (p Packet) trimmedPayload() []byte {
	payload := p.Payload()
	if declared := p.DeclaredLen(); declared < len(payload) {
		return payload[:declared]
	}
	return payload
}

// HexString formats the full frame as colon-delimited hex.
func (p Packet) HexString() string {
	return hexString(p.data)
}

// PayloadHexString formats the payload trimmed to the declared length as
// colon-delimited hex.
func (p Packet) PayloadHexString() string {
	return hexString(p.trimmedPayload())
}

func (p Packet) String() string {
	return fmt.Sprintf("<Packet, %s>", p.HexString())
}

// MarshalText encodes the packet as its hex string, mostly for JSON
// diagnostics of sentinel messages.
func (p Packet) MarshalText() ([]byte, error) {
	return []byte(p.HexString()), nil
}

func hexString(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(fmt.Sprintf("%02x", b))
	}
	return sb.String()
}
