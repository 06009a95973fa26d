package trainmsg

import (
	"github.com/stretchr/testify/suite"
	"testing"
)

// packetSuite tests Packet construction and accessors.
type packetSuite struct {
	suite.Suite
}

func (suite *packetSuite) TestNewPacketCopiesInput() {
	data := []byte{0x42, 0x02, 0xBA, 0xBE}
	p := NewPacket(data)
	data[2] = 0x00
	suite.Equal([]byte{0x42, 0x02, 0xBA, 0xBE}, p.Data(), "packet should own its bytes")
}

func (suite *packetSuite) TestDataCopies() {
	p := NewPacket([]byte{0x42, 0x01, 0xFF})
	out := p.Data()
	out[0] = 0x00
	suite.Equal([]byte{0x42, 0x01, 0xFF}, p.Data(), "returned copy must not alias the packet")
}

func (suite *packetSuite) TestFromCommand() {
	p := PacketFromCommand(0x06, 0xBA, 0xBE)
	suite.Equal([]byte{0x06, 0x02, 0xBA, 0xBE}, p.Data(), "should set length header")
	suite.Equal(uint8(0x06), p.Command())
	suite.Equal(2, p.DeclaredLen())
	suite.Equal([]byte{0xBA, 0xBE}, p.Payload())
}

func (suite *packetSuite) TestFromCommandWithoutPayload() {
	p := PacketFromCommand(0x3E)
	suite.Equal([]byte{0x3E, 0x00}, p.Data(), "should declare zero payload length")
	suite.Empty(p.Payload())
}

func (suite *packetSuite) TestFromHexString() {
	p, err := PacketFromHexString("06:02:ba:be")
	suite.Require().NoError(err, "should parse")
	suite.Equal([]byte{0x06, 0x02, 0xBA, 0xBE}, p.Data())
}

func (suite *packetSuite) TestFromHexStringEmpty() {
	p, err := PacketFromHexString("")
	suite.Require().NoError(err, "should parse")
	suite.Zero(p.Len())
}

func (suite *packetSuite) TestFromHexStringInvalid() {
	_, err := PacketFromHexString("06:zz")
	suite.Error(err, "should report invalid hex byte")
}

func (suite *packetSuite) TestHexStringRoundTrip() {
	p := PacketFromCommand(0xE0, 0x05, 0x01, 0x00, 0x00, 0x00, 0x2A)
	parsed, err := PacketFromHexString(p.HexString())
	suite.Require().NoError(err, "should parse own format")
	suite.Equal(p.Data(), parsed.Data(), "hex string should round trip")
}

func (suite *packetSuite) TestEmptyPacketAccessors() {
	var p Packet
	suite.Zero(p.Command(), "command of empty packet should be zero")
	suite.Zero(p.DeclaredLen())
	suite.Nil(p.Payload())
	suite.Equal("", p.HexString())
}

func (suite *packetSuite) TestPayloadHexStringTrimsToDeclaredLen() {
	// Declared length 2 with 4 payload bytes delivered.
	p := NewPacket([]byte{0x42, 0x02, 0xBA, 0xBE, 0xFF, 0xFF})
	suite.Equal("ba:be", p.PayloadHexString(), "should trim trailing garbage")
}

func (suite *packetSuite) TestMarshalText() {
	p := PacketFromCommand(0x42, 0x01)
	text, err := p.MarshalText()
	suite.Require().NoError(err, "should marshal")
	suite.Equal("42:01:01", string(text))
}

func TestPacket(t *testing.T) {
	suite.Run(t, new(packetSuite))
}
