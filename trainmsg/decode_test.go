package trainmsg

import (
	"encoding/binary"
	"github.com/lefinal/trainhub/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"testing"
	"time"
)

var testReceivedAt = time.Date(2022, 3, 14, 15, 9, 26, 0, time.UTC)

// buildEventFrame builds an event frame with the given event id, device
// timestamp and event payload. It acts as the encode fixture for round trip
// tests and is not part of the decoder.
func buildEventFrame(eventID uint8, deviceTimestampMS uint32, eventPayload ...byte) []byte {
	payload := make([]byte, eventPayloadOffset, eventPayloadOffset+len(eventPayload))
	payload[0] = eventID
	binary.BigEndian.PutUint32(payload[1:], deviceTimestampMS)
	payload = append(payload, eventPayload...)
	return PacketFromCommand(cmdEvent, payload...).Data()
}

// buildResponseFrame builds a response frame for the given command id.
func buildResponseFrame(command uint8, payload ...byte) []byte {
	return PacketFromCommand(command, payload...).Data()
}

// decodeTotalitySuite assures that Decode returns a value for every input
// and never panics.
type decodeTotalitySuite struct {
	suite.Suite
}

func (suite *decodeTotalitySuite) decodeBoth(data []byte) {
	suite.NotPanics(func() {
		suite.NotNil(DecodeAt(data, ChannelResponse, testReceivedAt))
		suite.NotNil(DecodeAt(data, ChannelEvent, testReceivedAt))
	}, "decode must be total")
}

func (suite *decodeTotalitySuite) TestNilBuffer() {
	suite.decodeBoth(nil)
}

func (suite *decodeTotalitySuite) TestEmptyBuffer() {
	suite.decodeBoth([]byte{})
}

func (suite *decodeTotalitySuite) TestSingleByteBuffers() {
	for b := 0; b <= 0xFF; b++ {
		suite.decodeBoth([]byte{byte(b)})
	}
}

func (suite *decodeTotalitySuite) TestAllCommandBytesWithGarbagePayloads() {
	for b := 0; b <= 0xFF; b++ {
		for payloadLen := 0; payloadLen <= 24; payloadLen++ {
			data := make([]byte, payloadLen+2)
			data[0] = byte(b)
			data[1] = byte(payloadLen)
			for i := range data[2:] {
				data[i+2] = byte((i*37 + b) % 256)
			}
			suite.decodeBoth(data)
		}
	}
}

func (suite *decodeTotalitySuite) TestShortBufferIsMalformed() {
	msg := DecodeAt([]byte{0xB7}, ChannelResponse, testReceivedAt)
	malformed, ok := msg.(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindShortBuffer, malformed.Reason, "should report short buffer")
	suite.Equal([]byte{0xB7}, malformed.Packet().Data(), "should preserve raw bytes")
}

func TestDecode_totality(t *testing.T) {
	suite.Run(t, new(decodeTotalitySuite))
}

// decodeResponsesSuite covers round trips for all response kinds.
type decodeResponsesSuite struct {
	suite.Suite
}

func (suite *decodeResponsesSuite) decode(data []byte) Msg {
	return DecodeAt(data, ChannelResponse, testReceivedAt)
}

func (suite *decodeResponsesSuite) TestMacAddress() {
	data := buildResponseFrame(cmdMacAddress, 0xF8, 0x32, 0x05, 0x42, 0x13, 0x37)
	msg := suite.decode(data)
	mac, ok := msg.(MacAddress)
	suite.Require().True(ok, "should decode to mac address")
	suite.Equal("f8:32:05:42:13:37", mac.Mac, "should format mac as hex")
	suite.Equal(testReceivedAt, mac.ReceivedAt(), "should assign capture timestamp")
}

func (suite *decodeResponsesSuite) TestMacAddressTruncated() {
	data := buildResponseFrame(cmdMacAddress, 0xF8, 0x32, 0x05, 0x42, 0x13)
	malformed, ok := suite.decode(data).(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindTruncatedFrame, malformed.Reason, "should report truncated frame")
}

func (suite *decodeResponsesSuite) TestTrainUuid() {
	data := buildResponseFrame(cmdTrainUuid, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08)
	trainUuid, ok := suite.decode(data).(TrainUuid)
	suite.Require().True(ok, "should decode to train uuid")
	suite.Equal("01:02:03:04:05:06:07:08", trainUuid.Uuid, "should format uuid as hex")
}

func (suite *decodeResponsesSuite) TestVersionDetail() {
	data := buildResponseFrame(cmdVersionDetail, 0, 0, 0, 0, 1, 2, 1, 4, 9)
	versionDetail, ok := suite.decode(data).(VersionDetail)
	suite.Require().True(ok, "should decode to version detail")
	suite.Equal("1.2", versionDetail.BleApiVersion.String(), "should decode ble api version without patch")
	suite.Equal("1.4.9", versionDetail.FwVersion.String(), "should decode fw version with patch")
}

func (suite *decodeResponsesSuite) TestStatsLifetimeOdometer() {
	// 123456 cm.
	data := buildResponseFrame(cmdStatsLifetimeOdometer, 0x00, 0x01, 0xE2, 0x40)
	odometer, ok := suite.decode(data).(StatsLifetimeOdometer)
	suite.Require().True(ok, "should decode to odometer stats")
	suite.InDelta(1234.56, odometer.LifetimeOdometerMeters, 0.001, "should scale cm to meters")
}

func (suite *decodeResponsesSuite) TestStatsLifetimeOdometerUnsetSentinel() {
	data := buildResponseFrame(cmdStatsLifetimeOdometer, 0xFF, 0xFF, 0xFF, 0xFF)
	odometer, ok := suite.decode(data).(StatsLifetimeOdometer)
	suite.Require().True(ok, "should decode to odometer stats")
	suite.Zero(odometer.LifetimeOdometerMeters, "unset counter should read as zero")
}

func movementPayload() []byte {
	payload := make([]byte, movementPayloadLen)
	payload[0] = uint8(DirectionForward)
	// 450 mm/s.
	binary.BigEndian.PutUint16(payload[1:], 450)
	// Inverted PWM duty: 0xFF-0x3F=0xC0.
	payload[3] = 0x3F
	payload[4] = 1
	// 500 mm/s desired.
	binary.BigEndian.PutUint16(payload[5:], 500)
	// 25 -> 250 ms pause.
	payload[7] = 25
	// Legacy straight encoding.
	payload[8] = 0b011
	// 54321 cm.
	binary.BigEndian.PutUint32(payload[12:], 54321)
	return payload
}

func (suite *decodeResponsesSuite) TestMovement() {
	data := buildResponseFrame(cmdMovement, movementPayload()...)
	movement, ok := suite.decode(data).(Movement)
	suite.Require().True(ok, "should decode to movement")
	suite.Equal(DirectionForward, movement.Direction, "should decode direction")
	suite.InDelta(45.0, movement.SpeedCMPS, 0.001, "should scale mm/s to cm/s")
	suite.Equal(uint8(0xC0), movement.PWM, "should invert pwm duty")
	suite.True(movement.SpeedControl, "should decode speed control flag")
	suite.InDelta(50.0, movement.DesiredSpeedCMPS, 0.001, "should scale desired speed")
	suite.Equal(uint16(250), movement.PauseTimeMS, "should scale pause time")
	suite.Equal(SteeringStraight, movement.NextSplitDecision, "should map legacy straight")
	suite.InDelta(543.21, movement.LifetimeOdometerMeters, 0.001, "should scale odometer")
}

func (suite *decodeResponsesSuite) TestMovementTruncated() {
	payload := movementPayload()
	for cut := 1; cut <= len(payload); cut++ {
		data := buildResponseFrame(cmdMovement, payload[:len(payload)-cut]...)
		malformed, ok := suite.decode(data).(Malformed)
		suite.Require().True(ok, "truncated movement frame should decode to malformed")
		suite.Equal(errors.KindTruncatedFrame, malformed.Reason, "should report truncated frame")
	}
}

func (suite *decodeResponsesSuite) TestMovementDirectionOutOfDomain() {
	payload := movementPayload()
	payload[0] = 0x77
	malformed, ok := suite.decode(buildResponseFrame(cmdMovement, payload...)).(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindFieldOutOfDomain, malformed.Reason, "should report field out of domain")
}

func (suite *decodeResponsesSuite) TestMovementLegacyDecisionOutOfDomain() {
	payload := movementPayload()
	payload[8] = 0b100
	malformed, ok := suite.decode(buildResponseFrame(cmdMovement, payload...)).(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindFieldOutOfDomain, malformed.Reason, "should report field out of domain")
}

func TestDecode_responses(t *testing.T) {
	suite.Run(t, new(decodeResponsesSuite))
}

// decodeEventsSuite covers round trips for all event kinds.
type decodeEventsSuite struct {
	suite.Suite
}

func (suite *decodeEventsSuite) decodeEvent(data []byte) Event {
	msg := DecodeAt(data, ChannelEvent, testReceivedAt)
	event, ok := msg.(Event)
	suite.Require().True(ok, "should decode to an event, got %T", msg)
	return event
}

func (suite *decodeEventsSuite) TestMovementDirectionChanged() {
	data := buildEventFrame(eventIDMovementDirectionChanged, 12345, uint8(DirectionForward))
	event := suite.decodeEvent(data)
	directionChanged, ok := event.(MovementDirectionChanged)
	suite.Require().True(ok, "should decode to direction changed")
	suite.Equal(DirectionForward, directionChanged.Direction, "should decode forward direction")
	suite.Equal(uint32(12345), directionChanged.DeviceTimestampMS(), "should decode device timestamp")
}

func (suite *decodeEventsSuite) TestMovementDirectionChangedOutOfDomain() {
	data := buildEventFrame(eventIDMovementDirectionChanged, 12345, 0x09)
	malformed, ok := DecodeAt(data, ChannelEvent, testReceivedAt).(Malformed)
	suite.Require().True(ok, "direction code 0x09 should decode to malformed")
	suite.Equal(errors.KindFieldOutOfDomain, malformed.Reason, "should report field out of domain")
}

func (suite *decodeEventsSuite) TestLowBattery() {
	event := suite.decodeEvent(buildEventFrame(eventIDLowBattery, 99))
	suite.IsType(LowBattery{}, event, "should decode to low battery")
}

func (suite *decodeEventsSuite) TestLowBatteryCutOff() {
	event := suite.decodeEvent(buildEventFrame(eventIDLowBatteryCutOff, 99))
	suite.IsType(LowBatteryCutOff{}, event, "should decode to low battery cut off")
}

func (suite *decodeEventsSuite) TestChargingStateChanged() {
	event := suite.decodeEvent(buildEventFrame(eventIDChargingStateChanged, 7, 1))
	chargingStateChanged, ok := event.(ChargingStateChanged)
	suite.Require().True(ok, "should decode to charging state changed")
	suite.True(chargingStateChanged.IsCharging, "should decode charging flag")
}

func (suite *decodeEventsSuite) TestButtonPressDetected() {
	event := suite.decodeEvent(buildEventFrame(eventIDButtonPressDetected, 7, uint8(ButtonPressLong)))
	buttonPressDetected, ok := event.(ButtonPressDetected)
	suite.Require().True(ok, "should decode to button press detected")
	suite.Equal(ButtonPressLong, buttonPressDetected.ButtonPress, "should decode press type")
}

func (suite *decodeEventsSuite) TestButtonPressOutOfDomain() {
	data := buildEventFrame(eventIDButtonPressDetected, 7, 3)
	malformed, ok := DecodeAt(data, ChannelEvent, testReceivedAt).(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindFieldOutOfDomain, malformed.Reason, "should report field out of domain")
}

func (suite *decodeEventsSuite) TestSnapCommandDetected() {
	data := buildEventFrame(eventIDSnapCommandDetected, 7, 42,
		uint8(ColorWhite), uint8(ColorRed), uint8(ColorBlack), uint8(ColorBlack))
	snapCommandDetected, ok := suite.decodeEvent(data).(SnapCommandDetected)
	suite.Require().True(ok, "should decode to snap command detected")
	suite.Equal(uint8(42), snapCommandDetected.SnapCounter, "should decode snap counter")
	suite.True(snapCommandDetected.Colors.Equals(ColorWhite, ColorRed), "should decode colors with implicit blacks")
	suite.True(snapCommandDetected.Colors.StartsWith(ColorWhite), "should prefix match")
}

func (suite *decodeEventsSuite) TestSnapCommandExecuted() {
	data := buildEventFrame(eventIDSnapCommandExecuted, 7, 17,
		uint8(ColorCyan), uint8(ColorBlue), uint8(ColorBlue), uint8(ColorBlack))
	snapCommandExecuted, ok := suite.decodeEvent(data).(SnapCommandExecuted)
	suite.Require().True(ok, "should decode to snap command executed")
	suite.Equal(SnapCommand{ColorCyan, ColorBlue, ColorBlue, ColorBlack}, snapCommandExecuted.Colors,
		"should decode all four colors")
}

func (suite *decodeEventsSuite) TestSnapColorOutOfDomain() {
	data := buildEventFrame(eventIDSnapCommandDetected, 7, 42,
		uint8(ColorWhite), 0x0F, uint8(ColorBlack), uint8(ColorBlack))
	malformed, ok := DecodeAt(data, ChannelEvent, testReceivedAt).(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindFieldOutOfDomain, malformed.Reason, "should report field out of domain")
}

func (suite *decodeEventsSuite) TestFrontColorChanged() {
	data := buildEventFrame(eventIDFrontColorChanged, 7, 0x00, 0x00, 0x12, 0x34, uint8(ColorMagenta))
	frontColorChanged, ok := suite.decodeEvent(data).(FrontColorChanged)
	suite.Require().True(ok, "should decode to front color changed")
	suite.Equal(SensorFront, frontColorChanged.Sensor(), "should report front sensor")
	suite.Equal(ColorMagenta, frontColorChanged.ColorValue(), "should decode color")
	suite.Equal(uint32(0x1234), frontColorChanged.RawReading, "should decode raw reading")
}

func (suite *decodeEventsSuite) TestBackColorChanged() {
	data := buildEventFrame(eventIDBackColorChanged, 7, 0, 0, 0, 0, uint8(ColorYellow))
	backColorChanged, ok := suite.decodeEvent(data).(BackColorChanged)
	suite.Require().True(ok, "should decode to back color changed")
	suite.Equal(SensorBack, backColorChanged.Sensor(), "should report back sensor")
	suite.Equal(ColorYellow, backColorChanged.ColorValue(), "should decode color")
}

func (suite *decodeEventsSuite) TestColorChangedSharedHandling() {
	frames := [][]byte{
		buildEventFrame(eventIDFrontColorChanged, 7, 0, 0, 0, 0, uint8(ColorRed)),
		buildEventFrame(eventIDBackColorChanged, 7, 0, 0, 0, 0, uint8(ColorGreen)),
	}
	seen := make([]SnapColorValue, 0, 2)
	for _, data := range frames {
		colorChanged, ok := suite.decodeEvent(data).(SensorColorChanged)
		suite.Require().True(ok, "both color events should satisfy the shared union")
		seen = append(seen, colorChanged.ColorValue())
	}
	suite.Equal([]SnapColorValue{ColorRed, ColorGreen}, seen, "shared accessor should work for both sensors")
}

func (suite *decodeEventsSuite) TestSplitDecision() {
	data := buildEventFrame(eventIDSplitDecision, 7, uint8(SteeringLeft), 0, 0, 0, 0)
	splitDecision, ok := suite.decodeEvent(data).(SplitDecision)
	suite.Require().True(ok, "should decode to split decision")
	suite.Equal(SteeringLeft, splitDecision.Decision, "should decode decision")
}

func (suite *decodeEventsSuite) TestEventTruncatedBelowEnvelope() {
	// Event frame whose payload ends inside the device timestamp.
	data := buildResponseFrame(cmdEvent, eventIDLowBattery, 0x00, 0x00)
	malformed, ok := DecodeAt(data, ChannelEvent, testReceivedAt).(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindTruncatedFrame, malformed.Reason, "should report truncated frame")
}

func (suite *decodeEventsSuite) TestEventPayloadTruncated() {
	data := buildEventFrame(eventIDButtonPressDetected, 7)
	malformed, ok := DecodeAt(data, ChannelEvent, testReceivedAt).(Malformed)
	suite.Require().True(ok, "should decode to malformed")
	suite.Equal(errors.KindTruncatedFrame, malformed.Reason, "should report truncated frame")
}

func TestDecode_events(t *testing.T) {
	suite.Run(t, new(decodeEventsSuite))
}

// decodeSentinelsSuite covers Unknown, EventUnknown and channel behavior.
type decodeSentinelsSuite struct {
	suite.Suite
}

func (suite *decodeSentinelsSuite) TestUnknownCommandOnResponseChannel() {
	data := buildResponseFrame(0x99, 0x01, 0x02)
	unknown, ok := DecodeAt(data, ChannelResponse, testReceivedAt).(Unknown)
	suite.Require().True(ok, "should decode to unknown")
	suite.Equal(uint8(0x99), unknown.Command, "should preserve seen identifier")
	suite.Equal(data, unknown.Packet().Data(), "should preserve raw bytes")
}

func (suite *decodeSentinelsSuite) TestUnknownCommandOnEventChannel() {
	data := buildResponseFrame(0x99, 0x01, 0x02)
	eventUnknown, ok := DecodeAt(data, ChannelEvent, testReceivedAt).(EventUnknown)
	suite.Require().True(ok, "same bytes should decode to event-unknown on the event channel")
	suite.Equal(uint8(0x99), eventUnknown.Command, "should preserve seen identifier")
	suite.Equal(data, eventUnknown.Packet().Data(), "should preserve raw bytes")
}

func (suite *decodeSentinelsSuite) TestUnknownEventID() {
	data := buildEventFrame(0x7F, 4321)
	eventUnknown, ok := DecodeAt(data, ChannelEvent, testReceivedAt).(EventUnknown)
	suite.Require().True(ok, "unknown event id should decode to event-unknown")
	suite.Equal(uint8(0x7F), eventUnknown.EventID, "should preserve seen event id")
	suite.Equal(uint32(4321), eventUnknown.DeviceTimestampMS(), "should keep envelope timestamp")
}

func (suite *decodeSentinelsSuite) TestDecodeEventNarrowing() {
	event, _, ok := DecodeEvent(buildEventFrame(eventIDLowBattery, 1))
	suite.Require().True(ok, "event frame should narrow to event")
	suite.IsType(LowBattery{}, event, "should decode to low battery")
	_, msg, ok := DecodeEvent(buildResponseFrame(cmdMacAddress, 1, 2, 3, 4, 5, 6))
	suite.False(ok, "response frame should not narrow to event")
	suite.IsType(MacAddress{}, msg, "should still decode the message")
}

func TestDecode_sentinels(t *testing.T) {
	suite.Run(t, new(decodeSentinelsSuite))
}

// TestDecode_orderPreservation assures that decoding a sequence of frames
// reproduces the original sequence of kinds.
func TestDecode_orderPreservation(t *testing.T) {
	frames := [][]byte{
		buildEventFrame(eventIDLowBattery, 1),
		buildEventFrame(eventIDMovementDirectionChanged, 2, uint8(DirectionStop)),
		buildEventFrame(0x55, 3),
		buildEventFrame(eventIDSplitDecision, 4, uint8(SteeringRight), 0, 0, 0, 0),
		{0xE0},
		buildEventFrame(eventIDChargingStateChanged, 5, 0),
	}
	wantKinds := []Kind{
		KindLowBattery,
		KindMovementDirectionChanged,
		KindEventUnknown,
		KindSplitDecision,
		KindMalformed,
		KindChargingStateChanged,
	}
	gotKinds := make([]Kind, 0, len(frames))
	for _, data := range frames {
		gotKinds = append(gotKinds, DecodeAt(data, ChannelEvent, testReceivedAt).Kind())
	}
	assert.Equal(t, wantKinds, gotKinds, "decode must not reorder")
}

// TestDecode_rawBytesUnmodified assures sentinel messages hold the input
// buffer unmodified even if the caller reuses it.
func TestDecode_rawBytesUnmodified(t *testing.T) {
	data := []byte{0x99, 0x02, 0xAB, 0xCD}
	msg := DecodeAt(data, ChannelResponse, testReceivedAt)
	unknown, ok := msg.(Unknown)
	require.True(t, ok, "should decode to unknown")
	// Clobber the transport buffer.
	for i := range data {
		data[i] = 0
	}
	assert.Equal(t, []byte{0x99, 0x02, 0xAB, 0xCD}, unknown.Packet().Data(),
		"packet must keep its own copy")
}
