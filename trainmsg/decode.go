package trainmsg

import (
	"github.com/lefinal/trainhub/errors"
	"time"
)

// Minimum payload lengths per kind. A frame shorter than its kind requires
// decodes to Malformed, never to a partially populated message.
const (
	macAddressPayloadLen    = 6
	trainUuidPayloadLen     = 8
	versionDetailPayloadLen = 9
	odometerPayloadLen      = 4
	movementPayloadLen      = 18
)

// decodersByCommand holds all response frame decoders by command id.
var decodersByCommand = map[uint8]func(m meta, p Packet) (Msg, error){
	cmdMacAddress:            decodeMacAddress,
	cmdTrainUuid:             decodeTrainUuid,
	cmdVersionDetail:         decodeVersionDetail,
	cmdStatsLifetimeOdometer: decodeStatsLifetimeOdometer,
	cmdMovement:              decodeMovement,
}

// decodersByEventID holds all event decoders by event id.
var decodersByEventID = map[uint8]func(m eventMeta, p Packet) (Event, error){
	eventIDMovementDirectionChanged: decodeMovementDirectionChanged,
	eventIDLowBattery:               decodeLowBattery,
	eventIDLowBatteryCutOff:         decodeLowBatteryCutOff,
	eventIDChargingStateChanged:     decodeChargingStateChanged,
	eventIDButtonPressDetected:      decodeButtonPressDetected,
	eventIDSnapCommandExecuted:      decodeSnapCommandExecuted,
	eventIDFrontColorChanged:        decodeFrontColorChanged,
	eventIDBackColorChanged:         decodeBackColorChanged,
	eventIDSnapCommandDetected:      decodeSnapCommandDetected,
	eventIDSplitDecision:            decodeSplitDecision,
}

// Decode turns one raw frame into exactly one Msg. It is total over all byte
// sequences and never panics: unrecognized frames become Unknown or
// EventUnknown depending on the delivery Channel, structurally invalid ones
// become Malformed. This is the single entry point between untrusted device
// bytes and typed application code.
func Decode(data []byte, ch Channel) Msg {
	return DecodeAt(data, ch, time.Now())
}

// DecodeAt is Decode with an explicit capture timestamp, which keeps
// decoding deterministic for callers that manage time themselves.
func DecodeAt(data []byte, ch Channel, receivedAt time.Time) Msg {
	p := NewPacket(data)
	m := meta{packet: p, receivedAt: receivedAt}
	// Frames without a complete header cannot be attributed to any kind,
	// regardless of channel.
	if p.Len() < minFrameLen {
		return Malformed{
			meta:    m,
			Command: p.Command(),
			Reason:  errors.KindShortBuffer,
		}
	}
	command := p.Command()
	if command == cmdEvent {
		return decodeEventFrame(m, p)
	}
	decode, ok := decodersByCommand[command]
	if !ok {
		if ch == ChannelEvent {
			return EventUnknown{
				eventMeta: eventMeta{meta: m},
				Command:   command,
			}
		}
		return Unknown{meta: m, Command: command}
	}
	msg, err := decode(m, p)
	if err != nil {
		return malformedFromErr(m, command, err)
	}
	return msg
}

// DecodeEvent is Decode restricted to the event channel, returning the
// narrower Event union. Frames that are no events at all, including
// malformed ones, are reported via the second return value being false and
// the Msg return carrying the sentinel.
func DecodeEvent(data []byte) (Event, Msg, bool) {
	msg := Decode(data, ChannelEvent)
	if event, ok := msg.(Event); ok {
		return event, msg, true
	}
	return nil, msg, false
}

// decodeEventFrame decodes the shared event envelope (event id plus device
// timestamp) and delegates to the event decoder for the id.
func decodeEventFrame(m meta, p Packet) Msg {
	payload := p.Payload()
	eventID, err := readUint8(payload, 0)
	if err != nil {
		return malformedFromErr(m, cmdEvent, err)
	}
	deviceTimestampMS, err := readUint32(payload, 1)
	if err != nil {
		return malformedFromErr(m, cmdEvent, err)
	}
	em := eventMeta{meta: m, deviceTimestampMS: deviceTimestampMS}
	decode, ok := decodersByEventID[eventID]
	if !ok {
		return EventUnknown{
			eventMeta: em,
			Command:   cmdEvent,
			EventID:   eventID,
		}
	}
	event, err := decode(em, p)
	if err != nil {
		return malformedFromErr(m, cmdEvent, err)
	}
	return event
}

// malformedFromErr converts a decoder error into the Malformed sentinel,
// preserving the raw frame and the failure category.
func malformedFromErr(m meta, command uint8, err error) Malformed {
	e, _ := errors.Cast(err)
	reason := e.Kind
	if reason == "" {
		reason = errors.KindUnexpected
	}
	return Malformed{
		meta:    m,
		Command: command,
		Reason:  reason,
		Err:     err,
	}
}

func decodeMacAddress(m meta, p Packet) (Msg, error) {
	if len(p.Payload()) < macAddressPayloadLen {
		return nil, newTruncatedFrameError(p.Payload(), 0, macAddressPayloadLen)
	}
	return MacAddress{meta: m, Mac: p.PayloadHexString()}, nil
}

func decodeTrainUuid(m meta, p Packet) (Msg, error) {
	if len(p.Payload()) < trainUuidPayloadLen {
		return nil, newTruncatedFrameError(p.Payload(), 0, trainUuidPayloadLen)
	}
	return TrainUuid{meta: m, Uuid: p.PayloadHexString()}, nil
}

func decodeVersionDetail(m meta, p Packet) (Msg, error) {
	payload := p.Payload()
	if len(payload) < versionDetailPayloadLen {
		return nil, newTruncatedFrameError(payload, 0, versionDetailPayloadLen)
	}
	return VersionDetail{
		meta: m,
		BleApiVersion: Version{
			Major: int(payload[4]),
			Minor: int(payload[5]),
			Patch: -1,
		},
		FwVersion: Version{
			Major: int(payload[6]),
			Minor: int(payload[7]),
			Patch: int(payload[8]),
		},
	}, nil
}

func decodeStatsLifetimeOdometer(m meta, p Packet) (Msg, error) {
	odometerMeters, err := readOdometerMeters(p.Payload(), 0)
	if err != nil {
		return nil, err
	}
	return StatsLifetimeOdometer{meta: m, LifetimeOdometerMeters: odometerMeters}, nil
}

func decodeMovement(m meta, p Packet) (Msg, error) {
	payload := p.Payload()
	if len(payload) < movementPayloadLen {
		return nil, newTruncatedFrameError(payload, 0, movementPayloadLen)
	}
	direction, err := readMovementDirection(payload, 0)
	if err != nil {
		return nil, err
	}
	speedCMPS, err := readSpeedCMPS(payload, 1)
	if err != nil {
		return nil, err
	}
	pwmRaw, err := readUint8(payload, 3)
	if err != nil {
		return nil, err
	}
	speedControl, err := readBool(payload, 4)
	if err != nil {
		return nil, err
	}
	desiredSpeedCMPS, err := readSpeedCMPS(payload, 5)
	if err != nil {
		return nil, err
	}
	pauseRaw, err := readUint8(payload, 7)
	if err != nil {
		return nil, err
	}
	nextSplitDecision, err := readLegacySteeringDecision(payload, 8)
	if err != nil {
		return nil, err
	}
	odometerMeters, err := readOdometerMeters(payload, 12)
	if err != nil {
		return nil, err
	}
	return Movement{
		meta:      m,
		Direction: direction,
		SpeedCMPS: speedCMPS,
		// The motor driver reports inverted duty.
		PWM:                    0xFF - pwmRaw,
		SpeedControl:           speedControl,
		DesiredSpeedCMPS:       desiredSpeedCMPS,
		PauseTimeMS:            uint16(pauseRaw) * pauseTimeScaleMS,
		NextSplitDecision:      nextSplitDecision,
		LifetimeOdometerMeters: odometerMeters,
	}, nil
}

func decodeMovementDirectionChanged(m eventMeta, p Packet) (Event, error) {
	direction, err := readMovementDirection(p.Payload(), eventPayloadOffset)
	if err != nil {
		return nil, err
	}
	return MovementDirectionChanged{eventMeta: m, Direction: direction}, nil
}

func decodeLowBattery(m eventMeta, _ Packet) (Event, error) {
	return LowBattery{eventMeta: m}, nil
}

func decodeLowBatteryCutOff(m eventMeta, _ Packet) (Event, error) {
	return LowBatteryCutOff{eventMeta: m}, nil
}

func decodeChargingStateChanged(m eventMeta, p Packet) (Event, error) {
	isCharging, err := readBool(p.Payload(), eventPayloadOffset)
	if err != nil {
		return nil, err
	}
	return ChargingStateChanged{eventMeta: m, IsCharging: isCharging}, nil
}

func decodeButtonPressDetected(m eventMeta, p Packet) (Event, error) {
	buttonPress, err := readButtonPress(p.Payload(), eventPayloadOffset)
	if err != nil {
		return nil, err
	}
	return ButtonPressDetected{eventMeta: m, ButtonPress: buttonPress}, nil
}

func decodeSnapCommandDetected(m eventMeta, p Packet) (Event, error) {
	snapCounter, colors, err := decodeSnapEventPayload(p)
	if err != nil {
		return nil, err
	}
	return SnapCommandDetected{eventMeta: m, SnapCounter: snapCounter, Colors: colors}, nil
}

func decodeSnapCommandExecuted(m eventMeta, p Packet) (Event, error) {
	snapCounter, colors, err := decodeSnapEventPayload(p)
	if err != nil {
		return nil, err
	}
	return SnapCommandExecuted{eventMeta: m, SnapCounter: snapCounter, Colors: colors}, nil
}

// decodeSnapEventPayload reads the counter and the four snap colors the two
// snap event kinds share.
func decodeSnapEventPayload(p Packet) (uint8, SnapCommand, error) {
	payload := p.Payload()
	snapCounter, err := readUint8(payload, eventPayloadOffset)
	if err != nil {
		return 0, SnapCommand{}, err
	}
	colors, err := readSnapCommand(payload, eventPayloadOffset+1)
	if err != nil {
		return 0, SnapCommand{}, err
	}
	return snapCounter, colors, nil
}

func decodeFrontColorChanged(m eventMeta, p Packet) (Event, error) {
	common, err := decodeSensorColorChanged(m, p)
	if err != nil {
		return nil, err
	}
	return FrontColorChanged{sensorColorChanged: common}, nil
}

func decodeBackColorChanged(m eventMeta, p Packet) (Event, error) {
	common, err := decodeSensorColorChanged(m, p)
	if err != nil {
		return nil, err
	}
	return BackColorChanged{sensorColorChanged: common}, nil
}

// decodeSensorColorChanged reads the fields both color-changed kinds share.
func decodeSensorColorChanged(m eventMeta, p Packet) (sensorColorChanged, error) {
	payload := p.Payload()
	rawReading, err := readUint32(payload, eventPayloadOffset)
	if err != nil {
		return sensorColorChanged{}, err
	}
	color, err := readSnapColor(payload, eventPayloadOffset+4)
	if err != nil {
		return sensorColorChanged{}, err
	}
	return sensorColorChanged{
		eventMeta:  m,
		Color:      color,
		RawReading: rawReading,
	}, nil
}

func decodeSplitDecision(m eventMeta, p Packet) (Event, error) {
	payload := p.Payload()
	decision, err := readSteeringDecision(payload, eventPayloadOffset)
	if err != nil {
		return nil, err
	}
	// The decision is followed by a u32 the protocol reserves; its presence
	// is still required for a well-formed frame.
	if _, err := readUint32(payload, eventPayloadOffset+1); err != nil {
		return nil, err
	}
	return SplitDecision{eventMeta: m, Decision: decision}, nil
}
