package trainmsg

// Command ids of response frames plus the shared event command id.
const (
	cmdVersionDetail         uint8 = 0x07
	cmdStatsLifetimeOdometer uint8 = 0x3E
	cmdMacAddress            uint8 = 0x42
	cmdTrainUuid             uint8 = 0x43
	cmdMovement              uint8 = 0xB7
	// cmdEvent is the command id shared by all event frames. The event id in
	// the payload selects the concrete kind.
	cmdEvent uint8 = 0xE0
)

// Event ids within cmdEvent frames.
const (
	eventIDMovementDirectionChanged uint8 = 0x01
	eventIDLowBattery               uint8 = 0x02
	eventIDLowBatteryCutOff         uint8 = 0x03
	eventIDChargingStateChanged     uint8 = 0x04
	eventIDButtonPressDetected      uint8 = 0x05
	eventIDSnapCommandExecuted      uint8 = 0x06
	eventIDFrontColorChanged        uint8 = 0x07
	eventIDBackColorChanged         uint8 = 0x08
	eventIDSnapCommandDetected      uint8 = 0x09
	eventIDSplitDecision            uint8 = 0x0A
)

// minFrameLen is the command byte plus the length byte. Anything shorter
// cannot even be classified.
const minFrameLen = 2

// eventPayloadOffset is where event-specific fields start within an event
// payload: one event id byte plus the four byte device timestamp.
const eventPayloadOffset = 5

// Kind is the discriminator identifying which concrete message type a frame
// represents.
type Kind string

const (
	// Response kinds.
	KindMacAddress            Kind = "mac-address"
	KindTrainUuid             Kind = "train-uuid"
	KindVersionDetail         Kind = "version-detail"
	KindStatsLifetimeOdometer Kind = "stats-lifetime-odometer"
	KindMovement              Kind = "movement"
	// Event kinds.
	KindMovementDirectionChanged Kind = "event-movement-direction-changed"
	KindLowBattery               Kind = "event-low-battery"
	KindLowBatteryCutOff         Kind = "event-low-battery-cut-off"
	KindChargingStateChanged     Kind = "event-charging-state-changed"
	KindButtonPressDetected      Kind = "event-button-press-detected"
	KindSnapCommandDetected      Kind = "event-snap-command-detected"
	KindSnapCommandExecuted      Kind = "event-snap-command-executed"
	KindFrontColorChanged        Kind = "event-front-color-changed"
	KindBackColorChanged         Kind = "event-back-color-changed"
	KindSplitDecision            Kind = "event-split-decision"
	// Sentinel kinds.
	KindUnknown      Kind = "unknown"
	KindEventUnknown Kind = "event-unknown"
	KindMalformed    Kind = "malformed"
	// KindUnrecognized is only ever returned by Classify: the command id
	// matches no known frame. Decode narrows it to KindUnknown or
	// KindEventUnknown depending on the delivery channel.
	KindUnrecognized Kind = "unrecognized"
)

// Channel indicates which delivery path a frame arrived on: as the answer to
// an outstanding request or as an unsolicited notification.
type Channel string

const (
	ChannelResponse Channel = "response"
	ChannelEvent    Channel = "event"
)

// kindByCommand holds all response frame kinds by command id.
var kindByCommand = map[uint8]Kind{
	cmdMacAddress:            KindMacAddress,
	cmdTrainUuid:             KindTrainUuid,
	cmdVersionDetail:         KindVersionDetail,
	cmdStatsLifetimeOdometer: KindStatsLifetimeOdometer,
	cmdMovement:              KindMovement,
}

// kindByEventID holds all event kinds by event id.
var kindByEventID = map[uint8]Kind{
	eventIDMovementDirectionChanged: KindMovementDirectionChanged,
	eventIDLowBattery:               KindLowBattery,
	eventIDLowBatteryCutOff:         KindLowBatteryCutOff,
	eventIDChargingStateChanged:     KindChargingStateChanged,
	eventIDButtonPressDetected:      KindButtonPressDetected,
	eventIDSnapCommandExecuted:      KindSnapCommandExecuted,
	eventIDFrontColorChanged:        KindFrontColorChanged,
	eventIDBackColorChanged:         KindBackColorChanged,
	eventIDSnapCommandDetected:      KindSnapCommandDetected,
	eventIDSplitDecision:            KindSplitDecision,
}

// Classify inspects the frame header and determines which message kind the
// frame represents. Classification is total: every input maps to exactly one
// Kind, with KindMalformed for frames too short to carry a header,
// KindUnrecognized for unknown command ids and KindEventUnknown for event
// frames with an unknown event id.
func Classify(data []byte) Kind {
	if len(data) < minFrameLen {
		return KindMalformed
	}
	command := data[0]
	if command == cmdEvent {
		// The event id is the secondary discriminator.
		if len(data) < minFrameLen+1 {
			return KindMalformed
		}
		kind, ok := kindByEventID[data[minFrameLen]]
		if !ok {
			return KindEventUnknown
		}
		return kind
	}
	kind, ok := kindByCommand[command]
	if !ok {
		return KindUnrecognized
	}
	return kind
}

// IsEventKind reports whether the given kind belongs to the event subset,
// including KindEventUnknown.
func IsEventKind(kind Kind) bool {
	if kind == KindEventUnknown {
		return true
	}
	for _, eventKind := range kindByEventID {
		if kind == eventKind {
			return true
		}
	}
	return false
}
