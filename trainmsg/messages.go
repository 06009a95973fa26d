package trainmsg

import (
	"fmt"
	"github.com/lefinal/trainhub/errors"
	"time"
)

// Msg is one decoded unit of information from the train. The concrete types
// form a closed set: every Msg is exactly one of the Kind constants, and
// values are never mutated after decoding. Consumers switch exhaustively on
// the concrete type or on Kind.
type Msg interface {
	// Kind is the discriminator of the concrete message type.
	Kind() Kind
	// Packet is the raw frame the message was decoded from.
	Packet() Packet
	// ReceivedAt is when the frame was handed to the decoder. It is assigned
	// by the decoder, not by the train.
	ReceivedAt() time.Time
	// sealedMsg keeps the variant set closed.
	sealedMsg()
}

// Event is the subset of Msg for unsolicited notifications, including
// EventUnknown. Event frames additionally carry a device-side timestamp.
type Event interface {
	Msg
	// DeviceTimestampMS is the moment the event happened in train time,
	// milliseconds since the train booted.
	DeviceTimestampMS() uint32
	// sealedEvent keeps the event subset closed.
	sealedEvent()
}

// SensorColorChanged is the subset of Event for the two color-changed kinds,
// so one handler can process both sensors uniformly.
type SensorColorChanged interface {
	Event
	// Sensor identifies which color sensor changed.
	Sensor() ColorSensor
	// ColorValue is the detected color.
	ColorValue() SnapColorValue
	// RawSensorReading is the raw sensor reading that preceded the color
	// decision.
	RawSensorReading() uint32
}

// meta carries the fields every message shares.
type meta struct {
	packet     Packet
	receivedAt time.Time
}

func (m meta) Packet() Packet        { return m.packet }
func (m meta) ReceivedAt() time.Time { return m.receivedAt }
func (m meta) sealedMsg()            {}

// eventMeta extends meta with the device-side event timestamp.
type eventMeta struct {
	meta
	deviceTimestampMS uint32
}

func (m eventMeta) DeviceTimestampMS() uint32 { return m.deviceTimestampMS }
func (m eventMeta) sealedEvent()              {}

// SnapCommand is a sequence of 4 snap colors. It always starts with white or
// cyan; shorter sequences are padded with black.
type SnapCommand [4]SnapColorValue

func (c SnapCommand) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", c[0], c[1], c[2], c[3])
}

// StartsWith performs a prefix match against the given colors.
func (c SnapCommand) StartsWith(colors ...SnapColorValue) bool {
	if len(colors) > len(c) {
		return false
	}
	for i, color := range colors {
		if c[i] != color {
			return false
		}
	}
	return true
}

// Equals performs an exact match, treating missing trailing colors as black.
func (c SnapCommand) Equals(colors ...SnapColorValue) bool {
	for i := range c {
		want := ColorBlack
		if i < len(colors) {
			want = colors[i]
		}
		if c[i] != want {
			return false
		}
	}
	return true
}

// Version is a firmware or API version number tuple. Patch is negative when
// the version has no patch component.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v Version) String() string {
	if v.Patch < 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Response messages.

// MacAddress is the response carrying the train's BLE MAC address.
type MacAddress struct {
	meta
	// Mac is the colon-delimited hex MAC address.
	Mac string `json:"mac"`
}

func (MacAddress) Kind() Kind { return KindMacAddress }

// TrainUuid is the response carrying the train's unique id.
type TrainUuid struct {
	meta
	// Uuid is the colon-delimited hex id.
	Uuid string `json:"uuid"`
}

func (TrainUuid) Kind() Kind { return KindTrainUuid }

// VersionDetail is the response carrying version information.
type VersionDetail struct {
	meta
	BleApiVersion Version `json:"ble_api_version"`
	FwVersion     Version `json:"fw_version"`
}

func (VersionDetail) Kind() Kind { return KindVersionDetail }

// StatsLifetimeOdometer is the response carrying the absolute odometer value.
type StatsLifetimeOdometer struct {
	meta
	// LifetimeOdometerMeters is preserved after the train is turned off. The
	// precision is in cm.
	LifetimeOdometerMeters float64 `json:"lifetime_odometer_meters"`
}

func (StatsLifetimeOdometer) Kind() Kind { return KindStatsLifetimeOdometer }

// Movement is the movement stream response.
type Movement struct {
	meta
	// Direction is forward, backward or stop.
	Direction MovementDirection `json:"direction"`
	// SpeedCMPS is the current speed in cm/s.
	SpeedCMPS float64 `json:"speed_cmps"`
	// PWM is the current PWM value on the motor. Range: 0 (stopped) to 255
	// (full duty).
	PWM uint8 `json:"pwm"`
	// SpeedControl reports whether speed control (PID) is active.
	SpeedControl bool `json:"speed_control"`
	// DesiredSpeedCMPS is the target speed for speed control (if turned on).
	DesiredSpeedCMPS float64 `json:"desired_speed_cmps"`
	// PauseTimeMS is the pause time in ms. 0 means no pause.
	PauseTimeMS uint16 `json:"pause_time_ms"`
	// NextSplitDecision is the upcoming split decision. SteeringNone means it
	// is random or based on the directional snap on the split track.
	NextSplitDecision SteeringDecision `json:"next_split_decision"`
	// LifetimeOdometerMeters is the absolute odometer value in meters.
	LifetimeOdometerMeters float64 `json:"lifetime_odometer_meters"`
}

func (Movement) Kind() Kind { return KindMovement }

// Event messages.

// MovementDirectionChanged is triggered whenever the direction changes or
// the train stops.
type MovementDirectionChanged struct {
	eventMeta
	Direction MovementDirection `json:"direction"`
}

func (MovementDirectionChanged) Kind() Kind { return KindMovementDirectionChanged }

// LowBattery is triggered when the battery voltage is low.
type LowBattery struct {
	eventMeta
}

func (LowBattery) Kind() Kind { return KindLowBattery }

// LowBatteryCutOff is triggered when the train turns off due to low battery.
type LowBatteryCutOff struct {
	eventMeta
}

func (LowBatteryCutOff) Kind() Kind { return KindLowBatteryCutOff }

// ChargingStateChanged is triggered when the charger is connected or
// disconnected.
type ChargingStateChanged struct {
	eventMeta
	IsCharging bool `json:"is_charging"`
}

func (ChargingStateChanged) Kind() Kind { return KindChargingStateChanged }

// ButtonPressDetected is triggered when the train's button is pressed. The
// detection does not affect the button's functionality (start/stop driving
// on a short press, turn off on a long press).
type ButtonPressDetected struct {
	eventMeta
	ButtonPress ButtonPress `json:"button_press"`
}

func (ButtonPressDetected) Kind() Kind { return KindButtonPressDetected }

// SnapCommandDetected is triggered when a snap sequence is detected,
// regardless of the execution status.
type SnapCommandDetected struct {
	eventMeta
	// SnapCounter is the verification snap counter. Overflows after 255.
	SnapCounter uint8       `json:"snap_counter"`
	Colors      SnapCommand `json:"colors"`
}

func (SnapCommandDetected) Kind() Kind { return KindSnapCommandDetected }

// SnapCommandExecuted is triggered after the snap sequence execution
// started. If snap execution is turned off, this event will not be sent.
type SnapCommandExecuted struct {
	eventMeta
	// SnapCounter is the verification snap counter. Overflows after 255.
	SnapCounter uint8       `json:"snap_counter"`
	Colors      SnapCommand `json:"colors"`
}

func (SnapCommandExecuted) Kind() Kind { return KindSnapCommandExecuted }

// sensorColorChanged holds the fields the two color-changed kinds share.
type sensorColorChanged struct {
	eventMeta
	// Color is the color accepted by the train.
	Color SnapColorValue `json:"color"`
	// RawReading is the raw sensor reading that preceded the color decision.
	RawReading uint32 `json:"raw_reading"`
}

func (e sensorColorChanged) ColorValue() SnapColorValue { return e.Color }
func (e sensorColorChanged) RawSensorReading() uint32   { return e.RawReading }

// FrontColorChanged is triggered after the front sensor's color is accepted
// by the train.
type FrontColorChanged struct {
	sensorColorChanged
}

func (FrontColorChanged) Kind() Kind          { return KindFrontColorChanged }
func (FrontColorChanged) Sensor() ColorSensor { return SensorFront }

// BackColorChanged is triggered after the back sensor's color is accepted by
// the train.
type BackColorChanged struct {
	sensorColorChanged
}

func (BackColorChanged) Kind() Kind          { return KindBackColorChanged }
func (BackColorChanged) Sensor() ColorSensor { return SensorBack }

// SplitDecision is triggered after the split track is detected and the
// steering decision is made.
type SplitDecision struct {
	eventMeta
	Decision SteeringDecision `json:"decision"`
}

func (SplitDecision) Kind() Kind { return KindSplitDecision }

// Sentinel messages.

// Unknown is a structurally valid frame whose command id has no registered
// decoder. The raw bytes stay available for diagnostics.
type Unknown struct {
	meta
	// Command is the identifier byte that was seen.
	Command uint8 `json:"command"`
}

func (Unknown) Kind() Kind { return KindUnknown }

// EventUnknown is a structurally valid event frame whose event id has no
// registered decoder, or an unrecognized frame that arrived through the
// event channel.
type EventUnknown struct {
	eventMeta
	// Command is the identifier byte that was seen.
	Command uint8 `json:"command"`
	// EventID is the event id that was seen, 0 if none could be read.
	EventID uint8 `json:"event_id"`
}

func (EventUnknown) Kind() Kind { return KindEventUnknown }

// Malformed is a frame that failed structural validation: too short for its
// kind, too short to even carry a header, or carrying a field outside its
// legal domain. The raw bytes stay available for diagnostics.
type Malformed struct {
	meta
	// Command is the identifier byte that was seen, 0 if none could be read.
	Command uint8 `json:"command"`
	// Reason is the failure category.
	Reason errors.Kind `json:"reason"`
	// Err is the decode error that caused the frame to be considered
	// malformed, nil for frames that failed the header pre-check.
	Err error `json:"-"`
}

func (Malformed) Kind() Kind { return KindMalformed }
