// Package trainmsg decodes raw BLE notification frames from intelino smart
// trains into typed messages. Decoding is total: any byte sequence maps to
// exactly one message value, with Unknown, EventUnknown and Malformed as
// first-class fallbacks instead of errors.
package trainmsg

import (
	"fmt"
	"github.com/lefinal/trainhub/errors"
)

// MovementDirection is the driving direction reported by the train.
type MovementDirection uint8

const (
	// DirectionCurrent means maintaining the current direction.
	DirectionCurrent  MovementDirection = 0
	DirectionForward  MovementDirection = 1
	DirectionBackward MovementDirection = 2
	DirectionStop     MovementDirection = 3
	// DirectionInvert means inverting the current direction.
	DirectionInvert MovementDirection = 4
)

func (d MovementDirection) String() string {
	switch d {
	case DirectionCurrent:
		return "current"
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	case DirectionStop:
		return "stop"
	case DirectionInvert:
		return "invert"
	}
	return fmt.Sprintf("movement-direction-%d", uint8(d))
}

// movementDirectionFromRaw maps the raw code to a MovementDirection. Codes
// outside the closed set report an errors.KindFieldOutOfDomain error.
func movementDirectionFromRaw(raw uint8) (MovementDirection, error) {
	if raw > uint8(DirectionInvert) {
		return 0, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindFieldOutOfDomain,
			Message: fmt.Sprintf("unknown movement direction code %#02x", raw),
			Details: errors.Details{"raw": raw},
		}
	}
	return MovementDirection(raw), nil
}

// ButtonPress is the press type of the train's button.
type ButtonPress uint8

const (
	ButtonPressShort ButtonPress = 1
	// ButtonPressLong precedes the train turning off.
	ButtonPressLong ButtonPress = 2
)

func (b ButtonPress) String() string {
	switch b {
	case ButtonPressShort:
		return "short"
	case ButtonPressLong:
		return "long"
	}
	return fmt.Sprintf("button-press-%d", uint8(b))
}

func buttonPressFromRaw(raw uint8) (ButtonPress, error) {
	if raw != uint8(ButtonPressShort) && raw != uint8(ButtonPressLong) {
		return 0, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindFieldOutOfDomain,
			Message: fmt.Sprintf("unknown button press code %#02x", raw),
			Details: errors.Details{"raw": raw},
		}
	}
	return ButtonPress(raw), nil
}

// SteeringDecision is the steering decision at a split track. It is a bit
// mask of the three possible exits.
type SteeringDecision uint8

const (
	SteeringNone     SteeringDecision = 0
	SteeringLeft     SteeringDecision = 0b001
	SteeringRight    SteeringDecision = 0b010
	SteeringStraight SteeringDecision = 0b100
	SteeringSteer    SteeringDecision = SteeringLeft | SteeringRight
	SteeringAll      SteeringDecision = SteeringLeft | SteeringRight | SteeringStraight
)

func (s SteeringDecision) String() string {
	switch s {
	case SteeringNone:
		return "none"
	case SteeringLeft:
		return "left"
	case SteeringRight:
		return "right"
	case SteeringStraight:
		return "straight"
	case SteeringSteer:
		return "steer"
	case SteeringAll:
		return "all"
	}
	return fmt.Sprintf("steering-decision-%d", uint8(s))
}

func steeringDecisionFromRaw(raw uint8) (SteeringDecision, error) {
	if raw > uint8(SteeringAll) {
		return 0, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindFieldOutOfDomain,
			Message: fmt.Sprintf("unknown steering decision code %#02x", raw),
			Details: errors.Details{"raw": raw},
		}
	}
	return SteeringDecision(raw), nil
}

// steeringDecisionFromLegacyRaw maps the older split-decision encoding used
// in movement frames where 0b011 means straight.
func steeringDecisionFromLegacyRaw(raw uint8) (SteeringDecision, error) {
	switch raw {
	case 0b000:
		return SteeringNone, nil
	case 0b001:
		return SteeringLeft, nil
	case 0b010:
		return SteeringRight, nil
	case 0b011:
		return SteeringStraight, nil
	}
	return 0, errors.Error{
		Code:    errors.ErrProtocolViolation,
		Kind:    errors.KindFieldOutOfDomain,
		Message: fmt.Sprintf("unknown legacy steering decision code %#02x", raw),
		Details: errors.Details{"raw": raw},
	}
}

// SnapColorValue is a single color as seen by the train's snap color sensors.
// Red, green and blue are bits that combine into the full palette.
type SnapColorValue uint8

const (
	ColorBlack   SnapColorValue = 0b000
	ColorRed     SnapColorValue = 0b001
	ColorGreen   SnapColorValue = 0b010
	ColorBlue    SnapColorValue = 0b100
	ColorYellow  SnapColorValue = ColorRed | ColorGreen
	ColorMagenta SnapColorValue = ColorRed | ColorBlue
	ColorCyan    SnapColorValue = ColorGreen | ColorBlue
	ColorWhite   SnapColorValue = ColorRed | ColorGreen | ColorBlue
	// ColorUnknown is reported by the sensor itself when it cannot settle on
	// one of the palette colors.
	ColorUnknown SnapColorValue = 0b1000
)

func (c SnapColorValue) String() string {
	switch c {
	case ColorBlack:
		return "black"
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorBlue:
		return "blue"
	case ColorYellow:
		return "yellow"
	case ColorMagenta:
		return "magenta"
	case ColorCyan:
		return "cyan"
	case ColorWhite:
		return "white"
	case ColorUnknown:
		return "unknown"
	}
	return fmt.Sprintf("color-%d", uint8(c))
}

// RGB converts the color's value to 3 bytes (0-255) to form an RGB tuple.
func (c SnapColorValue) RGB() (r, g, b uint8) {
	if c&ColorRed != 0 {
		r = 255
	}
	if c&ColorGreen != 0 {
		g = 255
	}
	if c&ColorBlue != 0 {
		b = 255
	}
	return
}

func snapColorFromRaw(raw uint8) (SnapColorValue, error) {
	if raw > uint8(ColorUnknown) {
		return 0, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindFieldOutOfDomain,
			Message: fmt.Sprintf("unknown snap color code %#02x", raw),
			Details: errors.Details{"raw": raw},
		}
	}
	return SnapColorValue(raw), nil
}

// ColorSensor identifies one of the train's two color sensors.
type ColorSensor uint8

const (
	SensorFront ColorSensor = 1
	SensorBack  ColorSensor = 2
)

func (s ColorSensor) String() string {
	switch s {
	case SensorFront:
		return "front"
	case SensorBack:
		return "back"
	}
	return fmt.Sprintf("color-sensor-%d", uint8(s))
}
