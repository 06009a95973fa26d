package trainmsg

import (
	"encoding/binary"
	"fmt"
	"github.com/lefinal/trainhub/errors"
)

// Protocol scale factors. These are constants of the vendor protocol, not
// derived from frame content.
const (
	// speedScaleDivisor converts raw mm/s speed fields to cm/s.
	speedScaleDivisor = 10.0
	// pauseTimeScaleMS converts the raw pause field to milliseconds.
	pauseTimeScaleMS = 10
	// odometerScaleDivisor converts raw cm odometer counters to meters.
	odometerScaleDivisor = 100.0
	// odometerUnset is reported by trains that never persisted an odometer
	// value and reads as zero meters.
	odometerUnset = 0xFFFFFFFF
)

// newTruncatedFrameError reports a payload that ends before the field at the
// given offset and size.
func newTruncatedFrameError(payload []byte, offset, size int) error {
	return errors.Error{
		Code:    errors.ErrProtocolViolation,
		Kind:    errors.KindTruncatedFrame,
		Message: fmt.Sprintf("payload too short: need %d bytes, got %d", offset+size, len(payload)),
		Details: errors.Details{
			"payload_len": len(payload),
			"offset":      offset,
			"field_size":  size,
		},
	}
}

// readUint8 reads one byte at offset with bounds checking.
func readUint8(payload []byte, offset int) (uint8, error) {
	if len(payload) < offset+1 {
		return 0, newTruncatedFrameError(payload, offset, 1)
	}
	return payload[offset], nil
}

// readUint16 reads a big-endian uint16 at offset with bounds checking.
func readUint16(payload []byte, offset int) (uint16, error) {
	if len(payload) < offset+2 {
		return 0, newTruncatedFrameError(payload, offset, 2)
	}
	return binary.BigEndian.Uint16(payload[offset:]), nil
}

// readUint32 reads a big-endian uint32 at offset with bounds checking.
func readUint32(payload []byte, offset int) (uint32, error) {
	if len(payload) < offset+4 {
		return 0, newTruncatedFrameError(payload, offset, 4)
	}
	return binary.BigEndian.Uint32(payload[offset:]), nil
}

// readBool reads one byte at offset as boolean. Any non-zero value is true.
func readBool(payload []byte, offset int) (bool, error) {
	raw, err := readUint8(payload, offset)
	if err != nil {
		return false, err
	}
	return raw != 0, nil
}

// readSpeedCMPS reads a raw big-endian mm/s field and applies the protocol
// scale factor to produce cm/s.
func readSpeedCMPS(payload []byte, offset int) (float64, error) {
	raw, err := readUint16(payload, offset)
	if err != nil {
		return 0, err
	}
	return float64(raw) / speedScaleDivisor, nil
}

// readOdometerMeters reads a raw big-endian cm counter and applies the
// protocol scale factor to produce meters. The unset sentinel reads as zero.
func readOdometerMeters(payload []byte, offset int) (float64, error) {
	raw, err := readUint32(payload, offset)
	if err != nil {
		return 0, err
	}
	if raw == odometerUnset {
		raw = 0
	}
	return float64(raw) / odometerScaleDivisor, nil
}

// readMovementDirection reads and validates a movement direction field.
func readMovementDirection(payload []byte, offset int) (MovementDirection, error) {
	raw, err := readUint8(payload, offset)
	if err != nil {
		return 0, err
	}
	return movementDirectionFromRaw(raw)
}

// readButtonPress reads and validates a button press field.
func readButtonPress(payload []byte, offset int) (ButtonPress, error) {
	raw, err := readUint8(payload, offset)
	if err != nil {
		return 0, err
	}
	return buttonPressFromRaw(raw)
}

// readSteeringDecision reads and validates a steering decision field.
func readSteeringDecision(payload []byte, offset int) (SteeringDecision, error) {
	raw, err := readUint8(payload, offset)
	if err != nil {
		return 0, err
	}
	return steeringDecisionFromRaw(raw)
}

// readLegacySteeringDecision reads and validates a steering decision field in
// the older encoding used by movement frames.
func readLegacySteeringDecision(payload []byte, offset int) (SteeringDecision, error) {
	raw, err := readUint8(payload, offset)
	if err != nil {
		return 0, err
	}
	return steeringDecisionFromLegacyRaw(raw)
}

// readSnapColor reads and validates a single snap color field.
func readSnapColor(payload []byte, offset int) (SnapColorValue, error) {
	raw, err := readUint8(payload, offset)
	if err != nil {
		return 0, err
	}
	return snapColorFromRaw(raw)
}

// readSnapCommand reads four consecutive snap color fields.
func readSnapCommand(payload []byte, offset int) (SnapCommand, error) {
	var cmd SnapCommand
	for i := range cmd {
		color, err := readSnapColor(payload, offset+i)
		if err != nil {
			return SnapCommand{}, err
		}
		cmd[i] = color
	}
	return cmd, nil
}
