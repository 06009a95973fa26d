package trainmsg

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSnapColorValue_RGB(t *testing.T) {
	r, g, b := ColorMagenta.RGB()
	assert.Equal(t, [3]uint8{255, 0, 255}, [3]uint8{r, g, b}, "magenta should mix red and blue")
	r, g, b = ColorBlack.RGB()
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b}, "black should be all zero")
	r, g, b = ColorWhite.RGB()
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b}, "white should be all full")
}

func TestSnapCommand_StartsWith(t *testing.T) {
	cmd := SnapCommand{ColorWhite, ColorRed, ColorGreen, ColorBlack}
	assert.True(t, cmd.StartsWith(), "empty prefix should always match")
	assert.True(t, cmd.StartsWith(ColorWhite, ColorRed), "should match prefix")
	assert.False(t, cmd.StartsWith(ColorWhite, ColorGreen), "should reject wrong prefix")
	assert.False(t, cmd.StartsWith(ColorWhite, ColorRed, ColorGreen, ColorBlack, ColorBlack),
		"prefix longer than command should not match")
}

func TestSnapCommand_Equals(t *testing.T) {
	cmd := SnapCommand{ColorWhite, ColorRed, ColorBlack, ColorBlack}
	assert.True(t, cmd.Equals(ColorWhite, ColorRed), "missing trailing colors should read as black")
	assert.True(t, cmd.Equals(ColorWhite, ColorRed, ColorBlack, ColorBlack), "full match should pass")
	assert.False(t, cmd.Equals(ColorWhite), "shorter sequence should not match remaining colors")
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "1.4.9", Version{Major: 1, Minor: 4, Patch: 9}.String())
	assert.Equal(t, "1.2", Version{Major: 1, Minor: 2, Patch: -1}.String(),
		"negative patch should be omitted")
}

func TestMovementDirection_fromRaw(t *testing.T) {
	for raw := uint8(0); raw <= 4; raw++ {
		_, err := movementDirectionFromRaw(raw)
		require.NoError(t, err, "code %d should be in domain", raw)
	}
	_, err := movementDirectionFromRaw(5)
	assert.Error(t, err, "code 5 should be out of domain")
}

func TestSteeringDecision_fromLegacyRaw(t *testing.T) {
	decision, err := steeringDecisionFromLegacyRaw(0b011)
	require.NoError(t, err, "legacy straight code should be in domain")
	assert.Equal(t, SteeringStraight, decision, "legacy 0b011 should map to straight")
	_, err = steeringDecisionFromLegacyRaw(0b100)
	assert.Error(t, err, "new-style straight code should be out of the legacy domain")
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "forward", DirectionForward.String())
	assert.Equal(t, "movement-direction-9", MovementDirection(9).String())
	assert.Equal(t, "long", ButtonPressLong.String())
	assert.Equal(t, "steer", SteeringSteer.String())
	assert.Equal(t, "cyan", ColorCyan.String())
	assert.Equal(t, "front", SensorFront.String())
}
