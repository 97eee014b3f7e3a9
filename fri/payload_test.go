package fri

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImpedancePayload_Layout(t *testing.T) {
	require := require.New(t)

	stiffness := []float64{1, 2, 3, 4, 5, 6, 7}
	damping := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}

	payload, err := ImpedancePayload(stiffness, damping)
	require.NoError(err)
	require.Len(payload, 1+len(ControlModeHeader)+14*8)
	require.Equal(byte(JointImpedanceControlMode), payload[0])
	require.Equal(ControlModeHeader, payload[1:7])
	// 1.0 as big-endian IEEE-754
	require.Equal([]byte{0x3F, 0xF0, 0, 0, 0, 0, 0, 0}, payload[7:15])
}

func TestImpedancePayload_RoundTripIsBitExact(t *testing.T) {
	require := require.New(t)

	stiffness := []float64{500, 1e-300, math.MaxFloat64, -0.0, math.SmallestNonzeroFloat64, 1234.5678, math.Inf(1)}
	damping := []float64{0.7, 0.1 + 0.2, -1, 3.141592653589793, 2e10, math.Inf(-1), 0}

	payload, err := ImpedancePayload(stiffness, damping)
	require.NoError(err)

	gotStiffness, gotDamping, err := DecodeImpedancePayload(payload)
	require.NoError(err)
	for i := range JointCount {
		require.Equal(math.Float64bits(stiffness[i]), math.Float64bits(gotStiffness[i]), "stiffness %d", i)
		require.Equal(math.Float64bits(damping[i]), math.Float64bits(gotDamping[i]), "damping %d", i)
	}
}

func TestImpedancePayload_JointCount(t *testing.T) {
	require := require.New(t)

	_, err := ImpedancePayload(make([]float64, 6), make([]float64, 7))
	require.ErrorIs(err, ErrJointCount)

	_, err = ImpedancePayload(make([]float64, 7), nil)
	require.ErrorIs(err, ErrJointCount)
}

func TestDecodeImpedancePayload_Invalid(t *testing.T) {
	require := require.New(t)

	payload, err := ImpedancePayload(make([]float64, 7), make([]float64, 7))
	require.NoError(err)

	_, _, err = DecodeImpedancePayload(payload[:len(payload)-1])
	require.ErrorIs(err, ErrInvalidPayload)

	bad := append([]byte(nil), payload...)
	bad[0] = byte(PositionControlMode)
	_, _, err = DecodeImpedancePayload(bad)
	require.ErrorIs(err, ErrInvalidPayload)

	bad = append([]byte(nil), payload...)
	bad[3] = 0
	_, _, err = DecodeImpedancePayload(bad)
	require.ErrorIs(err, ErrInvalidPayload)
}

func TestConfigPayload(t *testing.T) {
	require := require.New(t)

	payload, err := ConfigPayload(30200, 10, 1)
	require.NoError(err)
	require.Equal([]byte{
		0xAC, 0xED, 0x00, 0x05, 0x77, 0x0C,
		0x00, 0x00, 0x75, 0xF8,
		0x00, 0x00, 0x00, 0x0A,
		0x00, 0x00, 0x00, 0x01,
	}, payload)

	port, period, multiplier, err := DecodeConfigPayload(payload)
	require.NoError(err)
	require.Equal(30200, port)
	require.Equal(10, period)
	require.Equal(1, multiplier)

	payload, err = ConfigPayload(-1, 0, math.MaxInt32)
	require.NoError(err)
	port, period, multiplier, err = DecodeConfigPayload(payload)
	require.NoError(err)
	require.Equal(-1, port)
	require.Equal(0, period)
	require.Equal(math.MaxInt32, multiplier)

	_, err = ConfigPayload(math.MaxInt32+1, 0, 0)
	require.ErrorIs(err, ErrInvalidPayload)

	_, _, _, err = DecodeConfigPayload(payload[1:])
	require.ErrorIs(err, ErrInvalidPayload)
}

func TestModes(t *testing.T) {
	require := require.New(t)

	for _, m := range []ControlMode{PositionControlMode, JointImpedanceControlMode} {
		parsed, err := ParseControlMode(m.String())
		require.NoError(err)
		require.Equal(m, parsed)
	}
	for _, m := range []CommandMode{PositionCommandMode, WrenchCommandMode, TorqueCommandMode} {
		parsed, err := ParseCommandMode(m.String())
		require.NoError(err)
		require.Equal(m, parsed)
	}

	_, err := ParseControlMode("cartesian")
	require.ErrorIs(err, ErrInvalidControlMode)
	_, err = ParseCommandMode("velocity")
	require.ErrorIs(err, ErrInvalidCommandMode)

	require.Equal([]byte{1}, ControlModePayload(PositionControlMode))
	require.Equal([]byte{2}, CommandModePayload(WrenchCommandMode))
}
